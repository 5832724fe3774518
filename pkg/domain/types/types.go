package types

import (
	"log/slog"

	"github.com/google/uuid"
)

type (
	RepoName   string
	RefName    string
	ObjectID   string
	EventID    int64
	EventKind  string
	PluginName string
	Username   string
	RequestID  string

	APIToken      string
	WebhookSecret string
)

// ZeroObjectID is the all-zero hash used by the wire protocol to express
// "no object", i.e. reference creation and deletion.
const ZeroObjectID ObjectID = "0000000000000000000000000000000000000000"

func (x ObjectID) IsZero() bool {
	return x == "" || x == ZeroObjectID
}

// NewRequestID generates a new random request ID
func NewRequestID() RequestID {
	return RequestID(uuid.NewString())
}

// Permission is the per-repository access level of a collaborator.
// Levels are totally ordered: read < write < admin.
type Permission int

const (
	PermissionNone Permission = iota
	PermissionRead
	PermissionWrite
	PermissionAdmin
)

func (x Permission) String() string {
	switch x {
	case PermissionRead:
		return "read"
	case PermissionWrite:
		return "write"
	case PermissionAdmin:
		return "admin"
	default:
		return "none"
	}
}

func ParsePermission(s string) (Permission, error) {
	switch s {
	case "read":
		return PermissionRead, nil
	case "write":
		return PermissionWrite, nil
	case "admin":
		return PermissionAdmin, nil
	default:
		return PermissionNone, ErrValidationFailed
	}
}

// Covers returns true if the permission implies the required level.
func (x Permission) Covers(required Permission) bool {
	return x >= required
}

// Action is an operation subject to authorization.
type Action string

const (
	ActionClone      Action = "clone"
	ActionPush       Action = "push"
	ActionAdminister Action = "administer"
)

// Required returns the minimum permission level for the action.
func (x Action) Required() Permission {
	switch x {
	case ActionClone:
		return PermissionRead
	case ActionPush:
		return PermissionWrite
	case ActionAdminister:
		return PermissionAdmin
	default:
		return PermissionAdmin
	}
}

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

type RefType string

const (
	RefTypeBranch RefType = "branch"
	RefTypeTag    RefType = "tag"
)

type PluginType string

const (
	PluginTypeCIRunner PluginType = "ci_runner"
	PluginTypeReview   PluginType = "review"
	PluginTypeAI       PluginType = "ai"
	PluginTypeGeneric  PluginType = "generic"
)

type PluginHealth string

const (
	PluginHealthHealthy     PluginHealth = "healthy"
	PluginHealthDegraded    PluginHealth = "degraded"
	PluginHealthUnreachable PluginHealth = "unreachable"
)

type DeliveryState string

const (
	DeliveryStatePending      DeliveryState = "pending"
	DeliveryStateDelivering   DeliveryState = "delivering"
	DeliveryStateRetrying     DeliveryState = "retrying"
	DeliveryStateDelivered    DeliveryState = "delivered"
	DeliveryStateDeadLettered DeliveryState = "dead_lettered"
)

// Terminal returns true when no further delivery attempt will be made.
func (x DeliveryState) Terminal() bool {
	return x == DeliveryStateDelivered || x == DeliveryStateDeadLettered
}

func (x APIToken) LogValue() slog.Value {
	return slog.StringValue("***********")
}

func (x APIToken) String() string {
	return "***********"
}

func (x WebhookSecret) LogValue() slog.Value {
	return slog.StringValue("***********")
}

func (x WebhookSecret) String() string {
	return "***********"
}
