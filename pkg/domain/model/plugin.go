package model

import (
	"net/url"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/types"
)

// PluginRegistration describes an external service reacting to repository
// activity. The type is metadata used only for subscription filtering; the
// dispatcher treats all plugins uniformly.
type PluginRegistration struct {
	Name      types.PluginName
	Type      types.PluginType
	Endpoint  string
	Secret    types.WebhookSecret `masq:"secret"`
	Kinds     []types.EventKind
	Health    types.PluginHealth
	CreatedAt time.Time
}

func (x *PluginRegistration) Validate() error {
	if x.Name == "" {
		return goerr.Wrap(types.ErrValidationFailed, "plugin name is empty")
	}
	switch x.Type {
	case types.PluginTypeCIRunner, types.PluginTypeReview, types.PluginTypeAI, types.PluginTypeGeneric:
	default:
		return goerr.Wrap(types.ErrValidationFailed, "invalid plugin type",
			goerr.V("type", x.Type),
		)
	}
	if u, err := url.Parse(x.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return goerr.Wrap(types.ErrValidationFailed, "plugin endpoint must be an absolute URL",
			goerr.V("endpoint", x.Endpoint),
		)
	}
	for _, kind := range x.Kinds {
		if !ValidEventKind(kind) {
			return goerr.Wrap(types.ErrValidationFailed, "unknown subscription kind",
				goerr.V("kind", kind),
			)
		}
	}
	return nil
}

// Subscribed reports whether the plugin declared interest in the kind.
// An empty kind list means all kinds.
func (x *PluginRegistration) Subscribed(kind types.EventKind) bool {
	if len(x.Kinds) == 0 {
		return true
	}
	for _, k := range x.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// WebhookDelivery tracks the state machine of one (event, plugin) pair.
// Records are kept after reaching a terminal state for operator audit.
type WebhookDelivery struct {
	EventID   types.EventID
	Repo      types.RepoName
	Plugin    types.PluginName
	State     types.DeliveryState
	Attempts  int
	LastError string
	UpdatedAt time.Time
}
