package model

import (
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/types"
)

// Event kinds form a closed set. New kinds are added here, never registered
// at runtime, so ordering and replay guarantees stay provable.
const (
	EventRepositoryCreated types.EventKind = "repository_created"
	EventBranchCreated     types.EventKind = "branch_created"
	EventBranchDeleted     types.EventKind = "branch_deleted"
	EventCommitPushed      types.EventKind = "commit_pushed"
	EventPullRequestOpened types.EventKind = "pull_request_opened"
	EventPullRequestMerged types.EventKind = "pull_request_merged"
	EventTagCreated        types.EventKind = "tag_created"
	EventFileChanged       types.EventKind = "file_changed"
)

var eventKinds = map[types.EventKind]struct{}{
	EventRepositoryCreated: {},
	EventBranchCreated:     {},
	EventBranchDeleted:     {},
	EventCommitPushed:      {},
	EventPullRequestOpened: {},
	EventPullRequestMerged: {},
	EventTagCreated:        {},
	EventFileChanged:       {},
}

// ValidEventKind reports whether the kind belongs to the closed set.
func ValidEventKind(kind types.EventKind) bool {
	_, ok := eventKinds[kind]
	return ok
}

// Event is an immutable record of one repository mutation. IDs are
// monotonic within a repository with no gaps.
type Event struct {
	ID         types.EventID
	Repo       types.RepoName
	Kind       types.EventKind
	Payload    json.RawMessage
	OccurredAt time.Time
}

func (x *Event) Validate() error {
	if x.Repo == "" {
		return goerr.Wrap(types.ErrValidationFailed, "event repository is empty")
	}
	if !ValidEventKind(x.Kind) {
		return goerr.Wrap(types.ErrValidationFailed, "unknown event kind",
			goerr.V("kind", x.Kind),
		)
	}
	return nil
}

// CommitPushedPayload is the logical push event, one per successful push.
// Per-ref sub-events accompany it when additional refs changed.
type CommitPushedPayload struct {
	Ref    types.RefName  `json:"ref"`
	From   types.ObjectID `json:"from"`
	To     types.ObjectID `json:"to"`
	Pusher types.Username `json:"pusher"`
}

type BranchPayload struct {
	Branch types.RefName  `json:"branch"`
	Target types.ObjectID `json:"target,omitempty"`
	Pusher types.Username `json:"pusher"`
}

type TagCreatedPayload struct {
	Tag    string         `json:"tag"`
	Target types.ObjectID `json:"target"`
	Tagger types.Username `json:"tagger"`
}

type RepositoryCreatedPayload struct {
	Name          types.RepoName   `json:"name"`
	Visibility    types.Visibility `json:"visibility"`
	DefaultBranch types.RefName    `json:"default_branch"`
}

type FileChangedPayload struct {
	Ref    types.RefName  `json:"ref"`
	Commit types.ObjectID `json:"commit"`
	Files  []FileChange   `json:"files"`
}

type PullRequestPayload struct {
	ID         int64          `json:"id"`
	FromBranch types.RefName  `json:"from_branch"`
	ToBranch   types.RefName  `json:"to_branch"`
	Title      string         `json:"title,omitempty"`
	Author     types.Username `json:"author,omitempty"`
	MergedBy   types.Username `json:"merged_by,omitempty"`
}

// MarshalPayload serializes an event payload for storage and delivery.
func MarshalPayload(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, goerr.Wrap(err, "marshaling event payload")
	}
	return raw, nil
}
