package model

import (
	"regexp"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/types"
)

// Owner is the single instance owner. It is read from configuration at
// process start and treated as immutable for the process lifetime.
type Owner struct {
	Username types.Username
	Email    string
	Token    types.APIToken `masq:"secret"`
}

var ptnRepoName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Repository is owned by the instance owner. Its identity (name) is
// immutable once created.
type Repository struct {
	Name          types.RepoName
	Description   string
	Visibility    types.Visibility
	DefaultBranch types.RefName
	CreatedAt     time.Time
}

func (x *Repository) Validate() error {
	if !ptnRepoName.MatchString(string(x.Name)) {
		return goerr.Wrap(types.ErrValidationFailed, "repository name must be URL-safe",
			goerr.V("name", x.Name),
		)
	}
	switch x.Visibility {
	case types.VisibilityPrivate, types.VisibilityPublic:
	default:
		return goerr.Wrap(types.ErrValidationFailed, "invalid visibility",
			goerr.V("visibility", x.Visibility),
		)
	}
	if x.DefaultBranch == "" {
		return goerr.Wrap(types.ErrValidationFailed, "default branch is empty")
	}
	return nil
}

// Collaborator can contribute to repositories the owner grants access to.
type Collaborator struct {
	Username   types.Username
	Email      string
	PublicKeys []PublicKey
	TokenHash  string
	CreatedAt  time.Time
}

// PublicKey is key material registered for a collaborator. The core stores
// it for future transports; the smart-HTTP path authenticates by token.
type PublicKey struct {
	Name        string
	Key         string
	Fingerprint string
}

// Grant binds a collaborator to a repository with a permission level.
type Grant struct {
	Username   types.Username
	Repo       types.RepoName
	Permission types.Permission
}
