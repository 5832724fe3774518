package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/soloforge/soloforge/pkg/domain/interfaces"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository"
	"github.com/soloforge/soloforge/pkg/repository/sqlite"
)

func newRepo(t *testing.T) interfaces.ForgeRepository {
	t.Helper()
	repo, db, err := sqlite.New(filepath.Join(t.TempDir(), "forge.db"))
	gt.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return repo
}

func TestRepositoryCRUD(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	created := &model.Repository{
		Name:          "infra",
		Description:   "infrastructure configs",
		Visibility:    types.VisibilityPrivate,
		DefaultBranch: "refs/heads/main",
		CreatedAt:     time.Now().UTC(),
	}
	gt.NoError(t, repo.CreateRepository(ctx, created))

	t.Run("duplicate name conflicts", func(t *testing.T) {
		err := repo.CreateRepository(ctx, created)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, repository.ErrAlreadyExists))
	})

	t.Run("get returns stored fields", func(t *testing.T) {
		got := gt.R1(repo.GetRepository(ctx, "infra")).NoError(t)
		gt.Equal(t, got.Name, types.RepoName("infra"))
		gt.Equal(t, got.Description, "infrastructure configs")
		gt.Equal(t, got.Visibility, types.VisibilityPrivate)
		gt.Equal(t, got.DefaultBranch, types.RefName("refs/heads/main"))
	})

	t.Run("unknown name is not found", func(t *testing.T) {
		_, err := repo.GetRepository(ctx, "missing")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, repository.ErrNotFound))
	})

	t.Run("list and delete", func(t *testing.T) {
		repos := gt.R1(repo.ListRepositories(ctx)).NoError(t)
		gt.A(t, repos).Length(1)

		gt.NoError(t, repo.DeleteRepository(ctx, "infra"))
		_, err := repo.GetRepository(ctx, "infra")
		gt.True(t, errors.Is(err, repository.ErrNotFound))
	})
}

func TestCollaboratorsAndGrants(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	gt.NoError(t, repo.CreateRepository(ctx, &model.Repository{
		Name:          "infra",
		Visibility:    types.VisibilityPrivate,
		DefaultBranch: "refs/heads/main",
		CreatedAt:     time.Now().UTC(),
	}))

	gt.NoError(t, repo.SaveCollaborator(ctx, &model.Collaborator{
		Username:  "mizuki",
		Email:     "mizuki@example.com",
		TokenHash: "abcd1234",
		PublicKeys: []model.PublicKey{
			{Name: "laptop", Key: "ssh-ed25519 AAAA...", Fingerprint: "SHA256:xyz"},
		},
		CreatedAt: time.Now().UTC(),
	}))

	t.Run("collaborator round trip", func(t *testing.T) {
		got := gt.R1(repo.GetCollaborator(ctx, "mizuki")).NoError(t)
		gt.Equal(t, got.Email, "mizuki@example.com")
		gt.A(t, got.PublicKeys).Length(1)
	})

	t.Run("grant round trip", func(t *testing.T) {
		gt.NoError(t, repo.SetGrant(ctx, &model.Grant{
			Username:   "mizuki",
			Repo:       "infra",
			Permission: types.PermissionWrite,
		}))

		got := gt.R1(repo.GetGrant(ctx, "mizuki", "infra")).NoError(t)
		gt.Equal(t, got.Permission, types.PermissionWrite)

		// Re-setting replaces the level.
		gt.NoError(t, repo.SetGrant(ctx, &model.Grant{
			Username:   "mizuki",
			Repo:       "infra",
			Permission: types.PermissionAdmin,
		}))
		got = gt.R1(repo.GetGrant(ctx, "mizuki", "infra")).NoError(t)
		gt.Equal(t, got.Permission, types.PermissionAdmin)
	})

	t.Run("absent grant is not found", func(t *testing.T) {
		_, err := repo.GetGrant(ctx, "stranger", "infra")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, repository.ErrNotFound))
	})

	t.Run("delete grant", func(t *testing.T) {
		gt.NoError(t, repo.DeleteGrant(ctx, "mizuki", "infra"))
		_, err := repo.GetGrant(ctx, "mizuki", "infra")
		gt.True(t, errors.Is(err, repository.ErrNotFound))
	})
}

func TestCompareAndSwapRef(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	gt.NoError(t, repo.CreateRepository(ctx, &model.Repository{
		Name:          "infra",
		Visibility:    types.VisibilityPrivate,
		DefaultBranch: "refs/heads/main",
		CreatedAt:     time.Now().UTC(),
	}))

	const (
		commitA = types.ObjectID("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
		commitB = types.ObjectID("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	)

	t.Run("create with zero old", func(t *testing.T) {
		gt.NoError(t, repo.CompareAndSwapRef(ctx, "infra", "refs/heads/main", types.ZeroObjectID, commitA))

		ref := gt.R1(repo.GetRef(ctx, "infra", "refs/heads/main")).NoError(t)
		gt.Equal(t, ref.Target, commitA)
	})

	t.Run("stale old value conflicts", func(t *testing.T) {
		err := repo.CompareAndSwapRef(ctx, "infra", "refs/heads/main", commitB, commitB)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, types.ErrReferenceConflict))

		// The stored value is untouched.
		ref := gt.R1(repo.GetRef(ctx, "infra", "refs/heads/main")).NoError(t)
		gt.Equal(t, ref.Target, commitA)
	})

	t.Run("create over existing ref conflicts", func(t *testing.T) {
		err := repo.CompareAndSwapRef(ctx, "infra", "refs/heads/main", types.ZeroObjectID, commitB)
		gt.True(t, errors.Is(err, types.ErrReferenceConflict))
	})

	t.Run("matching old value updates", func(t *testing.T) {
		gt.NoError(t, repo.CompareAndSwapRef(ctx, "infra", "refs/heads/main", commitA, commitB))
		ref := gt.R1(repo.GetRef(ctx, "infra", "refs/heads/main")).NoError(t)
		gt.Equal(t, ref.Target, commitB)
	})

	t.Run("list is ordered by name", func(t *testing.T) {
		gt.NoError(t, repo.CompareAndSwapRef(ctx, "infra", "refs/tags/v1.0.0", types.ZeroObjectID, commitA))
		gt.NoError(t, repo.CompareAndSwapRef(ctx, "infra", "refs/heads/dev", types.ZeroObjectID, commitA))

		refs := gt.R1(repo.ListRefs(ctx, "infra")).NoError(t)
		gt.A(t, refs).Length(3)
		gt.Equal(t, refs[0].Name, types.RefName("refs/heads/dev"))
		gt.Equal(t, refs[1].Name, types.RefName("refs/heads/main"))
		gt.Equal(t, refs[2].Name, types.RefName("refs/tags/v1.0.0"))
	})

	t.Run("zero new deletes", func(t *testing.T) {
		gt.NoError(t, repo.CompareAndSwapRef(ctx, "infra", "refs/heads/dev", commitA, types.ZeroObjectID))
		_, err := repo.GetRef(ctx, "infra", "refs/heads/dev")
		gt.True(t, errors.Is(err, repository.ErrNotFound))
	})
}

func TestEventsAndFeed(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	for _, name := range []types.RepoName{"infra", "docs"} {
		gt.NoError(t, repo.CreateRepository(ctx, &model.Repository{
			Name:          name,
			Visibility:    types.VisibilityPrivate,
			DefaultBranch: "refs/heads/main",
			CreatedAt:     time.Now().UTC(),
		}))
	}

	appendEvent := func(repoName types.RepoName, kind types.EventKind) *model.Event {
		stored, err := repo.AppendEvent(ctx, &model.Event{
			Repo:       repoName,
			Kind:       kind,
			OccurredAt: time.Now().UTC(),
		})
		gt.NoError(t, err)
		return stored
	}

	e1 := appendEvent("infra", model.EventRepositoryCreated)
	e2 := appendEvent("docs", model.EventRepositoryCreated)
	e3 := appendEvent("infra", model.EventBranchCreated)

	t.Run("per repository IDs are gap free", func(t *testing.T) {
		gt.Equal(t, e1.ID, types.EventID(1))
		gt.Equal(t, e2.ID, types.EventID(1))
		gt.Equal(t, e3.ID, types.EventID(2))
	})

	t.Run("list pages one repository", func(t *testing.T) {
		events := gt.R1(repo.ListEvents(ctx, "infra", 1, 10)).NoError(t)
		gt.A(t, events).Length(2)
		gt.Equal(t, events[0].Kind, model.EventRepositoryCreated)
		gt.Equal(t, events[1].Kind, model.EventBranchCreated)

		tail := gt.R1(repo.ListEvents(ctx, "infra", 2, 10)).NoError(t)
		gt.A(t, tail).Length(1)
	})

	t.Run("feed spans repositories in publish order", func(t *testing.T) {
		events, cursor, err := repo.FeedEvents(ctx, 0, 10)
		gt.NoError(t, err)
		gt.A(t, events).Length(3)
		gt.Equal(t, events[0].Repo, types.RepoName("infra"))
		gt.Equal(t, events[1].Repo, types.RepoName("docs"))
		gt.N(t, cursor).Greater(0)

		rest, _, err := repo.FeedEvents(ctx, cursor, 10)
		gt.NoError(t, err)
		gt.A(t, rest).Length(0)
	})
}

func TestPluginsAndDeliveries(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	gt.NoError(t, repo.SavePlugin(ctx, &model.PluginRegistration{
		Name:      "ci",
		Type:      types.PluginTypeCIRunner,
		Endpoint:  "http://ci.internal/hook",
		Secret:    "hook-secret",
		Kinds:     []types.EventKind{model.EventCommitPushed},
		Health:    types.PluginHealthHealthy,
		CreatedAt: time.Now().UTC(),
	}))

	t.Run("plugin round trip", func(t *testing.T) {
		got := gt.R1(repo.GetPlugin(ctx, "ci")).NoError(t)
		gt.Equal(t, got.Endpoint, "http://ci.internal/hook")
		gt.A(t, got.Kinds).Length(1)
		gt.Equal(t, got.Health, types.PluginHealthHealthy)
	})

	t.Run("health update", func(t *testing.T) {
		gt.NoError(t, repo.UpdatePluginHealth(ctx, "ci", types.PluginHealthDegraded))
		got := gt.R1(repo.GetPlugin(ctx, "ci")).NoError(t)
		gt.Equal(t, got.Health, types.PluginHealthDegraded)
	})

	t.Run("delivery upsert by event and plugin", func(t *testing.T) {
		gt.NoError(t, repo.SaveDelivery(ctx, &model.WebhookDelivery{
			EventID:   1,
			Repo:      "infra",
			Plugin:    "ci",
			State:     types.DeliveryStatePending,
			Attempts:  0,
			UpdatedAt: time.Now().UTC(),
		}))
		gt.NoError(t, repo.SaveDelivery(ctx, &model.WebhookDelivery{
			EventID:   1,
			Repo:      "infra",
			Plugin:    "ci",
			State:     types.DeliveryStateDeadLettered,
			Attempts:  5,
			LastError: "connection refused",
			UpdatedAt: time.Now().UTC(),
		}))

		deliveries := gt.R1(repo.ListDeliveries(ctx, "ci", 10)).NoError(t)
		gt.A(t, deliveries).Length(1)
		gt.Equal(t, deliveries[0].State, types.DeliveryStateDeadLettered)
		gt.Equal(t, deliveries[0].Attempts, 5)

		dead := gt.R1(repo.ListDeliveriesByState(ctx, types.DeliveryStateDeadLettered, 10)).NoError(t)
		gt.A(t, dead).Length(1)

		pending := gt.R1(repo.ListDeliveriesByState(ctx, types.DeliveryStatePending, 10)).NoError(t)
		gt.A(t, pending).Length(0)
	})

	t.Run("delete plugin", func(t *testing.T) {
		gt.NoError(t, repo.DeletePlugin(ctx, "ci"))
		_, err := repo.GetPlugin(ctx, "ci")
		gt.True(t, errors.Is(err, repository.ErrNotFound))
	})
}

func TestDispatchCursor(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	cursor := gt.R1(repo.GetDispatchCursor(ctx)).NoError(t)
	gt.Equal(t, cursor, int64(0))

	gt.NoError(t, repo.SetDispatchCursor(ctx, 42))
	cursor = gt.R1(repo.GetDispatchCursor(ctx)).NoError(t)
	gt.Equal(t, cursor, int64(42))
}

func TestPullRequestStore(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	gt.NoError(t, repo.CreateRepository(ctx, &model.Repository{
		Name:          "infra",
		Visibility:    types.VisibilityPrivate,
		DefaultBranch: "refs/heads/main",
		CreatedAt:     time.Now().UTC(),
	}))

	id := gt.R1(repo.CreatePullRequest(ctx, &model.PullRequest{
		Repo:       "infra",
		FromBranch: "refs/heads/feature",
		ToBranch:   "refs/heads/main",
		Title:      "add terraform module",
		Author:     "mizuki",
		State:      model.PRStateOpen,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	})).NoError(t)
	gt.Equal(t, id, int64(1))

	second := gt.R1(repo.CreatePullRequest(ctx, &model.PullRequest{
		Repo:       "infra",
		FromBranch: "refs/heads/other",
		ToBranch:   "refs/heads/main",
		Title:      "second change",
		Author:     "mizuki",
		State:      model.PRStateOpen,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	})).NoError(t)
	gt.Equal(t, second, int64(2))

	pr := gt.R1(repo.GetPullRequest(ctx, "infra", id)).NoError(t)
	gt.Equal(t, pr.Title, "add terraform module")
	gt.Equal(t, pr.State, model.PRStateOpen)

	pr.State = model.PRStateMerged
	pr.MergeMethod = model.MergeMethodMerge
	gt.NoError(t, repo.UpdatePullRequest(ctx, pr))

	updated := gt.R1(repo.GetPullRequest(ctx, "infra", id)).NoError(t)
	gt.Equal(t, updated.State, model.PRStateMerged)

	all := gt.R1(repo.ListPullRequests(ctx, "infra")).NoError(t)
	gt.A(t, all).Length(2)
}
