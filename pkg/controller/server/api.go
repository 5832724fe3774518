package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/soloforge/soloforge/pkg/domain/interfaces"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

func respondJSON(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.From(r.Context()).Error("fail to encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return goerr.Wrap(types.ErrValidationFailed, "invalid request body", goerr.V("cause", err.Error()))
	}
	return nil
}

// asList keeps empty collections as JSON arrays instead of null.
func asList[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

type repositoryRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Visibility    string `json:"visibility"`
	DefaultBranch string `json:"default_branch"`
}

func handleCreateRepository(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req repositoryRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, err)
			return
		}

		ctx := r.Context()
		created, err := uc.CreateRepository(ctx, ActorFrom(ctx), &model.Repository{
			Name:          types.RepoName(req.Name),
			Description:   req.Description,
			Visibility:    types.Visibility(req.Visibility),
			DefaultBranch: types.RefName(req.DefaultBranch),
		})
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusCreated, created)
	}
}

func handleListRepositories(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		repos, err := uc.ListRepositories(ctx, ActorFrom(ctx))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, asList(repos))
	}
}

func handleGetRepository(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		repo, err := uc.GetRepository(ctx, ActorFrom(ctx), repoParam(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, repo)
	}
}

func handleDeleteRepository(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := uc.DeleteRepository(ctx, ActorFrom(ctx), repoParam(r)); err != nil {
			respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListReferences(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		refs, err := uc.ListReferences(ctx, ActorFrom(ctx), repoParam(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, asList(refs))
	}
}

func handleComputeDiff(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		from := types.ObjectID(r.URL.Query().Get("from"))
		to := types.ObjectID(r.URL.Query().Get("to"))
		if to == "" {
			respondError(w, r, goerr.Wrap(types.ErrValidationFailed, "to commit is required"))
			return
		}

		diff, err := uc.ComputeDiff(ctx, ActorFrom(ctx), repoParam(r), from, to)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, diff)
	}
}

func handleListEvents(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var from int64
		if v := r.URL.Query().Get("from"); v != "" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				respondError(w, r, goerr.Wrap(types.ErrValidationFailed, "invalid from event ID"))
				return
			}
			from = parsed
		}
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 {
				respondError(w, r, goerr.Wrap(types.ErrValidationFailed, "invalid limit"))
				return
			}
			limit = parsed
		}

		events, err := uc.ListEvents(ctx, ActorFrom(ctx), repoParam(r), types.EventID(from), limit)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, asList(events))
	}
}

type grantRequest struct {
	Permission string `json:"permission"`
}

func handleSetGrant(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req grantRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, err)
			return
		}
		perm, err := types.ParsePermission(req.Permission)
		if err != nil {
			respondError(w, r, goerr.Wrap(err, "invalid permission", goerr.V("permission", req.Permission)))
			return
		}

		ctx := r.Context()
		if err := uc.SetGrant(ctx, ActorFrom(ctx), &model.Grant{
			Username:   types.Username(chi.URLParam(r, "username")),
			Repo:       repoParam(r),
			Permission: perm,
		}); err != nil {
			respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDeleteGrant(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		username := types.Username(chi.URLParam(r, "username"))
		if err := uc.DeleteGrant(ctx, ActorFrom(ctx), username, repoParam(r)); err != nil {
			respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type collaboratorRequest struct {
	Email      string `json:"email"`
	TokenHash  string `json:"token_hash"`
	PublicKeys []struct {
		Name string `json:"name"`
		Key  string `json:"key"`
	} `json:"public_keys"`
}

func handleSaveCollaborator(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req collaboratorRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, err)
			return
		}

		collab := &model.Collaborator{
			Username:  types.Username(chi.URLParam(r, "username")),
			Email:     req.Email,
			TokenHash: req.TokenHash,
		}
		for _, key := range req.PublicKeys {
			collab.PublicKeys = append(collab.PublicKeys, model.PublicKey{
				Name: key.Name,
				Key:  key.Key,
			})
		}

		ctx := r.Context()
		if err := uc.SaveCollaborator(ctx, ActorFrom(ctx), collab); err != nil {
			respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDeleteCollaborator(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		username := types.Username(chi.URLParam(r, "username"))
		if err := uc.DeleteCollaborator(ctx, ActorFrom(ctx), username); err != nil {
			respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type pullRequestRequest struct {
	FromBranch  string `json:"from_branch"`
	ToBranch    string `json:"to_branch"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func handleOpenPullRequest(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pullRequestRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, err)
			return
		}

		ctx := r.Context()
		pr, err := uc.OpenPullRequest(ctx, ActorFrom(ctx), &model.PullRequest{
			Repo:        repoParam(r),
			FromBranch:  types.RefName(req.FromBranch),
			ToBranch:    types.RefName(req.ToBranch),
			Title:       req.Title,
			Description: req.Description,
		})
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusCreated, pr)
	}
}

func handleListPullRequests(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		prs, err := uc.ListPullRequests(ctx, ActorFrom(ctx), repoParam(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, asList(prs))
	}
}

func pullRequestID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, goerr.Wrap(types.ErrValidationFailed, "invalid pull request ID",
			goerr.V("id", chi.URLParam(r, "id")),
		)
	}
	return id, nil
}

type mergeRequest struct {
	Method string `json:"method"`
}

func handleMergePullRequest(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pullRequestID(r)
		if err != nil {
			respondError(w, r, err)
			return
		}
		var req mergeRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, err)
			return
		}
		if req.Method == "" {
			req.Method = string(model.MergeMethodMerge)
		}

		ctx := r.Context()
		pr, err := uc.MergePullRequest(ctx, ActorFrom(ctx), repoParam(r), id, model.MergeMethod(req.Method))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, pr)
	}
}

func handleClosePullRequest(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pullRequestID(r)
		if err != nil {
			respondError(w, r, err)
			return
		}

		ctx := r.Context()
		pr, err := uc.ClosePullRequest(ctx, ActorFrom(ctx), repoParam(r), id)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, pr)
	}
}

type pluginRequest struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Endpoint string   `json:"endpoint"`
	Secret   string   `json:"secret"`
	Kinds    []string `json:"kinds"`
}

func handleRegisterPlugin(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pluginRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, err)
			return
		}

		plugin := &model.PluginRegistration{
			Name:     types.PluginName(req.Name),
			Type:     types.PluginType(req.Type),
			Endpoint: req.Endpoint,
			Secret:   types.WebhookSecret(req.Secret),
		}
		for _, kind := range req.Kinds {
			plugin.Kinds = append(plugin.Kinds, types.EventKind(kind))
		}

		ctx := r.Context()
		if err := uc.RegisterPlugin(ctx, ActorFrom(ctx), plugin); err != nil {
			respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

type pluginResponse struct {
	Name     types.PluginName   `json:"name"`
	Type     types.PluginType   `json:"type"`
	Endpoint string             `json:"endpoint"`
	Kinds    []types.EventKind  `json:"kinds,omitempty"`
	Health   types.PluginHealth `json:"health"`
}

func handleListPlugins(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		plugins, err := uc.ListPlugins(ctx, ActorFrom(ctx))
		if err != nil {
			respondError(w, r, err)
			return
		}

		// Secrets never leave the server, even for the owner.
		resp := make([]pluginResponse, 0, len(plugins))
		for _, p := range plugins {
			resp = append(resp, pluginResponse{
				Name:     p.Name,
				Type:     p.Type,
				Endpoint: p.Endpoint,
				Kinds:    p.Kinds,
				Health:   p.Health,
			})
		}
		respondJSON(w, r, http.StatusOK, resp)
	}
}

func handleDeletePlugin(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		name := types.PluginName(chi.URLParam(r, "name"))
		if err := uc.DeletePlugin(ctx, ActorFrom(ctx), name); err != nil {
			respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListDeadLetters(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 {
				respondError(w, r, goerr.Wrap(types.ErrValidationFailed, "invalid limit"))
				return
			}
			limit = parsed
		}

		letters, err := uc.ListDeadLetters(ctx, ActorFrom(ctx), limit)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, r, http.StatusOK, asList(letters))
	}
}
