package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/soloforge/soloforge/pkg/domain/interfaces"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/protocol"
)

// repoParam extracts the repository name from the URL. Git clients append
// ".git" to the repository path, which is not part of the stored name.
func repoParam(r *http.Request) types.RepoName {
	name := chi.URLParam(r, "repo")
	name = strings.TrimSuffix(name, ".git")
	return types.RepoName(name)
}

func handleInfoRefs(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		service := r.URL.Query().Get("service")
		if service != protocol.ServiceUploadPack && service != protocol.ServiceReceivePack {
			safeWrite(w, http.StatusForbidden, []byte("smart protocol only\n"))
			return
		}

		ctx := r.Context()
		w.Header().Set("Content-Type", "application/x-"+service+"-advertisement")
		w.Header().Set("Cache-Control", "no-cache")

		if err := uc.AdvertiseRefs(ctx, ActorFrom(ctx), repoParam(r), service, w); err != nil {
			respondError(w, r, err)
			return
		}
	}
}

func handleUploadPack(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("Content-Type", "application/x-git-upload-pack-result")
		w.Header().Set("Cache-Control", "no-cache")

		if err := uc.UploadPack(ctx, ActorFrom(ctx), repoParam(r), r.Body, w); err != nil {
			respondError(w, r, err)
			return
		}
	}
}

func handleReceivePack(uc interfaces.UseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("Content-Type", "application/x-git-receive-pack-result")
		w.Header().Set("Cache-Control", "no-cache")

		if _, err := uc.ReceivePack(ctx, ActorFrom(ctx), repoParam(r), r.Body, w); err != nil {
			respondError(w, r, err)
			return
		}
	}
}
