package server

import (
	"errors"
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/soloforge/soloforge/pkg/domain/interfaces"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/repository"
	"github.com/soloforge/soloforge/pkg/utils/errutil"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

type Server struct {
	mux            *chi.Mux
	metricsHandler http.Handler
}

type Option func(*Server)

// WithMetricsHandler serves delivery metrics on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(x *Server) {
		x.metricsHandler = h
	}
}

func safeWrite(w http.ResponseWriter, code int, body []byte) {
	w.WriteHeader(code)

	// nosemgrep: go.lang.security.audit.xss.no-direct-write-to-responsewriter.no-direct-write-to-responsewriter
	// Why: The response data is not from user input
	if _, err := w.Write(body); err != nil {
		logging.Default().Error("fail to write response", slog.Any("error", err))
	}
}

func New(uc interfaces.UseCase, options ...Option) *Server {
	x := &Server{}
	for _, opt := range options {
		opt(x)
	}

	r := chi.NewRouter()
	r.Use(preProcess)
	r.Use(authenticate(uc))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		safeWrite(w, http.StatusOK, []byte("ok"))
	})

	if x.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", x.metricsHandler)
	}

	r.Route("/git/{repo}", func(r chi.Router) {
		r.Get("/info/refs", handleInfoRefs(uc))
		r.Post("/git-upload-pack", handleUploadPack(uc))
		r.Post("/git-receive-pack", handleReceivePack(uc))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/repos", func(r chi.Router) {
			r.Post("/", handleCreateRepository(uc))
			r.Get("/", handleListRepositories(uc))
			r.Route("/{repo}", func(r chi.Router) {
				r.Get("/", handleGetRepository(uc))
				r.Delete("/", handleDeleteRepository(uc))
				r.Get("/refs", handleListReferences(uc))
				r.Get("/diff", handleComputeDiff(uc))
				r.Get("/events", handleListEvents(uc))
				r.Put("/grants/{username}", handleSetGrant(uc))
				r.Delete("/grants/{username}", handleDeleteGrant(uc))
				r.Route("/pulls", func(r chi.Router) {
					r.Post("/", handleOpenPullRequest(uc))
					r.Get("/", handleListPullRequests(uc))
					r.Post("/{id}/merge", handleMergePullRequest(uc))
					r.Post("/{id}/close", handleClosePullRequest(uc))
				})
			})
		})
		r.Route("/collaborators", func(r chi.Router) {
			r.Put("/{username}", handleSaveCollaborator(uc))
			r.Delete("/{username}", handleDeleteCollaborator(uc))
		})
		r.Route("/plugins", func(r chi.Router) {
			r.Post("/", handleRegisterPlugin(uc))
			r.Get("/", handleListPlugins(uc))
			r.Delete("/{name}", handleDeletePlugin(uc))
		})
		r.Get("/dead-letters", handleListDeadLetters(uc))
	})

	x.mux = r
	return x
}

func (x *Server) Mux() *chi.Mux {
	return x.mux
}

// respondError maps domain errors to HTTP statuses. Anonymous denials get
// 401 with a basic-auth challenge so git clients prompt for credentials.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, types.ErrAuthorizationDenied):
		if ActorFrom(r.Context()) == "" {
			w.Header().Set("WWW-Authenticate", `Basic realm="soloforge"`)
			safeWrite(w, http.StatusUnauthorized, []byte("authentication required\n"))
			return
		}
		safeWrite(w, http.StatusForbidden, []byte("access denied\n"))

	case errors.Is(err, repository.ErrNotFound):
		safeWrite(w, http.StatusNotFound, []byte("not found\n"))

	case errors.Is(err, repository.ErrAlreadyExists):
		safeWrite(w, http.StatusConflict, []byte("already exists\n"))

	case errors.Is(err, types.ErrReferenceConflict):
		safeWrite(w, http.StatusConflict, []byte("reference conflict\n"))

	case errors.Is(err, types.ErrValidationFailed):
		safeWrite(w, http.StatusBadRequest, []byte(err.Error()+"\n"))

	default:
		errutil.HandleError(r.Context(), "request failed", err)
		safeWrite(w, http.StatusInternalServerError, []byte("internal error\n"))
	}
}
