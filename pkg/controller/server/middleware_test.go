package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/soloforge/soloforge/pkg/controller/server"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

func TestRequestLogging(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.Mux()

	t.Run("request context carries a per-request logger", func(t *testing.T) {
		var capturedCtx context.Context
		mux.HandleFunc("/test-logger", func(w http.ResponseWriter, r *http.Request) {
			capturedCtx = r.Context()
			w.WriteHeader(http.StatusOK)
		})

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test-logger", nil))

		logger := logging.From(capturedCtx)
		defaultLogger := logging.From(context.Background())
		gt.V(t, logger == defaultLogger).Equal(false)
	})

	t.Run("handler status codes pass through the access log wrapper", func(t *testing.T) {
		mux.HandleFunc("/test-status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test-status", nil))
		gt.V(t, rec.Code).Equal(http.StatusTeapot)
	})
}

func TestAuthenticateMiddleware(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.Mux()

	var seenActor types.Username
	mux.HandleFunc("/test-actor", func(w http.ResponseWriter, r *http.Request) {
		seenActor = server.ActorFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("basic credentials resolve the actor", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test-actor", nil)
		req.SetBasicAuth(ownerName, ownerToken)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		gt.V(t, rec.Code).Equal(http.StatusOK)
		gt.Equal(t, seenActor, types.Username(ownerName))
	})

	t.Run("missing credentials fall through as anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test-actor", nil))

		gt.V(t, rec.Code).Equal(http.StatusOK)
		gt.Equal(t, seenActor, types.Username(""))
	})

	t.Run("malformed authorization header is rejected before the handler", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test-actor", nil)
		req.Header.Set("Authorization", "Digest nope")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		gt.V(t, rec.Code).Equal(http.StatusUnauthorized)
	})
}
