package server

import (
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/soloforge/soloforge/pkg/domain/interfaces"
	"github.com/soloforge/soloforge/pkg/domain/types"
	"github.com/soloforge/soloforge/pkg/utils/logging"
)

func preProcess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.Default().With(slog.String("request_id", uuid.NewString()))

		ctx := logging.With(r.Context(), logger)

		lw := &statusCodeLogger{
			ResponseWriter: w,
			statusCode:     http.StatusOK, // Default to 200 if WriteHeader is not called
		}

		requestedAt := time.Now()
		next.ServeHTTP(lw, r.WithContext(ctx))

		logger.Info("http access",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr),
			slog.Int("status_code", lw.statusCode),
			slog.Int64("content_length", r.ContentLength),
			slog.String("user_agent", r.UserAgent()),
			slog.String("referer", r.Referer()),
			slog.Duration("elapsed", time.Since(requestedAt)),
		)
	})
}

// authenticate resolves the request credentials to an actor. Requests without
// credentials proceed as anonymous; invalid credentials are rejected here so
// git clients re-prompt instead of failing on the following operation.
func authenticate(uc interfaces.UseCase) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var username types.Username
			var token types.APIToken
			switch {
			case r.Header.Get("Authorization") == "":
				next.ServeHTTP(w, r.WithContext(WithActor(ctx, "")))
				return

			case strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "):
				token = types.APIToken(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))

			default:
				user, pass, ok := r.BasicAuth()
				if !ok {
					w.Header().Set("WWW-Authenticate", `Basic realm="soloforge"`)
					safeWrite(w, http.StatusUnauthorized, []byte("unsupported authorization scheme\n"))
					return
				}
				username = types.Username(user)
				token = types.APIToken(pass)
			}

			actor, err := uc.ResolveActor(ctx, username, token)
			if err != nil {
				logging.From(ctx).Warn("authentication failed",
					slog.String("username", string(username)),
					slog.Any("error", err),
				)
				w.Header().Set("WWW-Authenticate", `Basic realm="soloforge"`)
				safeWrite(w, http.StatusUnauthorized, []byte("invalid credentials\n"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(ctx, actor)))
		})
	}
}

type statusCodeLogger struct {
	http.ResponseWriter
	statusCode int
}

func (x *statusCodeLogger) WriteHeader(code int) {
	x.statusCode = code
	x.ResponseWriter.WriteHeader(code)
}
