package httptransport

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"protocell/pkg/domain"
	dErrors "protocell/pkg/domain-errors"
	"protocell/pkg/requestcontext"
)

// CallerValidator resolves a bearer token to a verified caller address.
type CallerValidator interface {
	ValidateToken(tokenString string) (domain.Address, error)
}

// SecretExchanger trades a registered caller secret for a bearer token.
type SecretExchanger interface {
	Exchange(caller domain.Address, secret string) (string, error)
}

// RequireCaller rejects requests without a valid bearer token and stores the
// verified caller address in the request context for the services below.
func RequireCaller(validator CallerValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				writeError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}
			caller, err := validator.ValidateToken(raw)
			if err != nil {
				logger.Warn("rejected caller token",
					"request_id", requestcontext.RequestID(r.Context()),
					"error", err)
				writeError(w, err)
				return
			}
			ctx := requestcontext.WithCaller(r.Context(), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestID stamps every request with a correlation ID, honoring one supplied
// by the client, and pins the request time so everything downstream observes
// the same clock reading.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		ctx = requestcontext.WithTime(ctx, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LogRequests writes one access-log line per request, with the User-Agent
// parsed into a client name so operators can tell SDKs, browsers and bots
// apart.
func LogRequests(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua := useragent.New(r.UserAgent())
			client, version := ua.Browser()
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(r.Context()),
				"client", client,
				"client_version", version,
				"client_os", ua.OS(),
				"bot", ua.Bot())
			next.ServeHTTP(w, r)
		})
	}
}
