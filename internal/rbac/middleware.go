package rbac

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"log/slog"

	"github.com/odyssey-erp/billing/internal/platform/httpx"
	"github.com/odyssey-erp/billing/internal/shared"
)

type principalContextKey struct{}

// WithPrincipal stores p in ctx along with its id for audit records.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = shared.ContextWithActor(ctx, p.ID)
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// Middleware wires token authentication and policy checks for HTTP handlers.
type Middleware struct {
	Tokens *TokenManager
	Policy Policy
	Logger *slog.Logger
}

// Authenticate resolves the bearer token into a principal. Requests without a
// valid token are rejected with 401.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, fmt.Errorf("%w: missing bearer token", shared.ErrUnauthorized))
			return
		}
		p, err := m.Tokens.Parse(raw)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("rbac reject token", slog.Any("error", err))
			}
			httpx.RespondError(w, fmt.Errorf("%w: invalid token", shared.ErrUnauthorized))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Require ensures the current principal may perform action on resource.
func (m Middleware) Require(action Action, resource Resource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			if !m.Policy.Allow(p, action, resource) {
				if m.Logger != nil {
					m.Logger.Info("rbac denied",
						slog.Int64("principal", p.ID),
						slog.String("role", string(p.Role)),
						slog.String("action", string(action)),
						slog.String("resource", string(resource)))
				}
				httpx.RespondError(w, fmt.Errorf("%w: %s %s", shared.ErrForbidden, action, resource))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
