package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/billing/internal/shared"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokenManager("secret", "billing", time.Hour)
	raw, err := tokens.Issue(Principal{ID: 42, Email: "ops@example.com", Role: RoleStoreManager})
	require.NoError(t, err)

	p, err := tokens.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, int64(42), p.ID)
	require.Equal(t, RoleStoreManager, p.Role)

	_, err = NewTokenManager("other", "billing", time.Hour).Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenManager("secret", "someone-else", time.Hour).Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenExpiry(t *testing.T) {
	tokens := NewTokenManager("secret", "", time.Minute)
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issued }
	raw, err := tokens.Issue(Principal{ID: 1, Role: RoleAdmin})
	require.NoError(t, err)

	tokens.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tokens.Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddlewareAuthenticateAndRequire(t *testing.T) {
	tokens := NewTokenManager("secret", "billing", time.Hour)
	m := Middleware{Tokens: tokens, Policy: DefaultPolicy()}

	var actor int64
	handler := m.Authenticate(m.Require(ActionDelete, ResourceInvoice)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	serve := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/api/billing/invoices/1", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	require.Equal(t, http.StatusUnauthorized, serve("").Code)
	require.Equal(t, http.StatusUnauthorized, serve("Bearer garbage").Code)
	require.Equal(t, http.StatusUnauthorized, serve("Basic Zm9vOmJhcg==").Code)

	manager, err := tokens.Issue(Principal{ID: 5, Role: RoleStoreManager})
	require.NoError(t, err)
	rr := serve("Bearer " + manager)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "application/problem+json")

	admin, err := tokens.Issue(Principal{ID: 7, Role: RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, serve("bearer "+admin).Code)
	require.Equal(t, int64(7), actor)
}
