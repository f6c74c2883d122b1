package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/billing/internal/shared"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("invoice %w", shared.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("dup: %w", shared.ErrConflict), http.StatusConflict},
		{fmt.Errorf("over: %w", shared.ErrInvalidArgument), http.StatusBadRequest},
		{fmt.Errorf("paid: %w", shared.ErrInvalidState), http.StatusConflict},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.status, rr.Code, tc.err.Error())
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		assert.Equal(t, tc.status >= 400 && tc.status < 500, IsClientError(tc.err))
	}
}

func TestRespondErrorValidationFields(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.NewValidationError(map[string]string{"amount": "is required"}))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var body ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Equal(t, "is required", body.Errors["amount"])
}

func TestDecodeJSON(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, "a", target.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	require.Error(t, DecodeJSON(req, &target))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}{}`))
	require.Error(t, DecodeJSON(req, &target))
}

func TestParsePageParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=-1&size=500&sortBy=dueDate&sortDirection=ASC&search=%20acme%20", nil)
	p := ParsePageParams(req)
	require.Equal(t, 0, p.Page)
	require.Equal(t, 200, p.Size)
	require.Equal(t, "dueDate", p.SortBy)
	require.Equal(t, "asc", p.SortDirection)
	require.Equal(t, "acme", p.Search)

	p = ParsePageParams(httptest.NewRequest(http.MethodGet, "/?size=x", nil))
	require.Equal(t, 20, p.Size)
	require.Equal(t, "desc", p.SortDirection)
}
