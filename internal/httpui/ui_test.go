package httpui

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerServesPageAndAssets(t *testing.T) {
	h, err := Handler()
	require.NoError(t, err)

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{path: "/", status: http.StatusOK, body: "Wallet Bridge"},
		{path: "/approve?id=abc", status: http.StatusOK, body: "approve.js"},
		{path: "/approve.js", status: http.StatusOK, body: "X-Bridge-UI"},
		{path: "/api/approvals", status: http.StatusNotFound},
		{path: "/healthz", status: http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, tc.status, rec.Code)
			if tc.body != "" {
				assert.Contains(t, rec.Body.String(), tc.body)
			}
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
