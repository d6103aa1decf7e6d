package httputil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantdesk/pkg/contextkeys"
)

func TestPeekJSON_RestoresBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"workspace_id":"ws-1","body":"hi"}`))

	var ids struct {
		WorkspaceID string `json:"workspace_id"`
	}
	require.NoError(t, PeekJSON(r, &ids))
	assert.Equal(t, "ws-1", ids.WorkspaceID)

	rest, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Contains(t, string(rest), `"body":"hi"`)
}

func TestPeekJSON_EmptyAndInvalid(t *testing.T) {
	var dest map[string]string
	require.NoError(t, PeekJSON(httptest.NewRequest(http.MethodGet, "/", nil), &dest))
	require.NoError(t, PeekJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not json")), &dest))
	assert.Nil(t, dest)
}

func TestParsePathString(t *testing.T) {
	r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"conversation_id": "c-1"})

	v, err := ParsePathString(r, "conversation_id")
	require.NoError(t, err)
	assert.Equal(t, "c-1", v)

	_, err = ParsePathString(r, "missing")
	assert.Error(t, err)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contextkeys.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "req-fixed")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "req-fixed", seen)
}
