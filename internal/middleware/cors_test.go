package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveCORS(origins []string, method, origin string) *httptest.ResponseRecorder {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	req := httptest.NewRequest(method, "/chat", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	CORS(origins)(next).ServeHTTP(w, req)
	return w
}

func TestCORSAllowedOrigin(t *testing.T) {
	t.Parallel()

	w := serveCORS([]string{"http://localhost:5173/"}, http.MethodPost, "http://localhost:5173")
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSWildcardNeverAllowsCredentials(t *testing.T) {
	t.Parallel()

	w := serveCORS([]string{"*"}, http.MethodGet, "https://evil.example")
	assert.Equal(t, "https://evil.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSRejectedOrigin(t *testing.T) {
	t.Parallel()

	w := serveCORS([]string{"http://localhost:3000"}, http.MethodGet, "https://evil.example")
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	w := serveCORS([]string{"http://localhost:3000"}, http.MethodOptions, "http://localhost:3000")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
}

func TestOriginAllowed(t *testing.T) {
	t.Parallel()

	assert.True(t, OriginAllowed([]string{"https://app.example/"}, "https://app.example"))
	assert.False(t, OriginAllowed([]string{"https://app.example"}, "https://other.example"))
	assert.False(t, OriginAllowed(nil, "https://app.example"))
}
