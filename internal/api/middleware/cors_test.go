package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newCORSRouter(config CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(config))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

// TestCORSPolicy verifies the origin header handling per configuration.
func TestCORSPolicy(t *testing.T) {
	testCases := []struct {
		name            string
		config          CORSConfig
		origin          string
		wantOrigin      string
		wantCredentials string
	}{
		{
			name:            "wildcard forbids credentials",
			config:          CORSConfig{AllowAllOrigins: true},
			origin:          "https://app.example.com",
			wantOrigin:      "*",
			wantCredentials: "false",
		},
		{
			name:            "listed origin echoed with credentials",
			config:          CORSConfig{AllowedOrigins: []string{"https://app.example.com"}},
			origin:          "https://app.example.com",
			wantOrigin:      "https://app.example.com",
			wantCredentials: "true",
		},
		{
			name:            "unlisted origin gets no headers",
			config:          CORSConfig{AllowedOrigins: []string{"https://app.example.com"}},
			origin:          "https://evil.example.com",
			wantOrigin:      "",
			wantCredentials: "",
		},
		{
			name:            "empty list admits any origin",
			config:          CORSConfig{},
			origin:          "https://app.example.com",
			wantOrigin:      "https://app.example.com",
			wantCredentials: "true",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newCORSRouter(tc.config)
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set("Origin", tc.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("allow-origin = %q, want %q", got, tc.wantOrigin)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != tc.wantCredentials {
				t.Errorf("allow-credentials = %q, want %q", got, tc.wantCredentials)
			}
		})
	}
}

// TestCORSPreflight verifies OPTIONS requests are answered without reaching
// the handler.
func TestCORSPreflight(t *testing.T) {
	r := newCORSRouter(CORSConfig{AllowAllOrigins: true})
	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("preflight body = %q, want empty", w.Body.String())
	}
}

// TestIsOriginAllowed verifies the policy predicate.
func TestIsOriginAllowed(t *testing.T) {
	testCases := []struct {
		name   string
		config CORSConfig
		origin string
		want   bool
	}{
		{"allow all", CORSConfig{AllowAllOrigins: true}, "https://anywhere.test", true},
		{"exact match", CORSConfig{AllowedOrigins: []string{"https://a.test"}}, "https://a.test", true},
		{"case insensitive", CORSConfig{AllowedOrigins: []string{"https://A.test"}}, "https://a.test", true},
		{"wildcard entry", CORSConfig{AllowedOrigins: []string{"*"}}, "https://a.test", true},
		{"no match", CORSConfig{AllowedOrigins: []string{"https://a.test"}}, "https://b.test", false},
		{"empty list", CORSConfig{}, "https://a.test", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsOriginAllowed(tc.origin, tc.config); got != tc.want {
				t.Errorf("IsOriginAllowed(%q) = %v, want %v", tc.origin, got, tc.want)
			}
		})
	}
}
