package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := AuthMiddleware(ok)

	tests := []struct {
		name     string
		path     string
		cookie   string
		wantCode int
		wantLoc  string
	}{
		{"login page is public", "/login", "", http.StatusTeapot, ""},
		{"health is public", "/healthz", "", http.StatusTeapot, ""},
		{"css is public", "/static/css/site.css", "", http.StatusTeapot, ""},
		{"api without cookie", "/api/detections", "", http.StatusUnauthorized, ""},
		{"page without cookie", "/", "", http.StatusSeeOther, "/login"},
		{"wrong cookie value", "/api/detections", "false", http.StatusUnauthorized, ""},
		{"authenticated", "/api/detections", "true", http.StatusTeapot, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "authenticated", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantLoc != "" {
				assert.Equal(t, tt.wantLoc, rec.Header().Get("Location"))
			}
		})
	}
}
