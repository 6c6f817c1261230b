package middleware

import (
	"net/http"
	"strings"
)

// AuthMiddleware lets a request through when it carries the
// "authenticated=true" cookie set by the login handler. API requests without
// it get 401, page requests are redirected to /login.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie("authenticated")
		if err != nil || cookie.Value != "true" {
			if strings.HasPrefix(r.URL.Path, "/api/") ||
				r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
				r.Header.Get("Content-Type") == "application/json" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isPublic(path string) bool {
	return path == "/login" ||
		path == "/auth/login" ||
		path == "/healthz" ||
		strings.HasPrefix(path, "/static/css/") ||
		strings.HasPrefix(path, "/static/js/")
}
