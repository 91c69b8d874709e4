package middleware

import (
	"log"
	"net/http"

	"github.com/ayush/favorites-app/internal/auth"
	"github.com/ayush/favorites-app/internal/httpx"
)

// LoginPath is where unauthenticated page requests are sent.
const LoginPath = "/login"

// RequireAuth is middleware that resolves the session cookie and injects the
// session into the request context. Unauthenticated GET requests are
// redirected to the login form, other methods get 401.
func RequireAuth(sessions auth.Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil || cookie.Value == "" {
				unauthenticated(w, r)
				return
			}

			sess, err := sessions.Get(r.Context(), cookie.Value)
			if err != nil {
				log.Printf("resolve session: %v", err)
				httpx.WriteStoreError(w, err)
				return
			}
			if sess == nil {
				unauthenticated(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), sess)))
		})
	}
}

// RequireAdmin only admits sessions carrying the admin role. It must run
// after RequireAuth; without a session it answers 401.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := auth.FromContext(r.Context())
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		if !sess.IsAdmin() {
			httpx.WriteError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthenticated(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
		return
	}
	httpx.WriteError(w, http.StatusUnauthorized, "not authenticated")
}
