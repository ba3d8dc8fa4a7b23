package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminKey returns middleware that guards mutating registry routes with a
// static API key. The key is read from the Authorization header as
// "Bearer <key>" or from the X-Admin-Key header. An empty configured key
// disables the check, which is the expected mode for local deployments.
func AdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get("X-Admin-Key")
			if presented == "" {
				auth := r.Header.Get("Authorization")
				presented = strings.TrimPrefix(auth, "Bearer ")
				if presented == auth {
					presented = ""
				}
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid or missing admin key"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
