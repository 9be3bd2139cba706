package middleware

import (
	"crypto/subtle"
	"net/http"
)

// BearerAuth rejects every request whose Authorization header is not exactly
// "Bearer <token>". Rejected requests never reach next.
func BearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte("Bearer " + token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte("Unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
