package middleware

import "net/http"

// NoStore marks responses as uncacheable. Reputation reads must reflect the
// latest acknowledged write, so intermediaries may not serve them from cache.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
