package middleware

import (
	"log"
	"net/http"
)

// LoggingMiddleware logs every admin API request before handing it to
// the next handler in the chain.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[%s] %s - Host: %s, Path: %s", r.Method, r.URL.Path, r.Host, r.URL.RequestURI())
		next.ServeHTTP(w, r)
	})
}
