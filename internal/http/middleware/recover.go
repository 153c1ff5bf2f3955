package middleware

import (
	"fmt"
	"net/http"

	"github.com/davidbz/cookbook/internal/observability"
)

// Recover turns a handler panic into a 500 response. Development loggers
// panic on invalid call state transitions.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity
					panic(rec)
				}

				observability.FromContext(r.Context()).Error("handler panicked",
					observability.String("path", r.URL.Path),
					observability.String("panic", fmt.Sprint(rec)))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"kind":"internal","message":"internal error"}}` + "\n"))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
