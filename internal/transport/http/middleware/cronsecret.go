package middleware

import (
	"crypto/subtle"
	"net/http"
)

// CronSecretHeader carries the shared secret of the external dispatch trigger.
const CronSecretHeader = "x-cron-secret"

// CronSecret admits requests whose x-cron-secret header equals expected, compared in
// constant time. An empty expected secret rejects every request.
func CronSecret(expected string) func(http.Handler) http.Handler {
	want := []byte(expected)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(CronSecretHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
