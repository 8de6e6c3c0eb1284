package httpapi

import "net/http"

// Healthz makes it easy to check the application is live.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Yes, we're up!"))
}
