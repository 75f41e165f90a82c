package handlers

import (
	"net/http"

	"github.com/prepdeck/interviewd/pkg/gateway/mw"
)

// NotFound answers unknown routes with the gateway's JSON error envelope so
// clients never have to parse a plain-text 404.
func NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, _ := mw.RequestIDFrom(r.Context())
		writeHTTPError(w, http.StatusNotFound, "not_found_error", "unknown route", reqID)
	})
}
