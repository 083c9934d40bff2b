package health

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

// HttpHandler serves 204 when the checker passes and 503 with the failure
// text when it does not.
type HttpHandler struct {
	checker Checker
}

func NewHealthCheckHttpHandler(checker Checker) *HttpHandler {
	return &HttpHandler{checker: checker}
}

func (h *HttpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.checker.Check(); err != nil {
		log.Warnf("Health check failed: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte(err.Error())); err != nil {
			log.Warnf("Failed to write health check response: %v", err)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
