package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// DBPinger is the slice of the database the readiness probe needs.
type DBPinger interface {
	Ping() error
}

type healthHandler struct {
	encoder  encoder
	dbPinger DBPinger
}

func newHealthHandler(encoder encoder, dbPinger DBPinger) *healthHandler {
	return &healthHandler{
		encoder:  encoder,
		dbPinger: dbPinger,
	}
}

func (h healthHandler) Routes(r chi.Router) {
	r.Get("/liveness", h.handleLiveness)
	r.Get("/readiness", h.handleReadiness)
}

func (h healthHandler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeHealthy(w)
}

func (h healthHandler) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if err := h.dbPinger.Ping(); err != nil {
		writeUnhealthy(w)
		return
	}

	writeHealthy(w)
}

func writeHealthy(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeUnhealthy(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte("Unhealthy. Database unreachable"))
}
