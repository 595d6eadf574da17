package http

import (
	"net/http"

	"github.com/joeyliu6/weibodr-sync/internal/scheduler"
	"github.com/joeyliu6/weibodr-sync/internal/sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
)

type schedulerService = scheduler.Service

type schedulerHandler struct {
	encoder          encoder
	schedulerService schedulerService
}

func newSchedulerHandler(encoder encoder, schedulerService schedulerService) *schedulerHandler {
	return &schedulerHandler{
		encoder:          encoder,
		schedulerService: schedulerService,
	}
}

func (h schedulerHandler) Routes(r chi.Router) {
	r.Get("/state", h.getState)
	r.Post("/enable", h.enable)
	r.Post("/disable", h.disable)
	r.Put("/interval", h.setInterval)
	r.Post("/now", h.syncNow)
}

func (h schedulerHandler) getState(w http.ResponseWriter, r *http.Request) {
	state, err := h.schedulerService.State(r.Context())
	if err != nil {
		h.encoder.Error(w, err)
		return
	}
	h.encoder.StatusResponse(r.Context(), w, state, http.StatusOK)
}

func (h schedulerHandler) enable(w http.ResponseWriter, r *http.Request) {
	if err := h.schedulerService.Enable(r.Context()); err != nil {
		h.encoder.Error(w, err)
		return
	}
	h.encoder.NoContent(w)
}

func (h schedulerHandler) disable(w http.ResponseWriter, r *http.Request) {
	if err := h.schedulerService.Disable(r.Context()); err != nil {
		h.encoder.Error(w, err)
		return
	}
	h.encoder.NoContent(w)
}

type intervalRequest struct {
	Minutes int `json:"minutes,omitempty"`
	Hours   int `json:"hours,omitempty"`
}

// setInterval accepts either unit; out-of-range values are clamped, not
// rejected, and the stored value is returned.
func (h schedulerHandler) setInterval(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: "malformed request body"}, http.StatusBadRequest)
		return
	}

	var err error
	switch {
	case req.Minutes != 0:
		err = h.schedulerService.SetInterval(r.Context(), req.Minutes)
	case req.Hours != 0:
		err = h.schedulerService.SetIntervalHours(r.Context(), req.Hours)
	default:
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: "either minutes or hours is required"}, http.StatusBadRequest)
		return
	}
	if err != nil {
		h.encoder.Error(w, err)
		return
	}

	state, err := h.schedulerService.State(r.Context())
	if err != nil {
		h.encoder.Error(w, err)
		return
	}
	h.encoder.StatusResponse(r.Context(), w, state, http.StatusOK)
}

func (h schedulerHandler) syncNow(w http.ResponseWriter, r *http.Request) {
	record, err := h.schedulerService.SyncNow(r.Context())
	if err != nil {
		if errors.Is(err, sync.ErrAlreadyRunning) {
			h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusConflict)
			return
		}
		if record != nil {
			h.encoder.StatusResponse(r.Context(), w, record, http.StatusOK)
			return
		}
		h.encoder.Error(w, err)
		return
	}
	h.encoder.StatusResponse(r.Context(), w, record, http.StatusOK)
}
