package http

import (
	"net/http"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/profile"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
)

type profileService = profile.Service

type profileHandler struct {
	encoder        encoder
	profileService profileService
}

func newProfileHandler(encoder encoder, profileService profileService) *profileHandler {
	return &profileHandler{
		encoder:        encoder,
		profileService: profileService,
	}
}

func (h profileHandler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Put("/{profileID}", h.update)
	r.Delete("/{profileID}", h.delete)
	r.Post("/{profileID}/activate", h.activate)
	r.Post("/{profileID}/test", h.testConnection)
}

func (h profileHandler) list(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profileService.List(r.Context())
	if err != nil {
		h.encoder.Error(w, err)
		return
	}
	h.encoder.StatusResponse(r.Context(), w, profiles, http.StatusOK)
}

func (h profileHandler) create(w http.ResponseWriter, r *http.Request) {
	var data domain.ConnectionProfile
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: "malformed request body"}, http.StatusBadRequest)
		return
	}

	created, err := h.profileService.Create(r.Context(), data)
	if err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusBadRequest)
		return
	}
	h.encoder.StatusCreatedData(w, created)
}

func (h profileHandler) update(w http.ResponseWriter, r *http.Request) {
	var data domain.ConnectionProfile
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: "malformed request body"}, http.StatusBadRequest)
		return
	}
	data.ID = chi.URLParam(r, "profileID")

	if err := h.profileService.Update(r.Context(), data); err != nil {
		h.encoder.Error(w, err)
		return
	}
	h.encoder.NoContent(w)
}

func (h profileHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.profileService.Delete(r.Context(), chi.URLParam(r, "profileID")); err != nil {
		h.encoder.Error(w, err)
		return
	}
	h.encoder.NoContent(w)
}

func (h profileHandler) activate(w http.ResponseWriter, r *http.Request) {
	if err := h.profileService.SetActive(r.Context(), chi.URLParam(r, "profileID")); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusNotFound)
		return
	}
	h.encoder.NoContent(w)
}

type connectionTestResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h profileHandler) testConnection(w http.ResponseWriter, r *http.Request) {
	err := h.profileService.TestConnection(r.Context(), chi.URLParam(r, "profileID"))
	if err == nil {
		h.encoder.StatusResponse(r.Context(), w, connectionTestResponse{Success: true, Message: "connection successful"}, http.StatusOK)
		return
	}

	h.encoder.StatusResponse(r.Context(), w, connectionTestResponse{
		Success: false,
		Message: connectionTestMessage(err),
	}, http.StatusOK)
}

// connectionTestMessage turns a classified failure into the advice shown next
// to the test button.
func connectionTestMessage(err error) string {
	var syncErr *domain.SyncError
	if !errors.As(err, &syncErr) {
		return "connection test failed: " + err.Error()
	}

	switch syncErr.Class {
	case domain.ErrorClassAuth:
		return "authentication failed, check the username and password"
	case domain.ErrorClassNotFound:
		return "the remote path does not exist, check the URL and directory"
	case domain.ErrorClassTransport:
		return "could not reach the server, check the URL and your network"
	case domain.ErrorClassServer:
		return "the server rejected the request: " + syncErr.Code
	default:
		return "connection test failed: " + err.Error()
	}
}
