package http

import (
	"encoding/json"
	"net/http"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
)

type syncService = sync.Service

type syncHandler struct {
	encoder     encoder
	syncService syncService
}

func newSyncHandler(encoder encoder, syncService syncService) *syncHandler {
	return &syncHandler{
		encoder:     encoder,
		syncService: syncService,
	}
}

func (h syncHandler) Routes(r chi.Router) {
	r.Get("/status", h.getStatus)
	r.Post("/all", h.syncAll)

	r.Post("/config/upload", h.uploadConfig)
	r.Post("/config/download", h.downloadConfig)
	r.Get("/config/export", h.exportConfig)
	r.Post("/config/import", h.importConfig)

	r.Post("/history/upload", h.uploadHistory)
	r.Post("/history/download", h.downloadHistory)
	r.Get("/history/export", h.exportHistory)
	r.Post("/history/import", h.importHistory)
}

type syncRequest struct {
	Strategy string `json:"strategy"`
	// Confirm must be true for strategies that can discard data.
	Confirm bool `json:"confirm"`
}

type importRequest struct {
	Strategy string          `json:"strategy,omitempty"`
	Mode     string          `json:"mode,omitempty"`
	Confirm  bool            `json:"confirm"`
	Data     json.RawMessage `json:"data"`
}

func (h syncHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	records, err := h.syncService.Status(r.Context())
	if err != nil {
		h.encoder.Error(w, err)
		return
	}
	h.encoder.StatusResponse(r.Context(), w, records, http.StatusOK)
}

func (h syncHandler) syncAll(w http.ResponseWriter, r *http.Request) {
	record, err := h.syncService.SyncAll(r.Context())
	if err != nil && record == nil {
		h.writeSyncError(w, r, err)
		return
	}
	h.encoder.StatusResponse(r.Context(), w, record, http.StatusOK)
}

func (h syncHandler) uploadConfig(w http.ResponseWriter, r *http.Request) {
	record, err := h.syncService.UploadConfig(r.Context())
	h.writeOutcome(w, r, record, err)
}

func (h syncHandler) downloadConfig(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: "malformed request body"}, http.StatusBadRequest)
		return
	}
	if req.Strategy == "" {
		req.Strategy = string(sync.ConfigStrategyMergeKeepConnection)
	}
	if !h.confirmed(w, r, req.Strategy, req.Confirm) {
		return
	}

	record, err := h.syncService.DownloadConfig(r.Context(), sync.ConfigStrategy(req.Strategy))
	h.writeOutcome(w, r, record, err)
}

func (h syncHandler) uploadHistory(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: "malformed request body"}, http.StatusBadRequest)
		return
	}
	if req.Strategy == "" {
		req.Strategy = string(sync.HistoryStrategyMerge)
	}
	if !h.confirmed(w, r, req.Strategy, req.Confirm) {
		return
	}

	record, err := h.syncService.UploadHistory(r.Context(), sync.HistoryStrategy(req.Strategy))
	h.writeOutcome(w, r, record, err)
}

func (h syncHandler) downloadHistory(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: "malformed request body"}, http.StatusBadRequest)
		return
	}
	if req.Strategy == "" {
		req.Strategy = string(sync.HistoryStrategyMergeDownload)
	}
	if !h.confirmed(w, r, req.Strategy, req.Confirm) {
		return
	}

	record, err := h.syncService.DownloadHistory(r.Context(), sync.HistoryStrategy(req.Strategy))
	h.writeOutcome(w, r, record, err)
}

func (h syncHandler) exportConfig(w http.ResponseWriter, r *http.Request) {
	data, err := h.syncService.ExportConfig(r.Context())
	if err != nil {
		h.writeSyncError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="weibodr-settings.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h syncHandler) importConfig(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: "malformed request body"}, http.StatusBadRequest)
		return
	}
	if req.Strategy == "" {
		req.Strategy = string(sync.ConfigStrategyMergeKeepConnection)
	}
	if !h.confirmed(w, r, req.Strategy, req.Confirm) {
		return
	}

	if err := h.syncService.ImportConfig(r.Context(), req.Data, sync.ConfigStrategy(req.Strategy)); err != nil {
		h.writeSyncError(w, r, err)
		return
	}
	h.encoder.NoContent(w)
}

func (h syncHandler) exportHistory(w http.ResponseWriter, r *http.Request) {
	data, err := h.syncService.ExportHistory(r.Context())
	if err != nil {
		h.writeSyncError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="weibodr-history.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h syncHandler) importHistory(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: "malformed request body"}, http.StatusBadRequest)
		return
	}
	if req.Mode == "" {
		req.Mode = string(sync.HistoryImportMerge)
	}
	if req.Mode == string(sync.HistoryImportReplace) && !req.Confirm {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: "replacing the local history requires confirmation"}, http.StatusBadRequest)
		return
	}

	inserted, err := h.syncService.ImportHistory(r.Context(), req.Data, sync.HistoryImportMode(req.Mode))
	if err != nil {
		h.writeSyncError(w, r, err)
		return
	}
	h.encoder.StatusResponse(r.Context(), w, map[string]int{"inserted": inserted}, http.StatusOK)
}

// confirmed enforces the explicit confirmation rule for destructive
// strategies. It writes the response itself when the check fails.
func (h syncHandler) confirmed(w http.ResponseWriter, r *http.Request, strategy string, confirm bool) bool {
	if sync.DestructiveStrategy(strategy) && !confirm {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{
			Message: "strategy '" + strategy + "' can discard data and requires confirmation",
		}, http.StatusBadRequest)
		return false
	}
	return true
}

func (h syncHandler) writeOutcome(w http.ResponseWriter, r *http.Request, record *domain.SyncStatusRecord, err error) {
	if err != nil {
		h.writeSyncError(w, r, err)
		return
	}
	h.encoder.StatusResponse(r.Context(), w, record, http.StatusOK)
}

func (h syncHandler) writeSyncError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, sync.ErrAlreadyRunning) {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusConflict)
		return
	}

	status := http.StatusInternalServerError
	var syncErr *domain.SyncError
	if errors.As(err, &syncErr) {
		switch syncErr.Class {
		case domain.ErrorClassFormat:
			status = http.StatusBadRequest
		case domain.ErrorClassNotFound:
			status = http.StatusNotFound
		case domain.ErrorClassAuth, domain.ErrorClassTransport, domain.ErrorClassServer:
			status = http.StatusBadGateway
		}
	}
	h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error(), Status: status}, status)
}
