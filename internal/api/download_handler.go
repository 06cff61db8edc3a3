package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/plantwatch/plantdata-api/internal/api/shared"
	"github.com/plantwatch/plantdata-api/internal/domain"
	"github.com/plantwatch/plantdata-api/internal/download"
	"github.com/plantwatch/plantdata-api/internal/quota"
)

// DownloadService is the facade the download endpoints are built on.
type DownloadService interface {
	Submit(ctx context.Context, caller domain.Caller, itemIDs []int64) (uuid.UUID, error)
	Status(ctx context.Context, taskID uuid.UUID, caller domain.Caller) (download.Status, error)
	FetchResult(ctx context.Context, taskID uuid.UUID, caller domain.Caller) ([]byte, error)
	DownloadDirect(ctx context.Context, caller domain.Caller, itemIDs []int64) ([]byte, error)
	Quota(ctx context.Context, caller domain.Caller) (quota.Status, error)
}

// DownloadHandler handles the bulk-download API endpoints.
type DownloadHandler struct {
	service DownloadService
}

// NewDownloadHandler creates a new DownloadHandler with the given dependencies.
func NewDownloadHandler(service DownloadService) *DownloadHandler {
	return &DownloadHandler{service: service}
}

// Submit handles POST /api/downloads: it admits the request against the
// caller's quota, queues the packaging work, and returns the task ID with
// 202 Accepted. Packaging happens asynchronously.
func (h *DownloadHandler) Submit(w http.ResponseWriter, r *http.Request) {
	caller, ok := getCaller(w, r)
	if !ok {
		return
	}

	var req SubmitDownloadRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	taskID, err := h.service.Submit(r.Context(), caller, req.ItemIDs)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitDownloadResponse{TaskID: taskID})
}

// Status handles GET /api/downloads/{taskID}.
func (h *DownloadHandler) Status(w http.ResponseWriter, r *http.Request) {
	caller, ok := getCaller(w, r)
	if !ok {
		return
	}

	taskID, err := getPathUUID(r, "taskID")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.service.Status(r.Context(), taskID, caller)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskStatusResponse{
		TaskID: taskID,
		Status: string(status),
	})
}

// Result handles GET /api/downloads/{taskID}/result, streaming the packaged
// archive once the task has finished.
func (h *DownloadHandler) Result(w http.ResponseWriter, r *http.Request) {
	caller, ok := getCaller(w, r)
	if !ok {
		return
	}

	taskID, err := getPathUUID(r, "taskID")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	archive, err := h.service.FetchResult(r.Context(), taskID, caller)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	writeArchive(w, fmt.Sprintf("download-%s.zip", taskID), archive)
}

// Archive handles GET /api/downloads/archive?ids=1,2,3, the synchronous
// fallback for small requests. The same quota rules apply as on Submit.
func (h *DownloadHandler) Archive(w http.ResponseWriter, r *http.Request) {
	caller, ok := getCaller(w, r)
	if !ok {
		return
	}

	ids, err := parseIDList(r.URL.Query().Get("ids"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	archive, err := h.service.DownloadDirect(r.Context(), caller, ids)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	writeArchive(w, "download.zip", archive)
}

// Quota handles GET /api/downloads/quota.
func (h *DownloadHandler) Quota(w http.ResponseWriter, r *http.Request) {
	caller, ok := getCaller(w, r)
	if !ok {
		return
	}

	st, err := h.service.Quota(r.Context(), caller)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, QuotaStatusResponse{
		Remaining: st.Remaining,
		Lifetime:  st.Lifetime,
		Ceiling:   st.Ceiling,
	})
}

func writeArchive(w http.ResponseWriter, filename string, archive []byte) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
