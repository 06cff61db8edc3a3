package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantwatch/plantdata-api/internal/api"
	"github.com/plantwatch/plantdata-api/internal/api/shared"
	"github.com/plantwatch/plantdata-api/internal/domain"
	"github.com/plantwatch/plantdata-api/internal/download"
	"github.com/plantwatch/plantdata-api/internal/quota"
)

// stubService lets each test script the facade's behavior.
type stubService struct {
	submitID     uuid.UUID
	submitErr    error
	status       download.Status
	statusErr    error
	result       []byte
	resultErr    error
	directData   []byte
	directErr    error
	quotaStatus  quota.Status
	quotaErr     error
	lastItemIDs  []int64
	lastCaller   domain.Caller
}

func (s *stubService) Submit(_ context.Context, caller domain.Caller, itemIDs []int64) (uuid.UUID, error) {
	s.lastCaller = caller
	s.lastItemIDs = itemIDs
	return s.submitID, s.submitErr
}

func (s *stubService) Status(_ context.Context, _ uuid.UUID, caller domain.Caller) (download.Status, error) {
	s.lastCaller = caller
	return s.status, s.statusErr
}

func (s *stubService) FetchResult(_ context.Context, _ uuid.UUID, caller domain.Caller) ([]byte, error) {
	s.lastCaller = caller
	return s.result, s.resultErr
}

func (s *stubService) DownloadDirect(_ context.Context, caller domain.Caller, itemIDs []int64) ([]byte, error) {
	s.lastCaller = caller
	s.lastItemIDs = itemIDs
	return s.directData, s.directErr
}

func (s *stubService) Quota(_ context.Context, caller domain.Caller) (quota.Status, error) {
	s.lastCaller = caller
	return s.quotaStatus, s.quotaErr
}

// newRouter wires the handler under a chi router the same way the server does.
func newRouter(svc api.DownloadService) chi.Router {
	h := api.NewDownloadHandler(svc)
	r := chi.NewRouter()
	r.Post("/api/downloads", h.Submit)
	r.Get("/api/downloads/archive", h.Archive)
	r.Get("/api/downloads/quota", h.Quota)
	r.Get("/api/downloads/{taskID}", h.Status)
	r.Get("/api/downloads/{taskID}/result", h.Result)
	return r
}

// asCaller injects an authenticated caller the way the auth middleware does.
func asCaller(r *http.Request, caller domain.Caller) *http.Request {
	ctx := context.WithValue(r.Context(), shared.CallerContextKey, caller)
	return r.WithContext(ctx)
}

func someUser() domain.Caller {
	return domain.Caller{ID: uuid.New(), Role: domain.RoleUser}
}

func TestSubmitEndpoint(t *testing.T) {
	svc := &stubService{submitID: uuid.New()}
	router := newRouter(svc)
	caller := someUser()

	body, _ := json.Marshal(api.SubmitDownloadRequest{ItemIDs: []int64{1, 2}})
	req := httptest.NewRequest(http.MethodPost, "/api/downloads", bytes.NewReader(body))
	req = asCaller(req, caller)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp api.SubmitDownloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, svc.submitID, resp.TaskID)
	assert.Equal(t, []int64{1, 2}, svc.lastItemIDs)
	assert.Equal(t, caller, svc.lastCaller)
}

func TestSubmitEndpointRequiresAuth(t *testing.T) {
	router := newRouter(&stubService{})

	body, _ := json.Marshal(api.SubmitDownloadRequest{ItemIDs: []int64{1}})
	req := httptest.NewRequest(http.MethodPost, "/api/downloads", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitEndpointValidation(t *testing.T) {
	router := newRouter(&stubService{})

	for name, body := range map[string]string{
		"empty item list": `{"item_ids": []}`,
		"missing field":   `{}`,
		"not json":        `item_ids=1`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/downloads", bytes.NewReader([]byte(body)))
			req = asCaller(req, someUser())
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubmitEndpointQuotaExceeded(t *testing.T) {
	svc := &stubService{submitErr: download.ErrQuotaExceeded}
	router := newRouter(svc)

	body, _ := json.Marshal(api.SubmitDownloadRequest{ItemIDs: []int64{1}})
	req := httptest.NewRequest(http.MethodPost, "/api/downloads", bytes.NewReader(body))
	req = asCaller(req, someUser())
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Daily download quota exceeded", resp.Error)
}

func TestStatusEndpoint(t *testing.T) {
	svc := &stubService{status: download.StatusProcessing}
	router := newRouter(svc)
	taskID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/downloads/"+taskID.String(), nil)
	req = asCaller(req, someUser())
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.TaskStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, taskID, resp.TaskID)
	assert.Equal(t, "processing", resp.Status)
}

func TestStatusEndpointErrors(t *testing.T) {
	cases := map[string]struct {
		err  error
		code int
	}{
		"unknown task":  {download.ErrTaskNotFound, http.StatusNotFound},
		"foreign task":  {download.ErrTaskNotOwned, http.StatusForbidden},
		"backend error": {assert.AnError, http.StatusInternalServerError},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			router := newRouter(&stubService{statusErr: tc.err})

			req := httptest.NewRequest(http.MethodGet, "/api/downloads/"+uuid.NewString(), nil)
			req = asCaller(req, someUser())
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestStatusEndpointBadTaskID(t *testing.T) {
	router := newRouter(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/api/downloads/not-a-uuid", nil)
	req = asCaller(req, someUser())
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResultEndpoint(t *testing.T) {
	svc := &stubService{result: []byte{0x50, 0x4b, 0x03, 0x04}}
	router := newRouter(svc)
	taskID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/downloads/"+taskID.String()+"/result", nil)
	req = asCaller(req, someUser())
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), taskID.String())
	assert.Equal(t, []byte{0x50, 0x4b, 0x03, 0x04}, rec.Body.Bytes())
}

func TestResultEndpointNotReady(t *testing.T) {
	router := newRouter(&stubService{resultErr: download.ErrResultNotReady})

	req := httptest.NewRequest(http.MethodGet, "/api/downloads/"+uuid.NewString()+"/result", nil)
	req = asCaller(req, someUser())
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestArchiveEndpoint(t *testing.T) {
	svc := &stubService{directData: []byte("zipbytes")}
	router := newRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/downloads/archive?ids=1,2,3", nil)
	req = asCaller(req, someUser())
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, []int64{1, 2, 3}, svc.lastItemIDs)
}

func TestArchiveEndpointBadIDs(t *testing.T) {
	router := newRouter(&stubService{})

	for name, query := range map[string]string{
		"missing":     "",
		"not numeric": "?ids=a,b",
		"only commas": "?ids=,,",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/downloads/archive"+query, nil)
			req = asCaller(req, someUser())
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestArchiveEndpointGuestForbidden(t *testing.T) {
	router := newRouter(&stubService{directErr: download.ErrDownloadForbidden})

	req := httptest.NewRequest(http.MethodGet, "/api/downloads/archive?ids=1", nil)
	req = asCaller(req, domain.Caller{ID: uuid.New(), Role: domain.RoleGuest})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestQuotaEndpoint(t *testing.T) {
	svc := &stubService{quotaStatus: quota.Status{Remaining: 12, Lifetime: 488, Ceiling: 500}}
	router := newRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/downloads/quota", nil)
	req = asCaller(req, someUser())
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.QuotaStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 12, resp.Remaining)
	assert.EqualValues(t, 488, resp.Lifetime)
	assert.EqualValues(t, 500, resp.Ceiling)
}
