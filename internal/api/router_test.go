package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/expense-ledger/internal/api/handlers"
	"github.com/dvloznov/expense-ledger/internal/blob"
	"github.com/dvloznov/expense-ledger/internal/jobs"
	"github.com/dvloznov/expense-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/expense-ledger/internal/ledger"
	"github.com/dvloznov/expense-ledger/internal/localstore"
	"github.com/dvloznov/expense-ledger/internal/logger"
	"github.com/dvloznov/expense-ledger/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	remote  *remote.MemoryStore
	jobs    *inmemory.Store
	queue   *inmemory.Queue
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "expenses.csv")

	local, err := localstore.New(path, "")
	require.NoError(t, err)
	mem := remote.NewMemoryStore()
	builder := ledger.NewBuilder(nil, blob.NewLocalStore(filepath.Join(dir, "receipts")), nil)
	svc := ledger.NewService(local, mem, ledger.NewStateFile(ledger.DefaultStatePath(path)), builder, nil, ledger.Options{})

	store := inmemory.NewStore()
	queue := inmemory.NewQueue(inmemory.Options{RetryBackoff: time.Millisecond}, store)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		queue.Close()
	})
	require.NoError(t, queue.Start(ctx, jobs.SyncHandler(svc)))

	return &testServer{
		handler: NewRouter(RouterConfig{
			Service:   svc,
			Publisher: queue,
			JobStore:  store,
			AuthToken: token,
			Log:       logger.NewWithWriter(&bytes.Buffer{}),
		}),
		remote: mem,
		jobs:   store,
		queue:  queue,
	}
}

func (s *testServer) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type mutationBody struct {
	Record   handlers.RecordJSON `json:"record"`
	Sync     ledger.SyncReport   `json:"sync"`
	Warnings []ledger.Warning    `json:"warnings"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestRouter_RecordLifecycle(t *testing.T) {
	s := newTestServer(t, "")

	resp := s.do(t, http.MethodPost, "/api/records", map[string]interface{}{
		"date":        "2024-05-01",
		"category":    "meals",
		"description": "Team lunch",
		"amount":      12000,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var created mutationBody
	decode(t, resp, &created)
	id := created.Record.ID
	require.NotEmpty(t, id)
	assert.Equal(t, "Meals", created.Record.Category)
	assert.Equal(t, "2024-05-01", created.Record.Date)
	assert.Equal(t, 1, created.Sync.PushedRemote)
	assert.Empty(t, created.Warnings)

	remoteRecs, err := s.remote.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, remoteRecs, 1)
	assert.Equal(t, id, remoteRecs[0].ID)

	resp = s.do(t, http.MethodGet, "/api/records?month=2024-05", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var list struct {
		Records []handlers.RecordJSON `json:"records"`
		Count   int                   `json:"count"`
		Total   int64                 `json:"total"`
	}
	decode(t, resp, &list)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, int64(12000), list.Total)

	resp = s.do(t, http.MethodGet, "/api/records?month=2024-06", nil)
	decode(t, resp, &list)
	assert.Equal(t, 0, list.Count)

	resp = s.do(t, http.MethodPut, "/api/records/"+id, map[string]interface{}{
		"date":        "2024-05-01",
		"category":    "Meals",
		"description": "Team lunch",
		"amount":      15000,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = s.do(t, http.MethodGet, "/api/summary?by=category", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var summary struct {
		Groups []struct {
			Key   string `json:"key"`
			Total int64  `json:"total"`
		} `json:"groups"`
		Total int64 `json:"total"`
	}
	decode(t, resp, &summary)
	require.Len(t, summary.Groups, 1)
	assert.Equal(t, "Meals", summary.Groups[0].Key)
	assert.Equal(t, int64(15000), summary.Total)

	resp = s.do(t, http.MethodDelete, "/api/records/"+id, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = s.do(t, http.MethodGet, "/api/records/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	remoteRecs, err = s.remote.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remoteRecs, "delete must reach the remote store")
}

func TestRouter_ValidationErrors(t *testing.T) {
	s := newTestServer(t, "")

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"unknown category", map[string]interface{}{"category": "Yachts", "amount": 1}},
		{"negative amount", map[string]interface{}{"category": "Meals", "amount": -5}},
		{"missing amount", map[string]interface{}{"category": "Meals"}},
		{"bad date", map[string]interface{}{"date": "yesterday", "amount": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodPost, "/api/records", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
		})
	}

	resp := s.do(t, http.MethodPut, "/api/records/nope", map[string]interface{}{"amount": 1})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = s.do(t, http.MethodGet, "/api/summary?by=weekday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = s.do(t, http.MethodPatch, "/api/records", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

func TestRouter_MultipartReceipt(t *testing.T) {
	s := newTestServer(t, "")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("category", "Transportation"))
	require.NoError(t, mw.WriteField("amount", "4500"))
	part, err := mw.CreateFormFile("receipt", "taxi.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/records", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var created mutationBody
	decode(t, resp, &created)
	assert.Equal(t, int64(4500), created.Record.Amount)
	assert.True(t, strings.HasSuffix(created.Record.ReceiptRef, "taxi.jpg"), created.Record.ReceiptRef)
}

func TestRouter_SyncJobs(t *testing.T) {
	s := newTestServer(t, "")

	resp := s.do(t, http.MethodPost, "/api/sync", nil)
	require.Equal(t, http.StatusAccepted, resp.Code)
	var accepted struct {
		JobID string `json:"job_id"`
	}
	decode(t, resp, &accepted)
	require.NotEmpty(t, accepted.JobID)

	require.Eventually(t, func() bool {
		job, err := s.jobs.GetJob(context.Background(), accepted.JobID)
		return err == nil && job.Status == jobs.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	resp = s.do(t, http.MethodGet, "/api/sync/jobs/"+accepted.JobID, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var job jobs.SyncJob
	decode(t, resp, &job)
	assert.Equal(t, jobs.TriggerAPI, job.Trigger)
	assert.NotNil(t, job.Report)

	resp = s.do(t, http.MethodGet, "/api/sync/jobs?trigger=api", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, resp, &list)
	assert.Equal(t, 1, list.Count)

	resp = s.do(t, http.MethodGet, "/api/sync/jobs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRouter_Auth(t *testing.T) {
	s := newTestServer(t, "secret")

	resp := s.do(t, http.MethodGet, "/api/records", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/records", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
