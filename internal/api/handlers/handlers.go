package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/expense-ledger/internal/api/middleware"
	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/jobs"
	"github.com/dvloznov/expense-ledger/internal/ledger"
	"github.com/dvloznov/expense-ledger/internal/query"
	"github.com/rs/zerolog"
)

// maxUploadBytes bounds a multipart request carrying a receipt.
const maxUploadBytes = 20 << 20

// RecordService is the part of ledger.Service the handlers use.
// This interface enables mocking and testing of handlers.
type RecordService interface {
	Add(ctx context.Context, d ledger.Draft) (ledger.Result, error)
	Update(ctx context.Context, id string, d ledger.Draft) (ledger.Result, error)
	Delete(ctx context.Context, id string) (ledger.Result, error)
	Records(ctx context.Context, v query.View) ([]domain.Record, error)
	Get(ctx context.Context, id string) (domain.Record, error)
	Categories() []string
}

// RecordJSON is the wire form of a record.
type RecordJSON struct {
	ID          string     `json:"id"`
	Date        string     `json:"date"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Vendor      string     `json:"vendor"`
	Amount      int64      `json:"amount"`
	ReceiptRef  string     `json:"receipt_ref"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// NewRecordJSON converts a record to its wire form.
func NewRecordJSON(rec domain.Record) RecordJSON {
	out := RecordJSON{
		ID:          rec.ID,
		Date:        rec.DateString(),
		Category:    rec.Category,
		Description: rec.Description,
		Vendor:      rec.Vendor,
		Amount:      rec.Amount,
		ReceiptRef:  rec.ReceiptRef,
	}
	if !rec.CreatedAt.IsZero() {
		created := rec.CreatedAt.UTC()
		out.CreatedAt = &created
	}
	return out
}

// mutationResponse is returned by create, update and delete.
type mutationResponse struct {
	Record   RecordJSON        `json:"record"`
	Sync     ledger.SyncReport `json:"sync"`
	Warnings []ledger.Warning  `json:"warnings"`
}

func newMutationResponse(res ledger.Result) mutationResponse {
	warnings := res.Warnings
	if warnings == nil {
		warnings = []ledger.Warning{}
	}
	return mutationResponse{Record: NewRecordJSON(res.Record), Sync: res.Sync, Warnings: warnings}
}

// RecordsHandler handles record-related endpoints.
type RecordsHandler struct {
	svc RecordService
	log zerolog.Logger
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(svc RecordService, log zerolog.Logger) *RecordsHandler {
	return &RecordsHandler{
		svc: svc,
		log: log,
	}
}

// ListRecords handles GET /api/records?month=YYYY-MM&category=NAME
func (h *RecordsHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.Records(r.Context(), viewFromQuery(r))
	if err != nil {
		h.fail(w, r, err, "Failed to list records")
		return
	}

	out := make([]RecordJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, NewRecordJSON(rec))
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"records": out,
		"count":   len(out),
		"total":   query.Total(recs),
	})
}

// GetRecord handles GET /api/records/{id}
func (h *RecordsHandler) GetRecord(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "Failed to get record")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, NewRecordJSON(rec))
}

// CreateRecord handles POST /api/records. The body is JSON, or
// multipart/form-data with an optional "receipt" file part.
func (h *RecordsHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	draft, err := decodeDraft(w, r, true)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Add(r.Context(), draft)
	if err != nil {
		h.fail(w, r, err, "Failed to create record")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, newMutationResponse(res))
}

// UpdateRecord handles PUT /api/records/{id}
func (h *RecordsHandler) UpdateRecord(w http.ResponseWriter, r *http.Request, id string) {
	draft, err := decodeDraft(w, r, false)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Update(r.Context(), id, draft)
	if err != nil {
		h.fail(w, r, err, "Failed to update record")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, newMutationResponse(res))
}

// DeleteRecord handles DELETE /api/records/{id}
func (h *RecordsHandler) DeleteRecord(w http.ResponseWriter, r *http.Request, id string) {
	res, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "Failed to delete record")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, newMutationResponse(res))
}

// Summary handles GET /api/summary?by=category|month|vendor&month=&category=
func (h *RecordsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	field, err := query.ParseField(r.URL.Query().Get("by"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := h.svc.Records(r.Context(), viewFromQuery(r))
	if err != nil {
		h.fail(w, r, err, "Failed to summarize records")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"by":     field,
		"groups": query.Summarize(recs, field),
		"total":  query.Total(recs),
		"count":  len(recs),
		"months": query.Months(recs),
	})
}

// ListCategories handles GET /api/categories
func (h *RecordsHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories := h.svc.Categories()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// fail maps the ledger error taxonomy onto HTTP statuses.
func (h *RecordsHandler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
		middleware.WriteError(w, status, msg)
		return
	}
	middleware.WriteError(w, status, err.Error())
}

// StatusFor returns the HTTP status for a ledger error.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidCategory),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrMalformedRecord):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func viewFromQuery(r *http.Request) query.View {
	q := r.URL.Query()
	return query.View{
		Month:    strings.TrimSpace(q.Get("month")),
		Category: strings.TrimSpace(q.Get("category")),
	}
}

// recordRequest is the JSON body of create and update.
type recordRequest struct {
	Date        string `json:"date"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Vendor      string `json:"vendor"`
	Amount      *int64 `json:"amount"`
	ReceiptRef  string `json:"receipt_ref"`
}

func decodeDraft(w http.ResponseWriter, r *http.Request, create bool) (ledger.Draft, error) {
	var req recordRequest
	var receipt *ledger.Attachment

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return ledger.Draft{}, fmt.Errorf("invalid multipart body: %w", err)
		}
		req.Date = r.FormValue("date")
		req.Category = r.FormValue("category")
		req.Description = r.FormValue("description")
		req.Vendor = r.FormValue("vendor")
		req.ReceiptRef = r.FormValue("receipt_ref")
		if s := strings.TrimSpace(r.FormValue("amount")); s != "" {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return ledger.Draft{}, fmt.Errorf("amount must be a whole number: %q", s)
			}
			req.Amount = &n
		}

		file, header, err := r.FormFile("receipt")
		switch {
		case err == nil:
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				return ledger.Draft{}, fmt.Errorf("reading receipt: %w", err)
			}
			receipt = &ledger.Attachment{
				Name:        header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			}
		case !errors.Is(err, http.ErrMissingFile):
			return ledger.Draft{}, fmt.Errorf("invalid receipt part: %w", err)
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ledger.Draft{}, errors.New("invalid request body")
	}

	if create && req.Amount == nil && receipt == nil {
		return ledger.Draft{}, errors.New("amount is required")
	}

	draft := ledger.Draft{
		Category:    req.Category,
		Description: req.Description,
		Vendor:      req.Vendor,
		ReceiptRef:  req.ReceiptRef,
		Receipt:     receipt,
	}
	if req.Amount != nil {
		draft.Amount = *req.Amount
	}
	if s := strings.TrimSpace(req.Date); s != "" {
		d, ok := domain.ParseDate(s)
		if !ok {
			return ledger.Draft{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", s)
		}
		draft.Date = d
	}
	return draft, nil
}

// SyncHandler handles sync-related endpoints.
type SyncHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

// EnqueueSync handles POST /api/sync
func (h *SyncHandler) EnqueueSync(w http.ResponseWriter, r *http.Request) {
	job := &jobs.SyncJob{Trigger: jobs.TriggerAPI}

	if err := h.publisher.PublishSync(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue sync job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue sync job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Msg("Sync job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetJob handles GET /api/sync/jobs/{id}
func (h *SyncHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/sync/jobs
func (h *SyncHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	q := r.URL.Query()
	filter := jobs.JobFilter{
		Trigger: jobs.Trigger(q.Get("trigger")),
		Status:  jobs.JobStatus(q.Get("status")),
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
