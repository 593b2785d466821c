// Package api assembles the HTTP surface of the ledger.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/expense-ledger/internal/api/handlers"
	"github.com/dvloznov/expense-ledger/internal/api/middleware"
	"github.com/dvloznov/expense-ledger/internal/jobs"
	"github.com/rs/zerolog"
)

// RouterConfig holds the dependencies of NewRouter.
type RouterConfig struct {
	Service     handlers.RecordService
	Publisher   jobs.Publisher
	JobStore    jobs.JobStore
	AuthToken   string
	CORSOrigins string
	Log         zerolog.Logger
}

// NewRouter returns the API handler with middleware applied.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	recordsHandler := handlers.NewRecordsHandler(cfg.Service, log)
	syncHandler := handlers.NewSyncHandler(cfg.Publisher, cfg.JobStore, log)

	mux := http.NewServeMux()

	// Records endpoints
	mux.HandleFunc("/api/records", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			recordsHandler.ListRecords(w, r)
		case http.MethodPost:
			recordsHandler.CreateRecord(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/records/", func(w http.ResponseWriter, r *http.Request) {
		// Extract record ID from path
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/records/"), "/")
		if id == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Record ID is required")
			return
		}

		switch r.Method {
		case http.MethodGet:
			recordsHandler.GetRecord(w, r, id)
		case http.MethodPut:
			recordsHandler.UpdateRecord(w, r, id)
		case http.MethodDelete:
			recordsHandler.DeleteRecord(w, r, id)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/summary", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			recordsHandler.Summary(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			recordsHandler.ListCategories(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Sync endpoints
	mux.HandleFunc("/api/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			syncHandler.EnqueueSync(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/sync/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			syncHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/sync/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/sync/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		syncHandler.GetJob(w, r, jobID)
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(cfg.CORSOrigins)(
					middleware.Auth(cfg.AuthToken)(mux),
				),
			),
		),
	)
}
