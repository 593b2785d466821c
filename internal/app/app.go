// Package app builds a ledger.Service and its stores from configuration.
// Every command starts here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-ledger/internal/blob"
	"github.com/dvloznov/expense-ledger/internal/config"
	"github.com/dvloznov/expense-ledger/internal/domain"
	infraBQ "github.com/dvloznov/expense-ledger/internal/infra/bigquery"
	"github.com/dvloznov/expense-ledger/internal/ledger"
	"github.com/dvloznov/expense-ledger/internal/localstore"
	"github.com/dvloznov/expense-ledger/internal/logger"
	"github.com/dvloznov/expense-ledger/internal/notionsync"
	"github.com/dvloznov/expense-ledger/internal/receipts"
	"github.com/dvloznov/expense-ledger/internal/remote"
	"github.com/rs/zerolog"
)

// App is a wired service plus the clients it owns.
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Service *ledger.Service
	Local   *localstore.Store
	Remote  remote.Store

	closers []func() error
}

// NewLogger creates the process logger from cfg.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return logger.NewWithOptions(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// New wires the service described by cfg. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}
	ctx = logger.WithContext(ctx, log)

	local, err := localstore.New(cfg.Local.Path, cfg.Local.Sheet)
	if err != nil {
		return nil, fmt.Errorf("app.New: local store: %w", err)
	}
	a.Local = local

	rs, err := a.remoteStore(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.Remote = rs

	blobs, err := a.blobStore(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}

	var scanner receipts.Scanner
	if cfg.Receipts.Autofill {
		gs, err := receipts.NewGeminiScanner(ctx, cfg.Receipts.Model, cfg.Categories)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		scanner = gs
	}

	var mirror ledger.Mirror
	if cfg.Mirror.Enabled() {
		mirror = NewMirror(cfg, false)
	}

	builder := ledger.NewBuilder(domain.NewCategoryValidator(cfg.Categories), blobs, scanner)
	state := ledger.NewStateFile(cfg.State.Path)

	a.Service = ledger.NewService(local, rs, state, builder, mirror, ledger.Options{
		Policy:  cfg.ConflictPolicy(),
		Deletes: cfg.DeletePolicy(),
	})

	log.Debug().
		Str("local", cfg.Local.Path).
		Str("remote", cfg.Remote.Backend).
		Str("blob", cfg.Blob.Backend).
		Bool("mirror", mirror != nil).
		Bool("autofill", scanner != nil).
		Msg("Ledger service wired")

	return a, nil
}

// NewMirror returns the configured Notion mirror, or nil when none is set.
func NewMirror(cfg *config.Config, dryRun bool) *notionsync.Mirror {
	if !cfg.Mirror.Enabled() {
		return nil
	}
	client := notionsync.NewNotionClient(cfg.Mirror.Notion.Token)
	return notionsync.NewMirror(client, cfg.Mirror.Notion.DatabaseID, dryRun)
}

// RetryConfig converts the sync.retry settings.
func RetryConfig(cfg *config.Config) remote.RetryConfig {
	return remote.RetryConfig{
		MaxRetries:  cfg.Sync.Retry.MaxRetries,
		BaseDelay:   cfg.Sync.Retry.BaseDelay,
		MaxDelay:    cfg.Sync.Retry.MaxDelay,
		CallTimeout: cfg.Sync.Retry.CallTimeout,
	}
}

func (a *App) remoteStore(ctx context.Context) (remote.Store, error) {
	cfg := a.Config

	var rs remote.Store
	switch cfg.Remote.Backend {
	case "", config.BackendNone:
		a.Log.Warn().Msg("No remote backend configured, running local only")
		return nil, nil
	case config.BackendMemory:
		rs = remote.NewMemoryStore()
	case config.BackendBigQuery:
		bq, err := infraBQ.NewRecordStore(ctx, cfg.Remote.BigQuery.ProjectID, cfg.Remote.BigQuery.Dataset, cfg.Remote.BigQuery.Table)
		if err != nil {
			return nil, fmt.Errorf("bigquery store: %w", err)
		}
		a.closers = append(a.closers, bq.Close)
		rs = bq
	case config.BackendNotion:
		client := notionsync.NewNotionClient(cfg.Remote.Notion.Token)
		rs = notionsync.NewRecordStore(client, cfg.Remote.Notion.DatabaseID)
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Remote.Backend)
	}

	return remote.WithRetry(rs, RetryConfig(cfg)), nil
}

func (a *App) blobStore(ctx context.Context) (blob.Store, error) {
	cfg := a.Config

	switch cfg.Blob.Backend {
	case "", config.BlobLocal:
		return blob.NewLocalStore(cfg.Blob.Dir), nil
	case config.BlobGCS:
		gcs, err := blob.NewGCSStore(ctx, cfg.Blob.Bucket)
		if err != nil {
			return nil, fmt.Errorf("gcs store: %w", err)
		}
		a.closers = append(a.closers, gcs.Close)
		return gcs, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Blob.Backend)
	}
}

// Close releases every client the App created.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
