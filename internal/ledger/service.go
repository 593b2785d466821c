// Package ledger runs the record lifecycle: building records, writing them
// to the local file and reconciling the local file with the remote store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/logger"
	"github.com/dvloznov/expense-ledger/internal/query"
	"github.com/dvloznov/expense-ledger/internal/reconcile"
	"github.com/dvloznov/expense-ledger/internal/remote"
)

// LocalStore is the local tabular file.
// This interface enables mocking and testing of the ledger file.
type LocalStore interface {
	Load(ctx context.Context) ([]domain.Record, error)
	Replace(ctx context.Context, recs []domain.Record) error
}

// StateStore persists the reconciliation state between cycles.
type StateStore interface {
	Load() (reconcile.State, error)
	Save(st reconcile.State) error
}

// Mirror receives the merged view after every successful cycle.
type Mirror interface {
	Push(ctx context.Context, recs []domain.Record) error
}

// Options configures reconciliation for a Service.
type Options struct {
	Policy  reconcile.Policy
	Deletes reconcile.DeletePolicy
}

// Service owns the load, merge and write cycle. All cycles run under one
// mutex so two writers never interleave.
type Service struct {
	local   LocalStore
	remote  remote.Store
	state   StateStore
	builder *Builder
	mirror  Mirror
	opts    Options
	now     func() time.Time

	mu sync.Mutex
}

// NewService creates a service. remote and mirror may be nil; without a
// remote store every cycle is local-only.
func NewService(local LocalStore, rs remote.Store, state StateStore, builder *Builder, mirror Mirror, opts Options) *Service {
	if builder == nil {
		builder = NewBuilder(nil, nil, nil)
	}
	return &Service{
		local:   local,
		remote:  rs,
		state:   state,
		builder: builder,
		mirror:  mirror,
		opts:    opts,
		now:     time.Now,
	}
}

// SyncReport summarizes one cycle.
type SyncReport struct {
	Records        int       `json:"records"`
	PushedRemote   int       `json:"pushed_remote"`
	DeletedRemote  int       `json:"deleted_remote"`
	WrittenLocal   int       `json:"written_local"`
	DeletedLocal   int       `json:"deleted_local"`
	Conflicts      int       `json:"conflicts"`
	Removed        int       `json:"removed"`
	Repaired       int       `json:"repaired"`
	RemotePending  bool      `json:"remote_pending"`
	PendingChanges int       `json:"pending_changes"`
	Warnings       []Warning `json:"warnings,omitempty"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Result is returned by record mutations.
type Result struct {
	Record   domain.Record `json:"record"`
	Sync     SyncReport    `json:"sync"`
	Warnings []Warning     `json:"warnings,omitempty"`
}

// Sync runs one reconciliation cycle. mutator names the side whose change
// triggered it, or reconcile.SideNone.
func (s *Service) Sync(ctx context.Context, mutator reconcile.Side) (SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncLocked(ctx, mutator)
}

// Add builds a record from d, appends it to the local file and syncs.
func (s *Service) Add(ctx context.Context, d Draft) (Result, error) {
	rec, warnings, err := s.builder.Build(ctx, d)
	if err != nil {
		return Result{Warnings: warnings}, fmt.Errorf("Add: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.local.Load(ctx)
	if err != nil {
		return Result{Warnings: warnings}, fmt.Errorf("Add: load local: %w", err)
	}
	if err := s.local.Replace(ctx, append(recs, rec)); err != nil {
		return Result{Warnings: warnings}, fmt.Errorf("Add: write local: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("record_id", rec.ID).
		Str("category", rec.Category).
		Int64("amount", rec.Amount).
		Msg("Added record")

	return s.afterMutation(ctx, rec, warnings)
}

// Update replaces every user field of record id with d.
func (s *Service) Update(ctx context.Context, id string, d Draft) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.local.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("Update: load local: %w", err)
	}

	idx := indexOf(recs, id)
	if idx < 0 {
		return Result{}, fmt.Errorf("Update: %s: %w", id, ErrNotFound)
	}

	if d.Receipt == nil && d.ReceiptRef == "" {
		d.ReceiptRef = recs[idx].ReceiptRef
	}
	rec, warnings, err := s.builder.Rebuild(ctx, recs[idx], d)
	if err != nil {
		return Result{Warnings: warnings}, fmt.Errorf("Update: %w", err)
	}
	recs[idx] = rec

	// The state is saved before the file so an edit is never on disk unmarked.
	if err := s.updateState(func(st *reconcile.State) { st.MarkDirty(id) }); err != nil {
		return Result{Warnings: warnings}, fmt.Errorf("Update: %w", err)
	}
	if err := s.local.Replace(ctx, recs); err != nil {
		return Result{Warnings: warnings}, fmt.Errorf("Update: write local: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("record_id", id).Msg("Updated record")

	return s.afterMutation(ctx, rec, warnings)
}

// Delete removes record id from the local file and tombstones it so the
// next cycle deletes it remotely instead of copying it back.
func (s *Service) Delete(ctx context.Context, id string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.local.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("Delete: load local: %w", err)
	}

	idx := indexOf(recs, id)
	if idx < 0 {
		return Result{}, fmt.Errorf("Delete: %s: %w", id, ErrNotFound)
	}
	removed := recs[idx]
	recs = append(recs[:idx], recs[idx+1:]...)

	// Tombstone before the file write, as in Update.
	if err := s.updateState(func(st *reconcile.State) { st.MarkDeleted(id) }); err != nil {
		return Result{}, fmt.Errorf("Delete: %w", err)
	}
	if err := s.local.Replace(ctx, recs); err != nil {
		return Result{}, fmt.Errorf("Delete: write local: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("record_id", id).Msg("Deleted record")

	return s.afterMutation(ctx, removed, nil)
}

// Records returns the local records matching v without syncing.
func (s *Service) Records(ctx context.Context, v query.View) ([]domain.Record, error) {
	s.mu.Lock()
	recs, err := s.local.Load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("Records: %w", err)
	}
	kept, _ := reconcile.Cleanup(recs)
	return query.Filter(kept, v), nil
}

// Get returns one record by id.
func (s *Service) Get(ctx context.Context, id string) (domain.Record, error) {
	recs, err := s.Records(ctx, query.View{})
	if err != nil {
		return domain.Record{}, err
	}
	if idx := indexOf(recs, id); idx >= 0 {
		return recs[idx], nil
	}
	return domain.Record{}, fmt.Errorf("Get: %s: %w", id, ErrNotFound)
}

// Categories returns the configured category names.
func (s *Service) Categories() []string {
	return s.builder.Categories()
}

func (s *Service) afterMutation(ctx context.Context, rec domain.Record, warnings []Warning) (Result, error) {
	report, err := s.syncLocked(ctx, reconcile.SideNone)
	if err != nil {
		return Result{Record: rec, Warnings: warnings}, err
	}
	return Result{
		Record:   rec,
		Sync:     report,
		Warnings: append(warnings, report.Warnings...),
	}, nil
}

// syncLocked must be called with s.mu held.
func (s *Service) syncLocked(ctx context.Context, mutator reconcile.Side) (SyncReport, error) {
	log := logger.FromContext(ctx)
	var report SyncReport

	local, err := s.local.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("Sync: load local: %w", err)
	}

	st, err := s.state.Load()
	if err != nil {
		// without a baseline nothing counts as deleted; the cycle is a union
		log.Warn().Err(err).Msg("Sync state unreadable, starting from an empty state")
		st = reconcile.State{}
	}

	var remoteRecs []domain.Record
	remoteDown := s.remote == nil
	if s.remote != nil {
		remoteRecs, err = s.remote.ListAll(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Remote store unavailable, syncing local only")
			remoteDown = true
			report.RemotePending = true
		}
	}

	res := reconcile.Reconcile(local, remoteRecs, reconcile.Options{
		Policy:            s.opts.Policy,
		Deletes:           s.opts.Deletes,
		Mutator:           mutator,
		State:             st,
		RemoteUnavailable: remoteDown,
	})
	logResult(ctx, res)

	// Local first, then remote, then state.
	if res.LocalChanged() {
		if err := s.local.Replace(ctx, res.Merged); err != nil {
			return report, fmt.Errorf("Sync: write local: %w", err)
		}
	}

	next := res.NextState
	if !remoteDown {
		if err := s.pushRemote(ctx, res); err != nil {
			log.Warn().Err(err).Msg("Remote write failed, keeping changes pending")
			report.RemotePending = true
			next = pendingState(st, res)
		} else {
			next.LastSyncAt = s.now().UTC()
		}
	}

	if err := s.state.Save(next); err != nil {
		return report, fmt.Errorf("Sync: %w", err)
	}

	if s.mirror != nil && !report.RemotePending {
		if err := s.mirror.Push(ctx, res.Merged); err != nil {
			log.Warn().Err(err).Msg("Mirror update failed")
			report.Warnings = append(report.Warnings, Warning{Code: WarnMirrorFailed, Message: "document mirror not updated"})
		}
	}

	report.Records = len(res.Merged)
	report.WrittenLocal = len(res.ToWriteLocal)
	report.DeletedLocal = len(res.ToDeleteLocal)
	report.Conflicts = len(res.Conflicts)
	report.Removed = len(res.Removed)
	report.Repaired = len(res.Repaired)
	report.PendingChanges = next.Pending()
	report.FinishedAt = s.now().UTC()
	if report.RemotePending {
		report.Warnings = append(report.Warnings, Warning{Code: WarnRemotePending, Message: "remote sync pending"})
	} else if s.remote != nil {
		report.PushedRemote = len(res.ToPushRemote)
		report.DeletedRemote = len(res.ToDeleteRemote)
	}

	log.Info().
		Int("records", report.Records).
		Int("pushed_remote", report.PushedRemote).
		Int("deleted_remote", report.DeletedRemote).
		Int("written_local", report.WrittenLocal).
		Int("deleted_local", report.DeletedLocal).
		Int("conflicts", report.Conflicts).
		Bool("remote_pending", report.RemotePending).
		Msg("Sync cycle finished")

	return report, nil
}

func (s *Service) pushRemote(ctx context.Context, res reconcile.Result) error {
	if len(res.ToPushRemote) > 0 {
		if err := s.remote.Upsert(ctx, res.ToPushRemote); err != nil {
			return fmt.Errorf("upsert %d records: %w", len(res.ToPushRemote), err)
		}
	}
	var errs []error
	for _, id := range res.ToDeleteRemote {
		if err := s.remote.Delete(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) updateState(fn func(*reconcile.State)) error {
	st, err := s.state.Load()
	if err != nil {
		return err
	}
	fn(&st)
	return s.state.Save(st)
}

// pendingState keeps everything the failed remote write still owes: local
// versions stay dirty so they win the next conflict, and remote deletions
// become tombstones.
func pendingState(prev reconcile.State, res reconcile.Result) reconcile.State {
	next := prev
	next.Dirty = append([]string(nil), prev.Dirty...)
	next.Tombstones = append([]string(nil), prev.Tombstones...)
	for _, rec := range res.ToPushRemote {
		next.MarkDirty(rec.ID)
	}
	for _, id := range res.ToDeleteRemote {
		next.MarkDeleted(id)
	}
	return next
}

func logResult(ctx context.Context, res reconcile.Result) {
	log := logger.FromContext(ctx)
	for _, c := range res.Conflicts {
		log.Info().
			Str("record_id", c.ID).
			Str("winner", string(c.Winner)).
			Msg("Conflict resolved")
	}
	for _, rec := range res.Removed {
		log.Info().Str("record_id", rec.ID).Msg("Removed defective row")
	}
	if len(res.Repaired) > 0 {
		log.Info().Int("count", len(res.Repaired)).Msg("Assigned ids to records without one")
	}
}

func indexOf(recs []domain.Record, id string) int {
	for i, rec := range recs {
		if rec.ID == id {
			return i
		}
	}
	return -1
}
