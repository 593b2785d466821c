package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/localstore"
	"github.com/dvloznov/expense-ledger/internal/query"
	"github.com/dvloznov/expense-ledger/internal/receipts"
	"github.com/dvloznov/expense-ledger/internal/reconcile"
	"github.com/dvloznov/expense-ledger/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = remote.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

type fixture struct {
	svc    *Service
	local  *localstore.Store
	remote *remote.MemoryStore
	state  *StateFile
}

func newFixture(t *testing.T, mirror Mirror, opts Options) *fixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "expenses.csv")

	local, err := localstore.New(path, "")
	require.NoError(t, err)
	mem := remote.NewMemoryStore()
	state := NewStateFile(DefaultStatePath(path))

	svc := NewService(local, remote.WithRetry(mem, fastRetry), state, NewBuilder(nil, nil, nil), mirror, opts)
	return &fixture{svc: svc, local: local, remote: mem, state: state}
}

func (f *fixture) localRecords(t *testing.T) []domain.Record {
	t.Helper()
	recs, err := f.local.Load(context.Background())
	require.NoError(t, err)
	return recs
}

func (f *fixture) remoteRecords(t *testing.T) []domain.Record {
	t.Helper()
	recs, err := f.remote.ListAll(context.Background())
	require.NoError(t, err)
	return recs
}

func taxi() Draft {
	return Draft{
		Date:        civil.Date{Year: 2024, Month: 4, Day: 2},
		Category:    "transportation",
		Description: "Taxi",
		Amount:      5000,
	}
}

func TestService_AddReachesBothStores(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()

	res, err := f.svc.Add(ctx, taxi())
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "Transportation", res.Record.Category)
	assert.Equal(t, 1, res.Sync.PushedRemote)

	local := f.localRecords(t)
	remoteRecs := f.remoteRecords(t)
	require.Len(t, local, 1)
	require.Len(t, remoteRecs, 1)
	assert.True(t, local[0].Equal(remoteRecs[0]))

	st, err := f.state.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{res.Record.ID}, st.Synced)
	assert.False(t, st.LastSyncAt.IsZero())

	again, err := f.svc.Sync(ctx, reconcile.SideNone)
	require.NoError(t, err)
	assert.Zero(t, again.PushedRemote)
	assert.Zero(t, again.WrittenLocal)
	assert.Zero(t, again.Conflicts)
}

func TestService_AddWhileRemoteUnavailable(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	f.remote.SetFailure(remote.Transient(errors.New("503")))

	res, err := f.svc.Add(ctx, taxi())
	require.NoError(t, err)
	assert.True(t, res.Sync.RemotePending)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnRemotePending, res.Warnings[0].Code)
	assert.Len(t, f.localRecords(t), 1, "record kept locally")

	f.remote.SetFailure(nil)
	report, err := f.svc.Sync(ctx, reconcile.SideNone)
	require.NoError(t, err)
	assert.False(t, report.RemotePending)
	assert.Equal(t, 1, report.PushedRemote)
	assert.Len(t, f.remoteRecords(t), 1)
}

func TestService_DeleteIsNotResurrected(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()

	added, err := f.svc.Add(ctx, taxi())
	require.NoError(t, err)

	// The remote is down while deleting: the tombstone must survive.
	f.remote.SetFailure(remote.Transient(errors.New("timeout")))
	res, err := f.svc.Delete(ctx, added.Record.ID)
	require.NoError(t, err)
	assert.True(t, res.Sync.RemotePending)
	assert.Empty(t, f.localRecords(t))

	f.remote.SetFailure(nil)
	report, err := f.svc.Sync(ctx, reconcile.SideNone)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeletedRemote)
	assert.Empty(t, f.remoteRecords(t))
	assert.Empty(t, f.localRecords(t))

	_, err = f.svc.Delete(ctx, added.Record.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_RemoteDeletionPropagatesLocally(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()

	added, err := f.svc.Add(ctx, taxi())
	require.NoError(t, err)
	require.NoError(t, f.remote.Delete(ctx, added.Record.ID))

	report, err := f.svc.Sync(ctx, reconcile.SideNone)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeletedLocal)
	assert.Empty(t, f.localRecords(t))
}

func TestService_UpdateWinsOverStaleRemote(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()

	added, err := f.svc.Add(ctx, taxi())
	require.NoError(t, err)

	// Someone edits the remote copy; the local edit happens before the next sync.
	edited := added.Record
	edited.Description = "Taxi (remote edit)"
	require.NoError(t, f.remote.Upsert(ctx, []domain.Record{edited}))

	d := taxi()
	d.Amount = 6500
	d.Vendor = "Bluebird"
	res, err := f.svc.Update(ctx, added.Record.ID, d)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sync.Conflicts)

	remoteRecs := f.remoteRecords(t)
	require.Len(t, remoteRecs, 1)
	assert.Equal(t, int64(6500), remoteRecs[0].Amount)
	assert.Equal(t, "Taxi", remoteRecs[0].Description)
	assert.Equal(t, "Bluebird", remoteRecs[0].Vendor)

	st, err := f.state.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Dirty, "dirty mark cleared once pushed")
}

func TestService_RemoteEditWinsWithoutLocalChange(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()

	added, err := f.svc.Add(ctx, taxi())
	require.NoError(t, err)

	edited := added.Record
	edited.Amount = 7000
	require.NoError(t, f.remote.Upsert(ctx, []domain.Record{edited}))

	_, err = f.svc.Sync(ctx, reconcile.SideNone)
	require.NoError(t, err)

	local := f.localRecords(t)
	require.Len(t, local, 1)
	assert.Equal(t, int64(7000), local[0].Amount)
}

func TestService_InvalidDraftWritesNothing(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()

	d := taxi()
	d.Category = "Groceries"
	_, err := f.svc.Add(ctx, d)
	assert.ErrorIs(t, err, ErrInvalidCategory)

	d = taxi()
	d.Amount = -1
	_, err = f.svc.Add(ctx, d)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.Empty(t, f.localRecords(t))
}

func TestService_UpdateUnknownID(t *testing.T) {
	f := newFixture(t, nil, Options{})
	_, err := f.svc.Update(context.Background(), "missing", taxi())
	assert.ErrorIs(t, err, ErrNotFound)
}

// remoteWriteFailing lists fine but rejects writes.
type remoteWriteFailing struct {
	*remote.MemoryStore
}

func (r remoteWriteFailing) Upsert(ctx context.Context, recs []domain.Record) error {
	return errors.New("quota exceeded")
}

func TestService_RemoteWriteFailureKeepsLocalEditPending(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "expenses.csv")
	local, err := localstore.New(path, "")
	require.NoError(t, err)
	mem := remote.NewMemoryStore()
	state := NewStateFile(DefaultStatePath(path))
	ctx := context.Background()

	healthy := NewService(local, mem, state, nil, nil, Options{})
	added, err := healthy.Add(ctx, taxi())
	require.NoError(t, err)

	failing := NewService(local, remoteWriteFailing{mem}, state, nil, nil, Options{})
	d := taxi()
	d.Amount = 9000
	res, err := failing.Update(ctx, added.Record.ID, d)
	require.NoError(t, err)
	assert.True(t, res.Sync.RemotePending)

	st, err := state.Load()
	require.NoError(t, err)
	assert.Contains(t, st.Dirty, added.Record.ID)

	// Once writes work again, the local edit wins over the stale remote copy.
	_, err = healthy.Sync(ctx, reconcile.SideNone)
	require.NoError(t, err)
	recs, err := mem.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(9000), recs[0].Amount)
}

// replaceFailing reads the ledger file but cannot write it.
type replaceFailing struct {
	*localstore.Store
}

func (r replaceFailing) Replace(ctx context.Context, recs []domain.Record) error {
	return errors.New("disk full")
}

func TestService_StateIsMarkedBeforeLocalWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "expenses.csv")
	local, err := localstore.New(path, "")
	require.NoError(t, err)
	mem := remote.NewMemoryStore()
	state := NewStateFile(DefaultStatePath(path))
	ctx := context.Background()

	healthy := NewService(local, mem, state, nil, nil, Options{})
	kept, err := healthy.Add(ctx, taxi())
	require.NoError(t, err)
	gone, err := healthy.Add(ctx, taxi())
	require.NoError(t, err)

	broken := NewService(replaceFailing{local}, mem, state, nil, nil, Options{})

	d := taxi()
	d.Amount = 9000
	_, err = broken.Update(ctx, kept.Record.ID, d)
	require.Error(t, err)
	_, err = broken.Delete(ctx, gone.Record.ID)
	require.Error(t, err)

	st, err := state.Load()
	require.NoError(t, err)
	assert.Contains(t, st.Dirty, kept.Record.ID)
	assert.Contains(t, st.Tombstones, gone.Record.ID)

	// The delete is carried out by the next cycle even though the row is
	// still in the file.
	report, err := healthy.Sync(ctx, reconcile.SideNone)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeletedRemote)

	recs, err := mem.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, kept.Record.ID, recs[0].ID)
	localRecs, err := local.Load(ctx)
	require.NoError(t, err)
	require.Len(t, localRecs, 1)
	assert.Equal(t, kept.Record.ID, localRecs[0].ID)
}

func TestService_DeleteUnderKeepPolicyReachesRemote(t *testing.T) {
	f := newFixture(t, nil, Options{Deletes: reconcile.DeleteKeepUnion})
	ctx := context.Background()

	added, err := f.svc.Add(ctx, taxi())
	require.NoError(t, err)
	require.Len(t, f.remoteRecords(t), 1)

	res, err := f.svc.Delete(ctx, added.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sync.DeletedRemote)

	_, err = f.svc.Sync(ctx, reconcile.SideNone)
	require.NoError(t, err)
	assert.Empty(t, f.localRecords(t))
	assert.Empty(t, f.remoteRecords(t))
}

func TestService_SyncRecoversFromCorruptState(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()

	added, err := f.svc.Add(ctx, taxi())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(f.state.path, []byte("{not json"), 0o644))

	report, err := f.svc.Sync(ctx, reconcile.SideNone)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Records)
	assert.Len(t, f.localRecords(t), 1)
	assert.Len(t, f.remoteRecords(t), 1)

	st, err := f.state.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{added.Record.ID}, st.Synced)
}

type recordingMirror struct {
	pushed [][]domain.Record
	err    error
}

func (m *recordingMirror) Push(ctx context.Context, recs []domain.Record) error {
	m.pushed = append(m.pushed, recs)
	return m.err
}

func TestService_MirrorReceivesMergedView(t *testing.T) {
	mirror := &recordingMirror{}
	f := newFixture(t, mirror, Options{})
	ctx := context.Background()

	_, err := f.svc.Add(ctx, taxi())
	require.NoError(t, err)
	require.Len(t, mirror.pushed, 1)
	assert.Len(t, mirror.pushed[0], 1)

	mirror.err = errors.New("notion down")
	report, err := f.svc.Sync(ctx, reconcile.SideNone)
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, WarnMirrorFailed, report.Warnings[0].Code)
}

func TestService_LocalOnlyWithoutRemote(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "expenses.xlsx")
	local, err := localstore.New(path, "")
	require.NoError(t, err)
	svc := NewService(local, nil, NewStateFile(DefaultStatePath(path)), nil, nil, Options{})
	ctx := context.Background()

	res, err := svc.Add(ctx, taxi())
	require.NoError(t, err)
	assert.False(t, res.Sync.RemotePending)
	assert.Empty(t, res.Warnings)

	recs, err := svc.Records(ctx, query.View{Month: "2024-04"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	got, err := svc.Get(ctx, res.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, "Taxi", got.Description)
}

func TestService_SyncRemovesDefectiveRowsEverywhere(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()

	require.NoError(t, f.local.Replace(ctx, []domain.Record{
		{ID: "blank"},
		{ID: "free", Description: "Free coffee"},
	}))
	require.NoError(t, f.remote.Upsert(ctx, []domain.Record{{ID: "remote-blank"}}))

	report, err := f.svc.Sync(ctx, reconcile.SideNone)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Removed)

	local := f.localRecords(t)
	require.Len(t, local, 1)
	assert.Equal(t, "free", local[0].ID)

	remoteRecs := f.remoteRecords(t)
	require.Len(t, remoteRecs, 1)
	assert.Equal(t, "free", remoteRecs[0].ID)
}

// stubScanner returns a fixed extraction.
type stubScanner struct {
	ScanFunc func(ctx context.Context, data []byte, mimeType string) (receipts.Extraction, error)
}

func (s *stubScanner) Scan(ctx context.Context, data []byte, mimeType string) (receipts.Extraction, error) {
	return s.ScanFunc(ctx, data, mimeType)
}
