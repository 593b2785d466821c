package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-ledger/internal/config"
	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/ledger"
	"github.com/dvloznov/expense-ledger/internal/logger"
	"github.com/dvloznov/expense-ledger/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "expenses.csv")
	return &config.Config{
		Local:      config.LocalConfig{Path: path},
		State:      config.StateConfig{Path: path + ".sync.json"},
		Remote:     config.RemoteConfig{Backend: backend},
		Blob:       config.BlobConfig{Backend: config.BlobLocal, Dir: dir},
		Sync:       config.SyncConfig{ConflictPolicy: "mutator", DeletePolicy: "propagate"},
		Categories: domain.DefaultCategories,
	}
}

func TestNew_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.BackendMemory)

	a, err := New(ctx, cfg, logger.NewWithWriter(&bytes.Buffer{}))
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Remote)

	res, err := a.Service.Add(ctx, ledger.Draft{
		Date:     civil.Date{Year: 2024, Month: 3, Day: 1},
		Category: "office supply",
		Amount:   3000,
	})
	require.NoError(t, err)
	assert.Equal(t, "Office Supply", res.Record.Category)

	remoteRecs, err := a.Remote.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, remoteRecs, 1)
}

func TestNew_LocalOnly(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.BackendNone)

	a, err := New(ctx, cfg, logger.NewWithWriter(&bytes.Buffer{}))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Remote)

	report, err := a.Service.Sync(ctx, reconcile.SideNone)
	require.NoError(t, err)
	assert.False(t, report.RemotePending, "no remote store is not a pending remote")
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig(t, "ftp")

	_, err := New(context.Background(), cfg, logger.NewWithWriter(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestNewMirror(t *testing.T) {
	cfg := testConfig(t, config.BackendNone)
	assert.Nil(t, NewMirror(cfg, false))

	cfg.Mirror.Notion = config.NotionConfig{Token: "secret", DatabaseID: "db"}
	assert.NotNil(t, NewMirror(cfg, true))
}
