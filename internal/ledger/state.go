package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dvloznov/expense-ledger/internal/reconcile"
	"github.com/moby/sys/atomicwriter"
)

// StateFile persists reconcile.State between cycles as JSON.
type StateFile struct {
	path string
}

// NewStateFile creates a state file at path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// DefaultStatePath places the state file next to the ledger file.
func DefaultStatePath(ledgerPath string) string {
	return ledgerPath + ".sync.json"
}

// Load reads the state. A missing file is the empty state.
func (f *StateFile) Load() (reconcile.State, error) {
	var st reconcile.State

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("StateFile.Load: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("StateFile.Load: decode %s: %w", f.path, err)
	}
	return st, nil
}

// Save writes the state atomically.
func (f *StateFile) Save(st reconcile.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("StateFile.Save: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("StateFile.Save: %w", err)
	}
	if err := atomicwriter.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("StateFile.Save: %w", err)
	}
	return nil
}
