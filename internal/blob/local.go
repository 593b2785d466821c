package blob

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/moby/sys/atomicwriter"
)

// LocalStore keeps attachments in a directory next to the ledger.
// References are slash-separated paths relative to the directory.
type LocalStore struct {
	dir   string
	now   func() time.Time
	newID func() string
}

// NewLocalStore creates a store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir, now: time.Now, newID: uuid.NewString}
}

// Upload implements Store.
func (s *LocalStore) Upload(ctx context.Context, data []byte, suggestedName, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("Upload: %w: %w", ErrBlobUploadFailed, err)
	}

	ref := ObjectName(s.now(), s.newID(), suggestedName)
	full := filepath.Join(s.dir, filepath.FromSlash(ref))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("Upload: create directory: %w: %w", ErrBlobUploadFailed, err)
	}
	if err := atomicwriter.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("Upload: write %s: %w: %w", ref, ErrBlobUploadFailed, err)
	}
	return ref, nil
}

// Fetch implements Store.
func (s *LocalStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	clean := path.Clean("/" + ref)[1:]
	if clean == "" || strings.HasPrefix(ref, "gs://") {
		return nil, fmt.Errorf("Fetch: invalid reference %q", ref)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(clean)))
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	return data, nil
}

// Ensure LocalStore implements Store.
var _ Store = (*LocalStore)(nil)
