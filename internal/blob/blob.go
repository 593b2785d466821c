// Package blob stores receipt attachments and hands back a stable reference.
package blob

import (
	"context"
	"errors"
	"path"
	"regexp"
	"strings"
	"time"
)

// ErrBlobUploadFailed marks an attachment that could not be stored. The
// record is still saved, with its receipt reference unset.
var ErrBlobUploadFailed = errors.New("attachment did not upload")

// Store provides an interface for attachment storage.
// This interface enables mocking and testing of storage functionality.
type Store interface {
	// Upload stores data and returns a reference to it. suggestedName is
	// sanitized and prefixed so two uploads never collide.
	Upload(ctx context.Context, data []byte, suggestedName, contentType string) (string, error)

	// Fetch returns the bytes behind a reference produced by Upload.
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// ObjectPrefix is the folder every receipt is stored under.
const ObjectPrefix = "receipts"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName reduces a client supplied file name to a safe base name.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "receipt"
	}
	if len(name) > 100 {
		ext := path.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:100-len(ext)] + ext
	}
	return name
}

// ObjectName builds a collision resistant object path:
// receipts/YYYY/MM/DD/<id>-<sanitized name>.
func ObjectName(now time.Time, id, suggestedName string) string {
	return path.Join(
		ObjectPrefix,
		now.UTC().Format("2006/01/02"),
		id+"-"+SanitizeName(suggestedName),
	)
}

// FilenameFromRef extracts the original file name from a reference,
// dropping the random prefix when present.
// e.g., "gs://bucket/receipts/2024/01/02/<uuid>-taxi.jpg" → "taxi.jpg"
func FilenameFromRef(ref string) string {
	base := path.Base(strings.TrimPrefix(ref, "gs://"))
	// uuid prefix is 36 characters plus the dash
	if len(base) > 37 && base[36] == '-' && strings.Count(base[:36], "-") == 4 {
		return base[37:]
	}
	return base
}
