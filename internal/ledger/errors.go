package ledger

import (
	"github.com/dvloznov/expense-ledger/internal/blob"
	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/remote"
)

// Error taxonomy surfaced by the ledger. Use errors.Is to test for them.
var (
	ErrStoreUnavailable = remote.ErrStoreUnavailable
	ErrBlobUploadFailed = blob.ErrBlobUploadFailed
	ErrMalformedRecord  = domain.ErrMalformedRecord
	ErrInvalidCategory  = domain.ErrInvalidCategory
	ErrInvalidAmount    = domain.ErrInvalidAmount
	ErrNotFound         = domain.ErrNotFound
)

// WarningCode identifies a non-fatal problem reported to the user.
type WarningCode string

const (
	// WarnAttachmentFailed means the record was saved without its receipt.
	WarnAttachmentFailed WarningCode = "attachment_upload_failed"
	// WarnRemotePending means local changes have not reached the remote store yet.
	WarnRemotePending WarningCode = "remote_sync_pending"
	// WarnMirrorFailed means the document mirror could not be updated.
	WarnMirrorFailed WarningCode = "mirror_failed"
	// WarnScanFailed means the receipt could not be read to prefill fields.
	WarnScanFailed WarningCode = "receipt_scan_failed"
)

// Warning is a non-fatal problem attached to an otherwise successful call.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return string(w.Code) + ": " + w.Message
}
