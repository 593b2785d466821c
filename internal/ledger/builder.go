package ledger

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-ledger/internal/blob"
	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/logger"
	"github.com/dvloznov/expense-ledger/internal/receipts"
	"github.com/google/uuid"
)

// Attachment is a receipt file supplied with a draft.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Draft is user input for a new or edited record. Empty text fields are
// stored as unset; a zero Date defaults to today for new records.
type Draft struct {
	Date        civil.Date
	Category    string
	Description string
	Vendor      string
	Amount      int64
	// ReceiptRef keeps an existing attachment when no new Receipt is given.
	ReceiptRef string
	Receipt    *Attachment
}

// Builder turns drafts into records. It never contacts the remote record
// store: ids are generated locally.
type Builder struct {
	categories *domain.CategoryValidator
	blobs      blob.Store
	scanner    receipts.Scanner
	now        func() time.Time
	newID      func() string
}

// NewBuilder creates a builder. blobs and scanner may be nil.
func NewBuilder(categories *domain.CategoryValidator, blobs blob.Store, scanner receipts.Scanner) *Builder {
	if categories == nil {
		categories = domain.NewCategoryValidator(nil)
	}
	return &Builder{
		categories: categories,
		blobs:      blobs,
		scanner:    scanner,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Categories returns the configured category names.
func (b *Builder) Categories() []string {
	return b.categories.Names()
}

// Build creates a new record from d. Attachment and scan failures do not
// fail the build; they come back as warnings.
func (b *Builder) Build(ctx context.Context, d Draft) (domain.Record, []Warning, error) {
	now := b.now()
	rec, warnings, err := b.apply(ctx, domain.Record{}, d)
	if err != nil {
		return domain.Record{}, warnings, err
	}
	if !rec.HasDate() {
		rec.Date = civil.DateOf(now)
	}
	rec.ID = b.newID()
	rec.CreatedAt = now.UTC()
	return rec.Normalize(), warnings, nil
}

// Rebuild replaces every user field of existing with d, keeping its id and
// creation time.
func (b *Builder) Rebuild(ctx context.Context, existing domain.Record, d Draft) (domain.Record, []Warning, error) {
	rec, warnings, err := b.apply(ctx, domain.Record{}, d)
	if err != nil {
		return domain.Record{}, warnings, err
	}
	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt
	return rec.Normalize(), warnings, nil
}

func (b *Builder) apply(ctx context.Context, rec domain.Record, d Draft) (domain.Record, []Warning, error) {
	log := logger.FromContext(ctx)
	var warnings []Warning

	if d.Amount < 0 {
		return rec, nil, fmt.Errorf("Build: amount %d: %w", d.Amount, ErrInvalidAmount)
	}

	rec.Date = d.Date
	rec.Description = d.Description
	rec.Vendor = d.Vendor
	rec.Amount = d.Amount
	rec.ReceiptRef = d.ReceiptRef
	rec.Category = d.Category
	rec = rec.Normalize()

	if !domain.IsUnset(rec.Category) {
		name, err := b.categories.Canonical(rec.Category)
		if err != nil {
			return rec, nil, fmt.Errorf("Build: %w: %v", ErrInvalidCategory, err)
		}
		rec.Category = name
	}

	if d.Receipt == nil || len(d.Receipt.Data) == 0 {
		return rec, warnings, nil
	}

	if b.scanner != nil {
		scanned, err := b.scanner.Scan(ctx, d.Receipt.Data, d.Receipt.ContentType)
		if err != nil {
			log.Warn().Err(err).Str("file", d.Receipt.Name).Msg("Receipt scan failed")
			warnings = append(warnings, Warning{Code: WarnScanFailed, Message: "receipt could not be read"})
		} else {
			if !domain.IsUnset(scanned.Category) {
				if name, err := b.categories.Canonical(scanned.Category); err == nil {
					scanned.Category = name
				} else {
					scanned.Category = domain.Unset
				}
			}
			rec = scanned.Apply(rec)
		}
	}

	if b.blobs == nil {
		warnings = append(warnings, Warning{Code: WarnAttachmentFailed, Message: "no attachment store configured"})
		return rec, warnings, nil
	}

	ref, err := b.blobs.Upload(ctx, d.Receipt.Data, d.Receipt.Name, d.Receipt.ContentType)
	if err != nil {
		log.Warn().Err(err).Str("file", d.Receipt.Name).Msg("Attachment upload failed, saving record without receipt")
		warnings = append(warnings, Warning{Code: WarnAttachmentFailed, Message: "attachment did not upload"})
		return rec, warnings, nil
	}

	rec.ReceiptRef = ref
	log.Info().Str("receipt_ref", ref).Msg("Uploaded attachment")
	return rec, warnings, nil
}
