package reconcile

import "github.com/dvloznov/expense-ledger/internal/domain"

// Cleanup drops defective rows, keeping the order of the rest.
func Cleanup(recs []domain.Record) (kept, removed []domain.Record) {
	kept = make([]domain.Record, 0, len(recs))
	for _, rec := range recs {
		if rec.IsDefective() {
			removed = append(removed, rec)
			continue
		}
		kept = append(kept, rec)
	}
	return kept, removed
}
