// Package reconcile merges the local and remote record sets into one
// consistent view and computes what each store must change to hold it.
//
// Reconcile is pure: it performs no I/O and its output depends only on its
// inputs. Running it a second time on the stores it produced yields empty
// change-sets.
package reconcile

import (
	"sort"

	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/google/uuid"
)

// Reconcile merges local and remote according to opts.
func Reconcile(local, remote []domain.Record, opts Options) Result {
	if opts.Policy == "" {
		opts.Policy = PolicyMutator
	}
	if opts.Deletes == "" {
		opts.Deletes = DeletePropagate
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	var res Result

	localRecs, localOrig, repaired := indexSide(local, true, opts.NewID)
	res.Repaired = append(res.Repaired, repaired...)

	if opts.RemoteUnavailable {
		return reconcileLocalOnly(res, localRecs, localOrig, opts)
	}

	remoteRecs, remoteOrig, repaired := indexSide(remote, false, opts.NewID)
	res.Repaired = append(res.Repaired, repaired...)

	synced := toSet(opts.State.Synced)
	dirty := toSet(opts.State.Dirty)
	tombs := toSet(opts.State.Tombstones)
	propagate := opts.Deletes == DeletePropagate

	merged := make([]domain.Record, 0, len(localRecs)+len(remoteRecs))

	for _, l := range localRecs {
		if _, tombstoned := tombs[l.ID]; tombstoned && !isNewID(res.Repaired, l.ID) {
			// deleted but the file write did not land
			continue
		}
		r, onRemote := remoteOrig[l.ID]
		if !onRemote {
			_, wasSynced := synced[l.ID]
			if propagate && wasSynced && !isNewID(res.Repaired, l.ID) {
				// deleted remotely since the last cycle
				continue
			}
			merged = append(merged, l)
			continue
		}

		if l.Equal(r) {
			l.CreatedAt = domain.EarliestTime(l.CreatedAt, r.CreatedAt)
			merged = append(merged, l)
			continue
		}

		_, isDirty := dirty[l.ID]
		winner := resolveWinner(opts.Policy, opts.Mutator, isDirty)
		// a defective row never overwrites a usable one
		switch {
		case l.IsDefective() && !r.IsDefective():
			winner = SideRemote
		case r.IsDefective() && !l.IsDefective():
			winner = SideLocal
		}
		resolved := r
		if winner == SideLocal {
			resolved = l
			if opts.Policy == PolicyMutator {
				resolved = l.FillFrom(r)
			}
		}
		resolved.CreatedAt = domain.EarliestTime(l.CreatedAt, r.CreatedAt)

		res.Conflicts = append(res.Conflicts, Conflict{
			ID:       l.ID,
			Winner:   winner,
			Local:    l,
			Remote:   r,
			Resolved: resolved,
		})
		merged = append(merged, resolved)
	}

	for _, r := range remoteRecs {
		if _, onLocal := localOrig[r.ID]; onLocal {
			continue
		}
		if !isNewID(res.Repaired, r.ID) {
			_, wasSynced := synced[r.ID]
			_, tombstoned := tombs[r.ID]
			// an explicit delete holds under either policy; a missing
			// synced row only counts as deleted when deletes propagate
			if tombstoned || (propagate && wasSynced) {
				continue
			}
		}
		merged = append(merged, r)
	}

	merged, res.Removed = Cleanup(merged)
	res.Merged = merged

	res.ToWriteLocal, res.ToDeleteLocal = diff(merged, localOrig)
	res.ToPushRemote, res.ToDeleteRemote = diff(merged, remoteOrig)

	res.NextState = State{
		Synced:     ids(merged),
		Dirty:      []string{},
		Tombstones: []string{},
		LastSyncAt: opts.State.LastSyncAt,
	}

	return res
}

// reconcileLocalOnly handles a cycle without the remote store. The merged
// view is the repaired local set and every pending change is kept.
func reconcileLocalOnly(res Result, localRecs []domain.Record, localOrig map[string]domain.Record, opts Options) Result {
	merged, removed := Cleanup(localRecs)
	res.Merged = merged
	res.Removed = removed
	res.ToWriteLocal, res.ToDeleteLocal = diff(merged, localOrig)

	next := opts.State
	next.Synced = append([]string(nil), opts.State.Synced...)
	next.Dirty = append([]string(nil), opts.State.Dirty...)
	next.Tombstones = append([]string(nil), opts.State.Tombstones...)
	res.NextState = next

	return res
}

func resolveWinner(policy Policy, mutator Side, dirty bool) Side {
	switch policy {
	case PolicyLocalWins:
		return SideLocal
	case PolicyRemoteWins:
		return SideRemote
	}
	if dirty || mutator == SideLocal {
		return SideLocal
	}
	return SideRemote
}

// indexSide normalizes one side, assigns ids where missing and returns the
// records in input order plus an id index of what the store actually holds.
// Duplicate ids on the local side are given a fresh id so no row is lost;
// on the remote side the first occurrence wins.
func indexSide(in []domain.Record, reassignDuplicates bool, newID func() string) ([]domain.Record, map[string]domain.Record, []string) {
	recs := make([]domain.Record, 0, len(in))
	orig := make(map[string]domain.Record, len(in))
	var repaired []string

	for _, rec := range in {
		rec = rec.Normalize()
		if _, dup := orig[rec.ID]; rec.ID != "" && dup {
			if !reassignDuplicates {
				continue
			}
			rec.ID = ""
		}
		if rec.ID == "" {
			rec.ID = newID()
			repaired = append(repaired, rec.ID)
			recs = append(recs, rec)
			continue
		}
		orig[rec.ID] = rec
		recs = append(recs, rec)
	}

	return recs, orig, repaired
}

// diff returns what a store holding have must change to hold want.
func diff(want []domain.Record, have map[string]domain.Record) ([]domain.Record, []string) {
	var writes []domain.Record
	keep := make(map[string]struct{}, len(want))

	for _, rec := range want {
		keep[rec.ID] = struct{}{}
		if cur, ok := have[rec.ID]; ok && cur.Equal(rec) {
			continue
		}
		writes = append(writes, rec)
	}

	var deletes []string
	for id := range have {
		if _, ok := keep[id]; !ok {
			deletes = append(deletes, id)
		}
	}
	sort.Strings(deletes)

	return writes, deletes
}

func isNewID(repaired []string, id string) bool {
	for _, r := range repaired {
		if r == id {
			return true
		}
	}
	return false
}

func ids(recs []domain.Record) []string {
	out := make([]string, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.ID)
	}
	sort.Strings(out)
	return out
}
