package reconcile

import (
	"sort"
	"time"

	"github.com/dvloznov/expense-ledger/internal/domain"
)

// Policy selects how a record that differs between the stores is resolved.
type Policy string

const (
	// PolicyMutator lets the side that produced the edit win, with unset
	// local fields filled from the remote copy. Without a mutator the
	// remote copy wins.
	PolicyMutator Policy = "mutator"
	// PolicyLocalWins always keeps the local copy.
	PolicyLocalWins Policy = "local"
	// PolicyRemoteWins always keeps the remote copy.
	PolicyRemoteWins Policy = "remote"
)

// DeletePolicy selects whether a record missing from one store is treated
// as deleted there.
type DeletePolicy string

const (
	// DeletePropagate removes a record from both stores once it disappears
	// from one store after having been synced, or once it is tombstoned.
	DeletePropagate DeletePolicy = "propagate"
	// DeleteKeepUnion only honors tombstones. A record that merely went
	// missing from one store is copied back from the other.
	DeleteKeepUnion DeletePolicy = "keep"
)

// Side identifies one of the two stores.
type Side string

const (
	SideNone   Side = ""
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// ParsePolicy parses a configured conflict policy. Empty means PolicyMutator.
func ParsePolicy(s string) (Policy, bool) {
	switch Policy(s) {
	case "", PolicyMutator:
		return PolicyMutator, true
	case PolicyLocalWins, PolicyRemoteWins:
		return Policy(s), true
	}
	return "", false
}

// ParseDeletePolicy parses a configured delete policy. Empty means DeletePropagate.
func ParseDeletePolicy(s string) (DeletePolicy, bool) {
	switch DeletePolicy(s) {
	case "", DeletePropagate:
		return DeletePropagate, true
	case DeleteKeepUnion:
		return DeleteKeepUnion, true
	}
	return "", false
}

// State is what the engine remembers between cycles.
type State struct {
	// Synced holds ids present in both stores after the last successful cycle.
	Synced []string `json:"synced"`
	// Dirty holds ids edited locally whose remote push is not yet confirmed.
	Dirty []string `json:"dirty"`
	// Tombstones holds ids deleted locally whose remote deletion is pending.
	Tombstones []string `json:"tombstones"`
	// LastSyncAt is when the last successful cycle finished.
	LastSyncAt time.Time `json:"last_sync_at,omitempty"`
}

// MarkDirty records a local edit of id.
func (s *State) MarkDirty(id string) {
	s.Dirty = addID(s.Dirty, id)
}

// MarkDeleted records a local deletion of id.
func (s *State) MarkDeleted(id string) {
	s.Dirty = removeID(s.Dirty, id)
	s.Tombstones = addID(s.Tombstones, id)
}

// Pending reports whether local changes are waiting to reach the remote store.
func (s State) Pending() int {
	return len(s.Dirty) + len(s.Tombstones)
}

// Options configures one Reconcile call.
type Options struct {
	Policy  Policy
	Deletes DeletePolicy
	// Mutator is the side whose change triggered this cycle.
	Mutator Side
	State   State
	// RemoteUnavailable makes the cycle local-only: nothing is scheduled
	// for the remote store and pending changes are kept.
	RemoteUnavailable bool
	// NewID generates ids for records that lack one. Defaults to uuid.
	NewID func() string
}

// Conflict describes one record that differed between the stores.
// It is informational; the merged view already holds the resolution.
type Conflict struct {
	ID       string
	Winner   Side
	Local    domain.Record
	Remote   domain.Record
	Resolved domain.Record
}

// Result is the outcome of one reconciliation.
type Result struct {
	// Merged is the consistent view both stores should hold after the cycle.
	Merged []domain.Record

	ToPushRemote   []domain.Record
	ToWriteLocal   []domain.Record
	ToDeleteRemote []string
	ToDeleteLocal  []string

	Conflicts []Conflict
	// Removed holds defective rows dropped by cleanup.
	Removed []domain.Record
	// Repaired holds ids assigned to records that arrived without one.
	Repaired []string

	NextState State
}

// LocalChanged reports whether the local store needs rewriting.
func (r Result) LocalChanged() bool {
	return len(r.ToWriteLocal) > 0 || len(r.ToDeleteLocal) > 0
}

// RemoteChanged reports whether the remote store needs writes.
func (r Result) RemoteChanged() bool {
	return len(r.ToPushRemote) > 0 || len(r.ToDeleteRemote) > 0
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func addID(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	out := append(append([]string(nil), ids...), id)
	sort.Strings(out)
	return out
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
