// Package warroom holds the client-side session state for one incident:
// the timeline, the human execution queue, the pull scheduler and the
// controller that ties them to the push and REST collaborators.
package warroom

import (
	orderedmap "github.com/elliotchance/orderedmap/v3"

	"github.com/warboard/warboard/internal/api"
)

// TimelineStore is the de-duplicated, insertion-ordered set of timeline
// entries for one incident. Push and pull both feed it; identity is the
// server row id, so the two paths converge to the same final set no
// matter the arrival order.
type TimelineStore struct {
	entries *orderedmap.OrderedMap[int64, api.TimelineEntry]
	maxID   int64
}

// NewTimelineStore creates an empty store.
func NewTimelineStore() *TimelineStore {
	return &TimelineStore{entries: orderedmap.NewOrderedMap[int64, api.TimelineEntry]()}
}

// Ingest appends the entry if its row id is new. Returns false for
// duplicates and for entries without a row id; those are dropped, never
// queued. Membership is an O(1) map test.
func (s *TimelineStore) Ingest(entry api.TimelineEntry) bool {
	if entry.DBID == 0 {
		return false
	}
	if s.entries.Has(entry.DBID) {
		return false
	}
	s.entries.Set(entry.DBID, entry)
	if entry.DBID > s.maxID {
		s.maxID = entry.DBID
	}
	return true
}

// NextPullCursor returns the highest row id stored, 0 when empty. Pull
// requests use it to fetch only newer entries.
func (s *TimelineStore) NextPullCursor() int64 {
	return s.maxID
}

// Entries returns the stored entries in insertion order. Insertion order
// is append order, which can differ from row-id order when push outruns
// a concurrent pull.
func (s *TimelineStore) Entries() []api.TimelineEntry {
	out := make([]api.TimelineEntry, 0, s.entries.Len())
	for _, entry := range s.entries.AllFromFront() {
		out = append(out, entry)
	}
	return out
}

// Len returns the number of stored entries.
func (s *TimelineStore) Len() int {
	return s.entries.Len()
}

// Reset drops all entries. Used when the session switches incidents.
func (s *TimelineStore) Reset() {
	s.entries = orderedmap.NewOrderedMap[int64, api.TimelineEntry]()
	s.maxID = 0
}
