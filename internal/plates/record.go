// Package plates holds the license plate record model, the deduplicated
// in-memory store, and the streaming XML scanner that feeds it.
package plates

import (
	"sort"
	"time"
)

// Record is one observed license plate.
type Record struct {
	Plate      string
	ObservedAt time.Time
}

// Store maps plate identifiers to their most recent Record. Last write wins;
// no history is retained. Not safe for concurrent use; the pipeline mutates
// it from a single goroutine.
type Store struct {
	records map[string]Record
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]Record)}
}

// Insert adds r, replacing any existing record with the same plate. The
// caller guarantees a non-empty plate.
func (s *Store) Insert(r Record) {
	s.records[r.Plate] = r
}

// Len returns the number of distinct plates.
func (s *Store) Len() int { return len(s.records) }

// Get returns the record for plate, if present.
func (s *Store) Get(plate string) (Record, bool) {
	r, ok := s.records[plate]
	return r, ok
}

// Records returns all records ordered by plate ascending.
func (s *Store) Records() []Record {
	out := make([]Record, 0, len(s.records))
	for _, p := range s.Plates() {
		out = append(out, s.records[p])
	}
	return out
}

// Plates returns all plate identifiers in ascending lexicographic order.
func (s *Store) Plates() []string {
	out := make([]string, 0, len(s.records))
	for p := range s.records {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
