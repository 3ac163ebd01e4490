package pipeline

import (
	"sync"

	"github.com/wegman-software/osm2rdf-go/internal/ttl"
)

// StatementKind tells the writer what to do with a statement
type StatementKind uint8

const (
	// Skip marks an element that produced no output
	Skip StatementKind = iota
	// Delete marks an element flagged as deleted in the input
	Delete
	// Create carries a rendered element block
	Create
)

// Statement is the unit handed from workers to the writer
type Statement struct {
	Kind      StatementKind
	Elem      ttl.Element
	ID        int64
	Timestamp int64  // milliseconds since the Unix epoch, Create only
	Value     []byte // rendered block body, Create only
}

// Stats holds per-worker element counters
type Stats struct {
	AddedNodes       int64
	AddedWays        int64
	AddedRelations   int64
	SkippedNodes     int64
	DeletedNodes     int64
	DeletedWays      int64
	DeletedRelations int64
	Blocks           int64
}

// Combine adds other into s. Combine is commutative and associative.
func (s *Stats) Combine(other Stats) {
	s.AddedNodes += other.AddedNodes
	s.AddedWays += other.AddedWays
	s.AddedRelations += other.AddedRelations
	s.SkippedNodes += other.SkippedNodes
	s.DeletedNodes += other.DeletedNodes
	s.DeletedWays += other.DeletedWays
	s.DeletedRelations += other.DeletedRelations
	s.Blocks += other.Blocks
}

// Elements returns the number of elements accounted for
func (s Stats) Elements() int64 {
	return s.AddedNodes + s.AddedWays + s.AddedRelations +
		s.SkippedNodes +
		s.DeletedNodes + s.DeletedWays + s.DeletedRelations
}

// Totals accumulates worker stats across the run
type Totals struct {
	mu    sync.Mutex
	stats Stats
}

// Merge folds one worker's stats into the total
func (t *Totals) Merge(s Stats) {
	t.mu.Lock()
	t.stats.Combine(s)
	t.mu.Unlock()
}

// Snapshot returns a copy of the accumulated stats
func (t *Totals) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// WriterStats summarises what the writer produced
type WriterStats struct {
	Files        int   // data files plus the trailer
	Bytes        int64 // uncompressed bytes written
	Deletes      int64
	MaxTimestamp int64
}
