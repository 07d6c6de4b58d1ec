package catalog

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Store holds the process's current eclipse catalog. Reads are
// lock-free; dataset replacement (seed load, refresh, restore) is
// serialized so a half-applied refresh can never be observed.
//
// A Store created with a snapshot path also keeps the catalog durable
// on disk (see snapshot.go), so a restart serves the last known
// catalog before any refetch.
type Store struct {
	dataset atomic.Pointer[Dataset]
	mu      sync.Mutex // serializes Set/Refresh/Restore

	snapshotPath string
	logger       *slog.Logger
}

// NewStore creates a Store. snapshotPath may be empty for a purely
// in-memory store (tests, one-shot tools).
func NewStore(snapshotPath string, logger *slog.Logger) *Store {
	return &Store{
		snapshotPath: snapshotPath,
		logger:       logger,
	}
}

// Get returns the current dataset, or nil if none has been loaded.
func (s *Store) Get() *Dataset {
	return s.dataset.Load()
}

// Set replaces the current dataset in memory. Callers that want the
// replacement persisted use Refresh, or Set followed by SaveSnapshot.
func (s *Store) Set(ds *Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataset.Store(ds)
}

// Find returns the record with the given ID from the current catalog,
// or nil when the ID is unknown or no catalog is loaded.
func (s *Store) Find(id string) *EclipseRecord {
	ds := s.Get()
	if ds == nil {
		return nil
	}
	return ds.Find(id)
}

// InRange returns the records whose date falls within [from, to].
// Either bound may be empty for an open end. Dates are YYYY-MM-DD, so
// lexicographic comparison is chronological comparison.
func (s *Store) InRange(from, to string) []EclipseRecord {
	ds := s.Get()
	if ds == nil {
		return nil
	}

	out := make([]EclipseRecord, 0, len(ds.Eclipses))
	for _, rec := range ds.Eclipses {
		if from != "" && rec.DateYMD < from {
			continue
		}
		if to != "" && rec.DateYMD > to {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// AgeSeconds returns the age of the current dataset in seconds.
// Returns -1 if no dataset is loaded.
func (s *Store) AgeSeconds() float64 {
	ds := s.dataset.Load()
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt).Seconds()
}
