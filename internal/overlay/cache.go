// Overlay cache: polygon sets are traced once per (catalog, eclipse)
// and served from memory. A background worker builds the full catalog
// on startup and rebuilds it gracefully when the catalog changes —
// reads keep hitting the old overlays until the new set is swapped in
// whole.
package overlay

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/umbra/umbrago/internal/catalog"
	"github.com/umbra/umbrago/internal/metrics"
)

// catalogPollInterval is how often the background worker checks for a
// catalog change.
const catalogPollInterval = 10 * time.Second

// Cache holds traced overlays keyed by eclipse ID. Safe for concurrent
// use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Overlays

	config Config
	store  *catalog.Store
	logger *slog.Logger

	// Tracks the catalog generation the entries were built from.
	currentFetchedAt time.Time

	hits     atomic.Int64
	misses   atomic.Int64
	rebuilds atomic.Int64

	inCutover atomic.Bool
}

// NewCache creates an overlay cache over the given catalog store.
func NewCache(config Config, store *catalog.Store, logger *slog.Logger) *Cache {
	logger.Info("overlay cache initialized",
		"visible_step_hours", config.VisibleStepHours,
		"central_step_hours", config.CentralStepHours,
		"visible_bearings", config.VisibleBearings,
		"central_bearings", config.CentralBearings,
	)

	return &Cache{
		entries: make(map[string]Overlays),
		config:  config,
		store:   store,
		logger:  logger,
	}
}

// Get returns the overlays for an eclipse ID, if built.
func (c *Cache) Get(id string) (Overlays, bool) {
	c.mu.RLock()
	ov, ok := c.entries[id]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
		metrics.IncOverlayCacheHits()
	} else {
		c.misses.Add(1)
		metrics.IncOverlayCacheMisses()
	}
	return ov, ok
}

// Start runs the background build loop: an initial full build once
// catalog data is available, then periodic change detection with
// graceful cutover. Blocks until ctx is cancelled.
func (c *Cache) Start(ctx context.Context) {
	if !c.waitForCatalog(ctx) {
		return
	}

	c.rebuild(ctx)

	ticker := time.NewTicker(catalogPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("overlay cache worker stopped")
			return
		case <-ticker.C:
			if c.catalogChanged() {
				c.rebuild(ctx)
			}
		}
	}
}

// waitForCatalog blocks until a catalog is available in the store,
// checking every second. Returns false if ctx is cancelled.
func (c *Cache) waitForCatalog(ctx context.Context) bool {
	if c.store.Get() != nil {
		return true
	}

	c.logger.Info("overlay cache waiting for catalog data...")
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if c.store.Get() != nil {
				c.logger.Info("catalog available, starting overlay build")
				return true
			}
		}
	}
}

// catalogChanged reports whether the store's catalog differs from the
// one the entries were built against.
func (c *Cache) catalogChanged() bool {
	ds := c.store.Get()
	if ds == nil {
		return false
	}
	return !ds.FetchedAt.Equal(c.currentFetchedAt)
}

// rebuild traces overlays for every record in the current catalog into
// a fresh map, then swaps it in atomically. Reads continue against the
// old entries during the build.
func (c *Cache) rebuild(ctx context.Context) {
	ds := c.store.Get()
	if ds == nil {
		return
	}

	c.inCutover.Store(true)
	metrics.SetOverlayCutoverActive(true)
	defer func() {
		c.inCutover.Store(false)
		metrics.SetOverlayCutoverActive(false)
	}()

	c.logger.Info("overlay build starting", "records", len(ds.Eclipses))
	start := time.Now()

	newEntries := make(map[string]Overlays, len(ds.Eclipses))
	for i := range ds.Eclipses {
		select {
		case <-ctx.Done():
			c.logger.Warn("overlay build cancelled by context")
			return
		default:
		}

		rec := &ds.Eclipses[i]
		buildStart := time.Now()
		ov := Build(rec, c.config)
		metrics.ObserveOverlayBuildDuration(time.Since(buildStart))

		if len(ov.Visible) == 0 && len(ov.Central) == 0 {
			c.logger.Warn("overlay build produced no polygons", "eclipse_id", rec.ID)
			metrics.IncOverlayBuildEmpty()
		}
		newEntries[rec.ID] = ov
	}

	c.mu.Lock()
	c.entries = newEntries
	c.mu.Unlock()
	c.currentFetchedAt = ds.FetchedAt
	c.rebuilds.Add(1)
	metrics.SetOverlayCacheEntries(len(newEntries))

	c.logger.Info("overlay build complete",
		"entries", len(newEntries),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stats returns current cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	count := len(c.entries)
	c.mu.RUnlock()

	return CacheStats{
		Entries:   count,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Rebuilds:  c.rebuilds.Load(),
		InCutover: c.inCutover.Load(),
	}
}

// CacheStats holds cache statistics for the stats endpoint.
type CacheStats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Rebuilds  int64 `json:"rebuilds"`
	InCutover bool  `json:"in_cutover"`
}
