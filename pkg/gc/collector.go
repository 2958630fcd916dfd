// Package gc removes stored content that no metacard refers to any more.
//
// Orphaned content appears when:
//   - a delete removed the metacard but failed to purge its content
//   - the process crashed between staging and commit, leaving an abandoned
//     transaction behind
//   - content was written to the store outside the catalog
//
// The collector compares the metacard ids that have committed content with
// the ids the catalog provider still knows about, and purges the rest.
package gc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/filter"
)

// ContentIndex is the part of the storage provider the collector needs.
// *storage.Provider implements it.
type ContentIndex interface {
	StoredIDs(ctx context.Context) ([]string, error)
	AbandonedTransactions(ctx context.Context) ([]string, error)
	PurgeContent(ctx context.Context, id string) error
	PurgeTransaction(ctx context.Context, txID string) error
}

// Metrics records collection runs. Nil disables recording.
type Metrics interface {
	ObserveCollection(stats *Stats, err error)
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether the background worker runs (default: false)
	Enabled bool `mapstructure:"enabled"`

	// Interval is how often to collect (default: 24h)
	Interval time.Duration `mapstructure:"interval"`

	// BatchSize is how many ids are checked against the catalog per query
	// (default: 100)
	BatchSize int `mapstructure:"batch_size" validate:"omitempty,gt=0"`

	// DryRun logs what would be purged without purging
	DryRun bool `mapstructure:"dry_run"`
}

// Collector performs periodic garbage collection of stored content.
//
// Thread Safety: Safe for concurrent use. RunNow may be called while the
// background worker is running; runs are serialized.
type Collector struct {
	catalog catalog.Source
	content ContentIndex
	config  Config
	metrics Metrics

	// runMu serializes collection runs.
	runMu sync.Mutex

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCollector creates a collector. Call Start to run it in the background.
//
// Parameters:
//   - source: the local catalog provider, queried for live metacard ids
//   - content: the storage provider holding the content
//   - config: collection settings; zero values get defaults
//   - metrics: optional, may be nil
func NewCollector(source catalog.Source, content ContentIndex, config Config, metrics Metrics) (*Collector, error) {
	if source == nil {
		return nil, fmt.Errorf("collector requires a catalog source")
	}
	if content == nil {
		return nil, fmt.Errorf("collector requires a content index")
	}

	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	return &Collector{
		catalog: source,
		content: content,
		config:  config,
		metrics: metrics,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins background collection. A disabled collector does nothing.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Garbage collection disabled")
		return
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	logger.Info("Starting garbage collector: interval=%s batch_size=%d dry_run=%v",
		c.config.Interval, c.config.BatchSize, c.config.DryRun)

	go c.worker()
}

// Stop stops the worker and waits for an in-progress run to finish, or for
// ctx to expire. Safe to call multiple times.
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return nil
	}

	c.stopOnce.Do(func() {
		logger.Info("Stopping garbage collector...")
		close(c.stopCh)
	})

	select {
	case <-c.doneCh:
		return nil
	case <-ctx.Done():
		logger.Warn("Garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow performs one collection and blocks until it completes.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			go func() {
				select {
				case <-c.stopCh:
					cancel()
				case <-ctx.Done():
				}
			}()
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Garbage collection failed: %v", err)
			} else {
				logger.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect performs a single run:
//  1. List metacard ids with committed content
//  2. Ask the catalog which of them still exist
//  3. Purge the content of the rest
//  4. Purge abandoned transactions
func (c *Collector) collect(ctx context.Context) (stats *Stats, err error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	stats = &Stats{StartTime: time.Now()}
	defer func() {
		stats.EndTime = time.Now()
		if c.metrics != nil {
			c.metrics.ObserveCollection(stats, err)
		}
	}()

	// ========================================================================
	// Phase 1: Stored content
	// ========================================================================

	stored, err := c.content.StoredIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list stored content: %w", err)
	}
	stats.StoredCount = uint64(len(stored))

	// ========================================================================
	// Phase 2: Live metacards
	// ========================================================================

	orphaned := make([]string, 0)
	for i := 0; i < len(stored); i += c.config.BatchSize {
		end := min(i+c.config.BatchSize, len(stored))
		batch := stored[i:end]

		live, err := c.liveIDs(ctx, batch)
		if err != nil {
			return stats, fmt.Errorf("failed to query catalog: %w", err)
		}
		for _, id := range batch {
			if _, ok := live[id]; ok {
				stats.ReferencedCount++
				continue
			}
			orphaned = append(orphaned, id)
		}
	}
	stats.OrphanedCount = uint64(len(orphaned))

	abandoned, err := c.content.AbandonedTransactions(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list abandoned transactions: %w", err)
	}
	stats.AbandonedCount = uint64(len(abandoned))

	if len(orphaned) == 0 && len(abandoned) == 0 {
		logger.Debug("GC: nothing to collect")
		return stats, nil
	}

	if c.config.DryRun {
		logger.Info("GC: DRY RUN - would purge %d orphaned items and %d abandoned transactions",
			len(orphaned), len(abandoned))
		for i, id := range orphaned {
			if i == 10 {
				logger.Info("  ... and %d more", len(orphaned)-10)
				break
			}
			logger.Info("  - %s", id)
		}
		return stats, nil
	}

	// ========================================================================
	// Phase 3: Purge
	// ========================================================================

	for _, id := range orphaned {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := c.content.PurgeContent(ctx, id); err != nil {
			logger.Warn("GC: failed to purge content of %s: %v", id, err)
			stats.FailedCount++
			continue
		}
		stats.DeletedCount++
	}

	for _, txID := range abandoned {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := c.content.PurgeTransaction(ctx, txID); err != nil {
			logger.Warn("GC: failed to purge transaction %s: %v", txID, err)
			stats.FailedCount++
			continue
		}
		stats.PurgedTransactions++
	}

	logger.Info("GC: purged %d orphaned items and %d transactions, %d failed",
		stats.DeletedCount, stats.PurgedTransactions, stats.FailedCount)

	return stats, nil
}

// liveIDs returns the subset of ids the catalog holds a metacard for.
func (c *Collector) liveIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	matches := make([]filter.Filter, 0, len(ids))
	for _, id := range ids {
		matches = append(matches, filter.Equal(catalog.AttrID, id))
	}

	resp, err := c.catalog.Query(ctx, &catalog.QueryRequest{
		Query: catalog.Query{
			Filter:     filter.AnyOf(matches...),
			StartIndex: 1,
			PageSize:   len(ids),
		},
	})
	if err != nil {
		return nil, err
	}

	live := make(map[string]struct{}, len(resp.Results))
	for _, r := range resp.Results {
		if r != nil && r.Metacard != nil {
			live[r.Metacard.ID()] = struct{}{}
		}
	}
	return live, nil
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime          time.Time // When collection started
	EndTime            time.Time // When collection ended
	StoredCount        uint64    // Metacard ids with committed content
	ReferencedCount    uint64    // Stored ids the catalog still knows
	OrphanedCount      uint64    // Stored ids without a metacard
	AbandonedCount     uint64    // Staging areas without an open transaction
	DeletedCount       uint64    // Orphaned ids purged
	PurgedTransactions uint64    // Abandoned transactions purged
	FailedCount        uint64    // Purges that failed
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("stored=%d referenced=%d orphaned=%d abandoned=%d deleted=%d transactions=%d failed=%d duration=%s",
		s.StoredCount, s.ReferencedCount, s.OrphanedCount, s.AbandonedCount,
		s.DeletedCount, s.PurgedTransactions, s.FailedCount, s.Duration())
}
