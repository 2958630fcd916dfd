// Package monitor implements an ingest adapter that watches a directory and
// feeds the files appearing in it to the catalog through CreateStorage.
//
// Files are ingested once they have been quiet for the settle period, so a
// file still being written is not picked up half-way. What happens to a
// file after ingest depends on the strategy:
//   - move: the file is moved to the processed directory
//   - delete: the file is removed
//   - in_place: the file stays; later writes update the same metacard
//     through UpdateStorage
//
// Only the top level of the directory is watched. Hidden files are ignored.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/adapter"
	"github.com/marmos91/dittocat/pkg/catalog"
)

// Strategy decides what happens to a file after it has been ingested.
type Strategy string

const (
	StrategyMove    Strategy = "move"
	StrategyDelete  Strategy = "delete"
	StrategyInPlace Strategy = "in_place"
)

// DefaultSettle is how long a file must stay unchanged before ingest.
const DefaultSettle = 500 * time.Millisecond

// Config configures one monitored directory.
type Config struct {
	// Directory is the watched directory. Created if missing.
	Directory string `mapstructure:"directory" validate:"required"`

	// Strategy defaults to move.
	Strategy Strategy `mapstructure:"strategy" validate:"omitempty,oneof=move delete in_place"`

	// ProcessedDir receives ingested files with the move strategy.
	// Default: <Directory>/.processed
	ProcessedDir string `mapstructure:"processed_dir"`

	// Settle is the quiet period before a file is ingested.
	Settle time.Duration `mapstructure:"settle"`

	// Attributes are applied as attribute overrides to every metacard
	// created from this directory.
	Attributes map[string][]string `mapstructure:"attributes"`

	// StoreIDs routes ingested metacards to catalog stores.
	StoreIDs []string `mapstructure:"store_ids"`
}

func (c *Config) applyDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyMove
	}
	if c.ProcessedDir == "" {
		c.ProcessedDir = filepath.Join(c.Directory, ".processed")
	}
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
}

// Monitor is a directory-watching adapter.Adapter.
//
// Thread safety: Serve runs a single event loop; Stop may be called from
// any goroutine.
type Monitor struct {
	config   Config
	ingester adapter.Ingester

	shutdownOnce sync.Once
	shutdown     chan struct{}

	// done is closed when Serve returns.
	done chan struct{}

	mu sync.Mutex
	// known maps file paths to the metacard ids they produced. Only
	// populated by the in_place strategy.
	known map[string]string
}

// New creates a monitor for the configured directory. Serve starts it.
func New(config Config) (*Monitor, error) {
	if config.Directory == "" {
		return nil, errors.New("monitor directory is required")
	}
	config.applyDefaults()

	switch config.Strategy {
	case StrategyMove, StrategyDelete, StrategyInPlace:
	default:
		return nil, fmt.Errorf("unknown monitor strategy %q", config.Strategy)
	}

	return &Monitor{
		config:   config,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		known:    make(map[string]string),
	}, nil
}

func (m *Monitor) SetIngester(ing adapter.Ingester) {
	m.ingester = ing
}

func (m *Monitor) Name() string {
	return "monitor:" + m.config.Directory
}

// Serve watches the directory until ctx is cancelled or Stop is called.
// Files already present are ingested first.
func (m *Monitor) Serve(ctx context.Context) error {
	defer close(m.done)

	if m.ingester == nil {
		return errors.New("monitor has no ingester")
	}

	// ========================================================================
	// Step 1: Prepare directories and the watcher
	// ========================================================================

	if err := os.MkdirAll(m.config.Directory, 0o755); err != nil {
		return fmt.Errorf("create monitored directory: %w", err)
	}
	if m.config.Strategy == StrategyMove {
		if err := os.MkdirAll(m.config.ProcessedDir, 0o755); err != nil {
			return fmt.Errorf("create processed directory: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.config.Directory); err != nil {
		return fmt.Errorf("watch %s: %w", m.config.Directory, err)
	}

	logger.Info("Monitoring %s (strategy=%s)", m.config.Directory, m.config.Strategy)

	// ========================================================================
	// Step 2: Queue existing files
	// ========================================================================

	pending := make(map[string]time.Time)
	entries, err := os.ReadDir(m.config.Directory)
	if err != nil {
		return fmt.Errorf("scan %s: %w", m.config.Directory, err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() && !hidden(e.Name()) {
			pending[filepath.Join(m.config.Directory, e.Name())] = time.Time{}
		}
	}

	// ========================================================================
	// Step 3: Event loop
	// ========================================================================

	tick := m.config.Settle / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Monitor %s stopping: %v", m.config.Directory, ctx.Err())
			return ctx.Err()

		case <-m.shutdown:
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if hidden(filepath.Base(ev.Name)) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				pending[ev.Name] = time.Now()
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				delete(pending, ev.Name)
				m.forget(ev.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Monitor %s watcher error: %v", m.config.Directory, err)

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < m.config.Settle {
					continue
				}
				delete(pending, path)
				if err := m.process(ctx, path); err != nil {
					logger.Error("Monitor failed to ingest %s: %v", path, err)
				}
			}
		}
	}
}

// Stop ends Serve and waits for it to return or ctx to expire. Safe to
// call more than once.
func (m *Monitor) Stop(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		close(m.shutdown)
	})

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// process ingests one settled file and applies the strategy.
func (m *Monitor) process(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	item := &catalog.ContentItem{
		Filename: filepath.Base(path),
		Size:     info.Size(),
		Source:   catalog.FileSource(path),
	}

	if id, ok := m.lookup(path); ok {
		item.ID = id
		req := catalog.NewUpdateStorageRequest(item)
		req.StoreIDs = m.config.StoreIDs
		if _, err := m.ingester.UpdateStorage(ctx, req); err != nil {
			return fmt.Errorf("update storage: %w", err)
		}
		logger.Info("Monitor updated %s from %s", id, path)
		return nil
	}

	req := catalog.NewCreateStorageRequest(item)
	req.StoreIDs = m.config.StoreIDs
	req.Properties.AttributeOverrides = m.config.Attributes
	resp, err := m.ingester.CreateStorage(ctx, req)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	if len(resp.Created) == 0 {
		return fmt.Errorf("no metacard created for %s", path)
	}
	id := resp.Created[0].ID()
	logger.Info("Monitor ingested %s as %s", path, id)

	switch m.config.Strategy {
	case StrategyMove:
		dst, err := uniquePath(m.config.ProcessedDir, filepath.Base(path))
		if err != nil {
			return err
		}
		if err := os.Rename(path, dst); err != nil {
			return fmt.Errorf("move to processed: %w", err)
		}
	case StrategyDelete:
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove ingested file: %w", err)
		}
	case StrategyInPlace:
		m.mu.Lock()
		m.known[path] = id
		m.mu.Unlock()
	}
	return nil
}

func (m *Monitor) lookup(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.known[path]
	return id, ok
}

func (m *Monitor) forget(path string) {
	m.mu.Lock()
	delete(m.known, path)
	m.mu.Unlock()
}

// Known returns the metacard id ingested from path by the in_place
// strategy.
func (m *Monitor) Known(path string) (string, bool) {
	return m.lookup(path)
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// uniquePath returns dir/name, or dir/<stem>-<n><ext> if that exists.
func uniquePath(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; n < 1000; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
	}
	return "", fmt.Errorf("no free name for %s in %s", name, dir)
}

var _ adapter.Adapter = (*Monitor)(nil)
