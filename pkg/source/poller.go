// Package source tracks the availability of catalog sources.
//
// The Poller probes every known source in the background and caches the
// outcome. Routing decisions read the cache and never block on a probe:
// a source that has never been probed is assumed available, a source whose
// last probe failed (false, panic or timeout) is not.
package source

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
)

// Lister returns the sources the poller should probe.
type Lister func() []catalog.Source

// Config contains the poller settings.
type Config struct {
	// Interval between polls (default: 1m)
	Interval time.Duration

	// ProbeTimeout bounds a single availability probe (default: 10s)
	ProbeTimeout time.Duration
}

// Status is the cached outcome of the last probe of a source.
type Status struct {
	Available     bool
	LastChecked   time.Time
	LastAvailable time.Time
	ContentTypes  []catalog.ContentType
	Err           error
}

// Poller caches source availability.
//
// Thread Safety: Safe for concurrent use.
type Poller struct {
	list   Lister
	config Config

	mu     sync.RWMutex
	status map[string]Status

	runMu  sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPoller creates a poller over the sources returned by list. The poller
// is not started.
func NewPoller(list Lister, config Config) *Poller {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 10 * time.Second
	}
	if list == nil {
		list = func() []catalog.Source { return nil }
	}
	return &Poller{
		list:   list,
		config: config,
		status: make(map[string]Status),
	}
}

// IsAvailable reports whether src may receive work.
func (p *Poller) IsAvailable(src catalog.Source) bool {
	if isNilSource(src) {
		return false
	}
	st, ok := p.Status(src.ID())
	if !ok {
		return true
	}
	return st.Available
}

// Status returns the cached status of the source with the given id.
func (p *Poller) Status(id string) (Status, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st, ok := p.status[id]
	return st, ok
}

// ContentTypes returns the content types cached at the last successful
// probe, or nil when none is cached.
func (p *Poller) ContentTypes(src catalog.Source) []catalog.ContentType {
	if isNilSource(src) {
		return nil
	}
	st, ok := p.Status(src.ID())
	if !ok {
		return nil
	}
	return append([]catalog.ContentType(nil), st.ContentTypes...)
}

// Forget drops the cached status of a source, typically after it has been
// unregistered.
func (p *Poller) Forget(id string) {
	p.mu.Lock()
	delete(p.status, id)
	p.mu.Unlock()
}

// Poll probes every listed source concurrently and waits for all probes.
func (p *Poller) Poll(ctx context.Context) {
	sources := p.list()

	var wg sync.WaitGroup
	for _, src := range sources {
		if isNilSource(src) {
			continue
		}
		wg.Add(1)
		go func(src catalog.Source) {
			defer wg.Done()
			p.record(src, p.probe(ctx, src))
		}(src)
	}
	wg.Wait()
}

// Check probes a single source now and returns its new status.
func (p *Poller) Check(ctx context.Context, src catalog.Source) Status {
	if isNilSource(src) {
		return Status{}
	}
	return p.record(src, p.probe(ctx, src))
}

type probeResult struct {
	available    bool
	contentTypes []catalog.ContentType
	err          error
}

// probe runs IsAvailable and ContentTypes under the probe timeout. A panic
// or timeout counts as unavailable.
func (p *Poller) probe(ctx context.Context, src catalog.Source) probeResult {
	ctx, cancel := context.WithTimeout(ctx, p.config.ProbeTimeout)
	defer cancel()

	resultCh := make(chan probeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- probeResult{err: fmt.Errorf("probe panicked: %v", r)}
			}
		}()
		if !src.IsAvailable(ctx) {
			resultCh <- probeResult{}
			return
		}
		resultCh <- probeResult{available: true, contentTypes: src.ContentTypes(ctx)}
	}()

	select {
	case res := <-resultCh:
		return res
	case <-ctx.Done():
		return probeResult{err: fmt.Errorf("probe timed out: %w", ctx.Err())}
	}
}

func (p *Poller) record(src catalog.Source, res probeResult) Status {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	prev, seen := p.status[src.ID()]
	st := Status{
		Available:   res.available,
		LastChecked: now,
		Err:         res.err,
	}
	if seen {
		st.LastAvailable = prev.LastAvailable
		st.ContentTypes = prev.ContentTypes
	}
	if res.available {
		st.LastAvailable = now
		st.ContentTypes = res.contentTypes
	}
	p.status[src.ID()] = st

	switch {
	case res.err != nil:
		logger.Warn("Source %s unavailable: %v", src.ID(), res.err)
	case seen && prev.Available != res.available:
		logger.Info("Source %s availability changed: available=%v", src.ID(), res.available)
	}
	return st
}

// Start polls once, then every Interval until Stop is called or ctx ends.
// Calling Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.stopCh != nil {
		return
	}
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	logger.Info("Starting source poller: interval=%s probe_timeout=%s", p.config.Interval, p.config.ProbeTimeout)
	go p.worker(ctx, p.stopCh, p.doneCh)
}

func (p *Poller) worker(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	p.Poll(ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Poll(ctx)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts background polling and waits for the worker to exit.
func (p *Poller) Stop() {
	p.runMu.Lock()
	stopCh, doneCh := p.stopCh, p.doneCh
	p.stopCh, p.doneCh = nil, nil
	p.runMu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
	logger.Info("Source poller stopped")
}

func isNilSource(src catalog.Source) bool {
	if src == nil {
		return true
	}
	v := reflect.ValueOf(src)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
