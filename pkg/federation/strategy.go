// Package federation fans a query out to several sources and merges the
// answers into a single page.
package federation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/internal/ratelimiter"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/plugin"
)

// Strategy dispatches a query to a resolved set of sources and merges the
// responses. Per-source failures belong in the response details; an error
// means the whole query failed.
type Strategy interface {
	Federate(ctx context.Context, sources []catalog.Source, req *catalog.QueryRequest) (*catalog.QueryResponse, error)
}

// Metrics receives one observation per source queried.
type Metrics interface {
	ObserveSourceQuery(sourceID, outcome string, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveSourceQuery(string, string, time.Duration) {}

// Config contains the sorted strategy settings.
type Config struct {
	// MaxConcurrency bounds the sources queried at once (default: 8)
	MaxConcurrency int

	// SourceTimeout bounds a single source query (default: 30s)
	SourceTimeout time.Duration
}

// SortedStrategy queries sources concurrently, merges every result, sorts
// the union by the query's sort policy and returns the requested page.
//
// With more than one source, each source is asked for the first
// start+pageSize-1 results so the merged page is correct whatever the
// distribution of hits.
type SortedStrategy struct {
	config  Config
	limiter *ratelimiter.Group
	pre     []plugin.PreFederatedQueryPlugin
	post    []plugin.PostFederatedQueryPlugin
	metrics Metrics
}

type Option func(*SortedStrategy)

// WithRateLimiter throttles queries per source id.
func WithRateLimiter(g *ratelimiter.Group) Option {
	return func(s *SortedStrategy) { s.limiter = g }
}

// WithPlugins sets the per-source plugin chains.
func WithPlugins(pre []plugin.PreFederatedQueryPlugin, post []plugin.PostFederatedQueryPlugin) Option {
	return func(s *SortedStrategy) {
		s.pre = pre
		s.post = post
	}
}

// WithMetrics records per-source outcomes. Nil keeps the no-op.
func WithMetrics(m Metrics) Option {
	return func(s *SortedStrategy) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewSortedStrategy creates the default strategy.
func NewSortedStrategy(config Config, opts ...Option) *SortedStrategy {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 8
	}
	if config.SourceTimeout <= 0 {
		config.SourceTimeout = 30 * time.Second
	}
	s := &SortedStrategy{config: config, metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type sourceOutcome struct {
	resp    *catalog.QueryResponse
	details []catalog.ProcessingDetails
}

// Federate implements Strategy.
func (s *SortedStrategy) Federate(ctx context.Context, sources []catalog.Source, req *catalog.QueryRequest) (*catalog.QueryResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil query request")
	}
	query := req.Query.Normalized()

	// ========================================================================
	// Step 1: Build the per-source query
	// ========================================================================

	perSource := query
	if len(sources) > 1 {
		perSource.StartIndex = 1
		perSource.PageSize = query.StartIndex + query.PageSize - 1
	}

	// ========================================================================
	// Step 2: Dispatch with bounded concurrency
	// ========================================================================

	type indexed struct {
		i   int
		out sourceOutcome
	}
	results := make(chan indexed, len(sources))
	sem := make(chan struct{}, s.config.MaxConcurrency)

	for i, src := range sources {
		go func(i int, src catalog.Source) {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- indexed{i, failed(src, ctx.Err())}
				return
			}
			defer func() { <-sem }()

			sourceReq := *req
			sourceReq.Query = perSource
			results <- indexed{i, s.querySource(ctx, src, &sourceReq)}
		}(i, src)
	}

	// Sources still running when the deadline passes are reported in the
	// details; whatever finished is merged.
	outcomes := make([]sourceOutcome, len(sources))
	finished := make([]bool, len(sources))
	remaining := len(sources)
collect:
	for remaining > 0 {
		select {
		case r := <-results:
			outcomes[r.i] = r.out
			finished[r.i] = true
			remaining--
		case <-ctx.Done():
			break collect
		}
	}
	for drained := false; remaining > 0 && !drained; {
		select {
		case r := <-results:
			outcomes[r.i] = r.out
			finished[r.i] = true
			remaining--
		default:
			drained = true
		}
	}

	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("federated query interrupted: %w", err)
	}
	if remaining > 0 {
		for i, src := range sources {
			if !finished[i] {
				logger.Warn("Federated query to %s did not finish before the deadline", src.ID())
				outcomes[i] = failed(src, ctx.Err())
			}
		}
	}

	// ========================================================================
	// Step 3: Merge, sort, page
	// ========================================================================

	merged := make([]*catalog.Result, 0)
	var details []catalog.ProcessingDetails
	var hits int64

	for _, out := range outcomes {
		details = catalog.MergeDetails(details, out.details)
		if out.resp == nil {
			continue
		}
		for _, r := range out.resp.Results {
			if r != nil && r.Metacard != nil {
				merged = append(merged, r)
			}
		}
		hits += out.resp.Hits
		details = catalog.MergeDetails(details, out.resp.Details)
	}

	catalog.SortResults(merged, query.Sort)

	page := merged
	if len(sources) > 1 {
		page = catalog.Page(merged, query.StartIndex, query.PageSize)
	} else if len(page) > query.PageSize {
		page = page[:query.PageSize]
	}

	return &catalog.QueryResponse{
		Request:    req,
		Results:    page,
		Hits:       hits,
		Properties: req.Properties,
		Details:    details,
	}, nil
}

func (s *SortedStrategy) querySource(ctx context.Context, src catalog.Source, req *catalog.QueryRequest) (out sourceOutcome) {
	start := time.Now()
	outcome := "success"
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Source %s panicked during query: %v", src.ID(), r)
			out = failed(src, fmt.Errorf("source panicked: %v", r))
			outcome = "error"
		}
		s.metrics.ObserveSourceQuery(src.ID(), outcome, time.Since(start))
	}()

	req, err := plugin.RunSoftChain(ctx, "pre-federated-query", s.pre, req,
		func(ctx context.Context, p plugin.PreFederatedQueryPlugin, r *catalog.QueryRequest) (*catalog.QueryRequest, error) {
			return p.ProcessFederatedQuery(ctx, src, r)
		})
	if err != nil {
		outcome = "rejected"
		return failed(src, err)
	}

	if err := s.limiter.Wait(ctx, src.ID()); err != nil {
		outcome = "throttled"
		return failed(src, err)
	}

	timeout := s.config.SourceTimeout
	if req.Query.Timeout > 0 && req.Query.Timeout < timeout {
		timeout = req.Query.Timeout
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := src.Query(qctx, req)
	if err != nil {
		outcome = "error"
		logger.Warn("Federated query to %s failed: %v", src.ID(), err)
		return failed(src, err)
	}
	if resp == nil {
		outcome = "error"
		return failed(src, fmt.Errorf("source returned no response"))
	}

	resp, err = plugin.RunSoftChain(ctx, "post-federated-query", s.post, resp,
		func(ctx context.Context, p plugin.PostFederatedQueryPlugin, r *catalog.QueryResponse) (*catalog.QueryResponse, error) {
			return p.ProcessFederatedResponse(ctx, r)
		})
	if err != nil {
		outcome = "rejected"
		return failed(src, err)
	}

	return sourceOutcome{resp: resp}
}

func failed(src catalog.Source, err error) sourceOutcome {
	return sourceOutcome{details: []catalog.ProcessingDetails{{
		SourceID: src.ID(),
		Err:      err,
		Message:  "query failed",
	}}}
}
