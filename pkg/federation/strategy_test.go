package federation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/filter"
	"github.com/marmos91/dittocat/pkg/plugin"
	"github.com/marmos91/dittocat/pkg/source/sourcetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metacard(id, title string) *catalog.Metacard {
	m := catalog.NewMetacard(nil)
	m.SetID(id)
	m.SetAttribute(catalog.AttrTitle, title)
	return m
}

func titleQuery(start, size int) *catalog.QueryRequest {
	q := catalog.NewQuery(filter.Include)
	q.StartIndex = start
	q.PageSize = size
	q.Sort = []catalog.SortBy{{Attribute: catalog.AttrTitle}}
	return &catalog.QueryRequest{Query: q}
}

func TestSortedStrategy_MergesAndPages(t *testing.T) {
	a := sourcetest.New("a")
	a.Add(metacard("1", "alpha"), metacard("3", "charlie"), metacard("5", "echo"))
	b := sourcetest.New("b")
	b.Add(metacard("2", "bravo"), metacard("4", "delta"))

	s := NewSortedStrategy(Config{})

	resp, err := s.Federate(context.Background(), []catalog.Source{a, b}, titleQuery(2, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(5), resp.Hits)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "bravo", resp.Results[0].Metacard.Title())
	assert.Equal(t, "charlie", resp.Results[1].Metacard.Title())
	assert.Equal(t, "b", resp.Results[0].Metacard.SourceID())
	assert.Empty(t, resp.Details)
}

func TestSortedStrategy_SingleSourcePassesPaging(t *testing.T) {
	a := sourcetest.New("a")
	for i := 0; i < 5; i++ {
		a.Add(metacard(fmt.Sprint(i), fmt.Sprintf("t%d", i)))
	}
	resp, err := NewSortedStrategy(Config{}).Federate(context.Background(), []catalog.Source{a}, titleQuery(4, 10))
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "t3", resp.Results[0].Metacard.Title())
}

func TestSortedStrategy_IsolatesFailures(t *testing.T) {
	good := sourcetest.New("good")
	good.Add(metacard("1", "one"))
	bad := sourcetest.New("bad")
	bad.QueryErr = errors.New("connection refused")
	slow := sourcetest.New("slow")
	slow.Delay = time.Second

	s := NewSortedStrategy(Config{SourceTimeout: 30 * time.Millisecond})
	resp, err := s.Federate(context.Background(), []catalog.Source{good, bad, slow}, titleQuery(1, 10))
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	require.Len(t, resp.Details, 2)
	assert.Equal(t, "bad", resp.Details[0].SourceID)
	assert.Equal(t, "slow", resp.Details[1].SourceID)
	assert.ErrorIs(t, resp.Details[1].Err, context.DeadlineExceeded)
}

type tagging struct{ seen sync.Map }

func (p *tagging) ProcessFederatedQuery(_ context.Context, src catalog.Source, req *catalog.QueryRequest) (*catalog.QueryRequest, error) {
	p.seen.Store(src.ID(), true)
	if src.ID() == "blocked" {
		return nil, plugin.StopProcessing("not allowed")
	}
	return req, nil
}

func (p *tagging) ProcessFederatedResponse(_ context.Context, resp *catalog.QueryResponse) (*catalog.QueryResponse, error) {
	for _, r := range resp.Results {
		r.Metacard.SetAttribute(catalog.AttrDescription, "seen")
	}
	return resp, nil
}

func TestSortedStrategy_Plugins(t *testing.T) {
	open := sourcetest.New("open")
	open.Add(metacard("1", "one"))
	blocked := sourcetest.New("blocked")
	blocked.Add(metacard("2", "two"))

	p := &tagging{}
	s := NewSortedStrategy(Config{}, WithPlugins(
		[]plugin.PreFederatedQueryPlugin{p},
		[]plugin.PostFederatedQueryPlugin{p},
	))

	resp, err := s.Federate(context.Background(), []catalog.Source{open, blocked}, titleQuery(1, 10))
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "seen", resp.Results[0].Metacard.String(catalog.AttrDescription))
	require.Len(t, resp.Details, 1)
	assert.Equal(t, "blocked", resp.Details[0].SourceID)
	assert.Zero(t, blocked.Queries())
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]string
}

func (m *recordingMetrics) ObserveSourceQuery(id, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[id] = outcome
}

func TestSortedStrategy_Metrics(t *testing.T) {
	ok := sourcetest.New("ok")
	bad := sourcetest.New("bad")
	bad.QueryErr = errors.New("boom")

	m := &recordingMetrics{outcomes: map[string]string{}}
	_, err := NewSortedStrategy(Config{}, WithMetrics(m)).Federate(context.Background(), []catalog.Source{ok, bad}, titleQuery(1, 10))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ok": "success", "bad": "error"}, m.outcomes)
}

func TestSortedStrategy_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSortedStrategy(Config{}).Federate(ctx, []catalog.Source{sourcetest.New("a")}, titleQuery(1, 10))
	assert.ErrorIs(t, err, context.Canceled)
}

// stuckSource ignores its context and only answers once released.
type stuckSource struct {
	*sourcetest.Source
	release chan struct{}
}

func (s *stuckSource) Query(context.Context, *catalog.QueryRequest) (*catalog.QueryResponse, error) {
	<-s.release
	return nil, errors.New("released")
}

func TestSortedStrategy_DeadlineKeepsFinishedResults(t *testing.T) {
	fast := sourcetest.New("fast")
	fast.Add(metacard("1", "one"))
	slow := sourcetest.New("slow")
	slow.Delay = time.Second
	stuck := &stuckSource{Source: sourcetest.New("stuck"), release: make(chan struct{})}
	defer close(stuck.release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	resp, err := NewSortedStrategy(Config{}).Federate(ctx, []catalog.Source{fast, slow, stuck}, titleQuery(1, 10))
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "one", resp.Results[0].Metacard.Title())
	assert.Equal(t, int64(1), resp.Hits)

	require.Len(t, resp.Details, 2)
	assert.Equal(t, "slow", resp.Details[0].SourceID)
	assert.ErrorIs(t, resp.Details[0].Err, context.DeadlineExceeded)
	assert.Equal(t, "stuck", resp.Details[1].SourceID)
	assert.ErrorIs(t, resp.Details[1].Err, context.DeadlineExceeded)
}
