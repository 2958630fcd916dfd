package source

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/source/sourcetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listOf(sources ...catalog.Source) Lister {
	return func() []catalog.Source { return sources }
}

func TestPoller_IsAvailable(t *testing.T) {
	up := sourcetest.New("up", "a")
	down := sourcetest.New("down")
	down.SetAvailable(false)
	boom := sourcetest.New("boom")
	boom.PanicOnProbe = true
	fresh := sourcetest.New("fresh")

	p := NewPoller(listOf(up, down, boom), Config{ProbeTimeout: time.Second})

	t.Run("NilSourceIsUnavailable", func(t *testing.T) {
		assert.False(t, p.IsAvailable(nil))
		var typed *sourcetest.Source
		assert.False(t, p.IsAvailable(typed))
	})

	t.Run("UnknownSourceIsAvailable", func(t *testing.T) {
		assert.True(t, p.IsAvailable(fresh))
		assert.True(t, p.IsAvailable(down), "not probed yet")
	})

	p.Poll(context.Background())

	t.Run("CachedProbeOutcome", func(t *testing.T) {
		assert.True(t, p.IsAvailable(up))
		assert.False(t, p.IsAvailable(down))
		assert.False(t, p.IsAvailable(boom), "panicking probe counts as unavailable")
		assert.True(t, p.IsAvailable(fresh), "never listed")
	})

	t.Run("ContentTypesCached", func(t *testing.T) {
		types := p.ContentTypes(up)
		require.Len(t, types, 1)
		assert.Equal(t, "a", types[0].Name)
		assert.Nil(t, p.ContentTypes(down))
	})

	t.Run("StatusRecordsError", func(t *testing.T) {
		st, ok := p.Status("boom")
		require.True(t, ok)
		assert.Error(t, st.Err)
		assert.True(t, st.LastAvailable.IsZero())
	})

	t.Run("RecoveryKeepsLastAvailable", func(t *testing.T) {
		down.SetAvailable(true)
		st := p.Check(context.Background(), down)
		assert.True(t, st.Available)
		assert.False(t, st.LastAvailable.IsZero())

		down.SetAvailable(false)
		st = p.Check(context.Background(), down)
		assert.False(t, st.Available)
		assert.False(t, st.LastAvailable.IsZero())
	})

	t.Run("Forget", func(t *testing.T) {
		p.Forget("down")
		assert.True(t, p.IsAvailable(down))
	})
}

type slowSource struct {
	*sourcetest.Source
}

func (s slowSource) IsAvailable(context.Context) bool {
	time.Sleep(300 * time.Millisecond)
	return true
}

func TestPoller_ProbeTimeout(t *testing.T) {
	slow := slowSource{sourcetest.New("slow")}
	p := NewPoller(listOf(slow), Config{ProbeTimeout: 20 * time.Millisecond})

	p.Poll(context.Background())

	assert.False(t, p.IsAvailable(slow))
	st, ok := p.Status("slow")
	require.True(t, ok)
	assert.ErrorIs(t, st.Err, context.DeadlineExceeded)
}

func TestPoller_StartStop(t *testing.T) {
	down := sourcetest.New("down")
	down.SetAvailable(false)
	p := NewPoller(listOf(down), Config{Interval: 10 * time.Millisecond, ProbeTimeout: time.Second})

	p.Start(context.Background())
	p.Start(context.Background())

	require.Eventually(t, func() bool {
		return !p.IsAvailable(down)
	}, time.Second, 5*time.Millisecond)

	down.SetAvailable(true)
	require.Eventually(t, func() bool {
		return p.IsAvailable(down)
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
}
