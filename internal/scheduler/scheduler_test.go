package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JAMBAMSF/jagent/internal/market"
	"github.com/JAMBAMSF/jagent/internal/metrics"
)

type fakePruner struct {
	n     int
	err   error
	calls int
}

func (p *fakePruner) Prune(context.Context) (int, error) {
	p.calls++
	return p.n, p.err
}

type fakeSweeper struct{ calls int }

func (s *fakeSweeper) Sweep() int {
	s.calls++
	return 3
}

func TestRegister(t *testing.T) {
	s := New(context.Background())
	require.NoError(t, s.Register(Config{}))
	assert.Equal(t, 0, s.Jobs(), "no collaborators, no jobs")

	s.AddPruner(nil)
	s.AddPruner(&fakePruner{})
	s.SetSweeper(&fakeSweeper{})
	require.NoError(t, s.Register(Config{}))
	assert.Equal(t, 2, s.Jobs())
}

func TestRegister_InvalidSpec(t *testing.T) {
	s := New(context.Background())
	s.AddPruner(&fakePruner{})
	err := s.Register(Config{CachePrune: "every hour"})
	assert.ErrorContains(t, err, JobCachePrune)
}

func TestPruneCaches(t *testing.T) {
	ok := &fakePruner{n: 2}
	bad := &fakePruner{err: errors.New("db down")}
	mem := market.NewMemoryPriceCache(time.Hour)

	s := New(context.Background())
	s.AddPruner(ok)
	s.AddPruner(bad)
	s.AddPruner(mem)

	before := testutil.ToFloat64(metrics.JobRuns.WithLabelValues(JobCachePrune, "failure"))
	s.PruneCaches()

	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.JobRuns.WithLabelValues(JobCachePrune, "failure")))
}

func TestJobsSkipAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakePruner{}
	sw := &fakeSweeper{}

	s := New(ctx)
	s.AddPruner(p)
	s.SetSweeper(sw)

	s.SweepDedupe()
	assert.Equal(t, 1, sw.calls)

	cancel()
	s.PruneCaches()
	s.SweepDedupe()
	assert.Equal(t, 0, p.calls)
	assert.Equal(t, 1, sw.calls)
}

func TestStartStop(t *testing.T) {
	s := New(context.Background())
	s.SetSweeper(&fakeSweeper{})
	require.NoError(t, s.Register(Config{DedupeSweep: "@every 1h"}))
	s.Start()
	s.Stop()
}
