package analyze_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-peak-window/internal/analyze"
	"go-peak-window/internal/batch"
	"go-peak-window/internal/cache"
	"go-peak-window/internal/errs"
	"go-peak-window/internal/insight"
	"go-peak-window/internal/metrics"
	"go-peak-window/internal/model"
	"go-peak-window/internal/source"
)

// sunday14 为 2024-01-07（周日）14:00 UTC。
const sunday14 = int64(1704636000)

func twoItems() []model.RawItem {
	return []model.RawItem{
		{CreatedAt: sunday14, Score: 10, Comments: 5},
		{CreatedAt: sunday14 + 60, Score: 20},
	}
}

type countingSource struct {
	calls atomic.Int32
	items map[string][]model.RawItem
	err   map[string]error
}

func (s *countingSource) FetchPage(ctx context.Context, subject, _ string) (model.Page, error) {
	s.calls.Add(1)
	if err := s.err[subject]; err != nil {
		return model.Page{}, err
	}
	return model.Page{Items: s.items[subject]}, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ model.AnalysisResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return errors.New("sink offline")
}

func (p *recordingPublisher) Close() error { return nil }

func newPipeline(t *testing.T, deps analyze.Deps) *analyze.Pipeline {
	t.Helper()
	if deps.Cache == nil {
		deps.Cache = cache.NewMemory(cache.MemoryOptions{})
	}
	p, err := analyze.NewPipeline(deps, analyze.Options{
		FetchTimeout:   time.Second,
		InsightTimeout: time.Second,
		Clock:          func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return p
}

func TestRun_WorkedExample(t *testing.T) {
	src := &countingSource{items: map[string][]model.RawItem{"golang": twoItems()}}
	var req insight.Request
	p := newPipeline(t, analyze.Deps{
		Source: src,
		Insight: insight.Func(func(_ context.Context, r insight.Request) (string, error) {
			req = r
			return "Sunday afternoons.", nil
		}),
	})

	res, err := p.Run(context.Background(), "  GoLang ", 30)
	require.NoError(t, err)
	require.Len(t, res.Heatmap, 1)
	assert.InDelta(t, 17.5, res.Heatmap[0].AverageScore, 1e-9)
	require.Len(t, res.BestTimes, 1)
	assert.Equal(t, "Sunday 2PM", res.BestTimes[0].FormattedTime)
	assert.Equal(t, "Sunday afternoons.", res.Insight)
	assert.Equal(t, 2, res.ItemCount)

	assert.Equal(t, "golang", req.Subject)
	assert.Equal(t, 30, req.WindowDays)
	assert.Len(t, req.Top, 1)
	assert.Len(t, req.Summary, 1)
}

func TestRun_CacheHitSkipsFetch(t *testing.T) {
	src := &countingSource{items: map[string][]model.RawItem{"golang": twoItems()}}
	reg := prometheus.NewRegistry()
	p := newPipeline(t, analyze.Deps{Source: src, Metrics: metrics.New(reg)})

	first, err := p.Run(context.Background(), "golang", 30)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), "GOLANG", 30)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), src.calls.Load())

	_, err = p.Run(context.Background(), "golang", 7)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load(), "different window is a different key")

	n, err := testutil.GatherAndCount(reg, "peak_window_cache_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRun_ExpiredEntryRefetches(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c := cache.NewMemory(cache.MemoryOptions{MaxAge: time.Hour, Clock: func() time.Time { return now }})
	src := &countingSource{items: map[string][]model.RawItem{"golang": twoItems()}}
	p := newPipeline(t, analyze.Deps{Cache: c, Source: src})

	_, err := p.Run(context.Background(), "golang", 30)
	require.NoError(t, err)
	now = now.Add(time.Hour)
	_, err = p.Run(context.Background(), "golang", 30)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestRun_NoData(t *testing.T) {
	src := &countingSource{}
	p := newPipeline(t, analyze.Deps{Source: src})
	_, err := p.Run(context.Background(), "empty", 30)
	require.ErrorIs(t, err, errs.ErrNoData)
	assert.False(t, errors.Is(err, errs.ErrUpstream))

	_, err = p.Run(context.Background(), "empty", 30)
	require.ErrorIs(t, err, errs.ErrNoData)
	assert.Equal(t, int32(2), src.calls.Load(), "no-data is not cached")
}

func TestRun_UpstreamFailure(t *testing.T) {
	src := &countingSource{err: map[string]error{"private": errs.Upstream(403, errors.New("forbidden"))}}
	p := newPipeline(t, analyze.Deps{Source: src})
	_, err := p.Run(context.Background(), "private", 30)
	assert.Equal(t, errs.KindUpstream, errs.Kind(err))
}

func TestRun_FetchTimeout(t *testing.T) {
	src := source.Func(func(ctx context.Context, _, _ string) (model.Page, error) {
		<-ctx.Done()
		return model.Page{}, errors.New("request aborted")
	})
	p, err := analyze.NewPipeline(analyze.Deps{Cache: cache.NewMemory(cache.MemoryOptions{}), Source: src},
		analyze.Options{FetchTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	_, err = p.Run(context.Background(), "slow", 30)
	assert.ErrorIs(t, err, errs.ErrTimeout)
}

func TestRun_InsightFailureDegrades(t *testing.T) {
	src := &countingSource{items: map[string][]model.RawItem{"golang": twoItems()}}
	pub := &recordingPublisher{}
	c := cache.NewMemory(cache.MemoryOptions{})
	p := newPipeline(t, analyze.Deps{
		Cache:     c,
		Source:    src,
		Publisher: pub,
		Insight: insight.Func(func(context.Context, insight.Request) (string, error) {
			return "", errs.ErrInsightUnavailable
		}),
	})
	res, err := p.Run(context.Background(), "golang", 30)
	require.NoError(t, err)
	assert.Equal(t, insight.Unavailable, res.Insight)
	assert.Equal(t, []string{"golang-30"}, pub.keys, "publish failure is not fatal")

	cached, ok, err := c.Get(context.Background(), "golang-30")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res, cached)
}

func TestRun_InsightOwnDeadlineStillCaches(t *testing.T) {
	src := &countingSource{items: map[string][]model.RawItem{"golang": twoItems()}}
	c := cache.NewMemory(cache.MemoryOptions{})
	p, err := analyze.NewPipeline(analyze.Deps{
		Cache:  c,
		Source: src,
		Insight: insight.Func(func(ctx context.Context, _ insight.Request) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}),
	}, analyze.Options{InsightTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), "golang", 30)
	require.NoError(t, err)
	assert.Equal(t, insight.Unavailable, res.Insight)
	_, ok, err := c.Get(context.Background(), "golang-30")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_TimedOutJobLeavesCacheEmpty(t *testing.T) {
	src := &countingSource{items: map[string][]model.RawItem{"golang": twoItems()}}
	pub := &recordingPublisher{}
	c := cache.NewMemory(cache.MemoryOptions{})
	p, err := analyze.NewPipeline(analyze.Deps{
		Cache:     c,
		Source:    src,
		Publisher: pub,
		Insight: insight.Func(func(ctx context.Context, _ insight.Request) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}),
	}, analyze.Options{InsightTimeout: time.Minute})
	require.NoError(t, err)
	svc := analyze.NewService(p, batch.Options{JobTimeout: 20 * time.Millisecond, Pause: time.Millisecond})

	res, err := svc.AnalyzeBatch(context.Background(), []string{"golang"}, 30)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, errs.KindTimeout, res.Results[0].ErrorKind)

	// 等待被放弃的任务自行结束
	time.Sleep(50 * time.Millisecond)
	_, ok, err := c.Get(context.Background(), "golang-30")
	require.NoError(t, err)
	assert.False(t, ok)
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Empty(t, pub.keys)
}

func TestRun_CancelledAfterFetchReturnsTimeout(t *testing.T) {
	src := &countingSource{items: map[string][]model.RawItem{"golang": twoItems()}}
	c := cache.NewMemory(cache.MemoryOptions{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p := newPipeline(t, analyze.Deps{
		Cache:  c,
		Source: src,
		Insight: insight.Func(func(ictx context.Context, _ insight.Request) (string, error) {
			<-ictx.Done()
			return "", ictx.Err()
		}),
	})
	_, err := p.Run(ctx, "golang", 30)
	assert.ErrorIs(t, err, errs.ErrTimeout)
	assert.Zero(t, c.Len())
}

func TestRun_NopInsightIsAbsent(t *testing.T) {
	src := &countingSource{items: map[string][]model.RawItem{"golang": twoItems()}}
	p := newPipeline(t, analyze.Deps{Source: src})
	res, err := p.Run(context.Background(), "golang", 30)
	require.NoError(t, err)
	assert.Empty(t, res.Insight)
}

func TestRun_Validation(t *testing.T) {
	p := newPipeline(t, analyze.Deps{Source: &countingSource{}})
	_, err := p.Run(context.Background(), "   ", 30)
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = p.Run(context.Background(), "golang", -1)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestNewPipeline_RequiresDeps(t *testing.T) {
	_, err := analyze.NewPipeline(analyze.Deps{}, analyze.Options{})
	assert.Error(t, err)
}

func TestService_BatchPartialFailure(t *testing.T) {
	src := &countingSource{
		items: map[string][]model.RawItem{"one": twoItems(), "three": twoItems()},
		err:   map[string]error{"two": errs.Upstream(500, nil)},
	}
	svc := analyze.NewService(newPipeline(t, analyze.Deps{Source: src}), batch.Options{Pause: time.Millisecond})

	res, err := svc.AnalyzeBatch(context.Background(), []string{"One", "two", "THREE", "one"}, 30)
	require.NoError(t, err)
	require.Len(t, res.Results, 3)
	assert.True(t, res.Results[0].OK())
	assert.Equal(t, errs.KindUpstream, res.Results[1].ErrorKind)
	assert.True(t, res.Results[2].OK())

	one, err := svc.AnalyzeOne(context.Background(), "one", 30)
	require.NoError(t, err)
	assert.Equal(t, *res.Results[0].Result, one)
}

func TestBatchInZone(t *testing.T) {
	res := model.AnalysisResult{
		Heatmap:   []model.HeatmapPoint{{DayIndex: 0, Day: "Sunday", Hour: 2, FormattedTime: "Sunday 2AM"}},
		BestTimes: []model.RankedWindow{{DayIndex: 0, Day: "Sunday", Hour: 2, FormattedTime: "Sunday 2AM"}},
	}
	b := model.BatchResult{Results: []model.SubjectResult{{Subject: "a", Result: &res}, {Subject: "b", Error: "x"}}}
	out := analyze.BatchInZone(b, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "Saturday 9PM EST", out.Results[0].Result.BestTimes[0].FormattedTime)
	assert.Equal(t, "Sunday 2AM", b.Results[0].Result.BestTimes[0].FormattedTime, "input untouched")
	assert.Nil(t, out.Results[1].Result)
}
