// 包 analyze 组合缓存、数据源、聚合与洞察，产出单个主体的分析结果，
// 并对外提供单主体/批量两种调用入口。
package analyze

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-peak-window/internal/cache"
	"go-peak-window/internal/errs"
	"go-peak-window/internal/heatmap"
	"go-peak-window/internal/insight"
	"go-peak-window/internal/logx"
	"go-peak-window/internal/metrics"
	"go-peak-window/internal/model"
	"go-peak-window/internal/publish"
	"go-peak-window/internal/source"
)

// 默认超时
const (
	DefaultFetchTimeout   = 20 * time.Second
	DefaultInsightTimeout = 30 * time.Second
)

// Deps 为流水线依赖；Cache 与 Source 必填，其余可为空。
type Deps struct {
	Cache     cache.Store
	Source    source.Source
	Insight   insight.Generator
	Publisher publish.Publisher
	Metrics   *metrics.Metrics
}

// Options 为流水线参数，零值字段使用默认值。
type Options struct {
	MaxPages       int
	FetchTimeout   time.Duration
	InsightTimeout time.Duration
	Clock          func() time.Time
}

// Pipeline 单主体分析流水线：缓存 → 抓取 → 聚合 → 洞察（可选）→ 写缓存。
type Pipeline struct {
	deps Deps
	opts Options
}

// NewPipeline 创建流水线。
func NewPipeline(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Cache == nil || deps.Source == nil {
		return nil, errors.New("pipeline requires cache and source")
	}
	if deps.Insight == nil {
		deps.Insight = insight.Nop{}
	}
	if deps.Publisher == nil {
		deps.Publisher = publish.Nop{}
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = source.DefaultMaxPages
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.InsightTimeout <= 0 {
		opts.InsightTimeout = DefaultInsightTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Pipeline{deps: deps, opts: opts}, nil
}

// Run 分析单个主体。命中缓存时不访问数据源；抓取为空返回 errs.ErrNoData。
func (p *Pipeline) Run(ctx context.Context, subject string, days int) (model.AnalysisResult, error) {
	name := cache.Normalize(subject)
	if name == "" {
		return model.AnalysisResult{}, errs.Validation("subject is empty")
	}
	if days <= 0 {
		return model.AnalysisResult{}, errs.Validation("days must be positive, got %d", days)
	}
	key := cache.Key(name, days)
	log := logx.With("subject", name, "days", days)

	cached, ok, err := p.deps.Cache.Get(ctx, key)
	if err != nil {
		log.Warn("读取缓存失败，按未命中处理", "err", err)
	}
	p.deps.Metrics.CacheLookup(ok)
	if ok {
		log.Debug("命中缓存")
		return cached, nil
	}

	items, err := p.fetch(ctx, name)
	if err != nil {
		return model.AnalysisResult{}, err
	}
	if len(items) == 0 {
		return model.AnalysisResult{}, fmt.Errorf("%w: %s returned no items", errs.ErrNoData, name)
	}

	agg := heatmap.Aggregate(items)
	res := model.AnalysisResult{
		Heatmap:     agg.Heatmap,
		BestTimes:   agg.BestTimes,
		ItemCount:   len(items),
		GeneratedAt: p.opts.Clock().UTC(),
	}
	res.Insight = p.insight(ctx, name, days, res)
	// 任务已被取消或超时：不再写缓存与投递
	if cerr := ctx.Err(); cerr != nil {
		return model.AnalysisResult{}, fmt.Errorf("analyze %s: %w", name, errs.FromContext(cerr))
	}

	if err := p.deps.Cache.Put(ctx, key, res); err != nil {
		log.Warn("写入缓存失败", "err", err)
	}
	if err := p.deps.Publisher.Publish(ctx, key, res); err != nil {
		log.Warn("结果投递失败", "err", err)
	}
	log.Info("分析完成", "items", len(items), "slots", len(res.Heatmap))
	return res, nil
}

// fetch 在独立的抓取时限内拉取条目；超时统一归为 errs.ErrTimeout。
func (p *Pipeline) fetch(ctx context.Context, name string) ([]model.RawItem, error) {
	fctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()
	items, err := source.FetchRecent(fctx, p.deps.Source, name, p.opts.MaxPages)
	if err == nil {
		return items, nil
	}
	// 部分客户端（如 oauth2）会丢失 context 错误链
	if cerr := fctx.Err(); cerr != nil && !errors.Is(err, errs.ErrTimeout) {
		return nil, fmt.Errorf("fetch %s: %w", name, errs.FromContext(cerr))
	}
	return nil, err
}

// insight 尽力生成洞察，失败时返回占位文本。
func (p *Pipeline) insight(ctx context.Context, name string, days int, res model.AnalysisResult) string {
	ictx, cancel := context.WithTimeout(ctx, p.opts.InsightTimeout)
	defer cancel()
	text, err := p.deps.Insight.Generate(ictx, insight.Request{
		Subject:    name,
		WindowDays: days,
		Top:        res.BestTimes,
		Summary:    heatmap.TopPoints(res.Heatmap, insight.SummaryLimit),
	})
	if err != nil {
		logx.With("subject", name).Warn("洞察生成失败", "kind", errs.Kind(errs.FromContext(err)), "err", err)
		return insight.Unavailable
	}
	return text
}
