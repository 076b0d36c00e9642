package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"go-peak-window/internal/analyze"
	"go-peak-window/internal/batch"
	"go-peak-window/internal/cache"
	"go-peak-window/internal/config"
	"go-peak-window/internal/fetch"
	"go-peak-window/internal/insight"
	"go-peak-window/internal/logx"
	"go-peak-window/internal/metrics"
	"go-peak-window/internal/publish"
	"go-peak-window/internal/rules"
	"go-peak-window/internal/source"
)

// App 持有按配置装配好的组件。
type App struct {
	Config  *config.Config
	Service *analyze.Service
	Metrics *metrics.Metrics
	Cache   cache.Store

	closers []func() error
}

// Build 按配置装配数据源、缓存、洞察、投递与指标。
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a := &App{Config: cfg, Metrics: metrics.New(reg)}

	cl, err := fetch.New(fetch.Options{
		ProxyHTTP:  cfg.Proxy.HTTP,
		ProxyHTTPS: cfg.Proxy.HTTPS,
		Timeout:    cfg.FetchTimeout,
		Retry:      cfg.Retry,
		UserAgent:  cfg.Source.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}
	src, err := newSource(cl, cfg)
	if err != nil {
		return nil, err
	}
	if a.Cache, err = a.newCache(cfg); err != nil {
		return nil, err
	}
	gen, err := newInsight(ctx, cl, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	pub, err := a.newPublisher(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	p, err := analyze.NewPipeline(analyze.Deps{
		Cache:     a.Cache,
		Source:    src,
		Insight:   gen,
		Publisher: pub,
		Metrics:   a.Metrics,
	}, analyze.Options{
		MaxPages:       cfg.Source.MaxPages,
		FetchTimeout:   cfg.FetchTimeout,
		InsightTimeout: cfg.Insight.Timeout,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Service = analyze.NewService(p, batch.Options{
		MaxSubjects: cfg.Batch.MaxSubjects,
		Size:        cfg.Batch.Size,
		Pause:       cfg.Batch.Pause,
		JobTimeout:  cfg.Batch.JobTimeout,
		Metrics:     a.Metrics,
	})
	logx.Debugf("组件装配完成：source=%s cache=%s insight=%s kafka=%v",
		cfg.Source.Type, cfg.Cache.Type, cfg.Insight.Provider, len(cfg.Kafka.Brokers) > 0)
	return a, nil
}

// Close 依次释放资源，返回合并后的错误。
func (a *App) Close() error {
	var errList []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	a.closers = nil
	return errors.Join(errList...)
}

// Sweep 周期性清理过期缓存条目，直到 ctx 结束。
func (a *App) Sweep(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			switch c := a.Cache.(type) {
			case *cache.Memory:
				if n := c.Purge(); n > 0 {
					logx.Infof("清理过期缓存 %d 条", n)
				}
			case *cache.SQLite:
				n, err := c.Purge(ctx)
				if err != nil {
					logx.Warnf("清理过期缓存失败：%v", err)
				} else if n > 0 {
					logx.Infof("清理过期缓存 %d 条", n)
				}
			}
		}
	}
}

func newSource(cl *fetch.Client, cfg *config.Config) (source.Source, error) {
	switch cfg.Source.Type {
	case "feed":
		return source.NewFeed(cl, cfg.Source.URL), nil
	case "listing":
		rl := rules.Builtin()
		if cfg.Source.Rules != "" {
			loaded, err := rules.Load(cfg.Source.Rules)
			if err != nil {
				return nil, err
			}
			rl = loaded
		}
		preset, ok := rl.GetPreset(cfg.Source.Theme)
		if !ok {
			return nil, fmt.Errorf("listing preset %q not found", cfg.Source.Theme)
		}
		return source.NewListing(cl, cfg.Source.URL, preset)
	default:
		return source.NewReddit(cl, source.RedditOptions{
			BaseURL:      cfg.Source.URL,
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
			Username:     cfg.Reddit.Username,
			Password:     cfg.Reddit.Password,
			PageLimit:    cfg.Source.PageLimit,
		}), nil
	}
}

func (a *App) newCache(cfg *config.Config) (cache.Store, error) {
	if cfg.Cache.Type == "sqlite" {
		s, err := cache.OpenSQLite(cfg.Cache.DSN, cfg.Cache.MaxAge, nil)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	}
	return cache.NewMemory(cache.MemoryOptions{MaxAge: cfg.Cache.MaxAge, MaxEntries: cfg.Cache.MaxEntries}), nil
}

// newInsight 按配置选择洞察生成器；缺少密钥时降级为不生成并给出警告。
func newInsight(ctx context.Context, cl *fetch.Client, cfg *config.Config) (insight.Generator, error) {
	switch cfg.Insight.Provider {
	case "gemini":
		g, err := insight.NewGemini(ctx, insight.GeminiConfig{APIKey: cfg.GoogleAPIKey, Model: cfg.Insight.Model})
		if err != nil {
			logx.Warnf("Gemini 不可用，跳过洞察：%v", err)
			return insight.Nop{}, nil
		}
		return g, nil
	case "openai":
		g, err := insight.NewOpenAI(cl, insight.OpenAIConfig{URL: cfg.Insight.URL, APIKey: cfg.OpenAIAPIKey, Model: cfg.Insight.Model})
		if err != nil {
			logx.Warnf("OpenAI 不可用，跳过洞察：%v", err)
			return insight.Nop{}, nil
		}
		return g, nil
	default:
		return insight.Nop{}, nil
	}
}

func (a *App) newPublisher(cfg *config.Config) (publish.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return publish.Nop{}, nil
	}
	k, err := publish.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, k.Close)
	return k, nil
}
