// 包 server 提供 HTTP 请求入口（gin）：单主体分析、批量分析、健康检查与指标。
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"go-peak-window/internal/analyze"
	"go-peak-window/internal/errs"
	"go-peak-window/internal/heatmap"
	"go-peak-window/internal/logx"
	"go-peak-window/internal/metrics"
	"go-peak-window/internal/model"
)

// DefaultDays 为未指定窗口时的天数。
const DefaultDays = 30

// Analyzer 为服务端依赖的分析入口，由 analyze.Service 实现。
type Analyzer interface {
	AnalyzeOne(ctx context.Context, subject string, days int) (model.AnalysisResult, error)
	AnalyzeBatch(ctx context.Context, subjects []string, days int) (model.BatchResult, error)
}

// Options 为服务端参数。
type Options struct {
	Addr       string
	RateLimit  int // 0 表示不限流
	RateWindow time.Duration
	Metrics    *metrics.Metrics
}

// Server 封装 gin 引擎与 http.Server。
type Server struct {
	svc     Analyzer
	opts    Options
	engine  *gin.Engine
	limiter *rateLimiter
}

// New 创建服务端并注册路由。
func New(svc Analyzer, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	s := &Server{svc: svc, opts: opts}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestLogger(opts.Metrics))

	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))

	api := s.engine.Group("/api")
	if opts.RateLimit > 0 {
		s.limiter = newRateLimiter(opts.RateLimit, opts.RateWindow)
		api.Use(s.limiter.middleware())
	}
	api.GET("/analyze", s.analyzeOne)
	api.POST("/bulk-analyze", s.analyzeBatch)
	return s
}

// Handler 返回 http.Handler，便于测试。
func (s *Server) Handler() http.Handler { return s.engine }

// Run 启动监听，ctx 结束时优雅关闭。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.opts.Addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logx.Infof("HTTP 服务已启动：%s", s.opts.Addr)

	var sweep <-chan time.Time
	if s.limiter != nil {
		t := time.NewTicker(s.opts.RateWindow)
		defer t.Stop()
		sweep = t.C
	}
	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-sweep:
			s.limiter.sweep()
		case <-ctx.Done():
			logx.Infof("HTTP 服务关闭中")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
}

// parseDays 解析窗口天数：缺省为 DefaultDays，非数字或非正数为校验错误。
func parseDays(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultDays, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errs.Validation("days must be a positive integer, got %q", raw)
	}
	return n, nil
}

// analyzeOne 处理 GET /api/analyze?subreddit=&days=&tz=
func (s *Server) analyzeOne(c *gin.Context) {
	subject := strings.TrimSpace(c.Query("subreddit"))
	if subject == "" {
		fail(c, errs.Validation("subreddit is required"))
		return
	}
	days, err := parseDays(c.Query("days"))
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.svc.AnalyzeOne(c.Request.Context(), subject, days)
	if err != nil {
		_ = c.Error(err)
		fail(c, err)
		return
	}
	success(c, heatmap.Localize(res, heatmap.LoadLocation(c.Query("tz"))))
}

type bulkRequest struct {
	Subreddits []string `json:"subreddits"`
	Days       *int     `json:"days"`
	TZ         string   `json:"tz"`
}

// analyzeBatch 处理 POST /api/bulk-analyze {"subreddits":[...],"days":30}
func (s *Server) analyzeBatch(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.Validation("invalid request body: %v", err))
		return
	}
	days := DefaultDays
	if req.Days != nil {
		if *req.Days <= 0 {
			fail(c, errs.Validation("days must be positive, got %d", *req.Days))
			return
		}
		days = *req.Days
	}
	res, err := s.svc.AnalyzeBatch(c.Request.Context(), req.Subreddits, days)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, analyze.BatchInZone(res, heatmap.LoadLocation(req.TZ)))
}
