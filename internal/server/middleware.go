package server

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"go-peak-window/internal/logx"
	"go-peak-window/internal/metrics"
)

// rateLimiter 按客户端 IP 的滑动窗口限流。
type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{requests: make(map[string][]time.Time), limit: limit, window: window, now: time.Now}
}

// allow 记录一次请求并判断是否放行；顺带清理该 IP 窗口外的记录。
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	times := rl.requests[ip]
	valid := times[:0]
	for _, t := range times {
		if now.Sub(t) < rl.window {
			valid = append(valid, t)
		}
	}
	if len(valid) >= rl.limit {
		rl.requests[ip] = valid
		return false
	}
	rl.requests[ip] = append(valid, now)
	return true
}

// sweep 删除窗口内已无请求的 IP。
func (rl *rateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for ip, times := range rl.requests {
		if len(times) == 0 || now.Sub(times[len(times)-1]) >= rl.window {
			delete(rl.requests, ip)
		}
	}
}

func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, Response{
				Code:    http.StatusTooManyRequests,
				Message: "rate limit exceeded, try again later",
			})
			return
		}
		c.Next()
	}
}

// requestLogger 记录每个请求并计数。
func requestLogger(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequest(route, strconv.Itoa(status))
		log := logx.With("method", c.Request.Method, "path", path, "status", status,
			"latency", time.Since(start).Round(time.Microsecond), "ip", c.ClientIP())
		switch {
		case status >= 500:
			log.Error("请求失败", "errors", c.Errors.String())
		case status >= 400:
			log.Warn("请求被拒绝")
		default:
			log.Info("请求完成")
		}
	}
}
