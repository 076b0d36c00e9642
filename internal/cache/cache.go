// 包 cache 提供新鲜度缓存：按 (主体,窗口) 键保存分析结果，读取时检查是否超过最大存活时间。
// 过期条目在读取时视为不存在（惰性失效），写入时直接覆盖。
package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go-peak-window/internal/model"
)

// DefaultMaxAge 为默认最大存活时间。
const DefaultMaxAge = 24 * time.Hour

// Store 为新鲜度缓存契约；实现自带并发同步，调用方无需加锁。
type Store interface {
	// Get 在条目不存在或 now-createdAt >= maxAge 时返回 ok=false。
	Get(ctx context.Context, key string) (model.AnalysisResult, bool, error)
	// Put 以 createdAt=now 写入或覆盖条目。
	Put(ctx context.Context, key string, res model.AnalysisResult) error
}

// Clock 返回当前时间，测试中可替换为可控时钟。
type Clock func() time.Time

// Normalize 去除首尾空白并转为小写。
func Normalize(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}

// Key 构造缓存键：normalize(subject) + "-" + days。
func Key(subject string, days int) string {
	return Normalize(subject) + "-" + strconv.Itoa(days)
}

// expired 判定 createdAt 是否已超过 maxAge。
func expired(createdAt, now time.Time, maxAge time.Duration) bool {
	return now.Sub(createdAt) >= maxAge
}
