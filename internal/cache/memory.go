package cache

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"go-peak-window/internal/model"
)

const shardCount = 16

type entry struct {
	res       model.AnalysisResult
	createdAt time.Time
}

// Memory 为进程内新鲜度缓存。键空间按 16 个分片拆分，每个分片是一个自带锁的 LRU，
// 不同分片上的读写互不阻塞。
type Memory struct {
	shards [shardCount]*lru.Cache[string, entry]
	maxAge time.Duration
	now    Clock
}

// MemoryOptions 为 Memory 的构造参数。
type MemoryOptions struct {
	MaxAge time.Duration
	// MaxEntries 为条目总上限（按分片平均分配），0 表示不限制。
	MaxEntries int
	Clock      Clock
}

// NewMemory 创建进程内缓存；MaxAge<=0 时使用 DefaultMaxAge。
func NewMemory(opts MemoryOptions) *Memory {
	m := &Memory{maxAge: opts.MaxAge, now: opts.Clock}
	if m.maxAge <= 0 {
		m.maxAge = DefaultMaxAge
	}
	if m.now == nil {
		m.now = time.Now
	}
	perShard := math.MaxInt
	if opts.MaxEntries > 0 {
		perShard = (opts.MaxEntries + shardCount - 1) / shardCount
	}
	for i := range m.shards {
		// size>0 时 lru.New 不会返回错误
		m.shards[i], _ = lru.New[string, entry](perShard)
	}
	return m
}

func (m *Memory) shardFor(key string) *lru.Cache[string, entry] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

// Get 读取未过期的结果；过期条目保留在原处，等待下次写入覆盖或 Purge。
// 使用 Peek 不刷新访问顺序，分片满时淘汰的总是最早写入的条目。
func (m *Memory) Get(_ context.Context, key string) (model.AnalysisResult, bool, error) {
	e, ok := m.shardFor(key).Peek(key)
	if !ok || expired(e.createdAt, m.now(), m.maxAge) {
		return model.AnalysisResult{}, false, nil
	}
	return e.res, true, nil
}

// Put 写入或覆盖条目；同键并发写入为后写者胜。
func (m *Memory) Put(_ context.Context, key string, res model.AnalysisResult) error {
	m.shardFor(key).Add(key, entry{res: res, createdAt: m.now()})
	return nil
}

// Len 返回当前保存的条目数（包含已过期但尚未清理的条目）。
func (m *Memory) Len() int {
	n := 0
	for _, s := range m.shards {
		n += s.Len()
	}
	return n
}

// Purge 删除所有已过期条目，返回删除数量。
func (m *Memory) Purge() int {
	now := m.now()
	n := 0
	for _, s := range m.shards {
		for _, k := range s.Keys() {
			if e, ok := s.Peek(k); ok && expired(e.createdAt, now, m.maxAge) {
				if s.Remove(k) {
					n++
				}
			}
		}
	}
	return n
}
