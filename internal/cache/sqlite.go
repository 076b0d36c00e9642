package cache

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pierrec/lz4/v4"
	_ "modernc.org/sqlite"

	"go-peak-window/internal/model"
)

// SQLite 为持久化的新鲜度缓存，基于 modernc.org/sqlite（纯 Go 实现）。
// 读写语义与 Memory 一致：读取时检查最大存活时间，写入覆盖旧值。
// payload 以 lz4 压缩后的 JSON 保存。
type SQLite struct {
	db     *sql.DB
	maxAge time.Duration
	now    Clock
}

// sqliteConns 为连接池上限。WAL 模式下多个读连接互不阻塞，写入仍由 SQLite 串行化。
const sqliteConns = 4

// OpenSQLite 打开数据库（WAL 模式）并执行自动迁移；maxAge<=0 时使用 DefaultMaxAge。
func OpenSQLite(path string, maxAge time.Duration, clock Clock) (*SQLite, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// 内存库每个连接各自独立，只能单连接
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(sqliteConns)
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if clock == nil {
		clock = time.Now
	}
	s := &SQLite{db: db, maxAge: maxAge, now: clock}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// sqliteDSN 为每个连接附加 WAL 与 busy_timeout，写入冲突时等待而不是立即返回 SQLITE_BUSY。
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// migrate 执行建表语句，保持幂等。
func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS cache_entries (
            key TEXT PRIMARY KEY,
            payload BLOB NOT NULL,
            created_at INTEGER NOT NULL
        );`)
	if err != nil {
		return fmt.Errorf("exec migrate: %w", err)
	}
	return nil
}

// Get 读取未过期条目。
func (s *SQLite) Get(ctx context.Context, key string) (model.AnalysisResult, bool, error) {
	var payload []byte
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `SELECT payload, created_at FROM cache_entries WHERE key = ?`, key).
		Scan(&payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AnalysisResult{}, false, nil
	}
	if err != nil {
		return model.AnalysisResult{}, false, fmt.Errorf("query cache %s: %w", key, err)
	}
	if expired(time.UnixMilli(createdAt), s.now(), s.maxAge) {
		return model.AnalysisResult{}, false, nil
	}
	res, err := decode(payload)
	if err != nil {
		return model.AnalysisResult{}, false, fmt.Errorf("decode cache %s: %w", key, err)
	}
	return res, true, nil
}

// Put 插入或覆盖条目（key 唯一约束）。
func (s *SQLite) Put(ctx context.Context, key string, res model.AnalysisResult) error {
	payload, err := encode(res)
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO cache_entries(key, payload, created_at)
        VALUES(?,?,?)
        ON CONFLICT(key) DO UPDATE SET payload=excluded.payload, created_at=excluded.created_at`,
		key, payload, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert cache %s: %w", key, err)
	}
	return nil
}

// Purge 删除已过期条目，返回删除行数。
func (s *SQLite) Purge(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.maxAge).UnixMilli()
	r, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE created_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	n, _ := r.RowsAffected()
	return n, nil
}

func encode(res model.AnalysisResult) ([]byte, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(payload []byte) (model.AnalysisResult, error) {
	var res model.AnalysisResult
	raw, err := io.ReadAll(lz4.NewReader(bytes.NewReader(payload)))
	if err != nil {
		return res, err
	}
	err = json.Unmarshal(raw, &res)
	return res, err
}
