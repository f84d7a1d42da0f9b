// Package store SQLite 事件落库（只读观察者）。写入在独立的串行执行器里完成，不阻塞决策循环。
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/betbot/gocrash/internal/events"
	"github.com/betbot/gocrash/internal/metrics"
	"github.com/betbot/gocrash/internal/ports"
	"github.com/betbot/gocrash/pkg/executor"
)

var log = logrus.WithField("component", "store")

const writeTimeout = 5 * time.Second

// Store SQLite 落库
type Store struct {
	db   *sql.DB
	exec *executor.Serial
}

var _ ports.EventSink = (*Store)(nil)

// Open 打开（或创建）数据库并启动写入协程
func Open(ctx context.Context, path string, buffer int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: db path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接
	db.SetMaxIdleConns(1)

	s := &Store{db: db, exec: executor.NewSerial(buffer)}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.exec.Start(context.Background())
	return s, nil
}

// Close 写完已入队的事件后关闭
func (s *Store) Close(ctx context.Context) error {
	if err := s.exec.Stop(ctx); err != nil {
		log.Warnf("⚠️ %v", err)
	}
	return s.db.Close()
}

// Flush 等待当前已入队的事件写完（测试与优雅退出用）
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !s.exec.Submit(executor.Command{Name: "flush", Do: func(context.Context) { close(done) }}) {
		return fmt.Errorf("store: queue full")
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish 非阻塞；队列满时丢弃并计数
func (s *Store) Publish(ev events.Event) {
	ok := s.exec.Submit(executor.Command{
		Name:    ev.EventName(),
		Timeout: writeTimeout,
		Do: func(ctx context.Context) {
			if err := s.write(ctx, ev); err != nil {
				log.Errorf("❌ 写入 %s 失败: %v", ev.EventName(), err)
			}
		},
	})
	if !ok {
		metrics.SinkDropped.Add(1)
	}
}

func (s *Store) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS rounds (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  round_id TEXT,
  multiplier TEXT NOT NULL,
  low_run INTEGER NOT NULL,
  state TEXT NOT NULL,
  ts TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_ts ON rounds(ts DESC);`,
		`
CREATE TABLE IF NOT EXISTS bets (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  attempt INTEGER NOT NULL,
  slot INTEGER NOT NULL,
  role TEXT NOT NULL,
  amount TEXT NOT NULL,
  target TEXT NOT NULL,
  accepted INTEGER NOT NULL,
  confirmed INTEGER NOT NULL,
  elapsed_ms INTEGER NOT NULL,
  error TEXT,
  scenario TEXT,
  ts TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_bets_session ON bets(session_id, attempt);`,
		`
CREATE TABLE IF NOT EXISTS sessions (
  session_id TEXT PRIMARY KEY,
  level INTEGER NOT NULL,
  status TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  reached_terminal INTEGER NOT NULL DEFAULT 0,
  saldo_inicio TEXT NOT NULL,
  saldo_fim TEXT,
  bankroll TEXT NOT NULL,
  reserve_before TEXT NOT NULL,
  reserve_after TEXT,
  pl TEXT,
  total_staked TEXT,
  meta_batida INTEGER NOT NULL DEFAULT 0,
  pagamento TEXT,
  emprestimo TEXT,
  next_level INTEGER,
  reason TEXT,
  started_at TEXT NOT NULL,
  finished_at TEXT
);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);`,
		`
CREATE TABLE IF NOT EXISTS system_logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  kind TEXT NOT NULL,
  message TEXT NOT NULL,
  ts TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS refresh_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  silence_ms INTEGER NOT NULL,
  refreshed INTEGER NOT NULL,
  error TEXT,
  ts TEXT NOT NULL
);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func ts(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
