// Package ledger 把每次运行的 RunReport 记录到本地 SQLite（modernc.org/sqlite，纯 Go）。
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/John-Robertt/albumdl/internal/domain"
	"github.com/John-Robertt/albumdl/internal/infra/fsx"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	album        TEXT NOT NULL,
	album_name   TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	output       TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	finished_at  TEXT NOT NULL,
	interrupted  INTEGER NOT NULL DEFAULT 0,
	error_code   TEXT NOT NULL DEFAULT '',
	total        INTEGER NOT NULL,
	downloaded   INTEGER NOT NULL,
	skipped      INTEGER NOT NULL,
	failed       INTEGER NOT NULL,
	total_bytes  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

CREATE TABLE IF NOT EXISTS items (
	run_id      TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	filename    TEXT NOT NULL,
	status      TEXT NOT NULL,
	error_code  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	bytes       INTEGER NOT NULL,
	attempts    INTEGER NOT NULL,
	elapsed_ms  INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// Ledger 是运行历史的存储。
type Ledger struct {
	db   *sql.DB
	path string
}

// RunSummary 是 history 列表中的一行。
type RunSummary struct {
	RunID       string                `json:"run_id"`
	Album       string                `json:"album"`
	AlbumName   string                `json:"album_name"`
	Output      string                `json:"output"`
	StartedAt   time.Time             `json:"started_at"`
	FinishedAt  time.Time             `json:"finished_at"`
	Interrupted bool                  `json:"interrupted"`
	ErrorCode   string                `json:"error_code,omitempty"`
	Stats       domain.AggregateStats `json:"summary"`
}

// Open 打开（必要时创建）path 处的数据库并初始化 schema。
// path 为 ":memory:" 时使用内存库（测试用）。
func Open(path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := fsx.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("创建 ledger 目录失败：%w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开 ledger 失败：%w", err)
	}
	// 单连接：SQLite 写入本就串行，且 :memory: 库按连接隔离。
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("启用外键失败：%w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("初始化 ledger schema 失败：%w", err)
	}
	return &Ledger{db: db, path: path}, nil
}

func (l *Ledger) Path() string { return l.path }

func (l *Ledger) Close() error { return l.db.Close() }

// RecordRun 在一个事务中写入 run 与全部 items；同一 run_id 重复写入会覆盖旧记录。
func (l *Ledger) RecordRun(ctx context.Context, rr domain.RunReport) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, rr.RunID); err != nil {
		return fmt.Errorf("清理旧记录失败：%w", err)
	}

	s := rr.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, album, album_name, source, output, started_at, finished_at,
			interrupted, error_code, total, downloaded, skipped, failed, total_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rr.RunID, rr.Album, rr.AlbumName, rr.Source, rr.Output,
		formatTime(rr.StartedAt), formatTime(rr.FinishedAt),
		boolInt(rr.Interrupted), rr.ErrorCode,
		s.Total, s.Downloaded, s.Skipped, s.Failed, s.TotalBytes,
	)
	if err != nil {
		return fmt.Errorf("写入 run 失败：%w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (run_id, seq, filename, status, error_code, error, bytes, attempts, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, it := range rr.Items {
		if _, err := stmt.ExecContext(ctx, rr.RunID, i, it.Filename, it.Status, it.ErrorCode, it.Error,
			it.Bytes, it.Attempts, it.Elapsed.Milliseconds()); err != nil {
			return fmt.Errorf("写入 item %q 失败：%w", it.Filename, err)
		}
	}
	return tx.Commit()
}

// RecentRuns 按开始时间倒序返回最多 limit 条运行摘要。
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, album, album_name, output, started_at, finished_at, interrupted, error_code,
			total, downloaded, skipped, failed, total_bytes
		FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r                 RunSummary
			started, finished string
			interrupted       int
		)
		if err := rows.Scan(&r.RunID, &r.Album, &r.AlbumName, &r.Output, &started, &finished, &interrupted, &r.ErrorCode,
			&r.Stats.Total, &r.Stats.Downloaded, &r.Stats.Skipped, &r.Stats.Failed, &r.Stats.TotalBytes); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		r.Interrupted = interrupted != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Items 返回某次运行的全部条目（按原始顺序）。
func (l *Ledger) Items(ctx context.Context, runID string) ([]domain.DownloadOutcome, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT filename, status, error_code, error, bytes, attempts, elapsed_ms
		FROM items WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DownloadOutcome
	for rows.Next() {
		var (
			o  domain.DownloadOutcome
			ms int64
		)
		if err := rows.Scan(&o.Filename, &o.Status, &o.ErrorCode, &o.Error, &o.Bytes, &o.Attempts, &ms); err != nil {
			return nil, err
		}
		o.Elapsed = time.Duration(ms) * time.Millisecond
		out = append(out, o)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
