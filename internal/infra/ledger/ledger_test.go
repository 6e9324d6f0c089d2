package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/albumdl/internal/domain"
)

func setupTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) 失败：%v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sampleReport(id string, started time.Time) domain.RunReport {
	rr := domain.RunReport{
		RunID:      id,
		Album:      "https://1drv.ms/a/s!x",
		AlbumName:  "Trip",
		Source:     "graph",
		Output:     "/tmp/out/Trip",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Items: []domain.DownloadOutcome{
			{Filename: "b.jpg", Status: domain.StatusSuccess, Bytes: 100, Attempts: 1, Elapsed: 1500 * time.Millisecond},
			{Filename: "a.jpg", Status: domain.StatusSkipped, Bytes: 50},
			{Filename: "c.jpg", Status: domain.StatusFailed, ErrorCode: domain.ErrCodeTimeout, Error: "timeout: x (attempt 3/3)", Attempts: 3},
		},
	}
	rr.Finalize()
	return rr
}

func TestRecordRun_RoundTrip(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	if err := l.RecordRun(ctx, sampleReport("run-1", started)); err != nil {
		t.Fatalf("RecordRun 失败：%v", err)
	}

	runs, err := l.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns 失败：%v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("期望 1 条记录，实际 %d", len(runs))
	}
	r := runs[0]
	want := domain.AggregateStats{Total: 3, Downloaded: 1, Skipped: 1, Failed: 1, TotalBytes: 150}
	if r.RunID != "run-1" || r.AlbumName != "Trip" || r.Stats != want || !r.StartedAt.Equal(started) {
		t.Fatalf("run 记录不正确：%+v", r)
	}

	items, err := l.Items(ctx, "run-1")
	if err != nil {
		t.Fatalf("Items 失败：%v", err)
	}
	if len(items) != 3 || items[0].Filename != "b.jpg" || items[2].ErrorCode != domain.ErrCodeTimeout {
		t.Fatalf("items 顺序或内容不正确：%+v", items)
	}
	if items[0].Elapsed != 1500*time.Millisecond {
		t.Fatalf("elapsed 往返不正确：%s", items[0].Elapsed)
	}
}

func TestRecordRun_SameIDOverwrites(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	if err := l.RecordRun(ctx, sampleReport("run-1", started)); err != nil {
		t.Fatalf("RecordRun 失败：%v", err)
	}
	rr := sampleReport("run-1", started)
	rr.Items = rr.Items[:1]
	rr.Finalize()
	if err := l.RecordRun(ctx, rr); err != nil {
		t.Fatalf("重复 RecordRun 失败：%v", err)
	}

	items, err := l.Items(ctx, "run-1")
	if err != nil || len(items) != 1 {
		t.Fatalf("覆盖后期望 1 条 item，实际 %d err=%v", len(items), err)
	}
}

func TestRecentRuns_OrderAndLimit(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		if err := l.RecordRun(ctx, sampleReport(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("RecordRun 失败：%v", err)
		}
	}
	runs, err := l.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns 失败：%v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "new" || runs[1].RunID != "mid" {
		t.Fatalf("期望 [new mid]，实际 %+v", runs)
	}
}

func TestOpen_CreatesParentDir(t *testing.T) {
	p := filepath.Join(t.TempDir(), "state", "history.db")
	l, err := Open(p)
	if err != nil {
		t.Fatalf("Open 失败：%v", err)
	}
	defer l.Close()
	if l.Path() != p {
		t.Fatalf("Path 不一致：%q", l.Path())
	}
}
