package download

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/John-Robertt/albumdl/internal/domain"
	"github.com/John-Robertt/albumdl/internal/infra/fsx"
)

// ErrInvalidConcurrency 表示并发上限小于 1。
var ErrInvalidConcurrency = errors.New("concurrency 必须 >= 1")

// DownloadAll 以至多 concurrency 个并发单元下载 entries，返回与输入同序的结果。
//
// 规则：
// - setup 错误（并发非法、输出目录无法创建）在任何单元开始前返回
// - 单条失败不影响其他条目
// - sink 按完成顺序、在单个 goroutine 中被调用，每条恰好一次
// - ctx 取消后不再派发新条目；未派发的条目记为 failed/canceled（同样回调 sink）
func (d *Downloader) DownloadAll(ctx context.Context, entries []domain.CatalogEntry, concurrency int, sink Sink) ([]domain.DownloadOutcome, error) {
	if concurrency < 1 {
		return nil, fmt.Errorf("%w（实际 %d）", ErrInvalidConcurrency, concurrency)
	}
	if err := fsx.EnsureDir(d.OutputRoot); err != nil {
		return nil, fmt.Errorf("创建输出目录失败：%w", err)
	}

	outcomes := make([]domain.DownloadOutcome, len(entries))
	if len(entries) == 0 {
		return outcomes, nil
	}

	workers := concurrency
	if workers > len(entries) {
		workers = len(entries)
	}

	type job struct {
		idx   int
		entry domain.CatalogEntry
	}
	type result struct {
		idx int
		out domain.DownloadOutcome
	}

	// jobs 无缓冲：worker 空闲时才能取到下一条，这就是准入/释放的并发上限。
	jobs := make(chan job)
	results := make(chan result, len(entries))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- result{idx: j.idx, out: d.Download(ctx, j.entry)}
			}
		}()
	}

	go func() {
		defer func() {
			close(jobs)
			wg.Wait()
			close(results)
		}()
		for i, e := range entries {
			if ctx.Err() != nil {
				d.cancelRest(entries, i, func(r int, o domain.DownloadOutcome) { results <- result{idx: r, out: o} })
				return
			}
			select {
			case jobs <- job{idx: i, entry: e}:
			case <-ctx.Done():
				d.cancelRest(entries, i, func(r int, o domain.DownloadOutcome) { results <- result{idx: r, out: o} })
				return
			}
		}
	}()

	done := 0
	for r := range results {
		done++
		outcomes[r.idx] = r.out
		d.notify(sink, done, len(entries), r.out)
	}
	return outcomes, nil
}

func (d *Downloader) cancelRest(entries []domain.CatalogEntry, from int, emit func(int, domain.DownloadOutcome)) {
	for i := from; i < len(entries); i++ {
		name, _ := d.Dest(entries[i])
		emit(i, domain.DownloadOutcome{
			Filename:  name,
			Status:    domain.StatusFailed,
			ErrorCode: codeCanceled,
			Error:     codeCanceled + ": 运行已取消，未开始下载",
		})
	}
}

func (d *Downloader) notify(sink Sink, idx, total int, out domain.DownloadOutcome) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger().Error("进度回调 panic（已忽略）", "file", out.Filename, "panic", r)
		}
	}()
	sink.OnOutcome(idx, total, out)
}
