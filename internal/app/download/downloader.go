// Package download 实现单文件下载单元（重试/退避/跳过/清理）与并发编排。
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/John-Robertt/albumdl/internal/domain"
	"github.com/John-Robertt/albumdl/internal/fname"
	"github.com/John-Robertt/albumdl/internal/infra/fsx"
)

const (
	DefaultMaxRetries  = 3
	DefaultTimeout     = 60 * time.Second
	DefaultBackoffBase = time.Second
	DefaultChunkSize   = 32 * 1024
)

const (
	codeTimeout        = domain.ErrCodeTimeout
	codeHTTPStatus     = domain.ErrCodeHTTPStatus
	codeNetwork        = domain.ErrCodeNetwork
	codeIOFailed       = domain.ErrCodeIOFailed
	codeTargetConflict = domain.ErrCodeTargetConflict
	codeInvalidRequest = domain.ErrCodeInvalidRequest
	codeCanceled       = domain.ErrCodeCanceled
)

// 通过可替换的函数指针，让测试能记录退避时长而不真的等待。
var sleepFunc = sleepCtx

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Downloader 把一条 CatalogEntry 下载到 OutputRoot 下。
//
// 约束：
// - 目标文件已存在（普通文件）=> skipped，不发任何网络请求
// - 每次尝试有独立超时（连接 + 响应头 + 读完 body）
// - 最终失败或被取消时，删除本次写出的残留文件
// - 对每条输入恰好产生一个 DownloadOutcome
//
// 零值字段使用默认值；Downloader 可被多个 goroutine 共享。
type Downloader struct {
	Client     *http.Client
	OutputRoot string

	// MaxRetries 是总尝试次数上限（不是“额外重试次数”）；小于 1 按 1 处理。
	MaxRetries int
	Timeout    time.Duration

	// BackoffBase 是第一次重试前的等待；之后每次翻倍（1s, 2s, 4s...）。
	BackoffBase time.Duration
	ChunkSize   int

	// Limiter 非空时，每次尝试前先等待令牌（全局限速）。
	Limiter *rate.Limiter

	Logger *slog.Logger
}

func (d *Downloader) attempts() int {
	if d.MaxRetries < 1 {
		return 1
	}
	return d.MaxRetries
}

func (d *Downloader) timeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultTimeout
	}
	return d.Timeout
}

func (d *Downloader) backoff(retry int) time.Duration {
	base := d.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	return base * time.Duration(1<<retry)
}

func (d *Downloader) client() *http.Client {
	if d.Client == nil {
		return http.DefaultClient
	}
	return d.Client
}

func (d *Downloader) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

// Dest 返回条目的本地目标路径（OutputRoot/Sanitize(Filename)）。
func (d *Downloader) Dest(e domain.CatalogEntry) (string, string) {
	name := fname.Sanitize(e.Filename)
	return name, filepath.Join(d.OutputRoot, name)
}

// Download 执行一个下载单元。任何失败都体现在返回的 outcome 中，不会 panic 或返回 error。
func (d *Downloader) Download(ctx context.Context, e domain.CatalogEntry) domain.DownloadOutcome {
	started := time.Now()
	name, dst := d.Dest(e)
	out := domain.DownloadOutcome{Filename: name}
	log := d.logger().With("file", name)

	size, exists, err := fsx.StatFile(dst)
	if err != nil {
		code := codeIOFailed
		if fsx.IsPathTypeConflict(err) {
			code = codeTargetConflict
		}
		return d.fail(out, started, code, err, 0, 0, log)
	}
	if exists {
		out.Status = domain.StatusSkipped
		out.Bytes = size
		out.Elapsed = time.Since(started)
		log.Debug("已存在，跳过", "bytes", size)
		return out
	}

	total := d.attempts()
	var last attemptResult
	tried := 0
	for i := 0; i < total; i++ {
		if i > 0 {
			wait := d.backoff(i - 1)
			log.Debug("退避后重试", "attempt", i+1, "wait", wait)
			if err := sleepFunc(ctx, wait); err != nil {
				last = terminal(codeCanceled, err)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			last = terminal(codeCanceled, err)
			break
		}
		if d.Limiter != nil {
			if err := d.Limiter.Wait(ctx); err != nil {
				last = terminal(codeCanceled, err)
				break
			}
		}

		tried++
		last = d.attempt(ctx, e.SourceURL, dst)
		if last.kind == attemptOK {
			out.Status = domain.StatusSuccess
			out.Bytes = last.bytes
			out.Attempts = tried
			out.Elapsed = time.Since(started)
			log.Debug("下载完成", "bytes", last.bytes, "attempts", tried)
			return out
		}
		log.Debug("尝试失败", "attempt", tried, "code", last.code, "err", last.err)
		if last.kind == attemptTerminal {
			break
		}
	}

	// 起始时目标不存在，因此此处存在的文件只能是本单元写出的残留。
	if err := fsx.RemoveIfExists(dst); err != nil {
		log.Warn("清理残留文件失败", "err", err)
	}
	return d.fail(out, started, last.code, last.err, tried, total, log)
}

func (d *Downloader) fail(out domain.DownloadOutcome, started time.Time, code string, err error, tried, total int, log *slog.Logger) domain.DownloadOutcome {
	if code == "" {
		code = codeNetwork
	}
	if err == nil {
		err = errors.New("unknown error")
	}
	msg := code + ": " + err.Error()
	if total > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, tried, total)
	}
	out.Status = domain.StatusFailed
	out.ErrorCode = code
	out.Error = msg
	out.Bytes = 0
	out.Attempts = tried
	out.Elapsed = time.Since(started)
	if code == codeCanceled {
		log.Debug("下载取消", "attempts", tried)
	} else {
		log.Warn("下载失败", "code", code, "attempts", tried, "err", err)
	}
	return out
}

// attempt 执行一次完整的 GET + 流式写盘。
// 目标文件只在收到 2xx 之后才创建（截断写入）。
func (d *Downloader) attempt(parent context.Context, srcURL, dst string) attemptResult {
	ctx, cancel := context.WithTimeout(parent, d.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return terminal(codeInvalidRequest, err)
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return classifyTransport(parent, ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return retryable(codeHTTPStatus, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status})
	}

	f, err := os.Create(dst)
	if err != nil {
		return classifyFile(parent, err)
	}
	n, err := d.copyChunks(f, resp.Body)
	cerr := f.Close()
	if err != nil {
		var we *writeError
		if errors.As(err, &we) {
			return classifyFile(parent, we.err)
		}
		return classifyTransport(parent, ctx, err)
	}
	if cerr != nil {
		return classifyFile(parent, cerr)
	}
	return succeeded(n)
}

// copyChunks 以固定大小分块把 body 写入 w。
// *os.File 实现了 ReaderFrom，io.Copy 不保证块大小，这里手写循环。
func (d *Downloader) copyChunks(w io.Writer, r io.Reader) (int64, error) {
	size := d.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := make([]byte, size)
	var written int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, &writeError{err: werr}
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, &readError{err: rerr}
		}
	}
}
