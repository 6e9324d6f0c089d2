package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/albumdl/internal/app/run"
	"github.com/John-Robertt/albumdl/internal/bytesize"
	"github.com/John-Robertt/albumdl/internal/config"
	"github.com/John-Robertt/albumdl/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	fail    int
	skip    int
	bytes   int64

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] albumdl\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	}
	fmt.Fprintf(p.w, "  album: %s\n", truncate(eff.Album, 120))
	fmt.Fprintf(p.w, "  source: %s\n", eff.Source)
	fmt.Fprintf(p.w, "  output: %s (album_subdir=%s)\n", eff.Output, onOff(eff.AlbumSubdir))
	fmt.Fprintf(p.w, "  concurrency: %d retries: %d timeout: %s\n", eff.Concurrency, eff.MaxRetries, eff.Timeout)
	fmt.Fprintf(p.w, "  recursive: %s\n", onOff(eff.Recursive))
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	if eff.RateLimit > 0 {
		fmt.Fprintf(p.w, "  rate_limit: %g/s\n", eff.RateLimit)
	}
	fmt.Fprintf(p.w, "  token: %s\n", tokenSource(eff))
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "catalog":
		fmt.Fprintf(p.w, "目录: source=%s album=%q images=%d excluded=%d (%s)\n",
			stringField(fields, "source"), stringField(fields, "album"),
			intField(fields, "images"), intField(fields, "excluded"), formatShortDuration(dur),
		)
	case "plan":
		fmt.Fprintf(p.w, "规划: items=%d existing=%d to_download=%d conflicts=%d collisions=%d (%s)\n",
			intField(fields, "items"),
			intField(fields, "existing"),
			intField(fields, "to_download"),
			intField(fields, "conflicts"),
			intField(fields, "collisions"),
			formatShortDuration(dur),
		)
	case "download":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total")
		fmt.Fprintf(p.w, "下载: workers=%d total=%d\n\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, out domain.DownloadOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// idx/total 由下载阶段给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = idx
	p.total = total

	switch out.Status {
	case domain.StatusSuccess:
		p.ok++
		p.bytes += out.Bytes
		fmt.Fprintf(p.w, "[%d/%d] OK %s %s (%s)\n",
			idx, total, out.Filename, bytesize.Format(out.Bytes), formatShortDuration(out.Elapsed),
		)
	case domain.StatusSkipped:
		p.skip++
		p.bytes += out.Bytes
		fmt.Fprintf(p.w, "[%d/%d] SKIP %s (已存在 %s)\n", idx, total, out.Filename, bytesize.Format(out.Bytes))
	default:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] FAIL %s %s: %s (%s)\n",
			idx, total, out.Filename, out.ErrorCode, truncate(out.Error, 160), formatShortDuration(out.Elapsed),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

// Stop 停止 keepalive（运行提前结束时由 CLI 调用；可重复调用）。
func (p *progressUI) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) stopTickerLocked() {
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) progressLineLocked() string {
	active := p.workers
	if remain := p.total - p.done; remain < active {
		active = remain
	}
	return fmt.Sprintf("进度: done=%d/%d ok=%d fail=%d skip=%d active=%d size=%s elapsed=%s",
		p.done, p.total, p.ok, p.fail, p.skip, active, bytesize.Format(p.bytes), formatElapsed(time.Since(p.startedAt)),
	)
}

func (p *progressUI) startTickerLocked() {
	stop := make(chan struct{})
	p.stopCh = stop
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintln(p.w, p.progressLineLocked())
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func tokenSource(eff config.EffectiveConfig) string {
	switch {
	case eff.Token != "":
		return "static"
	case eff.TokenFile != "":
		return "file (" + eff.TokenFile + ")"
	default:
		return "none"
	}
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
