package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/John-Robertt/albumdl/internal/app/run"
	"github.com/John-Robertt/albumdl/internal/bytesize"
	"github.com/John-Robertt/albumdl/internal/config"
	"github.com/John-Robertt/albumdl/internal/domain"
	"github.com/John-Robertt/albumdl/internal/infra/fsx"
	"github.com/John-Robertt/albumdl/internal/infra/ledger"
)

func runAction(c *cli.Context) error {
	stdout, stderr := c.App.Writer, c.App.ErrWriter
	logger := newLogger(c)

	args, err := cliArgs(c)
	if err != nil {
		return exitWith(exitUsage, err)
	}
	eff, err := loadConfig(args)
	if err != nil {
		if code := config.Code(err); code != "" {
			emitReport(stdout, stderr, reportForConfigError(args, err))
			return exitWith(exitUsage, nil)
		}
		return err
	}

	progressW, interactive := pickProgressWriter(stdout, stderr)
	deps := run.Deps{Logger: logger}
	var ui *progressUI
	if interactive {
		ui = newProgressUI(progressW)
		deps.Observer = ui
	}

	rr, runErr := run.Execute(c.Context, eff, deps)
	if ui != nil {
		ui.Stop()
	}

	if runErr == nil {
		if err := writeReportFile(rr.Output, rr); err != nil {
			logger.Warn("写入 report.json 失败", "error", err)
		}
	}
	if eff.Ledger != "" {
		recordLedger(eff.Ledger, rr, logger.Warn)
	}

	emitReport(stdout, stderr, rr)
	if interactive && runErr == nil {
		emitLocations(progressW, rr, eff.Ledger)
	}
	return exitFor(rr, runErr)
}

// exitFor 把运行结果映射到退出码（错误信息已在报告中输出，这里不再重复）。
func exitFor(rr domain.RunReport, runErr error) error {
	switch {
	case rr.Interrupted:
		return exitWith(exitInterrupted, nil)
	case run.ErrorCode(runErr) == domain.ErrCodeConfigInvalid:
		return exitWith(exitUsage, nil)
	case runErr != nil, !rr.OK():
		return exitWith(exitFailed, nil)
	}
	return nil
}

func recordLedger(path string, rr domain.RunReport, warn func(string, ...any)) {
	l, err := ledger.Open(path)
	if err != nil {
		warn("打开 ledger 失败", "path", path, "error", err)
		return
	}
	defer l.Close()

	// 运行可能已被取消；记录历史使用独立的短超时。
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.RecordRun(ctx, rr); err != nil {
		warn("写入 ledger 失败", "path", path, "error", err)
	}
}

func listAction(c *cli.Context) error {
	stdout, stderr := c.App.Writer, c.App.ErrWriter

	args, err := cliArgs(c)
	if err != nil {
		return exitWith(exitUsage, err)
	}
	eff, err := loadConfig(args)
	if err != nil {
		if config.Code(err) != "" {
			return exitWith(exitUsage, err)
		}
		return err
	}

	deps := run.Deps{Logger: newLogger(c)}
	if progressW, interactive := pickProgressWriter(stdout, stderr); interactive {
		deps.Observer = newProgressUI(progressW)
	}

	ls, err := run.List(c.Context, eff, deps)
	if err != nil {
		switch {
		case c.Context.Err() != nil:
			return exitWith(exitInterrupted, err)
		case run.ErrorCode(err) == domain.ErrCodeConfigInvalid:
			return exitWith(exitUsage, err)
		}
		return exitWith(exitFailed, err)
	}

	if isTTY(stdout) {
		printListing(stdout, ls)
		return nil
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(listingView(ls))
}

type listItem struct {
	Filename  string `json:"filename"`
	SourceURL string `json:"source_url"`
	Size      int64  `json:"declared_size"`
	MediaType string `json:"media_type"`
	Dest      string `json:"dest"`
	Exists    bool   `json:"exists"`
	Conflict  string `json:"conflict,omitempty"`
	Collision bool   `json:"collision,omitempty"`
}

type listView struct {
	Album      string     `json:"album"`
	AlbumName  string     `json:"album_name"`
	Source     string     `json:"source"`
	Output     string     `json:"output"`
	Excluded   int        `json:"excluded"`
	Existing   int        `json:"existing"`
	ToDownload int        `json:"to_download"`
	Conflicts  int        `json:"conflicts"`
	Collisions int        `json:"collisions"`
	Items      []listItem `json:"items"`
}

func listingView(ls run.Listing) listView {
	v := listView{
		Album:      ls.Album,
		AlbumName:  ls.AlbumName,
		Source:     ls.Source,
		Output:     ls.Output,
		Excluded:   ls.Excluded,
		Existing:   ls.Summary.Existing,
		ToDownload: ls.Summary.ToDownload,
		Conflicts:  ls.Summary.Conflicts,
		Collisions: ls.Summary.Collisions,
		Items:      make([]listItem, 0, len(ls.Plan)),
	}
	for _, p := range ls.Plan {
		v.Items = append(v.Items, listItem{
			Filename:  p.Filename,
			SourceURL: p.Entry.SourceURL,
			Size:      p.Entry.DeclaredSize,
			MediaType: p.Entry.MediaType,
			Dest:      p.Dest,
			Exists:    p.Exists,
			Conflict:  p.Conflict,
			Collision: p.Collision,
		})
	}
	return v
}

func printListing(w io.Writer, ls run.Listing) {
	var declared int64
	for _, p := range ls.Plan {
		mark := " "
		switch {
		case p.Conflict != "":
			mark = "!"
		case p.Exists:
			mark = "="
		case p.Collision:
			mark = "~"
		}
		size := "?"
		if p.Entry.DeclaredSize > 0 {
			size = bytesize.Format(p.Entry.DeclaredSize)
			declared += p.Entry.DeclaredSize
		}
		fmt.Fprintf(w, "%s %-10s %s\n", mark, size, p.Filename)
	}
	fmt.Fprintf(w, "\n相册：%s（%s）\n", ls.AlbumName, ls.Source)
	fmt.Fprintf(w, "输出：%s\n", ls.Output)
	fmt.Fprintf(w, "图片：%d（待下载 %d，已存在 %d，冲突 %d，重名 %d，无下载地址 %d）\n",
		len(ls.Plan), ls.Summary.ToDownload, ls.Summary.Existing, ls.Summary.Conflicts, ls.Summary.Collisions, ls.Excluded,
	)
	if declared > 0 {
		fmt.Fprintf(w, "声明大小合计：%s\n", bytesize.Format(declared))
	}
}

func historyAction(c *cli.Context) error {
	stdout := c.App.Writer

	if c.NArg() > 1 {
		return exitWith(exitUsage, fmt.Errorf("只能指定一个 run_id"))
	}
	a := config.CLIArgs{ConfigPath: c.String("config"), NoAlbum: true}
	if c.IsSet("ledger") {
		a.Ledger = ptr(c.String("ledger"))
	}
	eff, err := loadConfig(a)
	if err != nil {
		if config.Code(err) != "" {
			return exitWith(exitUsage, err)
		}
		return err
	}
	if eff.Ledger == "" {
		return exitWith(exitUsage, errors.New("未配置 ledger：使用 --ledger 或在配置文件中设置 ledger"))
	}

	l, err := ledger.Open(eff.Ledger)
	if err != nil {
		return exitWith(exitFailed, err)
	}
	defer l.Close()

	if id := c.Args().First(); id != "" {
		items, err := l.Items(c.Context, id)
		if err != nil {
			return exitWith(exitFailed, err)
		}
		if !isTTY(stdout) {
			if items == nil {
				items = []domain.DownloadOutcome{}
			}
			return json.NewEncoder(stdout).Encode(items)
		}
		for _, it := range items {
			fmt.Fprintf(stdout, "%-7s %-10s %s", strings.ToUpper(it.Status), bytesize.Format(it.Bytes), it.Filename)
			if it.Error != "" {
				fmt.Fprintf(stdout, "  %s", it.Error)
			}
			fmt.Fprintln(stdout)
		}
		return nil
	}

	runs, err := l.RecentRuns(c.Context, c.Int("limit"))
	if err != nil {
		return exitWith(exitFailed, err)
	}
	if !isTTY(stdout) {
		if runs == nil {
			runs = []ledger.RunSummary{}
		}
		return json.NewEncoder(stdout).Encode(runs)
	}
	for _, r := range runs {
		state := "ok"
		switch {
		case r.Interrupted:
			state = "interrupted"
		case r.ErrorCode != "":
			state = r.ErrorCode
		case r.Stats.Failed > 0:
			state = "failed"
		}
		fmt.Fprintf(stdout, "%s  %s  %-11s total=%d downloaded=%d skipped=%d failed=%d size=%s  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.RunID, state,
			r.Stats.Total, r.Stats.Downloaded, r.Stats.Skipped, r.Stats.Failed, bytesize.Format(r.Stats.TotalBytes),
			albumLabel(r),
		)
	}
	return nil
}

func albumLabel(r ledger.RunSummary) string {
	if r.AlbumName != "" {
		return r.AlbumName
	}
	return r.Album
}

func summaryLine(s domain.AggregateStats) string {
	return fmt.Sprintf("完成：downloaded=%d skipped=%d failed=%d total=%d size=%s",
		s.Downloaded, s.Skipped, s.Failed, s.Total, bytesize.Format(s.TotalBytes),
	)
}

func emitReport(stdout, stderr io.Writer, rr domain.RunReport) {
	if rr.ErrorCode != "" {
		fmt.Fprintf(stderr, "%s: %s\n", rr.ErrorCode, rr.ErrorMsg)
	}
	if rr.Interrupted {
		fmt.Fprintln(stderr, "运行已中断")
	}

	if isTTY(stdout) {
		fmt.Fprintln(stdout, summaryLine(rr.Summary))
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed {
				continue
			}
			fmt.Fprintf(stderr, "%s %s: %s\n", it.Filename, it.ErrorCode, it.Error)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, summaryLine(rr.Summary))
}

func reportForConfigError(a config.CLIArgs, err error) domain.RunReport {
	now := time.Now()
	rr := domain.RunReport{
		Album:      a.Album,
		StartedAt:  now,
		FinishedAt: now,
		ErrorCode:  config.Code(err),
		ErrorMsg:   err.Error(),
	}
	rr.Finalize()
	return rr
}

func writeReportFile(output string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomic(filepath.Join(output, run.StateDir), "report.json", b)
}

func emitLocations(w io.Writer, rr domain.RunReport, ledgerPath string) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "out: %s\n", rr.Output)
	fmt.Fprintf(w, "report: %s\n", filepath.Join(rr.Output, run.StateDir, "report.json"))
	if ledgerPath != "" {
		fmt.Fprintf(w, "ledger: %s (run_id=%s)\n", ledgerPath, rr.RunID)
	}
}
