package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/John-Robertt/albumdl/internal/config"
)

// 退出码约定。
const (
	exitOK          = 0
	exitFailed      = 1
	exitUsage       = 2
	exitInterrupted = 130
)

// exitError 让 action 携带退出码返回，由 realMain 统一决定进程退出码。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error { return &exitError{code: code, err: err} }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := realMain(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func realMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := newApp(stdout, stderr)
	err := app.RunContext(ctx, args)
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, ee.err)
		}
		return ee.code
	}
	// urfave/cli 自身的参数解析错误（未知 flag、值类型不对等）。
	fmt.Fprintf(stderr, "参数错误：%v\n", err)
	return exitUsage
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "albumdl",
		Usage:     "下载云盘分享相册中的全部图片",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "输出调试日志到 stderr", EnvVars: []string{"ALBUMDL_VERBOSE"}},
		},
		// 退出码由 realMain 决定；禁止 urfave/cli 直接 os.Exit。
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "列出相册并下载全部图片",
				ArgsUsage: "[album]",
				Flags:     albumFlags(),
				Action:    runAction,
			},
			{
				Name:      "list",
				Usage:     "只列出相册内容与下载计划，不下载",
				ArgsUsage: "[album]",
				Flags:     albumFlags(),
				Action:    listAction,
			},
			{
				Name:      "history",
				Usage:     "查看运行历史（需要配置 ledger）",
				ArgsUsage: "[run_id]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Usage: "配置文件路径（默认 ./" + config.FileName + "）", EnvVars: []string{"ALBUMDL_CONFIG"}},
					&cli.StringFlag{Name: "ledger", Usage: "运行历史数据库路径", EnvVars: []string{"ALBUMDL_LEDGER"}},
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "最多显示的运行次数"},
				},
				Action: historyAction,
			},
		},
	}
}

func albumFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "配置文件路径（默认 ./" + config.FileName + "）", EnvVars: []string{"ALBUMDL_CONFIG"}},
		&cli.StringFlag{Name: "source", Usage: "目录来源：auto|graph|html|manifest", EnvVars: []string{"ALBUMDL_SOURCE"}},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "输出根目录", EnvVars: []string{"ALBUMDL_OUTPUT"}},
		&cli.BoolFlag{Name: "album-subdir", Usage: "在输出根目录下按相册名建子目录", EnvVars: []string{"ALBUMDL_ALBUM_SUBDIR"}},
		&cli.IntFlag{Name: "concurrency", Aliases: []string{"j"}, Usage: "并发下载数", EnvVars: []string{"ALBUMDL_CONCURRENCY"}},
		&cli.IntFlag{Name: "retries", Usage: "每个文件的最大尝试次数", EnvVars: []string{"ALBUMDL_RETRIES"}},
		&cli.DurationFlag{Name: "timeout", Usage: "单次尝试的超时", EnvVars: []string{"ALBUMDL_TIMEOUT"}},
		&cli.BoolFlag{Name: "recursive", Usage: "递归列出子文件夹", EnvVars: []string{"ALBUMDL_RECURSIVE"}},
		&cli.StringFlag{Name: "proxy", Usage: "HTTP 代理地址", EnvVars: []string{"ALBUMDL_PROXY"}},
		&cli.StringFlag{Name: "user-agent", Usage: "请求使用的 User-Agent", EnvVars: []string{"ALBUMDL_USER_AGENT"}},
		&cli.Float64Flag{Name: "rate-limit", Usage: "每秒下载请求数上限（0 表示不限）", EnvVars: []string{"ALBUMDL_RATE_LIMIT"}},
		&cli.StringFlag{Name: "token", Usage: "访问令牌", EnvVars: []string{"ALBUMDL_TOKEN"}},
		&cli.StringFlag{Name: "token-file", Usage: "访问令牌文件（每次请求重新读取）", EnvVars: []string{"ALBUMDL_TOKEN_FILE"}},
		&cli.StringFlag{Name: "ledger", Usage: "运行历史数据库路径（为空则不记录）", EnvVars: []string{"ALBUMDL_LEDGER"}},
	}
}

// cliArgs 把“显式设置过”的 flag/环境变量转成 CLIArgs 指针字段；未设置的保持 nil。
func cliArgs(c *cli.Context) (config.CLIArgs, error) {
	if c.NArg() > 1 {
		return config.CLIArgs{}, fmt.Errorf("只能指定一个相册，实际 %d 个：%v", c.NArg(), c.Args().Slice())
	}
	a := config.CLIArgs{
		Album:      c.Args().First(),
		ConfigPath: c.String("config"),
	}
	if c.IsSet("source") {
		a.Source = ptr(c.String("source"))
	}
	if c.IsSet("output") {
		a.Output = ptr(c.String("output"))
	}
	if c.IsSet("album-subdir") {
		a.AlbumSubdir = ptr(c.Bool("album-subdir"))
	}
	if c.IsSet("concurrency") {
		a.Concurrency = ptr(c.Int("concurrency"))
	}
	if c.IsSet("retries") {
		a.Retries = ptr(c.Int("retries"))
	}
	if c.IsSet("timeout") {
		a.Timeout = ptr(c.Duration("timeout"))
	}
	if c.IsSet("recursive") {
		a.Recursive = ptr(c.Bool("recursive"))
	}
	if c.IsSet("proxy") {
		a.ProxyURL = ptr(c.String("proxy"))
	}
	if c.IsSet("user-agent") {
		a.UserAgent = ptr(c.String("user-agent"))
	}
	if c.IsSet("rate-limit") {
		a.RateLimit = ptr(c.Float64("rate-limit"))
	}
	if c.IsSet("token") {
		a.Token = ptr(c.String("token"))
	}
	if c.IsSet("token-file") {
		a.TokenFile = ptr(c.String("token-file"))
	}
	if c.IsSet("ledger") {
		a.Ledger = ptr(c.String("ledger"))
	}
	return a, nil
}

func ptr[T any](v T) *T { return &v }

// newLogger：日志只走 stderr；默认 Warn，--verbose 打开 Debug。
func newLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelWarn
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level}))
}

func loadConfig(a config.CLIArgs) (config.EffectiveConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.EffectiveConfig{}, exitWith(exitFailed, fmt.Errorf("读取当前目录失败：%w", err))
	}
	eff, err := config.LoadEffective(cwd, a)
	if err != nil {
		return config.EffectiveConfig{}, err
	}
	return eff, nil
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(stderr) {
		return stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(stdout) {
		return stdout, true
	}
	return nil, false
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
