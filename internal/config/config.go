package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingAlbum 表示 CLI 与配置文件都没有给出相册。
	ErrCodeMissingAlbum = "config_missing_album"
)

const (
	// FileName 是 cwd 下自动发现的配置文件名。
	FileName = "albumdl.yaml"

	DefaultOutput       = "downloads"
	DefaultSource       = "auto"
	DefaultConcurrency  = 5
	MaxConcurrency      = 32
	DefaultRetries      = 3
	DefaultTimeout      = 60 * time.Second
	DefaultUserAgent    = "albumdl/0.1"
	DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
)

// CLIArgs 是 CLI（含环境变量）给出的值；nil 表示未显式指定。
// 这能保证覆盖优先级可实现：例如 --recursive=false 必须能覆盖 recursive: true。
type CLIArgs struct {
	Album string

	// ConfigPath 非空时必须存在；为空时尝试 <cwd>/albumdl.yaml（可选）。
	ConfigPath string

	// NoAlbum 供 history 等不需要相册的子命令使用。
	NoAlbum bool

	Source      *string
	Output      *string
	AlbumSubdir *bool
	Concurrency *int
	Retries     *int
	Timeout     *time.Duration
	Recursive   *bool
	ProxyURL    *string
	UserAgent   *string
	RateLimit   *float64
	Token       *string
	TokenFile   *string
	Ledger      *string
}

// FileConfig 对应 albumdl.yaml 的解析结构。
type FileConfig struct {
	Album        string       `yaml:"album"`
	Source       string       `yaml:"source"`
	Output       string       `yaml:"output"`
	AlbumSubdir  *bool        `yaml:"album_subdir"`
	Concurrency  int          `yaml:"concurrency"`
	Retries      *int         `yaml:"retries"`
	Timeout      string       `yaml:"timeout"`
	Recursive    *bool        `yaml:"recursive"`
	Proxy        *ProxyConfig `yaml:"proxy"`
	UserAgent    string       `yaml:"user_agent"`
	RateLimit    float64      `yaml:"rate_limit"`
	GraphBaseURL string       `yaml:"graph_base_url"`
	Token        string       `yaml:"token"`
	TokenFile    string       `yaml:"token_file"`
	Ledger       string       `yaml:"ledger"`
}

type ProxyConfig struct {
	URL string `yaml:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Album  string
	Source string

	// Output 是输出根目录（绝对路径）；AlbumSubdir=true 时实际目录为 Output/<相册名>。
	Output      string
	AlbumSubdir bool

	Concurrency int
	MaxRetries  int
	Timeout     time.Duration
	Recursive   bool

	ProxyURL  string
	UserAgent string
	// RateLimit 是每秒请求数上限；0 表示不限速。
	RateLimit float64

	GraphBaseURL string

	Token     string
	TokenFile string

	// Ledger 为空表示不记录运行历史。
	Ledger string

	// ConfigPath 是实际读取的配置文件；未读取任何文件时为空。
	ConfigPath string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingAlbum:
		return fmt.Sprintf("%s：未指定相册（命令行参数或配置文件 album 字段）", e.Code)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) CLI 给了 --config：必须存在
// 2) 否则尝试 <cwd>/albumdl.yaml（可选）
//
// 覆盖优先级：CLI/环境变量 > 配置文件 > 内置默认值。
// 相对路径：CLI 值相对 cwd；配置文件中的值相对配置文件所在目录。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	required := false
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		required = true
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		if required {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
		cfgPath = ""
	}

	eff, err := merge(cwdAbs, cli, fc, cfgPath)
	if err != nil {
		return EffectiveConfig{}, err
	}
	if eff.Album == "" && !cli.NoAlbum {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingAlbum, Path: cfgPath}
	}
	return eff, nil
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		p := cfgPath
		if p == "" {
			p = "<cli>"
		}
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
	}

	cfgDir := cwdAbs
	if cfgPath != "" {
		cfgDir = filepath.Dir(cfgPath)
	}

	eff := EffectiveConfig{
		Source:       DefaultSource,
		Output:       filepath.Join(cwdAbs, DefaultOutput),
		AlbumSubdir:  true,
		Concurrency:  DefaultConcurrency,
		MaxRetries:   DefaultRetries,
		Timeout:      DefaultTimeout,
		Recursive:    true,
		UserAgent:    DefaultUserAgent,
		GraphBaseURL: DefaultGraphBaseURL,
		ConfigPath:   cfgPath,
	}

	// album：CLI > config。本地清单路径按来源处解析为绝对路径。
	if a := strings.TrimSpace(cli.Album); a != "" {
		eff.Album = resolveRef(cwdAbs, a)
	} else if a := strings.TrimSpace(fc.Album); a != "" {
		eff.Album = resolveRef(cfgDir, a)
	}

	if v := strings.TrimSpace(fc.Source); v != "" {
		eff.Source = strings.ToLower(v)
	}
	if cli.Source != nil {
		eff.Source = strings.ToLower(strings.TrimSpace(*cli.Source))
	}
	if err := validateSource(eff.Source); err != nil {
		return invalid(err)
	}

	if v := strings.TrimSpace(fc.Output); v != "" {
		eff.Output = absCleanFrom(cfgDir, v)
	}
	if cli.Output != nil {
		if strings.TrimSpace(*cli.Output) == "" {
			return invalid(errors.New("output 不能为空"))
		}
		eff.Output = absCleanFrom(cwdAbs, *cli.Output)
	}

	if fc.AlbumSubdir != nil {
		eff.AlbumSubdir = *fc.AlbumSubdir
	}
	if cli.AlbumSubdir != nil {
		eff.AlbumSubdir = *cli.AlbumSubdir
	}

	// concurrency：配置文件 0 视为未指定；CLI 显式给 0 或负数是错误。超过上限截断。
	if fc.Concurrency < 0 {
		return invalid(fmt.Errorf("concurrency 必须 >= 1，实际 %d", fc.Concurrency))
	}
	if fc.Concurrency > 0 {
		eff.Concurrency = fc.Concurrency
	}
	if cli.Concurrency != nil {
		if *cli.Concurrency < 1 {
			return invalid(fmt.Errorf("concurrency 必须 >= 1，实际 %d", *cli.Concurrency))
		}
		eff.Concurrency = *cli.Concurrency
	}
	if eff.Concurrency > MaxConcurrency {
		eff.Concurrency = MaxConcurrency
	}

	if fc.Retries != nil {
		eff.MaxRetries = *fc.Retries
	}
	if cli.Retries != nil {
		eff.MaxRetries = *cli.Retries
	}
	if eff.MaxRetries < 0 {
		return invalid(fmt.Errorf("retries 必须 >= 0，实际 %d", eff.MaxRetries))
	}

	if v := strings.TrimSpace(fc.Timeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return invalid(fmt.Errorf("timeout 无效：%w", err))
		}
		eff.Timeout = d
	}
	if cli.Timeout != nil {
		eff.Timeout = *cli.Timeout
	}
	if eff.Timeout <= 0 {
		return invalid(fmt.Errorf("timeout 必须 > 0，实际 %s", eff.Timeout))
	}

	if fc.Recursive != nil {
		eff.Recursive = *fc.Recursive
	}
	if cli.Recursive != nil {
		eff.Recursive = *cli.Recursive
	}

	if fc.Proxy != nil {
		eff.ProxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if cli.ProxyURL != nil {
		eff.ProxyURL = strings.TrimSpace(*cli.ProxyURL)
	}
	if eff.ProxyURL != "" {
		u, err := url.Parse(eff.ProxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid(fmt.Errorf("proxy.url 无效：%q", eff.ProxyURL))
		}
	}

	if v := strings.TrimSpace(fc.UserAgent); v != "" {
		eff.UserAgent = v
	}
	if cli.UserAgent != nil && strings.TrimSpace(*cli.UserAgent) != "" {
		eff.UserAgent = strings.TrimSpace(*cli.UserAgent)
	}

	eff.RateLimit = fc.RateLimit
	if cli.RateLimit != nil {
		eff.RateLimit = *cli.RateLimit
	}
	if eff.RateLimit < 0 {
		return invalid(fmt.Errorf("rate_limit 必须 >= 0，实际 %v", eff.RateLimit))
	}

	if v := strings.TrimSpace(fc.GraphBaseURL); v != "" {
		u, err := url.Parse(v)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return invalid(fmt.Errorf("graph_base_url 必须是 http/https：%q", v))
		}
		eff.GraphBaseURL = strings.TrimRight(v, "/")
	}

	eff.Token = strings.TrimSpace(fc.Token)
	if cli.Token != nil {
		eff.Token = strings.TrimSpace(*cli.Token)
	}
	if v := strings.TrimSpace(fc.TokenFile); v != "" {
		eff.TokenFile = absCleanFrom(cfgDir, v)
	}
	if cli.TokenFile != nil {
		eff.TokenFile = ""
		if v := strings.TrimSpace(*cli.TokenFile); v != "" {
			eff.TokenFile = absCleanFrom(cwdAbs, v)
		}
	}

	if v := strings.TrimSpace(fc.Ledger); v != "" {
		eff.Ledger = absCleanFrom(cfgDir, v)
	}
	if cli.Ledger != nil {
		eff.Ledger = ""
		if v := strings.TrimSpace(*cli.Ledger); v != "" {
			eff.Ledger = absCleanFrom(cwdAbs, v)
		}
	}

	return eff, nil
}

func validateSource(s string) error {
	switch s {
	case "auto", "graph", "html", "manifest":
		return nil
	case "":
		return fmt.Errorf("source 不能为空")
	default:
		return fmt.Errorf("source 只能是 auto|graph|html|manifest，实际是 %q", s)
	}
}

// resolveRef：URL 原样返回；其余视为本地路径，以 base 为基准变为绝对路径。
func resolveRef(base, ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" && u.Host != "" {
		return ref
	}
	return absCleanFrom(base, ref)
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
