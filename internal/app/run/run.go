package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/John-Robertt/albumdl/internal/app/download"
	"github.com/John-Robertt/albumdl/internal/app/planner"
	"github.com/John-Robertt/albumdl/internal/catalog"
	"github.com/John-Robertt/albumdl/internal/catalog/graph"
	"github.com/John-Robertt/albumdl/internal/catalog/htmlindex"
	"github.com/John-Robertt/albumdl/internal/catalog/manifest"
	"github.com/John-Robertt/albumdl/internal/config"
	"github.com/John-Robertt/albumdl/internal/credential"
	"github.com/John-Robertt/albumdl/internal/domain"
	"github.com/John-Robertt/albumdl/internal/fname"
	"github.com/John-Robertt/albumdl/internal/infra/httpx"
)

const (
	// StateDir 是输出目录下存放运行产物（report.json / catalog.yaml）的子目录。
	// 以 '.' 开头：清洗后的图片文件名不会与之冲突。
	StateDir = ".albumdl"
	// SnapshotName 是目录快照文件名；快照是合法的 manifest，可作为 manifest 来源重跑。
	SnapshotName = "catalog.yaml"
)

// SetupError 是“任何下载开始之前”的失败：整次运行没有产生条目。
type SetupError struct {
	Code string
	Err  error
}

func (e *SetupError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }

func (e *SetupError) Unwrap() error { return e.Err }

// ErrorCode 从 error 中提取 SetupError.Code；否则返回空串。
func ErrorCode(err error) string {
	var se *SetupError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Deps 是运行期依赖；零值字段由 eff 构造默认实现（测试可替换）。
type Deps struct {
	// Registry 为 nil 时使用 NewRegistry(eff, APIClient)。
	Registry       *catalog.Registry
	APIClient      *http.Client
	DownloadClient *http.Client

	Observer Observer
	Logger   *slog.Logger

	// BackoffBase 透传给 Downloader；0 表示默认值。
	BackoffBase time.Duration
}

// NewRegistry 注册全部内置 catalog 来源。
func NewRegistry(eff config.EffectiveConfig, api *http.Client) (catalog.Registry, error) {
	return catalog.NewRegistry(
		graph.Provider{BaseURL: eff.GraphBaseURL, Client: api},
		htmlindex.Provider{Client: api},
		manifest.Provider{},
	)
}

// Credentials 按 token > token_file 的顺序组合凭据来源；两者都没有时返回 nil。
func Credentials(eff config.EffectiveConfig) credential.Source {
	var srcs []credential.Source
	if eff.Token != "" {
		srcs = append(srcs, credential.Static(eff.Token))
	}
	if eff.TokenFile != "" {
		srcs = append(srcs, credential.File{Path: eff.TokenFile})
	}
	if len(srcs) == 0 {
		return nil
	}
	return credential.Chain(srcs...)
}

// Listing 是 catalog + plan 的结果（list 子命令直接输出它）。
type Listing struct {
	Album     string
	AlbumName string
	Source    string
	Output    string

	// Excluded 是 catalog 返回但没有下载地址的条目数。
	Excluded int
	Entries  []domain.CatalogEntry
	Plan     []domain.PlannedItem
	Summary  planner.Summary
}

type session struct {
	eff      config.EffectiveConfig
	deps     Deps
	obs      Observer
	log      *slog.Logger
	download *http.Client
}

func newSession(eff config.EffectiveConfig, deps Deps) (*session, error) {
	s := &session{eff: eff, deps: deps, obs: deps.Observer, log: deps.Logger}
	if s.obs == nil {
		s.obs = nopObserver{}
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}

	opts := httpx.ClientOptions{
		ProxyURL:        eff.ProxyURL,
		UserAgent:       eff.UserAgent,
		Token:           Credentials(eff),
		MaxConnsPerHost: eff.Concurrency,
	}
	if s.deps.APIClient == nil {
		c, err := httpx.NewAPIClient(opts)
		if err != nil {
			return nil, &SetupError{Code: domain.ErrCodeConfigInvalid, Err: fmt.Errorf("proxy.url 无效：%w", err)}
		}
		s.deps.APIClient = c
	}
	s.download = deps.DownloadClient
	if s.download == nil {
		c, err := httpx.NewDownloadClient(opts)
		if err != nil {
			return nil, &SetupError{Code: domain.ErrCodeConfigInvalid, Err: fmt.Errorf("proxy.url 无效：%w", err)}
		}
		s.download = c
	}
	if s.deps.Registry == nil {
		reg, err := NewRegistry(eff, s.deps.APIClient)
		if err != nil {
			return nil, &SetupError{Code: domain.ErrCodeConfigInvalid, Err: err}
		}
		s.deps.Registry = &reg
	}
	return s, nil
}

// List 只解析目录并生成下载计划，不写任何文件。
func List(ctx context.Context, eff config.EffectiveConfig, deps Deps) (Listing, error) {
	s, err := newSession(eff, deps)
	if err != nil {
		return Listing{}, err
	}
	s.obs.OnStart(eff)
	return s.prepare(ctx)
}

// Execute 执行一次完整运行：catalog → plan → download，返回对外稳定的 RunReport。
//
// setup 阶段失败时返回 *SetupError，同时 report 的 ErrorCode/ErrorMsg 被填充（Items 为空）；
// 单个条目的失败只体现在 Items 中，不会让 Execute 返回 error。
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps) (domain.RunReport, error) {
	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Album:     eff.Album,
		Source:    eff.Source,
		Output:    eff.Output,
		StartedAt: time.Now(),
	}
	fail := func(err error) (domain.RunReport, error) {
		var se *SetupError
		if !errors.As(err, &se) {
			se = &SetupError{Code: domain.ErrCodeIOFailed, Err: err}
		}
		rr.ErrorCode = se.Code
		rr.ErrorMsg = se.Err.Error()
		rr.Interrupted = ctx.Err() != nil
		rr.FinishedAt = time.Now()
		rr.Finalize()
		return rr, se
	}

	s, err := newSession(eff, deps)
	if err != nil {
		return fail(err)
	}
	s.obs.OnStart(eff)

	ls, err := s.prepare(ctx)
	if err != nil {
		return fail(err)
	}
	rr.AlbumName = ls.AlbumName
	rr.Source = ls.Source
	rr.Output = ls.Output

	var limiter *rate.Limiter
	if eff.RateLimit > 0 {
		burst := int(eff.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(eff.RateLimit), burst)
	}

	d := &download.Downloader{
		Client:      s.download,
		OutputRoot:  ls.Output,
		MaxRetries:  eff.MaxRetries,
		Timeout:     eff.Timeout,
		BackoffBase: s.deps.BackoffBase,
		Limiter:     limiter,
		Logger:      s.log,
	}

	workers := eff.Concurrency
	if workers > len(ls.Entries) {
		workers = len(ls.Entries)
	}
	s.obs.OnPhaseDone("download", map[string]any{
		"workers": workers,
		"total":   len(ls.Entries),
	}, 0)

	started := time.Now()
	items, err := d.DownloadAll(ctx, ls.Entries, eff.Concurrency, download.SinkFunc(s.obs.OnItemDone))
	if err != nil {
		if errors.Is(err, download.ErrInvalidConcurrency) {
			return fail(&SetupError{Code: domain.ErrCodeConfigInvalid, Err: err})
		}
		return fail(&SetupError{Code: domain.ErrCodeIOFailed, Err: err})
	}
	s.log.Debug("下载阶段结束", "items", len(items), "elapsed", time.Since(started))

	snap := manifest.File{Name: ls.AlbumName, Items: ls.Entries}
	if err := manifest.Save(filepath.Join(ls.Output, StateDir), SnapshotName, snap); err != nil {
		s.log.Warn("写入目录快照失败", "error", err)
	}

	rr.Items = items
	rr.Interrupted = ctx.Err() != nil
	rr.FinishedAt = time.Now()
	rr.Finalize()
	return rr, nil
}

// prepare 完成 catalog 与 plan 两个阶段。
func (s *session) prepare(ctx context.Context) (Listing, error) {
	eff := s.eff
	ls := Listing{Album: eff.Album, Output: eff.Output}

	p, err := s.deps.Registry.Resolve(eff.Source, eff.Album)
	if err != nil {
		return Listing{}, &SetupError{Code: domain.ErrCodeConfigInvalid, Err: err}
	}
	ls.Source = p.Name()

	catalogStarted := time.Now()
	if namer, ok := p.(catalog.AlbumNamer); ok {
		name, err := namer.AlbumName(ctx, eff.Album)
		if err != nil {
			return Listing{}, classifyCatalog(ctx, p.Name(), "resolve", err)
		}
		ls.AlbumName = name
	}

	entries, err := p.ListImages(ctx, eff.Album, eff.Recursive)
	if err != nil {
		return Listing{}, classifyCatalog(ctx, p.Name(), "list", err)
	}
	ls.Entries = make([]domain.CatalogEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Downloadable() {
			ls.Excluded++
			continue
		}
		ls.Entries = append(ls.Entries, e)
	}
	s.obs.OnPhaseDone("catalog", map[string]any{
		"source":   ls.Source,
		"album":    ls.AlbumName,
		"images":   len(ls.Entries),
		"excluded": ls.Excluded,
	}, time.Since(catalogStarted))
	s.log.Debug("catalog 完成", "source", ls.Source, "images", len(ls.Entries), "excluded", ls.Excluded)

	if eff.AlbumSubdir && ls.AlbumName != "" {
		ls.Output = filepath.Join(eff.Output, fname.Sanitize(ls.AlbumName))
	}

	planStarted := time.Now()
	st, err := planner.ReadOutState(ls.Output)
	if err != nil {
		return Listing{}, &SetupError{Code: domain.ErrCodeIOFailed, Err: fmt.Errorf("读取输出目录失败：%w", err)}
	}
	ls.Plan, ls.Summary = planner.Plan(ls.Entries, st)
	s.obs.OnPhaseDone("plan", map[string]any{
		"items":       ls.Summary.Items,
		"existing":    ls.Summary.Existing,
		"to_download": ls.Summary.ToDownload,
		"conflicts":   ls.Summary.Conflicts,
		"collisions":  ls.Summary.Collisions,
	}, time.Since(planStarted))
	if ls.Summary.Collisions > 0 {
		s.log.Warn("多个条目清洗后同名，只会保留其中一个文件", "collisions", ls.Summary.Collisions)
	}
	return ls, nil
}

func classifyCatalog(ctx context.Context, provider, stage string, err error) error {
	var wrapped error = err
	var ce *catalog.Error
	if !errors.As(err, &ce) {
		wrapped = &catalog.Error{Provider: provider, Stage: stage, Err: err}
	}
	switch {
	case ctx.Err() != nil:
		return &SetupError{Code: domain.ErrCodeCanceled, Err: wrapped}
	case httpx.IsCredential(err), errors.Is(err, catalog.ErrUnauthorized):
		return &SetupError{Code: domain.ErrCodeAuthFailed, Err: wrapped}
	default:
		return &SetupError{Code: domain.ErrCodeCatalogFailed, Err: wrapped}
	}
}
