package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/John-Robertt/albumdl/internal/credential"
)

const (
	// DefaultUserAgent 在配置未指定 user_agent 时使用。
	DefaultUserAgent = "albumdl/0.1"

	apiTimeout      = 30 * time.Second
	apiRetryMax     = 2
	apiRetryBackoff = 500 * time.Millisecond
)

// apiHeaderTimeout 只约束 API client 等待响应头的时长；下载 client 不设，由下载单元的单次尝试 ctx 统一约束。
// 用 var 以便测试缩短。
var apiHeaderTimeout = 30 * time.Second

// 通过可替换的函数指针，让测试不必真的等待退避。
var backoffFunc = backoff

// CredentialError 表示在发请求前获取访问令牌失败。
// 上层可把它映射为 error_code=auth_failed。
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string { return fmt.Sprintf("获取访问令牌失败：%v", e.Err) }

func (e *CredentialError) Unwrap() error { return e.Err }

// IsCredential 判断 err 链中是否有 CredentialError。
func IsCredential(err error) bool {
	var e *CredentialError
	return errors.As(err, &e)
}

// Transport 把“UA + bearer token + 代理 + keep-alive 策略 + 有界重试”固化为统一策略。
//
// 设计目标：catalog provider 只负责“请求哪个 URL + 解析响应”，不关心网络策略细节。
type Transport struct {
	Base *http.Transport

	UserAgent string

	// Token 非空时为每个请求注入 Authorization: Bearer（调用方已设置则不覆盖）。
	// Token 返回 credential.ErrNoToken 时按匿名请求处理。
	Token credential.Source

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	// 对网络错误与 429/5xx 响应生效；下载客户端必须为 0（重试由下载单元负责）。
	RetryMax int

	// DisableKeepAlives 决定是否对 Request 设置 Close=true（额外保险）。
	// 真正禁用 keep-alive 依赖 Base.DisableKeepAlives。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	bearer := ""
	if t.Token != nil && req.Header.Get("Authorization") == "" {
		tok, err := credential.Optional(req.Context(), t.Token)
		if err != nil {
			return nil, &CredentialError{Err: err}
		}
		bearer = tok
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		if attempt > 0 {
			if err := backoffFunc(req.Context(), attempt); err != nil {
				// 保留 ctx 错误，调用方可以用 errors.Is(err, context.Canceled) 判断。
				return nil, errors.Join(lastErr, err)
			}
		}

		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", t.userAgent())
		}
		if bearer != "" {
			r.Header.Set("Authorization", "Bearer "+bearer)
		}
		if t.DisableKeepAlives {
			r.Close = true
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			if attempt < max && retryableStatus(resp.StatusCode) {
				// 丢弃 body 以便连接复用；最后一次尝试则把响应原样交给调用方。
				_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
				_ = resp.Body.Close()
				lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
				continue
			}
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试，直接返回最后错误（更可解释）。
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (t *Transport) userAgent() string {
	if ua := strings.TrimSpace(t.UserAgent); ua != "" {
		return ua
	}
	return DefaultUserAgent
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func backoff(ctx context.Context, attempt int) error {
	d := apiRetryBackoff * time.Duration(1<<(attempt-1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ClientOptions 是构造 HTTP client 的公共参数。
type ClientOptions struct {
	ProxyURL  string
	UserAgent string

	// Token 只对 API client 生效；下载地址是预签名 URL，不携带凭据。
	Token credential.Source

	// MaxConnsPerHost 用于下载 client：通常等于并发上限。
	MaxConnsPerHost int
}

// NewAPIClient 构造用于目录（catalog）请求的 HTTP client。
//
// 规则：
// - proxyURL 非空：走代理，且禁用 keep-alive（每请求新连接）
// - 注入 UA 与 bearer token
// - 有界重试 + 总超时
func NewAPIClient(opts ClientOptions) (*http.Client, error) {
	tr, err := newTransport(opts, apiRetryMax)
	if err != nil {
		return nil, err
	}
	tr.Token = opts.Token
	tr.Base.TLSHandshakeTimeout = 10 * time.Second
	tr.Base.ResponseHeaderTimeout = apiHeaderTimeout
	return &http.Client{
		Transport: tr,
		Timeout:   apiTimeout,
	}, nil
}

// NewDownloadClient 构造用于图片下载的 HTTP client。
//
// 规则：
// - 不重试、不设总超时、不设握手/响应头超时：单次尝试的连接、响应头与 body 都只受下载单元的 ctx 约束
// - 不携带凭据
func NewDownloadClient(opts ClientOptions) (*http.Client, error) {
	tr, err := newTransport(opts, 0)
	if err != nil {
		return nil, err
	}
	if opts.MaxConnsPerHost > 0 {
		tr.Base.MaxIdleConnsPerHost = opts.MaxConnsPerHost
	}
	return &http.Client{Transport: tr}, nil
}

func newTransport(opts ClientOptions, retryMax int) (*Transport, error) {
	base := &http.Transport{Proxy: nil}

	disableKeepAlives := false
	if proxyURL := strings.TrimSpace(opts.ProxyURL); proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("proxy.url 缺少 scheme 或 host：%q", proxyURL)
		}
		base.Proxy = http.ProxyURL(u)
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	return &Transport{
		Base:              base,
		UserAgent:         opts.UserAgent,
		RetryMax:          retryMax,
		DisableKeepAlives: disableKeepAlives,
	}, nil
}
