package download

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

type attemptKind int

const (
	attemptOK attemptKind = iota
	// attemptRetryable：若还有剩余次数，退避后重试。
	attemptRetryable
	// attemptTerminal：立即放弃，不再重试。
	attemptTerminal
)

// attemptResult 是单次尝试的标记结果；由它（而不是 error 类型层级）决定重试策略。
type attemptResult struct {
	kind  attemptKind
	code  string
	err   error
	bytes int64
}

func succeeded(n int64) attemptResult { return attemptResult{kind: attemptOK, bytes: n} }

func retryable(code string, err error) attemptResult {
	return attemptResult{kind: attemptRetryable, code: code, err: err}
}

func terminal(code string, err error) attemptResult {
	return attemptResult{kind: attemptTerminal, code: code, err: err}
}

// StatusError 表示下载地址返回了非 2xx 状态码。
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return "HTTP " + e.Status
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// readError/writeError 区分流式复制中出错的一侧。
type readError struct{ err error }

func (e *readError) Error() string { return e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// classifyTransport 把请求/读 body 阶段的错误映射为尝试结果。
// parent 是调用方的 ctx，只有它被取消才算 canceled；attempt 是单次尝试的超时 ctx。
func classifyTransport(parent, attempt context.Context, err error) attemptResult {
	if parent.Err() != nil {
		return terminal(codeCanceled, parent.Err())
	}
	if attempt.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return retryable(codeTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return retryable(codeTimeout, err)
	}
	return retryable(codeNetwork, err)
}

// classifyFile 把本地文件创建/写入/关闭的错误映射为尝试结果。
func classifyFile(parent context.Context, err error) attemptResult {
	if parent.Err() != nil {
		return terminal(codeCanceled, parent.Err())
	}
	if errors.Is(err, os.ErrPermission) {
		return terminal(codeIOFailed, err)
	}
	return retryable(codeIOFailed, err)
}
