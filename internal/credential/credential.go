// Package credential 提供访问令牌的来源抽象。
//
// 获取令牌的交互流程（device code / refresh）不在本包范围内：
// 这里只消费“已经拿到的” bearer token。
package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoToken 表示该来源没有可用令牌（未配置或文件为空）。
var ErrNoToken = errors.New("未配置访问令牌")

// Source 返回用于 API 请求的 bearer token。
//
// 约束：
// - 每次调用都可能返回不同的值（外部可能在刷新令牌）
// - 实现必须并发安全
type Source interface {
	AccessToken(ctx context.Context) (string, error)
}

// Static 是固定令牌（来自 --token / ALBUMDL_TOKEN / 配置文件）。
type Static string

func (s Static) AccessToken(ctx context.Context) (string, error) {
	tok := strings.TrimSpace(string(s))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// File 每次调用都重新读取 Path（允许外部进程在运行期间刷新令牌文件）。
type File struct {
	Path string
}

func (f File) AccessToken(ctx context.Context) (string, error) {
	if strings.TrimSpace(f.Path) == "" {
		return "", ErrNoToken
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("令牌文件不存在 %q：%w", f.Path, ErrNoToken)
		}
		return "", fmt.Errorf("读取令牌文件 %q 失败：%w", f.Path, err)
	}
	tok := strings.TrimSpace(string(b))
	if tok == "" {
		return "", fmt.Errorf("令牌文件为空 %q：%w", f.Path, ErrNoToken)
	}
	return tok, nil
}

// Chain 依次尝试 sources，返回第一个可用令牌。
// 只有 ErrNoToken 会继续尝试下一个；其他错误立即返回。
func Chain(sources ...Source) Source {
	return chain(sources)
}

type chain []Source

func (c chain) AccessToken(ctx context.Context) (string, error) {
	for _, s := range c {
		if s == nil {
			continue
		}
		tok, err := s.AccessToken(ctx)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", ErrNoToken
}

// Optional 把 ErrNoToken 视为“匿名访问”，返回空串；其他错误原样返回。
func Optional(ctx context.Context, s Source) (string, error) {
	if s == nil {
		return "", nil
	}
	tok, err := s.AccessToken(ctx)
	if errors.Is(err, ErrNoToken) {
		return "", nil
	}
	return tok, err
}
