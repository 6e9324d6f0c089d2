// Package catalog 定义“图片目录来源”的统一接口。
package catalog

import (
	"context"
	"fmt"

	"github.com/John-Robertt/albumdl/internal/domain"
)

// Provider 把“来源差异”（Graph 分享、HTML 索引页、本地清单）限制在各自的子包内；
// 核心流程只依赖统一接口与稳定的 CatalogEntry。
//
// 约束：
// - ListImages 只返回图片条目；SourceURL 为空的条目应省略
// - ListImages 不做下载、不写盘
// - 网络重试/UA/令牌由传入的 http client 统一负责
type Provider interface {
	Name() string
	ListImages(ctx context.Context, ref string, recursive bool) ([]domain.CatalogEntry, error)
}

// AlbumNamer 是可选能力：给出相册的展示名（用作输出子目录名）。
type AlbumNamer interface {
	AlbumName(ctx context.Context, ref string) (string, error)
}

// Error 是 catalog 阶段的可追溯错误。
type Error struct {
	Provider string
	Stage    string // "resolve" / "list" / "parse"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("catalog=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
