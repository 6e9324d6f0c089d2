// Package graph 通过 Microsoft Graph 的 shares API 列出分享相册中的图片。
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/albumdl/internal/catalog"
	"github.com/John-Robertt/albumdl/internal/domain"
	"github.com/John-Robertt/albumdl/internal/fname"
)

const (
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	// maxDepth 限制递归层数；maxPages 防止 nextLink 环导致死循环。
	maxDepth = 16
	maxPages = 10000
)

var _ catalog.Provider = Provider{}
var _ catalog.AlbumNamer = Provider{}

// Provider 实现分享相册的目录列举。
//
// 约束：
// - 只请求 Graph JSON，不下载图片
// - 令牌/UA/重试由 Client 的 Transport 注入（见 httpx.NewAPIClient）
// - recursive=true 时进入子文件夹，嵌套文件名形如 "子目录/文件名"
type Provider struct {
	BaseURL string
	Client  *http.Client
}

func (Provider) Name() string { return catalog.SourceGraph }

func (p Provider) baseURL() string {
	u := strings.TrimSpace(p.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

type driveItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"@microsoft.graph.downloadUrl"`

	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
	Folder *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
	Image *json.RawMessage `json:"image"`

	ParentReference struct {
		DriveID string `json:"driveId"`
	} `json:"parentReference"`
}

type childrenPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// AlbumName 返回分享根项目的名称。
func (p Provider) AlbumName(ctx context.Context, ref string) (string, error) {
	root, err := p.root(ctx, ref)
	if err != nil {
		return "", err
	}
	return root.Name, nil
}

func (p Provider) root(ctx context.Context, ref string) (driveItem, error) {
	if err := ValidateShareURL(ref); err != nil {
		return driveItem{}, &catalog.Error{Provider: p.Name(), Stage: "resolve", Err: err}
	}
	u := p.baseURL() + "/shares/" + EncodeSharingURL(ref) + "/driveItem"
	var it driveItem
	if err := p.getJSON(ctx, u, &it); err != nil {
		return driveItem{}, &catalog.Error{Provider: p.Name(), Stage: "resolve", Err: err}
	}
	return it, nil
}

// ListImages 列出分享根下的图片（按 API 返回顺序；子文件夹的内容插在该文件夹出现的位置）。
func (p Provider) ListImages(ctx context.Context, ref string, recursive bool) ([]domain.CatalogEntry, error) {
	if err := ValidateShareURL(ref); err != nil {
		return nil, &catalog.Error{Provider: p.Name(), Stage: "resolve", Err: err}
	}

	w := walker{p: p, recursive: recursive}
	first := p.baseURL() + "/shares/" + EncodeSharingURL(ref) + "/driveItem/children"
	if err := w.walk(ctx, first, "", 0); err != nil {
		return nil, &catalog.Error{Provider: p.Name(), Stage: "list", Err: err}
	}
	return w.out, nil
}

type walker struct {
	p         Provider
	recursive bool
	pages     int
	out       []domain.CatalogEntry
}

func (w *walker) walk(ctx context.Context, pageURL, prefix string, depth int) error {
	seen := map[string]struct{}{}
	for pageURL != "" {
		if _, dup := seen[pageURL]; dup {
			return fmt.Errorf("分页链接出现环：%s", pageURL)
		}
		seen[pageURL] = struct{}{}
		w.pages++
		if w.pages > maxPages {
			return fmt.Errorf("分页数超过上限 %d", maxPages)
		}

		var page childrenPage
		if err := w.p.getJSON(ctx, pageURL, &page); err != nil {
			return err
		}

		for _, it := range page.Value {
			if it.Folder != nil {
				if !w.recursive || depth+1 > maxDepth {
					continue
				}
				if err := w.descend(ctx, it, prefix, depth); err != nil {
					return err
				}
				continue
			}
			if e, ok := normalize(it, prefix); ok {
				w.out = append(w.out, e)
			}
		}
		pageURL = page.NextLink
	}
	return nil
}

func (w *walker) descend(ctx context.Context, folder driveItem, prefix string, depth int) error {
	driveID := strings.TrimSpace(folder.ParentReference.DriveID)
	if driveID == "" || strings.TrimSpace(folder.ID) == "" {
		return fmt.Errorf("子文件夹 %q 缺少 driveId/id，无法递归", folder.Name)
	}
	u := w.p.baseURL() + "/drives/" + url.PathEscape(driveID) + "/items/" + url.PathEscape(folder.ID) + "/children"
	return w.walk(ctx, u, prefix+folder.Name+"/", depth+1)
}

// isImage：image facet、image/* MIME、或图片扩展名，任一满足即可。
func isImage(it driveItem) bool {
	if it.Image != nil {
		return true
	}
	if it.File != nil && strings.HasPrefix(strings.ToLower(it.File.MimeType), "image/") {
		return true
	}
	return fname.IsImageName(it.Name)
}

func normalize(it driveItem, prefix string) (domain.CatalogEntry, bool) {
	if !isImage(it) {
		return domain.CatalogEntry{}, false
	}
	if strings.TrimSpace(it.DownloadURL) == "" {
		return domain.CatalogEntry{}, false
	}
	mt := ""
	if it.File != nil {
		mt = strings.TrimSpace(it.File.MimeType)
	}
	if mt == "" {
		mt = fname.MediaTypeByExt(fname.Ext(it.Name))
	}
	name := it.Name
	if name == "" {
		name = it.ID + fname.ImageExt("", mt)
	}
	return domain.CatalogEntry{
		Filename:     prefix + name,
		SourceURL:    it.DownloadURL,
		DeclaredSize: it.Size,
		MediaType:    mt,
	}, true
}

func (p Provider) getJSON(ctx context.Context, u string, v any) error {
	b, err := catalog.Fetch(ctx, p.Client, u, http.Header{"Accept": []string{"application/json"}})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("解析 Graph 响应失败（%s）：%w", u, err)
	}
	return nil
}
