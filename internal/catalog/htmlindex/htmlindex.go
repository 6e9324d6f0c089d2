// Package htmlindex 从 HTML 图库页或目录索引页（autoindex）中列出图片链接。
package htmlindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/albumdl/internal/catalog"
	"github.com/John-Robertt/albumdl/internal/domain"
	"github.com/John-Robertt/albumdl/internal/fname"
)

// DefaultMaxDepth 是 recursive 模式下的默认递归层数上限。
const DefaultMaxDepth = 8

var _ catalog.Provider = Provider{}
var _ catalog.AlbumNamer = Provider{}

// Provider 抓取 ref 指向的页面并收集图片链接。
//
// 规则：
// - 收集 a[href] 与 img[src]，按扩展名过滤图片，按绝对 URL 去重
// - recursive=true 时跟随以 '/' 结尾、同主机、位于当前页路径之下的子目录链接
// - 文件名取 URL 最后一段（已解码）；子目录内的文件带 "子目录/" 前缀
type Provider struct {
	Client   *http.Client
	MaxDepth int
}

func (Provider) Name() string { return catalog.SourceHTML }

func (p Provider) maxDepth() int {
	if p.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return p.MaxDepth
}

// AlbumName 取页面 <title>；为空时退化为 URL 路径最后一段。
func (p Provider) AlbumName(ctx context.Context, ref string) (string, error) {
	base, err := parseRef(ref)
	if err != nil {
		return "", &catalog.Error{Provider: p.Name(), Stage: "resolve", Err: err}
	}
	doc, err := p.fetchDoc(ctx, base.String())
	if err != nil {
		return "", &catalog.Error{Provider: p.Name(), Stage: "list", Err: err}
	}
	if title := normSpace(doc.Find("title").First().Text()); title != "" {
		return title, nil
	}
	return path.Base(strings.TrimRight(base.Path, "/")), nil
}

func (p Provider) ListImages(ctx context.Context, ref string, recursive bool) ([]domain.CatalogEntry, error) {
	base, err := parseRef(ref)
	if err != nil {
		return nil, &catalog.Error{Provider: p.Name(), Stage: "resolve", Err: err}
	}

	c := crawler{
		p:         p,
		recursive: recursive,
		visited:   map[string]struct{}{},
		seenURL:   map[string]struct{}{},
	}
	if err := c.visit(ctx, base, "", 0); err != nil {
		return nil, &catalog.Error{Provider: p.Name(), Stage: "list", Err: err}
	}
	return c.out, nil
}

type crawler struct {
	p         Provider
	recursive bool
	visited   map[string]struct{}
	seenURL   map[string]struct{}
	out       []domain.CatalogEntry
}

func (c *crawler) visit(ctx context.Context, page *url.URL, prefix string, depth int) error {
	key := page.String()
	if _, ok := c.visited[key]; ok {
		return nil
	}
	c.visited[key] = struct{}{}

	doc, err := c.p.fetchDoc(ctx, key)
	if err != nil {
		return err
	}

	var subdirs []*url.URL
	doc.Find("a[href], img[src]").Each(func(_ int, s *goquery.Selection) {
		raw, ok := s.Attr("href")
		if !ok {
			raw, _ = s.Attr("src")
		}
		u := resolve(page, raw)
		if u == nil {
			return
		}

		name := lastSegment(u)
		if fname.IsImageName(name) {
			abs := u.String()
			if _, dup := c.seenURL[abs]; dup {
				return
			}
			c.seenURL[abs] = struct{}{}
			c.out = append(c.out, domain.CatalogEntry{
				Filename:  prefix + name,
				SourceURL: abs,
				MediaType: fname.MediaTypeByExt(fname.Ext(name)),
			})
			return
		}
		if c.recursive && goquery.NodeName(s) == "a" && isSubdir(page, u) {
			subdirs = append(subdirs, u)
		}
	})

	if depth+1 > c.p.maxDepth() {
		return nil
	}
	for _, sd := range subdirs {
		dirName := lastSegment(&url.URL{Path: strings.TrimRight(sd.Path, "/")})
		if err := c.visit(ctx, sd, prefix+dirName+"/", depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (p Provider) fetchDoc(ctx context.Context, u string) (*goquery.Document, error) {
	b, err := catalog.Fetch(ctx, p.Client, u, http.Header{"Accept": []string{"text/html"}})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("解析 HTML 失败（%s）：%w", u, err)
	}
	return doc, nil
}

func parseRef(ref string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.New("ref 必须是 http/https 链接")
	}
	return u, nil
}

// resolve 把 href/src 解析为绝对 URL；锚点、javascript:、data: 等返回 nil。
func resolve(base *url.URL, raw string) *url.URL {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return nil
	}
	ru, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	u := base.ResolveReference(ru)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	u.Fragment = ""
	return u
}

func lastSegment(u *url.URL) string {
	seg := path.Base(u.Path)
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}

// isSubdir：以 '/' 结尾、同主机、严格位于 page 目录之下（排除 "../" 与自身）。
func isSubdir(page, u *url.URL) bool {
	if !strings.HasSuffix(u.Path, "/") || !strings.EqualFold(u.Host, page.Host) {
		return false
	}
	dir := page.Path
	if !strings.HasSuffix(dir, "/") {
		dir = path.Dir(dir) + "/"
	}
	return strings.HasPrefix(u.Path, dir) && u.Path != dir
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
