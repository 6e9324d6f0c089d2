package catalog

import (
	"net/url"
	"strings"
)

const (
	SourceAuto     = "auto"
	SourceGraph    = "graph"
	SourceHTML     = "html"
	SourceManifest = "manifest"
)

// ShareHosts 是可被 Graph shares API 解析的分享链接域名。
var ShareHosts = []string{"onedrive.live.com", "1drv.ms", "onedrive.com"}

// IsShareHost 判断 host（不含端口）是否是受支持的分享域名。
func IsShareHost(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	for _, h := range ShareHosts {
		if host == h {
			return true
		}
	}
	return false
}

// Detect 按 ref 的形态推断来源：
// - 分享域名的 http(s) 链接 => graph
// - 其他 http(s) 链接 => html
// - 其余（本地路径）=> manifest
func Detect(ref string) string {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return SourceManifest
	}
	if IsShareHost(u.Hostname()) {
		return SourceGraph
	}
	return SourceHTML
}
