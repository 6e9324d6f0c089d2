package domain

// CatalogEntry 是目录提供方（catalog provider）给出的一条可下载图片描述。
//
// 约束：
// - Filename 是原始文件名（可能含非法字符；落盘前必须经过 fname.Sanitize）
// - SourceURL 为空的条目不得进入下载阶段
// - DeclaredSize 为 0 表示未知，仅用于展示
type CatalogEntry struct {
	Filename     string `json:"filename" yaml:"filename"`
	SourceURL    string `json:"source_url" yaml:"url"`
	DeclaredSize int64  `json:"declared_size" yaml:"size,omitempty"`
	MediaType    string `json:"media_type" yaml:"media_type,omitempty"`
}

// Downloadable 报告条目是否具备下载地址。
func (e CatalogEntry) Downloadable() bool { return e.SourceURL != "" }
