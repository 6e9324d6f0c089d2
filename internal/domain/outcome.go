package domain

import "time"

const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// 单条下载的 error_code。
const (
	ErrCodeTimeout        = "timeout"
	ErrCodeHTTPStatus     = "http_status"
	ErrCodeNetwork        = "network"
	ErrCodeIOFailed       = "io_failed"
	ErrCodeTargetConflict = "target_conflict"
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeCanceled       = "canceled"
)

// 整次运行的 error_code（setup 阶段失败，不会产生任何下载）。
const (
	ErrCodeConfigNotFound     = "config_not_found"
	ErrCodeConfigInvalid      = "config_invalid"
	ErrCodeConfigMissingAlbum = "config_missing_album"
	ErrCodeAuthFailed         = "auth_failed"
	ErrCodeCatalogFailed      = "catalog_failed"
)

// DownloadOutcome 是单个 CatalogEntry 的最终结果。
//
// 约束：
// - Status=failed 时 Error 非空、Bytes=0
// - Status=skipped 时 Bytes 为磁盘上已有文件的大小
// - Status=success 时 Bytes 为本次写入的字节数（可以为 0）
type DownloadOutcome struct {
	Filename  string        `json:"filename"`
	Status    string        `json:"status"`
	ErrorCode string        `json:"error_code,omitempty"`
	Error     string        `json:"error,omitempty"`
	Bytes     int64         `json:"bytes"`
	Attempts  int           `json:"attempts"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

func (o DownloadOutcome) Succeeded() bool {
	return o.Status == StatusSuccess || o.Status == StatusSkipped
}
