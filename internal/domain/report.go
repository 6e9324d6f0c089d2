package domain

import (
	"encoding/json"
	"time"
)

// RunReport 是对外稳定输出（report.json / stdout JSON / ledger）的结构。
type RunReport struct {
	RunID     string `json:"run_id"`
	Album     string `json:"album"`
	AlbumName string `json:"album_name"`
	Source    string `json:"source"`
	Output    string `json:"output"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Interrupted 表示运行被取消（SIGINT/SIGTERM）；Items 中未完成的条目为 failed/canceled。
	Interrupted bool `json:"interrupted"`

	// ErrorCode/ErrorMsg 只在 setup 阶段失败时非空（此时 Items 为空）。
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`

	Summary AggregateStats    `json:"summary"`
	Items   []DownloadOutcome `json:"items"`
}

// Finalize 做两件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) summary 由 items 计算得出
//
// items 保持输入顺序，不排序。
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Items == nil {
		r.Items = []DownloadOutcome{}
	}
	r.Summary = Stats(r.Items)
}

// OK 报告这次运行是否可以以 0 退出。
func (r RunReport) OK() bool {
	return r.ErrorCode == "" && !r.Interrupted && r.Summary.Failed == 0
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
