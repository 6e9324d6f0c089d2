package domain

// AggregateStats 是一批 DownloadOutcome 的汇总。
//
// 不变量：Downloaded+Skipped+Failed == Total；TotalBytes 只统计 success 与 skipped。
type AggregateStats struct {
	Total      int   `json:"total"`
	Downloaded int   `json:"downloaded"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	TotalBytes int64 `json:"total_bytes"`
}

// Stats 对 outcomes 做一次纯计算汇总（不依赖顺序）。
func Stats(outcomes []DownloadOutcome) AggregateStats {
	s := AggregateStats{Total: len(outcomes)}
	successful := 0
	for _, o := range outcomes {
		switch o.Status {
		case StatusSuccess:
			successful++
			s.TotalBytes += o.Bytes
		case StatusSkipped:
			successful++
			s.Skipped++
			s.TotalBytes += o.Bytes
		default:
			s.Failed++
		}
	}
	s.Downloaded = successful - s.Skipped
	return s
}
