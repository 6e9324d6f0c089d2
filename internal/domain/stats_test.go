package domain

import "testing"

func TestStats_MixedOutcomes(t *testing.T) {
	got := Stats([]DownloadOutcome{
		{Filename: "a.jpg", Status: StatusSuccess, Bytes: 100},
		{Filename: "b.jpg", Status: StatusSkipped, Bytes: 50},
		{Filename: "c.jpg", Status: StatusFailed, ErrorCode: ErrCodeNetwork, Error: "network: reset"},
	})
	want := AggregateStats{Total: 3, Downloaded: 1, Skipped: 1, Failed: 1, TotalBytes: 150}
	if got != want {
		t.Fatalf("期望 %+v，实际 %+v", want, got)
	}
}

func TestStats_Empty(t *testing.T) {
	got := Stats(nil)
	if got != (AggregateStats{}) {
		t.Fatalf("空输入应得到零值，实际 %+v", got)
	}
}

func TestStats_InvariantHolds(t *testing.T) {
	var outs []DownloadOutcome
	for i := 0; i < 37; i++ {
		st := []string{StatusSuccess, StatusSkipped, StatusFailed}[i%3]
		outs = append(outs, DownloadOutcome{Status: st, Bytes: int64(i)})
	}
	s := Stats(outs)
	if s.Downloaded+s.Skipped+s.Failed != s.Total {
		t.Fatalf("downloaded+skipped+failed 应等于 total：%+v", s)
	}
}
