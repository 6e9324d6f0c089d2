package download

import "github.com/John-Robertt/albumdl/internal/domain"

// Sink 接收每条下载结果（进度回调）。
//
// 约束：DownloadAll 只从一个 goroutine 串行调用 OnOutcome（完成顺序），
// 实现不需要自行加锁；实现内的 panic 会被吞掉并记录日志，不影响下载。
type Sink interface {
	OnOutcome(idx, total int, out domain.DownloadOutcome)
}

// SinkFunc 把普通函数适配为 Sink。
type SinkFunc func(idx, total int, out domain.DownloadOutcome)

func (f SinkFunc) OnOutcome(idx, total int, out domain.DownloadOutcome) { f(idx, total, out) }
