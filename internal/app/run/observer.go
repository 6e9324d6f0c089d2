package run

import (
	"time"

	"github.com/John-Robertt/albumdl/internal/config"
	"github.com/John-Robertt/albumdl/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - OnStart/OnPhaseDone 在调用方 goroutine 中触发；OnItemDone 由下载阶段的收集者串行触发。
type Observer interface {
	// OnStart 在 Execute/List 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（catalog / plan / download）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在每个条目有最终结果时调用；idx 是已完成数（1-based）。
	OnItemDone(idx, total int, out domain.DownloadOutcome)
}

type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig) {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
func (nopObserver) OnItemDone(int, int, domain.DownloadOutcome) {}
