package run

import (
	"time"

	"github.com/John-Robertt/petwatch/internal/config"
	"github.com/John-Robertt/petwatch/internal/notify"
	"github.com/John-Robertt/petwatch/internal/paginate"
)

// Observer 用于把“运行进度/阶段结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
// - 事件在调用 Execute 的 goroutine 上按顺序发出
type Observer interface {
	// OnStart 在 Execute 开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPage 在每页采集结束后调用（成功或失败）。
	OnPage(st paginate.PageStat)
	// OnPhaseDone 在阶段结束时调用（load / collect / classify / diff / save）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnNotify 在通知阶段结束后调用；未尝试通知时不调用。
	OnNotify(res notify.Result)
}

// NopObserver 忽略全部事件。
type NopObserver struct{}

func (NopObserver) OnStart(config.EffectiveConfig)                    {}
func (NopObserver) OnPage(paginate.PageStat)                          {}
func (NopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
func (NopObserver) OnNotify(notify.Result)                            {}
