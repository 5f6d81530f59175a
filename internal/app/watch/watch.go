// Package watch 按本地整点周期性地执行检查。
package watch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Next 返回 now 之后（严格晚于）的第一个整点锚点。anchors 为 0..23 的小时，需已排序。
func Next(now time.Time, anchors []int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	if len(anchors) == 0 {
		anchors = []int{0}
	}
	local := now.In(loc)
	for _, h := range anchors {
		t := time.Date(local.Year(), local.Month(), local.Day(), h, 0, 0, 0, loc)
		if t.After(local) {
			return t
		}
	}
	// 今天的点位都过了 -> 明天第一个点位
	return time.Date(local.Year(), local.Month(), local.Day()+1, anchors[0], 0, 0, 0, loc)
}

// Job 是一次检查；返回的错误只记录，不会终止调度。
type Job func(ctx context.Context) error

// Scheduler 在每个锚点执行一次 Job；同一时间只有一个 Job 在运行。
type Scheduler struct {
	Anchors  []int
	Location *time.Location
	// RunNow 为 true 时启动后立即执行一次，再对齐到下一个锚点。
	RunNow bool
	Log    *zap.Logger

	// 测试替换点
	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
}

// Run 阻塞直到 ctx 取消；返回 ctx.Err()。
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	if job == nil {
		return errors.New("watch: job 为空")
	}
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	now := s.now
	if now == nil {
		now = time.Now
	}
	after := s.after
	if after == nil {
		after = time.After
	}

	runOnce := func() {
		started := now()
		if err := job(ctx); err != nil {
			log.Error("本轮检查失败", zap.Error(err), zap.Duration("dur", now().Sub(started)))
			return
		}
		log.Info("本轮检查完成", zap.Duration("dur", now().Sub(started)))
	}

	if s.RunNow {
		runOnce()
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := Next(now(), s.Anchors, s.Location)
		sleep := next.Sub(now())
		if sleep < 0 {
			sleep = 0
		}
		log.Info("等待下一次检查", zap.Time("next", next), zap.Duration("in", sleep.Round(time.Second)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-after(sleep):
			runOnce()
		}
	}
}
