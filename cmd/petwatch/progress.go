package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/petwatch/internal/app/run"
	"github.com/John-Robertt/petwatch/internal/config"
	"github.com/John-Robertt/petwatch/internal/notify"
	"github.com/John-Robertt/petwatch/internal/paginate"
)

var _ run.Observer = (*progressLogger)(nil)

// progressLogger 把 run 的事件写成结构化日志（stderr），不碰 stdout。
type progressLogger struct {
	log *zap.Logger
}

func newProgressLogger(log *zap.Logger) *progressLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &progressLogger{log: log}
}

func (p *progressLogger) OnStart(eff config.EffectiveConfig) {
	p.log.Info("開始檢查",
		zap.String("url", eff.CategoryURL),
		zap.Int("max_pages", eff.MaxPages),
		zap.String("fetcher", eff.Fetcher),
		zap.String("backend", eff.Snapshot.Backend),
		zap.Bool("proxy", eff.ProxyURL != ""),
	)
}

func (p *progressLogger) OnPage(st paginate.PageStat) {
	if st.Err != nil {
		p.log.Warn("抓取失敗，分頁結束", zap.Int("page", st.Page), zap.Error(st.Err))
		return
	}
	p.log.Info("已抓取",
		zap.Int("page", st.Page),
		zap.Int("raw", st.Raw),
		zap.Int("added", st.Added),
		zap.Int("dropped", st.Dropped),
	)
}

func (p *progressLogger) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	zf := make([]zap.Field, 0, len(fields)+2)
	zf = append(zf, zap.String("phase", name))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	zf = append(zf, zap.Duration("dur", dur))
	p.log.Info("階段完成", zf...)
}

func (p *progressLogger) OnNotify(res notify.Result) {
	if res.Failed > 0 {
		errs := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			errs = append(errs, e.Error())
		}
		p.log.Warn("通知部分失敗", zap.Int("sent", res.Sent), zap.Int("failed", res.Failed), zap.Strings("errors", errs))
		return
	}
	p.log.Info("通知已送出", zap.Int("sent", res.Sent))
}
