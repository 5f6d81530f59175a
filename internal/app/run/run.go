// Package run 编排一次完整检查：读快照 → 分页采集 → 分类 → 比对 → 通知 → 写快照。
//
// 流水线严格串行；任何致命错误都发生在写快照之前，因此中途失败不会破坏基线。
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/John-Robertt/petwatch/internal/changes"
	"github.com/John-Robertt/petwatch/internal/config"
	"github.com/John-Robertt/petwatch/internal/domain"
	"github.com/John-Robertt/petwatch/internal/notify"
	"github.com/John-Robertt/petwatch/internal/paginate"
	"github.com/John-Robertt/petwatch/internal/snapshot"
	"github.com/John-Robertt/petwatch/internal/source"
	"github.com/John-Robertt/petwatch/internal/taxonomy"
)

// Deps 是一次运行所需的协作者（由 CLI 组装，测试可替换）。
type Deps struct {
	FetchPage source.PageFunc
	// PageURL 仅用于报告展示（可选）。
	PageURL    func(page int) string
	Paginator  paginate.Paginator
	Classifier taxonomy.Classifier
	Store      snapshot.Store
	// Notifier 为 nil 表示不发送通知（新书仍会写入报告）。
	Notifier notify.Notifier
	Now      func() time.Time
}

// Error 是运行阶段的致命错误（带 error_code）。
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s：%v", e.Code, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Execute 执行一次检查并返回报告。
//
// 返回的 error 非 nil 表示本次运行被放弃（快照未写入）；报告仍然可用于展示已发生的部分。
// 通知失败不是致命错误：只记录在报告里，快照照常写入。
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) (domain.RunReport, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	rr := domain.RunReport{
		CategoryURL: eff.CategoryURL,
		StartedAt:   now(),
	}
	obs.OnStart(eff)

	fail := func(code string, err error) (domain.RunReport, error) {
		rr.ErrorCode = code
		rr.ErrorMsg = err.Error()
		rr.FinishedAt = now()
		rr.Finalize()
		return rr, &Error{Code: code, Err: err}
	}

	if deps.Store == nil || deps.FetchPage == nil {
		return fail(domain.ErrCodeConfigInvalid, errors.New("run 依赖未配置（store/fetch）"))
	}

	// 1) 读取基线
	phase := time.Now()
	prev, err := deps.Store.Load(ctx)
	if err != nil {
		code := snapshot.Code(err)
		if code == "" {
			code = domain.ErrCodeSnapshotIO
		}
		return fail(code, err)
	}
	rr.PreviousCheckedAt = prev.LastCheckedAt
	rr.PreviousCount = len(prev.Records)
	obs.OnPhaseDone("load", map[string]any{
		"previous":     len(prev.Records),
		"last_checked": prev.LastCheckedAt,
	}, time.Since(phase))

	// 2) 分页采集
	phase = time.Now()
	pg := deps.Paginator
	userOnPage := pg.OnPage
	pg.OnPage = func(st paginate.PageStat) {
		pr := domain.PageResult{Page: st.Page, Raw: st.Raw, Added: st.Added}
		if deps.PageURL != nil {
			pr.URL = deps.PageURL(st.Page)
		}
		if st.Err != nil {
			pr.Error = st.Err.Error()
		}
		rr.Pages = append(rr.Pages, pr)
		if userOnPage != nil {
			userOnPage(st)
		}
		obs.OnPage(st)
	}
	res := pg.Collect(ctx, deps.FetchPage)
	rr.Stop = res.Stop
	obs.OnPhaseDone("collect", map[string]any{
		"pages":     len(res.Pages),
		"collected": len(res.Records),
		"stop":      res.Stop,
	}, time.Since(phase))

	if err := ctx.Err(); err != nil {
		return fail(domain.ErrCodeCancelled, err)
	}
	if res.FirstPageFailed() {
		return fail(domain.ErrCodeFetchFailed, fmt.Errorf("第 1 页抓取失败：%w", res.Err))
	}
	if len(res.Records) == 0 {
		return fail(domain.ErrCodeEmptyCatalog, errors.New("没有采集到任何书目（页面结构可能已变化），保留原快照"))
	}

	// 3) 分类
	phase = time.Now()
	records := deps.Classifier.Apply(res.Records)
	rr.Collected = records
	rr.Animals = deps.Classifier.AnimalBreakdown(records)
	rr.Topics = deps.Classifier.TopicBreakdown(records)
	obs.OnPhaseDone("classify", map[string]any{
		"records": len(records),
		"animals": len(rr.Animals),
		"topics":  len(rr.Topics),
	}, time.Since(phase))

	// 4) 比对（首次运行只建立基线）
	phase = time.Now()
	rr.FirstRun = prev.IsEmpty()
	if rr.FirstRun {
		rr.NewRecords = []domain.Record{}
	} else {
		rr.NewRecords = changes.NewRecords(records, prev.Records)
	}
	obs.OnPhaseDone("diff", map[string]any{
		"new":       len(rr.NewRecords),
		"first_run": rr.FirstRun,
	}, time.Since(phase))

	// 5) 通知
	if !rr.FirstRun && len(rr.NewRecords) > 0 && deps.Notifier != nil {
		nr := deps.Notifier.Notify(ctx, rr.NewRecords)
		rr.Notify = domain.NotifyResult{Attempted: true, Sent: nr.Sent, Failed: nr.Failed}
		for _, e := range nr.Errors {
			rr.Notify.Errors = append(rr.Notify.Errors, e.Error())
		}
		obs.OnNotify(nr)
	}

	// 6) 写快照（无论是否有新书）
	if err := ctx.Err(); err != nil {
		return fail(domain.ErrCodeCancelled, err)
	}
	phase = time.Now()
	checkedAt := now()
	if err := deps.Store.Save(ctx, records, checkedAt); err != nil {
		return fail(domain.ErrCodeSaveFailed, err)
	}
	rr.Saved = true
	obs.OnPhaseDone("save", map[string]any{
		"records":         len(records),
		"last_checked_at": checkedAt,
	}, time.Since(phase))

	rr.FinishedAt = now()
	rr.Finalize()
	return rr, nil
}
