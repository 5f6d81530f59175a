// Package paginate 按页驱动采集：页码严格递增、逐页去重、满足停止条件即结束。
package paginate

import (
	"context"

	"github.com/John-Robertt/petwatch/internal/domain"
	"github.com/John-Robertt/petwatch/internal/source"
)

// DefaultMaxPages 是分页上限的默认值。
const DefaultMaxPages = 50

// PageStat 是单页的采集统计。
type PageStat struct {
	Page    int
	Raw     int // collaborator 返回的原始条目数
	Added   int // 本页新增（去重后）条目数
	Dropped int // 因缺字段被过滤的条目数
	Err     error
}

// Result 是一次 Collect 的结果。Err 非 nil 表示分页因抓取失败而结束（已采集的部分仍可用）。
type Result struct {
	Records []domain.Record
	Pages   []PageStat
	Stop    string
	Err     error
}

// FirstPageFailed 表示第 1 页就抓取失败（没有任何可用结果）。
func (r Result) FirstPageFailed() bool {
	return len(r.Pages) > 0 && r.Pages[0].Page == 1 && r.Pages[0].Err != nil
}

// Paginator 的“已见 identity”集合只存在于单次 Collect 调用内部，因此可重入。
type Paginator struct {
	MaxPages int
	// Origin 用于把相对链接补全为绝对 URL；为空时用 domain.DefaultOrigin。
	Origin string
	// OnPage 在每页处理完后调用（可选），用于进度输出。
	OnPage func(PageStat)
}

// Collect 从第 1 页开始依次抓取，直到：
// - 抓取失败（视为到达末尾，不重试）
// - 某页没有任何新增 identity（重复页 => 目录已到底）
// - 达到 MaxPages
// 输出保持跨页的首次出现顺序，且 identity 不重复。
func (p Paginator) Collect(ctx context.Context, fetchPage source.PageFunc) Result {
	maxPages := p.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	seen := make(map[string]struct{})
	var res Result

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			res.Stop = domain.StopCancelled
			res.Err = err
			return res
		}

		raws, err := fetchPage(ctx, page)
		if err != nil {
			st := PageStat{Page: page, Err: err}
			res.Pages = append(res.Pages, st)
			p.notify(st)
			res.Stop = domain.StopFetchError
			res.Err = err
			return res
		}

		st := PageStat{Page: page, Raw: len(raws)}
		for _, raw := range raws {
			rec, ok := domain.NewRecord(raw, p.Origin)
			if !ok {
				st.Dropped++
				continue
			}
			if _, dup := seen[rec.Identity]; dup {
				continue
			}
			seen[rec.Identity] = struct{}{}
			res.Records = append(res.Records, rec)
			st.Added++
		}
		res.Pages = append(res.Pages, st)
		p.notify(st)

		if st.Added == 0 {
			res.Stop = domain.StopDuplicatePage
			return res
		}
	}

	res.Stop = domain.StopMaxPages
	return res
}

func (p Paginator) notify(st PageStat) {
	if p.OnPage != nil {
		p.OnPage(st)
	}
}
