package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/John-Robertt/petwatch/internal/domain"
)

// Source 把“站点变化”限制在 source 包内部；分页与去重只依赖统一接口。
//
// 约束：
// - PageURL 决定分页 URL 的拼法（第 1 页为分类 URL 本身）
// - Parse 必须是纯函数：相同输入 => 相同输出；坏卡片直接跳过，不报错
type Source interface {
	Name() string
	PageURL(page int) string
	Parse(html []byte, pageURL string) ([]domain.RawRecord, error)
}

// Fetcher 负责把一个 URL 变成 HTML（HTTP 直取或无头浏览器渲染）。
// Fetch 不做重试之外的任何“聪明”处理；失败即返回错误。
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc 让普通函数满足 Fetcher。
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// PageFunc 是分页器消费的“取第 N 页”能力。
type PageFunc func(ctx context.Context, page int) ([]domain.RawRecord, error)

// Collector 组合 Source 与 Fetcher，提供单页采集。
type Collector struct {
	Source  Source
	Fetcher Fetcher
	// Timeout 是单页抓取的超时；<=0 表示不额外限制（仍受 ctx 约束）。
	Timeout time.Duration
}

// FetchPage 抓取并解析第 page 页。错误统一包装为 *Error（带页码与阶段）。
func (c Collector) FetchPage(ctx context.Context, page int) ([]domain.RawRecord, error) {
	if c.Source == nil || c.Fetcher == nil {
		return nil, errors.New("collector 未配置 source/fetcher")
	}
	if page < 1 {
		return nil, fmt.Errorf("页码必须 >= 1，实际 %d", page)
	}

	u := c.Source.PageURL(page)
	fctx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	html, err := c.Fetcher.Fetch(fctx, u)
	if err != nil {
		return nil, &Error{Source: c.Source.Name(), Page: page, URL: u, Stage: StageFetch, Err: err}
	}
	recs, err := c.Source.Parse(html, u)
	if err != nil {
		return nil, &Error{Source: c.Source.Name(), Page: page, URL: u, Stage: StageParse, Err: err}
	}
	return recs, nil
}

// Func 把 Collector 适配为 PageFunc。
func (c Collector) Func() PageFunc { return c.FetchPage }

const (
	StageFetch = "fetch"
	StageParse = "parse"
)

// Error 是单页采集阶段的可追溯错误。
type Error struct {
	Source string
	Page   int
	URL    string
	Stage  string // "fetch" 或 "parse"
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("source=%s page=%d stage=%s url=%s: %v", e.Source, e.Page, e.Stage, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
