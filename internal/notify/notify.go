// Package notify 把新书列表投递出去（邮件或控制台）。
//
// 通知失败从不阻断后续流程：所有失败都汇总进 Result，由调用方决定如何展示。
package notify

import (
	"context"
	"fmt"
	"io"

	"github.com/John-Robertt/petwatch/internal/domain"
)

// Notifier 投递一批新书；records 为空时不应被调用。
type Notifier interface {
	Notify(ctx context.Context, records []domain.Record) Result
}

// Result 是一次投递的汇总（按收件人计数）。
type Result struct {
	Sent   int
	Failed int
	Errors []error
}

func (r *Result) add(o Result) {
	r.Sent += o.Sent
	r.Failed += o.Failed
	r.Errors = append(r.Errors, o.Errors...)
}

// Multi 依次调用多个 Notifier 并累加结果。
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, records []domain.Record) Result {
	var out Result
	for _, n := range m {
		if n == nil {
			continue
		}
		out.add(n.Notify(ctx, records))
	}
	return out
}

// ConsoleNotifier 在邮件设置不完整时把新书清单打印出来。
type ConsoleNotifier struct {
	W io.Writer
	// Reason 非空时作为首行提示输出。
	Reason string
}

func (c ConsoleNotifier) Notify(ctx context.Context, records []domain.Record) Result {
	if c.W == nil {
		return Result{}
	}
	if c.Reason != "" {
		fmt.Fprintln(c.W, c.Reason)
	}
	fmt.Fprintln(c.W, "新書清單：")
	for _, r := range records {
		if r.Author != "" {
			fmt.Fprintf(c.W, "  - %s (%s)\n", r.Title, r.Author)
		} else {
			fmt.Fprintf(c.W, "  - %s\n", r.Title)
		}
	}
	return Result{Sent: 1}
}
