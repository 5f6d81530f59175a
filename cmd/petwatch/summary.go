package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/John-Robertt/petwatch/internal/domain"
)

const maxListedNew = 30

// renderSummary 输出终端摘要：运行概况、新书清单、分类统计。
func renderSummary(w io.Writer, rr domain.RunReport) {
	if rr.ErrorCode != "" {
		fmt.Fprintf(w, "❌ 檢查失敗：%s\n   %s\n", rr.ErrorCode, rr.ErrorMsg)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendRow(table.Row{"分類頁", rr.CategoryURL})
	t.AppendRow(table.Row{"上次檢查", formatChecked(rr.PreviousCheckedAt)})
	t.AppendRow(table.Row{"上次書籍數", rr.Summary.Previous})
	t.AppendRow(table.Row{"抓取頁數", fmt.Sprintf("%d（停止：%s）", rr.Summary.Pages, stopText(rr.Stop))})
	t.AppendRow(table.Row{"本次書籍數", rr.Summary.Collected})
	t.AppendRow(table.Row{"新書", newText(rr)})
	if rr.Notify.Attempted {
		t.AppendRow(table.Row{"通知", fmt.Sprintf("成功 %d / 失敗 %d", rr.Notify.Sent, rr.Notify.Failed)})
	}
	t.AppendRow(table.Row{"快照", savedText(rr.Saved)})
	t.Render()

	for _, e := range rr.Notify.Errors {
		fmt.Fprintf(w, "⚠️  通知失敗：%s\n", e)
	}

	if len(rr.NewRecords) > 0 {
		nt := table.NewWriter()
		nt.SetOutputMirror(w)
		nt.SetStyle(table.StyleRounded)
		nt.SetTitle("🆕 新書")
		nt.AppendHeader(table.Row{"#", "書名", "作者", "售價", "分類"})
		for i, r := range rr.NewRecords {
			if i >= maxListedNew {
				nt.AppendFooter(table.Row{"", fmt.Sprintf("…… 另有 %d 本", len(rr.NewRecords)-maxListedNew)})
				break
			}
			nt.AppendRow(table.Row{i + 1, truncate(r.Title, 40), truncate(r.Author, 16), r.PriceText, r.CombinedCategoryString()})
		}
		nt.Render()
	}

	if len(rr.Animals) > 0 || len(rr.Topics) > 0 {
		ct := table.NewWriter()
		ct.SetOutputMirror(w)
		ct.SetStyle(table.StyleRounded)
		ct.SetTitle("📊 分類統計")
		ct.AppendHeader(table.Row{"動物種類", "本數", "主題", "本數"})
		n := len(rr.Animals)
		if len(rr.Topics) > n {
			n = len(rr.Topics)
		}
		for i := 0; i < n; i++ {
			row := table.Row{"", "", "", ""}
			if i < len(rr.Animals) {
				row[0], row[1] = rr.Animals[i].Label, rr.Animals[i].Count
			}
			if i < len(rr.Topics) {
				row[2], row[3] = rr.Topics[i].Label, rr.Topics[i].Count
			}
			ct.AppendRow(row)
		}
		ct.Render()
	}
}

func formatChecked(t *time.Time) string {
	if t == nil {
		return "從未檢查"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func stopText(stop string) string {
	switch stop {
	case domain.StopDuplicatePage:
		return "已到最後一頁"
	case domain.StopMaxPages:
		return "達到頁數上限"
	case domain.StopFetchError:
		return "抓取失敗"
	case domain.StopCancelled:
		return "已取消"
	case "":
		return "-"
	default:
		return stop
	}
}

func newText(rr domain.RunReport) string {
	if rr.FirstRun {
		return "首次執行，已建立基準"
	}
	if rr.Summary.New == 0 {
		return "沒有新書"
	}
	return fmt.Sprintf("%d 本", rr.Summary.New)
}

func savedText(saved bool) string {
	if saved {
		return "已更新"
	}
	return "未寫入"
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}
