package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/John-Robertt/petwatch/internal/config"
	"github.com/John-Robertt/petwatch/internal/domain"
	"github.com/John-Robertt/petwatch/internal/notify"
	"github.com/John-Robertt/petwatch/internal/paginate"
)

func TestRenderSummary(t *testing.T) {
	prev := time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC)
	rr := domain.RunReport{
		CategoryURL:       "https://www.eslite.com/category/3/123",
		PreviousCheckedAt: &prev,
		PreviousCount:     10,
		Pages:             []domain.PageResult{{Page: 1, Added: 11}, {Page: 2}},
		Stop:              domain.StopDuplicatePage,
		NewRecords: []domain.Record{
			{Identity: "u1", Title: "黃金獵犬完全飼養指南", Author: "王小明", PriceText: "356", AnimalTypes: []string{"狗"}, Topics: []string{"照護飼養"}},
		},
		Notify:  domain.NotifyResult{Attempted: true, Sent: 1},
		Animals: []domain.LabelCount{{Label: "狗", Count: 6}, {Label: "貓", Count: 5}},
		Topics:  []domain.LabelCount{{Label: "照護飼養", Count: 11}},
		Saved:   true,
	}
	rr.Finalize()

	var buf bytes.Buffer
	renderSummary(&buf, rr)
	out := buf.String()

	assert.Contains(t, out, "已到最後一頁")
	assert.Contains(t, out, "1 本")
	assert.Contains(t, out, "黃金獵犬完全飼養指南")
	assert.Contains(t, out, "狗-照護飼養")
	assert.Contains(t, out, "成功 1 / 失敗 0")
	assert.Contains(t, out, "已更新")
	assert.Contains(t, out, "分類統計")
	assert.NotContains(t, out, "檢查失敗")
}

func TestRenderSummary_FirstRunAndError(t *testing.T) {
	var buf bytes.Buffer
	renderSummary(&buf, domain.RunReport{FirstRun: true})
	assert.Contains(t, buf.String(), "首次執行")
	assert.Contains(t, buf.String(), "從未檢查")

	buf.Reset()
	renderSummary(&buf, domain.RunReport{ErrorCode: domain.ErrCodeSnapshotCorrupt, ErrorMsg: "壞掉了"})
	assert.Contains(t, buf.String(), "snapshot_corrupt")
	assert.Contains(t, buf.String(), "未寫入")
}

func TestEmitReport_NonTTYWritesJSON(t *testing.T) {
	var out, errb bytes.Buffer
	rr := domain.RunReport{Saved: true}
	rr.Finalize()
	emitReport(&out, &errb, rr)

	assert.True(t, bytes.HasPrefix(out.Bytes(), []byte("{")))
	assert.Contains(t, out.String(), `"saved":true`)
	assert.Contains(t, errb.String(), "完成：pages=0")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate(" abc ", 5))
	assert.Equal(t, "貓咪…", truncate("貓咪的一天", 3))
	assert.Equal(t, "貓", truncate("貓咪", 1))
}

func TestProgressLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := newProgressLogger(zap.New(core))

	p.OnStart(config.EffectiveConfig{CategoryURL: "u", MaxPages: 3, Fetcher: "http"})
	p.OnPage(paginate.PageStat{Page: 1, Raw: 20, Added: 19, Dropped: 1})
	p.OnPage(paginate.PageStat{Page: 2, Err: errors.New("timeout")})
	p.OnPhaseDone("diff", map[string]any{"new": 2}, time.Second)
	p.OnNotify(notify.Result{Sent: 1, Failed: 1, Errors: []error{errors.New("smtp down")}})

	entries := logs.AllUntimed()
	if assert.Len(t, entries, 5) {
		assert.Equal(t, "開始檢查", entries[0].Message)
		assert.Equal(t, int64(19), entries[1].ContextMap()["added"])
		assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
		assert.Equal(t, "diff", entries[3].ContextMap()["phase"])
		assert.Equal(t, int64(2), entries[3].ContextMap()["new"])
		assert.Equal(t, zapcore.WarnLevel, entries[4].Level)
		assert.Equal(t, []interface{}{"smtp down"}, entries[4].ContextMap()["errors"])
	}
}
