package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReport_Finalize_SummaryAndUTC(t *testing.T) {
	prev := time.Date(2026, 2, 8, 9, 0, 0, 0, time.FixedZone("X", 8*3600))
	r := RunReport{
		CategoryURL:       "https://www.eslite.com/category/3/123",
		StartedAt:         time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt:        time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		PreviousCheckedAt: &prev,
		PreviousCount:     1,
		Pages: []PageResult{
			{Page: 1, Raw: 2, Added: 2},
			{Page: 2, Error: "timeout"},
		},
		Collected:  []Record{{Identity: "A"}, {Identity: "B"}},
		NewRecords: []Record{{Identity: "B"}},
	}

	r.Finalize()

	assert.Equal(t, ReportSummary{Pages: 1, Collected: 2, Previous: 1, New: 1}, r.Summary)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	// time.Time 在 UTC 下应输出 'Z' 后缀。
	assert.True(t, bytes.Contains(b, []byte(`"started_at":"2026-02-09T02:00:00Z"`)), "started_at 不是 UTC RFC3339：%s", b)
	assert.True(t, bytes.Contains(b, []byte(`"previous_checked_at":"2026-02-08T01:00:00Z"`)), "previous_checked_at 不是 UTC：%s", b)
	assert.False(t, bytes.Contains(b, []byte(`"Collected"`)), "完整书目不应出现在 JSON 中")
}

func TestRunReport_Finalize_EmptySlicesNotNull(t *testing.T) {
	var r RunReport
	r.Finalize()

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"new_records":[]`)
	assert.Contains(t, string(b), `"pages":[]`)
	assert.Contains(t, string(b), `"previous_checked_at":null`)
}
