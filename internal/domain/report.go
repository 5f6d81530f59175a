package domain

import (
	"encoding/json"
	"time"
)

const (
	StopDuplicatePage = "duplicate_page"
	StopMaxPages      = "max_pages"
	StopFetchError    = "fetch_error"
	StopCancelled     = "cancelled"
)

const (
	ErrCodeConfigInvalid   = "config_invalid"
	ErrCodeSnapshotCorrupt = "snapshot_corrupt"
	ErrCodeSnapshotIO      = "snapshot_io"
	ErrCodeFetchFailed     = "fetch_failed"
	ErrCodeEmptyCatalog    = "empty_catalog"
	ErrCodeSaveFailed      = "save_failed"
	ErrCodeCancelled       = "cancelled"
)

// RunReport 是一次检查的对外稳定输出（stdout JSON / 终端摘要）。
type RunReport struct {
	CategoryURL string `json:"category_url"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// PreviousCheckedAt 是读取到的基线时间；首次运行为 nil。
	PreviousCheckedAt *time.Time `json:"previous_checked_at"`

	Pages []PageResult `json:"pages"`
	Stop  string       `json:"stop"`

	FirstRun   bool     `json:"first_run"`
	NewRecords []Record `json:"new_records"`

	Notify NotifyResult `json:"notify"`

	Animals []LabelCount `json:"animals"`
	Topics  []LabelCount `json:"topics"`

	Saved     bool   `json:"saved"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`

	Summary ReportSummary `json:"summary"`

	// Collected 是本次采集并分类后的完整书目（不写入 JSON 输出，体积太大）。
	Collected []Record `json:"-"`
	// PreviousCount 是基线中的书目数。
	PreviousCount int `json:"previous_count"`
}

// PageResult 记录单页的采集结果。
type PageResult struct {
	Page  int    `json:"page"`
	URL   string `json:"url"`
	Raw   int    `json:"raw"`
	Added int    `json:"added"`
	Error string `json:"error,omitempty"`
}

// NotifyResult 是通知阶段的汇总（仅用于展示；不影响快照写入）。
type NotifyResult struct {
	Attempted bool     `json:"attempted"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// LabelCount 是某个分类标签下的书目数。
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type ReportSummary struct {
	Pages     int `json:"pages"`
	Collected int `json:"collected"`
	Previous  int `json:"previous"`
	New       int `json:"new"`
}

// Finalize 统一时间为 UTC，并由明细计算 summary。
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.PreviousCheckedAt != nil {
		t := r.PreviousCheckedAt.UTC()
		r.PreviousCheckedAt = &t
	}
	if r.NewRecords == nil {
		r.NewRecords = []Record{}
	}
	if r.Pages == nil {
		r.Pages = []PageResult{}
	}

	pages := 0
	for _, p := range r.Pages {
		if p.Error == "" {
			pages++
		}
	}
	r.Summary = ReportSummary{
		Pages:     pages,
		Collected: len(r.Collected),
		Previous:  r.PreviousCount,
		New:       len(r.NewRecords),
	}
}

// MarshalJSON 集中约束输出的稳定性；当前透传 encoding/json 的默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
