package domain

import "time"

// Snapshot 是上一次成功运行留下的基线：完整的书目 + 检查时间。
// LastCheckedAt 为 nil 表示从未运行过。
type Snapshot struct {
	Records       []Record   `json:"records"`
	LastCheckedAt *time.Time `json:"lastCheckedAt"`
}

// IsEmpty 为 true 时调用方应进入“首次运行/建立基线”模式。
func (s Snapshot) IsEmpty() bool { return len(s.Records) == 0 }

// Identities 按快照顺序返回全部 identity。
func (s Snapshot) Identities() []string {
	out := make([]string, 0, len(s.Records))
	for _, r := range s.Records {
		out = append(out, r.Identity)
	}
	return out
}
