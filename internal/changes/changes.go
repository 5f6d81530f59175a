// Package changes 计算“本次有、上次没有”的书目。
//
// 比较只看 identity 的精确字符串相等；首次运行的策略不在这里（由编排层决定）。
package changes

import "github.com/John-Robertt/petwatch/internal/domain"

// IdentitySet 是 identity 的集合。
type IdentitySet map[string]struct{}

// Index 为 records 建立 identity 集合，O(n)。
func Index(records []domain.Record) IdentitySet {
	s := make(IdentitySet, len(records))
	for _, r := range records {
		s[r.Identity] = struct{}{}
	}
	return s
}

// Has 判断 id 是否在集合中。
func (s IdentitySet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// NewRecords 返回 current 中 identity 不在 previous 里的记录（保持 current 顺序）。
func NewRecords(current, previous []domain.Record) []domain.Record {
	prev := Index(previous)
	out := make([]domain.Record, 0)
	for _, r := range current {
		if !prev.Has(r.Identity) {
			out = append(out, r)
		}
	}
	return out
}
