package taxonomy

import (
	"sort"

	"github.com/John-Robertt/petwatch/internal/domain"
)

// Classifier 在两张独立的表上为书目打标签。
type Classifier struct {
	Animals Table
	Topics  Table
}

// New 用分类文件构造 Classifier。
func New(f File) Classifier {
	return Classifier{Animals: f.Animals, Topics: f.Topics}
}

// Classify 返回 r 的动物种类与主题标签；两者均非空。
func (c Classifier) Classify(r domain.Record) (animals, topics []string) {
	text := subject(r)
	return c.Animals.Match(text), c.Topics.Match(text)
}

// Apply 为每条记录填充标签，返回新切片（不修改入参）。
func (c Classifier) Apply(records []domain.Record) []domain.Record {
	out := make([]domain.Record, len(records))
	for i, r := range records {
		r.AnimalTypes, r.Topics = c.Classify(r)
		out[i] = r
	}
	return out
}

// Combined 返回 animals × topics，形如 "狗-照護飼養"（animal 为主序）。
func Combined(animals, topics []string) []string {
	return domain.Record{AnimalTypes: animals, Topics: topics}.CombinedCategory()
}

// AnimalBreakdown 统计每个动物种类标签下的书目数。
func (c Classifier) AnimalBreakdown(records []domain.Record) []domain.LabelCount {
	return breakdown(c.Animals, records, func(r domain.Record) []string { return r.AnimalTypes })
}

// TopicBreakdown 统计每个主题标签下的书目数。
func (c Classifier) TopicBreakdown(records []domain.Record) []domain.LabelCount {
	return breakdown(c.Topics, records, func(r domain.Record) []string { return r.Topics })
}

// FilterByAnimal 返回含有该动物种类标签的书目（保持顺序）。
func FilterByAnimal(records []domain.Record, label string) []domain.Record {
	return filter(records, label, func(r domain.Record) []string { return r.AnimalTypes })
}

// FilterByTopic 返回含有该主题标签的书目（保持顺序）。
func FilterByTopic(records []domain.Record, label string) []domain.Record {
	return filter(records, label, func(r domain.Record) []string { return r.Topics })
}

func subject(r domain.Record) string { return r.Title + " " + r.Author }

// breakdown 按数量降序；数量相同按表声明顺序（sentinel 最后）。计数为 0 的标签不输出。
func breakdown(t Table, records []domain.Record, pick func(domain.Record) []string) []domain.LabelCount {
	order := make(map[string]int, len(t.Labels)+1)
	for i, name := range t.LabelNames() {
		order[name] = i
	}

	counts := make(map[string]int)
	for _, r := range records {
		for _, l := range pick(r) {
			counts[l]++
		}
	}

	out := make([]domain.LabelCount, 0, len(counts))
	for l, n := range counts {
		out = append(out, domain.LabelCount{Label: l, Count: n})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		oi, iok := order[out[i].Label]
		oj, jok := order[out[j].Label]
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func filter(records []domain.Record, label string, pick func(domain.Record) []string) []domain.Record {
	var out []domain.Record
	for _, r := range records {
		for _, l := range pick(r) {
			if l == label {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
