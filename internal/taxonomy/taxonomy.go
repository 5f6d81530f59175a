// Package taxonomy 实现两套互相独立的关键字分类（动物种类 / 主题）。
//
// 分类表是配置数据而不是代码：启动时从 YAML 读取一次，测试可替换为最小表。
package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

const (
	// AnimalSentinel 是动物种类轴上“无命中”时的唯一标签。
	AnimalSentinel = "通用"
	// TopicSentinel 是主题轴上“无命中”时的唯一标签。
	TopicSentinel = "其他"
)

// Label 是一个分类标签及其触发关键字（按声明顺序）。
type Label struct {
	Name     string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// Table 是一张有序的分类表。
type Table struct {
	Name     string  `yaml:"name"`
	Sentinel string  `yaml:"sentinel"`
	Labels   []Label `yaml:"labels"`
}

// File 对应分类 YAML 文件的顶层结构。
type File struct {
	Animals Table `yaml:"animals"`
	Topics  Table `yaml:"topics"`
}

// Match 返回 text 命中的标签（表声明顺序、去重）；无命中时返回 [Sentinel]。
//
// 匹配是大小写不敏感的子串匹配。短关键字可能误命中更长的词（例如“鼠”命中“袋鼠”），
// 这是现有行为，保持不变。
func (t Table) Match(text string) []string {
	text = strings.ToLower(text)

	var out []string
	for _, l := range t.Labels {
		for _, kw := range l.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				out = appendUnique(out, l.Name)
				break
			}
		}
	}
	if len(out) == 0 {
		return []string{t.Sentinel}
	}
	return out
}

// LabelNames 返回全部标签名（声明顺序），末尾附带 sentinel。
func (t Table) LabelNames() []string {
	out := make([]string, 0, len(t.Labels)+1)
	for _, l := range t.Labels {
		out = append(out, l.Name)
	}
	return append(out, t.Sentinel)
}

// Has 判断 label 是否属于该表（包括 sentinel）。
func (t Table) Has(label string) bool {
	if label == t.Sentinel {
		return true
	}
	for _, l := range t.Labels {
		if l.Name == label {
			return true
		}
	}
	return false
}

// Validate 检查分类表本身的合法性。
func (t Table) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("分类表缺少 name")
	}
	if strings.TrimSpace(t.Sentinel) == "" {
		return fmt.Errorf("分类表 %q 缺少 sentinel", t.Name)
	}
	if len(t.Labels) == 0 {
		return fmt.Errorf("分类表 %q 没有任何标签", t.Name)
	}
	seen := make(map[string]struct{}, len(t.Labels))
	for i, l := range t.Labels {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			return fmt.Errorf("分类表 %q 第 %d 个标签缺少 label", t.Name, i+1)
		}
		if name == t.Sentinel {
			return fmt.Errorf("分类表 %q 的标签 %q 与 sentinel 重名", t.Name, name)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("分类表 %q 的标签 %q 重复", t.Name, name)
		}
		seen[name] = struct{}{}
		if len(l.Keywords) == 0 {
			return fmt.Errorf("分类表 %q 的标签 %q 没有关键字", t.Name, name)
		}
		for _, kw := range l.Keywords {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("分类表 %q 的标签 %q 含空关键字", t.Name, name)
			}
		}
	}
	return nil
}

// Parse 解析分类 YAML 并校验两张表。
func Parse(b []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("解析分类表失败：%w", err)
	}
	if err := f.Animals.Validate(); err != nil {
		return File{}, fmt.Errorf("animals：%w", err)
	}
	if err := f.Topics.Validate(); err != nil {
		return File{}, fmt.Errorf("topics：%w", err)
	}
	return f, nil
}

// Default 返回内置的两张分类表。
func Default() File {
	f, err := Parse(defaultYAML)
	if err != nil {
		// 内置数据损坏属于构建错误。
		panic(err)
	}
	return f
}

// Load 读取用户指定的分类文件；path 为空时返回内置表。
func Load(path string) (File, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return Parse(b)
}

func appendUnique(in []string, s string) []string {
	for _, v := range in {
		if v == s {
			return in
		}
	}
	return append(in, s)
}
