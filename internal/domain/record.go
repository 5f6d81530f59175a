package domain

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// DefaultOrigin 是诚品站点的固定 origin，用于把卡片上的相对链接补全为绝对 URL。
const DefaultOrigin = "https://www.eslite.com"

// MaxTitleRunes 是书名的最大保留长度（按 rune 计）。
const MaxTitleRunes = 200

// RawRecord 是页面采集器从一张商品卡片中抽出的原始字段（未经规范化）。
type RawRecord struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	Price         string `json:"price"`
	OriginalPrice string `json:"originalPrice"`
	Discount      string `json:"discount"`
	URL           string `json:"url"`
	Image         string `json:"image"`
}

// Record 是一本书（一条目录条目）。
//
// 约束：
// - Identity 非空；在一次采集中唯一（先出现者胜出）
// - LinkURL 为绝对 URL（或空）
// - AnimalTypes / Topics 在分类之后均非空，且标签只来自分类表
type Record struct {
	Identity          string   `json:"identity"`
	Title             string   `json:"title"`
	Author            string   `json:"author"`
	PriceText         string   `json:"price"`
	OriginalPriceText string   `json:"originalPrice"`
	DiscountText      string   `json:"discount"`
	LinkURL           string   `json:"url"`
	ImageURL          string   `json:"image"`
	AnimalTypes       []string `json:"animalTypes,omitempty"`
	Topics            []string `json:"topics,omitempty"`
}

// NewRecord 把 RawRecord 规范化为 Record。
//
// 返回 false 表示该条目应被过滤掉（没有书名或无法得到 identity），这不是错误。
// identity 规则：有链接时用绝对链接，否则用书名。
func NewRecord(raw RawRecord, origin string) (Record, bool) {
	title := truncateRunes(normSpace(raw.Title), MaxTitleRunes)
	if title == "" {
		return Record{}, false
	}

	link := AbsURL(origin, raw.URL)
	identity := link
	if identity == "" {
		identity = title
	}

	return Record{
		Identity:          identity,
		Title:             title,
		Author:            normSpace(raw.Author),
		PriceText:         strings.TrimSpace(raw.Price),
		OriginalPriceText: strings.TrimSpace(raw.OriginalPrice),
		DiscountText:      strings.TrimSpace(raw.Discount),
		LinkURL:           link,
		ImageURL:          strings.TrimSpace(raw.Image),
	}, true
}

// CombinedCategory 返回 animal × topic 的笛卡尔积（animal 为主序），形如 "狗-照護飼養"。
func (r Record) CombinedCategory() []string {
	out := make([]string, 0, len(r.AnimalTypes)*len(r.Topics))
	for _, a := range r.AnimalTypes {
		for _, t := range r.Topics {
			out = append(out, a+"-"+t)
		}
	}
	return out
}

// CombinedCategoryString 是 CombinedCategory 的展示形式（", " 连接）。
func (r Record) CombinedCategoryString() string {
	return strings.Join(r.CombinedCategory(), ", ")
}

// AbsURL 以 origin 为基准把 href 补全为绝对 URL。
// - 已是 http(s) 绝对地址：原样返回
// - 协议相对（//host/...）：补 https:
// - 其他相对路径：按 origin 解析
func AbsURL(origin, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	origin = strings.TrimSpace(origin)
	if origin == "" {
		origin = DefaultOrigin
	}
	bu, err := url.Parse(strings.TrimRight(origin, "/") + "/")
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
