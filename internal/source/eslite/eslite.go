package eslite

import (
	"bytes"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/petwatch/internal/domain"
	"github.com/John-Robertt/petwatch/internal/source"
)

// DefaultCategoryURL 是诚品“寵物”分类页。
const DefaultCategoryURL = "https://www.eslite.com/category/3/123"

var _ source.Source = Source{}

// Source 实现诚品分类列表页的分页 URL 与商品卡片解析。
//
// 约束：
// - 列表页由 JS 渲染；Parse 只处理渲染后的 HTML，不关心它是怎么拿到的
// - Parse 必须是纯函数（只依赖输入 html）
type Source struct {
	// CategoryURL 为空时使用 DefaultCategoryURL。
	CategoryURL string
}

func (Source) Name() string { return "eslite" }

func (s Source) categoryURL() string {
	u := strings.TrimSpace(s.CategoryURL)
	if u == "" {
		return DefaultCategoryURL
	}
	return u
}

// PageURL：第 1 页用分类 URL 本身，第 N 页追加 ?page=N。
func (s Source) PageURL(page int) string {
	base := s.categoryURL()
	if page <= 1 {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?page=" + strconv.Itoa(page)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// Parse 把列表页 HTML 解析为原始卡片字段。
// 书名不足 3 个字的卡片视为占位元素，直接跳过。
func (Source) Parse(html []byte, pageURL string) ([]domain.RawRecord, error) {
	if len(html) == 0 {
		return nil, errors.New("html 为空")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	var out []domain.RawRecord
	doc.Find(`a.product-item[href*="/product/"]`).Each(func(_ int, card *goquery.Selection) {
		if r, ok := parseCard(card); ok {
			out = append(out, r)
		}
	})
	return out, nil
}

func parseCard(card *goquery.Selection) (domain.RawRecord, bool) {
	href, _ := card.Attr("href")
	href = strings.TrimSpace(href)
	if !strings.Contains(href, "/product/") {
		return domain.RawRecord{}, false
	}

	title := text(card.Find(".product-name").First())
	if title == "" {
		if v, ok := card.Find(".product-image").First().Attr("title"); ok {
			title = strings.TrimSpace(v)
		}
	}
	if utf8.RuneCountInString(title) <= 2 {
		return domain.RawRecord{}, false
	}

	discount := text(card.Find(".discount").First())
	if discount != "" {
		discount += "折"
	}

	originalPrice := ""
	if v, ok := card.Find("[pre-price]").First().Attr("pre-price"); ok {
		originalPrice = strings.TrimSpace(v)
	}

	image := ""
	img := card.Find("img").First()
	if v, ok := img.Attr("src"); ok && strings.TrimSpace(v) != "" {
		image = strings.TrimSpace(v)
	} else if v, ok := img.Attr("data-src"); ok {
		image = strings.TrimSpace(v)
	}

	return domain.RawRecord{
		Title:         title,
		Author:        text(card.Find(".product-author").First()),
		Price:         text(card.Find(".slider-price").First()),
		OriginalPrice: originalPrice,
		Discount:      discount,
		URL:           href,
		Image:         image,
	}, true
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
