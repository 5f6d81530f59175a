package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord_NormalizesAndUsesURLAsIdentity(t *testing.T) {
	r, ok := NewRecord(RawRecord{
		Title:  "  黃金獵犬完全飼養指南 \n",
		Author: " 王小明 ",
		Price:  " 380 ",
		URL:    "/product/1001",
		Image:  "https://img.test/a.jpg",
	}, DefaultOrigin)
	require.True(t, ok)

	assert.Equal(t, "https://www.eslite.com/product/1001", r.Identity)
	assert.Equal(t, "https://www.eslite.com/product/1001", r.LinkURL)
	assert.Equal(t, "黃金獵犬完全飼養指南", r.Title)
	assert.Equal(t, "王小明", r.Author)
	assert.Equal(t, "380", r.PriceText)
	assert.Equal(t, "", r.DiscountText)
}

func TestNewRecord_TitleIdentityWhenNoLink(t *testing.T) {
	r, ok := NewRecord(RawRecord{Title: " 貓咪行為學 "}, DefaultOrigin)
	require.True(t, ok)
	assert.Equal(t, "貓咪行為學", r.Identity)
	assert.Equal(t, "", r.LinkURL)
}

func TestNewRecord_DropsMissingTitle(t *testing.T) {
	_, ok := NewRecord(RawRecord{Title: "   ", URL: "/product/1"}, DefaultOrigin)
	assert.False(t, ok)
}

func TestNewRecord_TruncatesLongTitle(t *testing.T) {
	r, ok := NewRecord(RawRecord{Title: strings.Repeat("貓", MaxTitleRunes+20)}, DefaultOrigin)
	require.True(t, ok)
	assert.Equal(t, MaxTitleRunes, len([]rune(r.Title)))
}

func TestAbsURL(t *testing.T) {
	cases := []struct {
		origin, href, want string
	}{
		{DefaultOrigin, "/product/1", "https://www.eslite.com/product/1"},
		{DefaultOrigin + "/", "product/2", "https://www.eslite.com/product/2"},
		{DefaultOrigin, "//cdn.eslite.com/x.jpg", "https://cdn.eslite.com/x.jpg"},
		{DefaultOrigin, "https://other.test/p", "https://other.test/p"},
		{"", "/product/3", "https://www.eslite.com/product/3"},
		{DefaultOrigin, "  ", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, AbsURL(c.origin, c.href), "origin=%q href=%q", c.origin, c.href)
	}
}

func TestRecord_CombinedCategory_AnimalMajor(t *testing.T) {
	r := Record{AnimalTypes: []string{"貓", "狗"}, Topics: []string{"照護飼養", "醫療健康"}}
	assert.Equal(t, []string{"貓-照護飼養", "貓-醫療健康", "狗-照護飼養", "狗-醫療健康"}, r.CombinedCategory())
	assert.Equal(t, "貓-照護飼養, 貓-醫療健康, 狗-照護飼養, 狗-醫療健康", r.CombinedCategoryString())
}

func TestSnapshot_IsEmpty(t *testing.T) {
	assert.True(t, Snapshot{}.IsEmpty())
	s := Snapshot{Records: []Record{{Identity: "A"}, {Identity: "B"}}}
	assert.False(t, s.IsEmpty())
	assert.Equal(t, []string{"A", "B"}, s.Identities())
}
