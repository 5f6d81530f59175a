// Package cache 把抓到的列表页 HTML 存到本地目录，用于排查解析问题和离线重放。
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/petwatch/internal/infra/fsx"
)

// Store 提供 <root>/pages/<source>/ 下的页面缓存读写。
//
// 约束：
// - 重放（replay）：只允许读（ReadOnly=true）
// - 记录：允许写（ReadOnly=false）
type Store struct {
	Root     string
	ReadOnly bool
}

var (
	ErrReadOnly = errors.New("cache: read-only")
	// ErrMiss 表示重放时缓存里没有该页面。
	ErrMiss = errors.New("cache: miss")
)

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// PagePath 返回 url 对应的缓存文件路径。文件名取 URL 的 sha1 前 16 位，避免特殊字符。
func (s Store) PagePath(source, url string) (string, error) {
	src, err := cleanSource(source)
	if err != nil {
		return "", err
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("url 不能为空")
	}
	sum := sha1.Sum([]byte(url))
	return filepath.Join(s.Root, "pages", src, hex.EncodeToString(sum[:8])+".html"), nil
}

// ReadPage 读取缓存；不存在时返回 ok=false。
func (s Store) ReadPage(source, url string) ([]byte, bool, error) {
	path, err := s.PagePath(source, url)
	if err != nil {
		return nil, false, err
	}
	return fsx.ReadFileIfExists(path)
}

func (s Store) WritePage(source, url string, html []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.PagePath(source, url)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(path, html)
}

var sourceNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

func cleanSource(p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "", fmt.Errorf("source 不能为空")
	}
	// 只防路径穿越；source 名本身是枚举。
	if !sourceNameRE.MatchString(p) {
		return "", fmt.Errorf("非法 source：%q", p)
	}
	return p, nil
}
