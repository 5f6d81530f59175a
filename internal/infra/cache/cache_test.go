package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const pageURL = "https://www.eslite.com/category/3/123?page=2"

func TestStore_ReadWritePage(t *testing.T) {
	root := t.TempDir()

	s := New(root, false)
	if err := s.WritePage("eslite", pageURL, []byte("<html/>")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, ok, err := s.ReadPage("eslite", pageURL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !ok {
		t.Fatalf("期望命中缓存，但 ok=false")
	}
	if string(b) != "<html/>" {
		t.Fatalf("内容不一致：%q", string(b))
	}

	path, err := s.PagePath("eslite", pageURL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if filepath.Dir(path) != filepath.Join(root, "pages", "eslite") {
		t.Fatalf("路径不符合预期：%s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("期望文件存在，但 Stat 失败：%v", err)
	}

	_, ok, err = s.ReadPage("eslite", pageURL+"&x=1")
	if err != nil || ok {
		t.Fatalf("期望未命中，实际 ok=%v err=%v", ok, err)
	}
}

func TestStore_ReadOnlyRejectWrite(t *testing.T) {
	s := New(t.TempDir(), true)
	err := s.WritePage("eslite", pageURL, []byte("<html/>"))
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}

	path, err := s.PagePath("eslite", pageURL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("期望文件不存在，但 Stat err=%v", err)
	}
}

func TestStore_RejectBadSource(t *testing.T) {
	s := New(t.TempDir(), false)
	for _, src := range []string{"", "../etc", "a/b"} {
		if _, err := s.PagePath(src, pageURL); err == nil {
			t.Fatalf("source=%q 期望错误", src)
		}
	}
	if _, err := s.PagePath("eslite", " "); err == nil {
		t.Fatalf("空 url 期望错误")
	}
}
