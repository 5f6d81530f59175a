package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/John-Robertt/petwatch/internal/domain"
	"github.com/John-Robertt/petwatch/internal/infra/fsx"
)

// FileStore 把快照存为一个 JSON 文件：{"records": [...], "lastCheckedAt": "..."}。
// 写入走同目录临时文件 + rename，崩溃时不会留下半个文件。
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

type fileDoc struct {
	Records       []domain.Record `json:"records"`
	LastCheckedAt *time.Time      `json:"lastCheckedAt"`

	// 旧版格式：{"books": [{"name","author","price","link","image"}], "last_check": "..."}
	Books     []legacyBook `json:"books,omitempty"`
	LastCheck *string      `json:"last_check,omitempty"`
}

type legacyBook struct {
	Name   string `json:"name"`
	Author string `json:"author"`
	Price  string `json:"price"`
	Link   string `json:"link"`
	Image  string `json:"image"`
}

// 旧版 last_check 是不带时区的本地时间。
var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func (s *FileStore) Load(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	b, exists, err := fsx.ReadFileIfExists(s.Path)
	if err != nil {
		return domain.Snapshot{}, &Error{Code: CodeIO, Op: "load", Path: s.Path, Err: err}
	}
	if !exists {
		return domain.Snapshot{}, nil
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return domain.Snapshot{}, &Error{Code: CodeCorrupt, Op: "load", Path: s.Path, Err: errors.New("文件为空")}
	}

	snap, err := decodeFile(b)
	if err != nil {
		return domain.Snapshot{}, &Error{Code: CodeCorrupt, Op: "load", Path: s.Path, Err: err}
	}
	return snap, nil
}

func decodeFile(b []byte) (domain.Snapshot, error) {
	// 顶层必须是对象，且 records（或旧版 books）必须是数组；否则按损坏处理，不能当作首次运行。
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return domain.Snapshot{}, err
	}
	if keys == nil {
		return domain.Snapshot{}, errors.New("快照不是 JSON 对象")
	}
	raw, ok := keys["records"]
	if !ok {
		raw, ok = keys["books"]
	}
	if !ok {
		return domain.Snapshot{}, errors.New("快照缺少 records")
	}
	if !isJSONArray(raw) {
		return domain.Snapshot{}, errors.New("快照的 records 不是数组")
	}

	var doc fileDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return domain.Snapshot{}, err
	}

	snap := domain.Snapshot{Records: doc.Records, LastCheckedAt: doc.LastCheckedAt}
	if doc.Records == nil && doc.Books != nil {
		snap.Records = fromLegacy(doc.Books)
		if doc.LastCheck != nil {
			t, err := parseLegacyTime(*doc.LastCheck)
			if err != nil {
				return domain.Snapshot{}, err
			}
			snap.LastCheckedAt = &t
		}
	}
	if err := validateRecords(snap.Records); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

func isJSONArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// fromLegacy 把旧版书目转换为 Record；旧版以书名作为比较键，这里沿用 NewRecord 的 identity 规则。
func fromLegacy(books []legacyBook) []domain.Record {
	out := make([]domain.Record, 0, len(books))
	seen := make(map[string]struct{}, len(books))
	for _, b := range books {
		r, ok := domain.NewRecord(domain.RawRecord{
			Title:  b.Name,
			Author: b.Author,
			Price:  b.Price,
			URL:    b.Link,
			Image:  b.Image,
		}, domain.DefaultOrigin)
		if !ok {
			continue
		}
		if _, dup := seen[r.Identity]; dup {
			continue
		}
		seen[r.Identity] = struct{}{}
		out = append(out, r)
	}
	return out
}

func parseLegacyTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range legacyTimeLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func (s *FileStore) Save(ctx context.Context, records []domain.Record, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if records == nil {
		records = []domain.Record{}
	}
	at = at.UTC()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fileDoc{Records: records, LastCheckedAt: &at}); err != nil {
		return &Error{Code: CodeIO, Op: "save", Path: s.Path, Err: err}
	}
	if err := fsx.WriteFileAtomic(s.Path, buf.Bytes()); err != nil {
		return &Error{Code: CodeIO, Op: "save", Path: s.Path, Err: err}
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
