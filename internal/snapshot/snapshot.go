// Package snapshot 持久化“上一次成功运行”的完整书目与检查时间。
//
// 约束：
// - Load 在不存在时返回空快照（首次运行），损坏/不可读时返回 *Error（调用方应视为致命）
// - Save 整体替换：要么完整写入新快照，要么保留旧快照
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/John-Robertt/petwatch/internal/domain"
)

// Store 是快照存储的统一接口。
type Store interface {
	Load(ctx context.Context) (domain.Snapshot, error)
	Save(ctx context.Context, records []domain.Record, at time.Time) error
	Close() error
}

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

const (
	DefaultJSONPath   = "previous_books.json"
	DefaultSQLitePath = "petwatch.db"
	DefaultMongoDB    = "petwatch"
)

// Options 描述要打开哪种后端。
type Options struct {
	Backend  string
	Path     string // json / sqlite 文件路径
	MongoURI string
	MongoDB  string
}

// Open 按 Backend 打开快照存储。Backend 为空时使用 json。
func Open(ctx context.Context, opts Options) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" {
		backend = BackendJSON
	}
	switch backend {
	case BackendJSON:
		p := strings.TrimSpace(opts.Path)
		if p == "" {
			p = DefaultJSONPath
		}
		return NewFileStore(p), nil
	case BackendSQLite:
		p := strings.TrimSpace(opts.Path)
		if p == "" {
			p = DefaultSQLitePath
		}
		return OpenSQLite(ctx, p)
	case BackendMongo:
		db := strings.TrimSpace(opts.MongoDB)
		if db == "" {
			db = DefaultMongoDB
		}
		return OpenMongo(ctx, strings.TrimSpace(opts.MongoURI), db)
	default:
		return nil, fmt.Errorf("未知快照后端：%q（可选 json|sqlite|mongo）", opts.Backend)
	}
}

const (
	CodeCorrupt = domain.ErrCodeSnapshotCorrupt
	CodeIO      = domain.ErrCodeSnapshotIO
)

// Error 是快照读写阶段的可追溯错误。
type Error struct {
	Code string // snapshot_corrupt / snapshot_io
	Op   string // "load" / "save" / "open"
	Path string // 文件路径或数据库标识
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Code, e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Code 提取错误码；不是 *Error 时返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// validateRecords 检查从存储中读出的书目；identity 为空或重复都视为损坏。
func validateRecords(records []domain.Record) error {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.Identity) == "" {
			return fmt.Errorf("第 %d 条记录缺少 identity", i+1)
		}
		if _, ok := seen[r.Identity]; ok {
			return fmt.Errorf("identity 重复：%q", r.Identity)
		}
		seen[r.Identity] = struct{}{}
	}
	return nil
}
