package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/John-Robertt/petwatch/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshot_records (
	pos            INTEGER PRIMARY KEY,
	identity       TEXT NOT NULL UNIQUE,
	title          TEXT NOT NULL,
	author         TEXT NOT NULL DEFAULT '',
	price          TEXT NOT NULL DEFAULT '',
	original_price TEXT NOT NULL DEFAULT '',
	discount       TEXT NOT NULL DEFAULT '',
	url            TEXT NOT NULL DEFAULT '',
	image          TEXT NOT NULL DEFAULT '',
	animal_types   TEXT NOT NULL DEFAULT '[]',
	topics         TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS snapshot_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const metaLastCheckedAt = "last_checked_at"

// SQLiteStore 把快照存进 SQLite；Save 在单个事务内整体替换。
type SQLiteStore struct {
	Path string
	db   *sql.DB
}

// OpenSQLite 打开（必要时创建）数据库并建表。
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &Error{Code: CodeIO, Op: "open", Path: path, Err: err}
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, &Error{Code: openErrCode(err), Op: "open", Path: path, Err: fmt.Errorf("设置 pragma 失败：%w", err)}
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, &Error{Code: openErrCode(err), Op: "open", Path: path, Err: fmt.Errorf("建表失败：%w", err)}
	}
	return &SQLiteStore{Path: path, db: db}, nil
}

// openErrCode：路径上不是 SQLite 文件时算损坏，其余算 IO。
func openErrCode(err error) string {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_NOTADB {
		return CodeCorrupt
	}
	return CodeIO
}

func (s *SQLiteStore) Load(ctx context.Context) (domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT identity, title, author, price, original_price, discount, url, image, animal_types, topics
FROM snapshot_records ORDER BY pos`)
	if err != nil {
		return domain.Snapshot{}, &Error{Code: CodeIO, Op: "load", Path: s.Path, Err: err}
	}
	defer rows.Close()

	var snap domain.Snapshot
	for rows.Next() {
		var (
			r              domain.Record
			animals, topic string
		)
		if err := rows.Scan(&r.Identity, &r.Title, &r.Author, &r.PriceText, &r.OriginalPriceText,
			&r.DiscountText, &r.LinkURL, &r.ImageURL, &animals, &topic); err != nil {
			return domain.Snapshot{}, &Error{Code: CodeIO, Op: "load", Path: s.Path, Err: err}
		}
		if err := json.Unmarshal([]byte(animals), &r.AnimalTypes); err != nil {
			return domain.Snapshot{}, &Error{Code: CodeCorrupt, Op: "load", Path: s.Path, Err: fmt.Errorf("animal_types：%w", err)}
		}
		if err := json.Unmarshal([]byte(topic), &r.Topics); err != nil {
			return domain.Snapshot{}, &Error{Code: CodeCorrupt, Op: "load", Path: s.Path, Err: fmt.Errorf("topics：%w", err)}
		}
		snap.Records = append(snap.Records, r)
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, &Error{Code: CodeIO, Op: "load", Path: s.Path, Err: err}
	}
	if err := validateRecords(snap.Records); err != nil {
		return domain.Snapshot{}, &Error{Code: CodeCorrupt, Op: "load", Path: s.Path, Err: err}
	}

	var v string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM snapshot_meta WHERE key = ?`, metaLastCheckedAt).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return domain.Snapshot{}, &Error{Code: CodeIO, Op: "load", Path: s.Path, Err: err}
	default:
		t, perr := time.Parse(time.RFC3339Nano, v)
		if perr != nil {
			return domain.Snapshot{}, &Error{Code: CodeCorrupt, Op: "load", Path: s.Path, Err: fmt.Errorf("last_checked_at：%w", perr)}
		}
		snap.LastCheckedAt = &t
	}
	return snap, nil
}

func (s *SQLiteStore) Save(ctx context.Context, records []domain.Record, at time.Time) error {
	wrap := func(err error) error { return &Error{Code: CodeIO, Op: "save", Path: s.Path, Err: err} }

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_records`); err != nil {
		return wrap(err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_records
(pos, identity, title, author, price, original_price, discount, url, image, animal_types, topics)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return wrap(err)
	}
	defer stmt.Close()

	for i, r := range records {
		animals, _ := json.Marshal(nonNil(r.AnimalTypes))
		topics, _ := json.Marshal(nonNil(r.Topics))
		if _, err := stmt.ExecContext(ctx, i, r.Identity, r.Title, r.Author, r.PriceText, r.OriginalPriceText,
			r.DiscountText, r.LinkURL, r.ImageURL, string(animals), string(topics)); err != nil {
			return wrap(fmt.Errorf("写入 %q：%w", r.Identity, err))
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshot_meta (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, metaLastCheckedAt, at.UTC().Format(time.RFC3339Nano)); err != nil {
		return wrap(err)
	}
	if err := tx.Commit(); err != nil {
		return wrap(err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
