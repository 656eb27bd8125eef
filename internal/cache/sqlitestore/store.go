// Package sqlitestore provides a SQLite-backed VersionedStore on modernc.org/sqlite.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quicknotes/offline-hub/internal/cache"
)

const (
	driverName = "sqlite"
	dbFileName = "offline-hub.db"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_tags (
    tag TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cache_entries (
    tag TEXT NOT NULL,
    method TEXT NOT NULL,
    url TEXT NOT NULL,
    status INTEGER NOT NULL,
    header BLOB NOT NULL,
    body BLOB NOT NULL,
    stored_at INTEGER NOT NULL,
    PRIMARY KEY (tag, method, url)
);
`

func init() {
	cache.MustRegisterDriver(cache.Driver{
		Name:        driverName,
		Description: "单文件 SQLite 数据库（WAL）",
		Persistent:  true,
		Open: func(path string) (cache.VersionedStore, error) {
			return Open(filepath.Join(path, dbFileName))
		},
	})
}

// Store persists every cache generation in one SQLite database.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) the database file at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Open registers the tag (if absent) and returns a handle bound to it.
func (s *Store) Open(ctx context.Context, tag cache.VersionTag) (cache.Store, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := tag.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO cache_tags (tag, created_at) VALUES (?, ?)`,
		string(tag), toMillis(time.Now()),
	); err != nil {
		return nil, fmt.Errorf("register tag %s: %w", tag, err)
	}
	return &tagStore{db: s.sqlDB, tag: tag}, nil
}

// DeleteAll drops the tag and every entry under it in one transaction.
func (s *Store) DeleteAll(ctx context.Context, tag cache.VersionTag) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := tag.Validate(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete %s: %w", tag, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE tag = ?`, string(tag)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete entries %s: %w", tag, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_tags WHERE tag = ?`, string(tag)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete tag %s: %w", tag, err)
	}
	return tx.Commit()
}

// ListTags returns every registered tag in lexical order.
func (s *Store) ListTags(ctx context.Context) ([]cache.VersionTag, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT tag FROM cache_tags ORDER BY tag ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []cache.VersionTag
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, cache.VersionTag(tag))
	}
	return tags, rows.Err()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return cache.ErrClosed
	}
	return nil
}

type tagStore struct {
	db  *sql.DB
	tag cache.VersionTag
}

func (t *tagStore) Tag() cache.VersionTag {
	return t.tag
}

func (t *tagStore) Get(ctx context.Context, key cache.Key) (*cache.Snapshot, error) {
	var (
		status   int
		header   []byte
		body     []byte
		storedAt int64
	)
	err := t.db.QueryRowContext(ctx,
		`SELECT status, header, body, stored_at FROM cache_entries WHERE tag = ? AND method = ? AND url = ?`,
		string(t.tag), key.Method, key.URL,
	).Scan(&status, &header, &body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	decoded := http.Header{}
	if len(header) > 0 {
		if err := json.Unmarshal(header, &decoded); err != nil {
			return nil, fmt.Errorf("decode header %s: %w", key, err)
		}
	}
	return &cache.Snapshot{
		StatusCode: status,
		Header:     decoded,
		Body:       body,
		StoredAt:   fromMillis(storedAt),
	}, nil
}

// Put 仅在 tag 仍然存在时写入，避免复活已被 DeleteAll 清理的版本。
func (t *tagStore) Put(ctx context.Context, key cache.Key, snapshot *cache.Snapshot) error {
	if snapshot == nil {
		return errors.New("nil snapshot")
	}
	header, err := json.Marshal(snapshot.Header)
	if err != nil {
		return fmt.Errorf("encode header %s: %w", key, err)
	}
	body := snapshot.Body
	if body == nil {
		body = []byte{}
	}
	storedAt := snapshot.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	result, err := t.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (tag, method, url, status, header, body, stored_at)
		 SELECT ?, ?, ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM cache_tags WHERE tag = ?)`,
		string(t.tag), key.Method, key.URL, snapshot.StatusCode, header, body, toMillis(storedAt), string(t.tag),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("put %s: tag %s no longer exists", key, t.tag)
	}
	return nil
}

func (t *tagStore) Keys(ctx context.Context) ([]cache.Key, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT method, url FROM cache_entries WHERE tag = ? ORDER BY method, url`,
		string(t.tag),
	)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []cache.Key
	for rows.Next() {
		var key cache.Key
		if err := rows.Scan(&key.Method, &key.URL); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
