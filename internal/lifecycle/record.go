package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quicknotes/offline-hub/internal/cache"
)

const recordFileName = "registration.json"

// Record 是跨进程重启保留的注册信息。
type Record struct {
	ActiveVersion cache.VersionTag `json:"active_version"`
	ActivatedAt   time.Time        `json:"activated_at"`
}

// RecordStore persists the active version.
type RecordStore interface {
	Load() (*Record, error)
	Save(Record) error
}

// FileRecordStore 将 Record 写入 <dir>/registration.json，使用临时文件 + rename 保证原子性。
type FileRecordStore struct {
	path string
}

// NewFileRecordStore returns a store rooted at dir.
func NewFileRecordStore(dir string) *FileRecordStore {
	return &FileRecordStore{path: filepath.Join(dir, recordFileName)}
}

// Path 返回记录文件路径。
func (s *FileRecordStore) Path() string {
	return s.path
}

// Load returns nil without error when nothing has been saved yet.
func (s *FileRecordStore) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return &record, nil
}

func (s *FileRecordStore) Save(record Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".registration-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}
