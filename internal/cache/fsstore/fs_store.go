// Package fsstore 实现基于本地目录的 VersionedStore：
//
//	<StoragePath>/<VersionTag>/<sha256(key)>.entry
//
// 每个条目文件包含 key 元数据与完整的 HTTP/1.1 响应报文，写入通过临时文件 + rename
// 保证原子性；删除版本时先将目录改名为 .trash-* 再清理，避免半删除的版本被列出。
package fsstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/quicknotes/offline-hub/internal/cache"
)

const (
	driverName  = "fs"
	entrySuffix = ".entry"
	trashPrefix = ".trash-"
)

func init() {
	cache.MustRegisterDriver(cache.Driver{
		Name:        driverName,
		Description: "目录 + 条目文件，适合单机部署",
		Persistent:  true,
		Open: func(path string) (cache.VersionedStore, error) {
			return NewStore(path)
		},
	})
}

// NewStore 以 basePath 为根目录构建版本化缓存，整个进程复用一份实例。
func NewStore(basePath string) (cache.VersionedStore, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	b := &fileBackend{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}
	b.sweepTrash()
	return b, nil
}

// fileBackend 通过 entryLock 串行化同一条目的写入，不同条目之间互不阻塞。
type fileBackend struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// tagStore 只是某个版本目录的句柄，多次 Open 得到的句柄指向同一份数据。
type tagStore struct {
	backend *fileBackend
	tag     cache.VersionTag
	dir     string
}

func (b *fileBackend) Open(ctx context.Context, tag cache.VersionTag) (cache.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := b.tagDir(tag)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tag dir: %w", err)
	}
	return &tagStore{backend: b, tag: tag, dir: dir}, nil
}

func (b *fileBackend) DeleteAll(ctx context.Context, tag cache.VersionTag) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := b.tagDir(tag)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	trash := filepath.Join(b.basePath, trashPrefix+string(tag)+"-"+uuid.NewString())
	if err := os.Rename(dir, trash); err != nil {
		return fmt.Errorf("detach tag dir: %w", err)
	}
	return os.RemoveAll(trash)
}

func (b *fileBackend) ListTags(ctx context.Context) ([]cache.VersionTag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(b.basePath)
	if err != nil {
		return nil, err
	}
	tags := make([]cache.VersionTag, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		tag := cache.VersionTag(entry.Name())
		if tag.Validate() != nil {
			continue
		}
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags, nil
}

func (b *fileBackend) Close() error {
	return nil
}

// sweepTrash 清理上次进程退出前未删完的版本目录。
func (b *fileBackend) sweepTrash() {
	entries, err := os.ReadDir(b.basePath)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), trashPrefix) {
			_ = os.RemoveAll(filepath.Join(b.basePath, entry.Name()))
		}
	}
}

func (b *fileBackend) tagDir(tag cache.VersionTag) (string, error) {
	if err := tag.Validate(); err != nil {
		return "", err
	}
	dir := filepath.Join(b.basePath, string(tag))
	if filepath.Dir(dir) != b.basePath {
		return "", fmt.Errorf("%w: %q", cache.ErrInvalidTag, tag)
	}
	return dir, nil
}

func (b *fileBackend) lockEntry(key string) func() {
	b.mu.Lock()
	lock := b.locks[key]
	if lock == nil {
		lock = &entryLock{}
		b.locks[key] = lock
	}
	lock.refs++
	b.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		b.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(b.locks, key)
		}
		b.mu.Unlock()
	}
}

func (s *tagStore) Tag() cache.VersionTag {
	return s.tag
}

func (s *tagStore) Get(ctx context.Context, key cache.Key) (*cache.Snapshot, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	filePath := s.entryPath(key)
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, cache.ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, cache.ErrNotFound
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, cache.ErrNotFound
		}
		return nil, err
	}
	storedKey, snapshot, err := cache.DecodeEntry(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if storedKey != key {
		return nil, cache.ErrNotFound
	}
	return snapshot, nil
}

func (s *tagStore) Put(ctx context.Context, key cache.Key, snapshot *cache.Snapshot) error {
	payload, err := cache.EncodeEntry(key, snapshot)
	if err != nil {
		return err
	}

	unlock := s.backend.lockEntry(string(s.tag) + "::" + key.String())
	defer unlock()

	filePath := s.entryPath(key)
	// 版本目录被 DeleteAll 移走后，这里会因目录不存在而失败，不会复活已删除的版本。
	tempFile, err := os.CreateTemp(s.dir, ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, bytes.NewReader(payload))
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (s *tagStore) Keys(ctx context.Context) ([]cache.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	keys := make([]cache.Key, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, entrySuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		key, _, err := cache.DecodeEntry(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

func (s *tagStore) entryPath(key cache.Key) string {
	sum := sha256.Sum256([]byte(key.String()))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+entrySuffix)
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
