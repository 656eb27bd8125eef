package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// VersionTag 标识一代缓存，例如 "notes-app-v2"。一旦分配即不可变。
type VersionTag string

// Validate 校验 tag 可以安全地作为目录名或行主键使用。
func (t VersionTag) Validate() error {
	raw := string(t)
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTag)
	}
	if strings.ContainsAny(raw, `/\`) || strings.Contains(raw, "..") || strings.HasPrefix(raw, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidTag, raw)
	}
	return nil
}

// Key 由请求方法与 URL（path + query）组成，唯一定位一个缓存条目。
type Key struct {
	Method string
	URL    string
}

// NewKey 规范化方法名，空方法视为 GET。
func NewKey(method, url string) Key {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "GET"
	}
	return Key{Method: method, URL: url}
}

func (k Key) String() string {
	return k.Method + " " + k.URL
}

// Store 是绑定到单个 VersionTag 的 key → Snapshot 映射。实现必须并发安全，
// 同一 key 的并发写入按最后写入者生效。
type Store interface {
	// Tag 返回当前 Store 所属的版本。
	Tag() VersionTag

	// Get 返回缓存的响应快照。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, key Key) (*Snapshot, error)

	// Put 以整体替换的方式写入条目，失败时不得留下部分内容。
	Put(ctx context.Context, key Key, snapshot *Snapshot) error

	// Keys 返回当前 Store 中全部条目的 key。
	Keys(ctx context.Context) ([]Key, error)
}

// VersionedStore 管理所有版本的 Store，数据需在进程重启后保留。
type VersionedStore interface {
	// Open 打开（不存在时创建）指定版本的 Store，重复调用返回同一个逻辑 Store。
	Open(ctx context.Context, tag VersionTag) (Store, error)

	// DeleteAll 整体删除指定版本，删除不存在的版本不视为错误。
	DeleteAll(ctx context.Context, tag VersionTag) error

	// ListTags 返回当前存在的所有版本，按字典序排列。
	ListTags(ctx context.Context) ([]VersionTag, error)

	// Close 释放底层资源。
	Close() error
}

var (
	// ErrNotFound 表示缓存条目不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrInvalidTag 表示 VersionTag 不合法。
	ErrInvalidTag = errors.New("invalid version tag")
	// ErrClosed 表示存储已关闭。
	ErrClosed = errors.New("cache store closed")
)
