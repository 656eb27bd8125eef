package worker

import (
	"errors"
	"fmt"

	"github.com/quicknotes/offline-hub/internal/cache"
)

// ErrUnknownMessage 表示收到了无法识别的消息类型。
var ErrUnknownMessage = errors.New("unknown message type")

// ErrUnexpectedStatus 表示清单资源返回了非 2xx 状态码。
var ErrUnexpectedStatus = errors.New("unexpected status")

// InstallError 表示某个版本的安装失败，该版本不会被提升。
type InstallError struct {
	Version cache.VersionTag
	Path    string
	Err     error
}

func (e *InstallError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("install %s: %v", e.Version, e.Err)
	}
	return fmt.Sprintf("install %s: %s: %v", e.Version, e.Path, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// FetchError 表示网络失败且没有可用的缓存兜底。
type FetchError struct {
	Method string
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StoreError 表示底层持久化存储不可用。
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("cache store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DeletionError 记录激活阶段单个旧版本删除失败，只会被记录，不会中断激活。
type DeletionError struct {
	Tag cache.VersionTag
	Err error
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("delete cache %s: %v", e.Tag, e.Err)
}

func (e *DeletionError) Unwrap() error {
	return e.Err
}
