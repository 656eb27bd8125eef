package lifecycle

import "errors"

var (
	// ErrSameVersion 表示脚本版本与当前激活或等待中的版本相同。
	ErrSameVersion = errors.New("worker version already installed")
	// ErrNoInstance 表示目标实例不存在或已失效。
	ErrNoInstance = errors.New("worker instance not found")
	// ErrNoController 表示请求既没有控制者也没有直通 fetcher。
	ErrNoController = errors.New("no controller and no passthrough fetcher")
	// ErrAlreadyActive 表示已存在激活实例，无法再恢复。
	ErrAlreadyActive = errors.New("registration already has an active worker")
)
