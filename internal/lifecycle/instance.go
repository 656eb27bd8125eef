package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/quicknotes/offline-hub/internal/cache"
	"github.com/quicknotes/offline-hub/internal/worker"
)

// Script is the worker code a Registration runs. *worker.Worker satisfies it.
type Script interface {
	Version() cache.VersionTag
	OnInstall(ctx context.Context) error
	OnActivate(ctx context.Context) error
	OnFetch(ctx context.Context, req *worker.Request) (*worker.Result, error)
	OnMessage(ctx context.Context, scope worker.Scope, msg worker.Message) error
}

// Instance is one running copy of a Script.
type Instance struct {
	id     string
	script Script
	state  atomic.Int32

	skipWaiting   atomic.Bool
	activated     chan struct{}
	activatedOnce sync.Once
}

// InstanceInfo 是实例状态的只读快照，供诊断接口使用。
type InstanceInfo struct {
	ID      string           `json:"id"`
	Version cache.VersionTag `json:"version"`
	State   State            `json:"state"`
}

func newInstance(script Script) *Instance {
	inst := &Instance{
		id:        uuid.NewString(),
		script:    script,
		activated: make(chan struct{}),
	}
	inst.state.Store(int32(StateInstalling))
	return inst
}

// ID 返回实例唯一标识。
func (i *Instance) ID() string {
	return i.id
}

// Version 返回实例脚本的缓存版本。
func (i *Instance) Version() cache.VersionTag {
	return i.script.Version()
}

// State 返回当前生命周期状态。
func (i *Instance) State() State {
	return State(i.state.Load())
}

// Info 返回实例快照。
func (i *Instance) Info() InstanceInfo {
	return InstanceInfo{ID: i.id, Version: i.Version(), State: i.State()}
}

func (i *Instance) setState(state State) {
	i.state.Store(int32(state))
	if state == StateActivated || state == StateRedundant {
		i.activatedOnce.Do(func() { close(i.activated) })
	}
}

// waitActivated 阻塞到实例完成激活，对应浏览器在 activating 期间挂起 fetch 事件。
func (i *Instance) waitActivated(ctx context.Context) error {
	select {
	case <-i.activated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// scope 是传给 OnMessage 的平台句柄。
type scope struct {
	inst *Instance
}

func (s scope) SkipWaiting() {
	s.inst.skipWaiting.Store(true)
}
