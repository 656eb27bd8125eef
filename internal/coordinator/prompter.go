package coordinator

import (
	"context"
	"errors"
	"sync"

	"github.com/quicknotes/offline-hub/internal/config"
)

// ErrNoPendingNotice 表示当前没有等待答复的更新提示。
var ErrNoPendingNotice = errors.New("no pending update notice")

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, notice Notice) (bool, error)

// Confirm makes PrompterFunc satisfy Prompter.
func (f PrompterFunc) Confirm(ctx context.Context, notice Notice) (bool, error) {
	return f(ctx, notice)
}

// AutoAccept 总是确认更新。
func AutoAccept() Prompter {
	return PrompterFunc(func(context.Context, Notice) (bool, error) { return true, nil })
}

// AlwaysDecline 总是拒绝更新，旧版本继续控制页面。
func AlwaysDecline() Prompter {
	return PrompterFunc(func(context.Context, Notice) (bool, error) { return false, nil })
}

// ForPolicy 根据配置的 UpdatePolicy 选择 Prompter。
func ForPolicy(policy config.UpdatePolicy) Prompter {
	switch policy {
	case config.UpdatePolicyAuto:
		return AutoAccept()
	case config.UpdatePolicyNever:
		return AlwaysDecline()
	default:
		return NewPendingPrompter()
	}
}

// PendingPrompter publishes the notice and blocks until Respond is called
// or the context ends. The HTTP surface answers it.
type PendingPrompter struct {
	mu      sync.Mutex
	current *pendingNotice
}

type pendingNotice struct {
	notice Notice
	answer chan bool
}

// NewPendingPrompter returns an idle prompter.
func NewPendingPrompter() *PendingPrompter {
	return &PendingPrompter{}
}

func (p *PendingPrompter) Confirm(ctx context.Context, notice Notice) (bool, error) {
	pending := &pendingNotice{notice: notice, answer: make(chan bool, 1)}
	p.mu.Lock()
	p.current = pending
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.current == pending {
			p.current = nil
		}
		p.mu.Unlock()
	}()

	select {
	case accept := <-pending.answer:
		return accept, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Pending 返回当前待答复的提示。
func (p *PendingPrompter) Pending() (Notice, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Notice{}, false
	}
	return p.current.notice, true
}

// Respond answers the pending notice.
func (p *PendingPrompter) Respond(accept bool) error {
	p.mu.Lock()
	pending := p.current
	p.current = nil
	p.mu.Unlock()
	if pending == nil {
		return ErrNoPendingNotice
	}
	pending.answer <- accept
	return nil
}
