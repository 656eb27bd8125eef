package worker

import (
	"context"
	"fmt"

	"github.com/quicknotes/offline-hub/internal/logging"
)

// MessageSkipWaiting 请求把处于等待状态的 worker 立即提升为激活。
const MessageSkipWaiting = "SKIP_WAITING"

// Message is a foreground → worker command.
type Message struct {
	Type string `json:"type"`
}

// Scope is the handle the platform passes to message handlers. SkipWaiting
// only requests a transition; the platform decides when it happens.
type Scope interface {
	SkipWaiting()
}

// HandleMessage reacts to a foreground message.
func (w *Worker) HandleMessage(_ context.Context, scope Scope, msg Message) error {
	switch msg.Type {
	case MessageSkipWaiting:
		w.logger.WithFields(logging.WorkerFields("message", string(w.cfg.Version))).
			Info("skip waiting requested")
		if scope != nil {
			scope.SkipWaiting()
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}
