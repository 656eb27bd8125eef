// Package coordinator is the foreground half of the update handshake. It
// watches registration events, asks a Prompter when a new worker is waiting
// behind the page's controller, sends SKIP_WAITING on acceptance and reloads
// the page once control has moved to the new worker.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quicknotes/offline-hub/internal/cache"
	"github.com/quicknotes/offline-hub/internal/lifecycle"
	"github.com/quicknotes/offline-hub/internal/worker"
)

// Notice 描述一个已安装、正在等待接管的新版本。
type Notice struct {
	InstanceID    string           `json:"instance_id"`
	Version       cache.VersionTag `json:"version"`
	ActiveVersion cache.VersionTag `json:"active_version"`
	DetectedAt    time.Time        `json:"detected_at"`
}

// Prompter asks the user whether to switch to the waiting version.
type Prompter interface {
	Confirm(ctx context.Context, notice Notice) (bool, error)
}

// Reloader reloads the page's resource graph.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Page is the foreground page the coordinator acts for.
type Page interface {
	Reloader
	ClientID() string
	Controller() *lifecycle.Instance
}

// Registration is the subset of *lifecycle.Registration the coordinator uses.
type Registration interface {
	Subscribe() (<-chan lifecycle.Event, func())
	PostMessage(ctx context.Context, id string, msg worker.Message) error
	Waiting() *lifecycle.Instance
}

// Coordinator drives the update prompt for one page.
type Coordinator struct {
	reg      Registration
	page     Page
	prompter Prompter
	logger   *logrus.Logger

	events <-chan lifecycle.Event
	cancel func()
}

// New wires a coordinator and subscribes immediately, so events published
// before Run starts are not lost. All collaborators are required except logger.
func New(reg Registration, page Page, prompter Prompter, logger *logrus.Logger) (*Coordinator, error) {
	if reg == nil || page == nil || prompter == nil {
		return nil, errors.New("registration, page and prompter are required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	events, cancel := reg.Subscribe()
	return &Coordinator{
		reg:      reg,
		page:     page,
		prompter: prompter,
		logger:   logger,
		events:   events,
		cancel:   cancel,
	}, nil
}

// Run consumes registration events until ctx is done or the stream closes.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.cancel()
	events := c.events

	var installing, accepted string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case lifecycle.EventUpdateFound:
				installing = ev.InstanceID
			case lifecycle.EventStateChange:
				if ev.InstanceID != installing {
					continue
				}
				switch ev.State {
				case lifecycle.StateInstalled:
					installing = ""
					if c.offerUpdate(ctx, ev) {
						accepted = ev.InstanceID
					}
				case lifecycle.StateRedundant:
					installing = ""
				}
			case lifecycle.EventControllerChange:
				if accepted == "" || ev.InstanceID != accepted || ev.ClientID != c.page.ClientID() {
					continue
				}
				accepted = ""
				c.reload(ctx, ev)
			}
		}
	}
}

// offerUpdate 只在页面已有控制者、且该实例仍在等待时提示；返回是否已发送 SKIP_WAITING。
func (c *Coordinator) offerUpdate(ctx context.Context, ev lifecycle.Event) bool {
	fields := logrus.Fields{
		"action":   "update_prompt",
		"version":  string(ev.Version),
		"instance": ev.InstanceID,
	}
	controller := c.page.Controller()
	if controller == nil {
		c.logger.WithFields(fields).Debug("page uncontrolled, no prompt needed")
		return false
	}
	if waiting := c.reg.Waiting(); waiting == nil || waiting.ID() != ev.InstanceID {
		c.logger.WithFields(fields).Debug("worker no longer waiting")
		return false
	}

	notice := Notice{
		InstanceID:    ev.InstanceID,
		Version:       ev.Version,
		ActiveVersion: controller.Version(),
		DetectedAt:    time.Now().UTC(),
	}
	fields["active_version"] = string(notice.ActiveVersion)
	c.logger.WithFields(fields).Info("new version waiting")

	accept, err := c.prompter.Confirm(ctx, notice)
	if err != nil {
		c.logger.WithFields(fields).Warn(err.Error())
		return false
	}
	if !accept {
		c.logger.WithFields(fields).Info("update declined")
		return false
	}
	if err := c.reg.PostMessage(ctx, ev.InstanceID, worker.Message{Type: worker.MessageSkipWaiting}); err != nil {
		c.logger.WithFields(fields).Warn(err.Error())
		return false
	}
	c.logger.WithFields(fields).Info("update accepted")
	return true
}

func (c *Coordinator) reload(ctx context.Context, ev lifecycle.Event) {
	fields := logrus.Fields{
		"action":   "page_reload",
		"version":  string(ev.Version),
		"instance": ev.InstanceID,
	}
	if err := c.page.Reload(ctx); err != nil {
		c.logger.WithFields(fields).Warn(err.Error())
		return
	}
	c.logger.WithFields(fields).Info("page reloaded under new worker")
}
