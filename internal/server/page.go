package server

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/quicknotes/offline-hub/internal/lifecycle"
)

// Page is the foreground page served over HTTP. It holds exactly one
// lifecycle client at a time; Reload replaces it the way a browser reload
// replaces the document.
type Page struct {
	reg    *lifecycle.Registration
	client atomic.Pointer[lifecycle.Client]
}

// NewPage attaches the first client for the page.
func NewPage(reg *lifecycle.Registration) (*Page, error) {
	if reg == nil {
		return nil, errors.New("registration is required")
	}
	p := &Page{reg: reg}
	p.client.Store(reg.Attach())
	return p, nil
}

// Client 返回当前页面客户端。
func (p *Page) Client() *lifecycle.Client {
	return p.client.Load()
}

// ClientID 返回当前页面客户端标识。
func (p *Page) ClientID() string {
	if client := p.Client(); client != nil {
		return client.ID()
	}
	return ""
}

// Controller 返回当前控制页面的实例，未受控时为 nil。
func (p *Page) Controller() *lifecycle.Instance {
	if client := p.Client(); client != nil {
		return client.Controller()
	}
	return nil
}

// Reload attaches a fresh client before detaching the old one, so the new
// document is controlled by whatever is active at that moment.
func (p *Page) Reload(ctx context.Context) error {
	previous := p.client.Swap(p.reg.Attach())
	p.reg.Detach(ctx, previous)
	return nil
}

// Close 分离当前客户端，之后页面不再受控。
func (p *Page) Close(ctx context.Context) {
	if previous := p.client.Swap(nil); previous != nil {
		p.reg.Detach(ctx, previous)
	}
}
