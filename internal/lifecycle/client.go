package lifecycle

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Client is one attached page.
type Client struct {
	id         string
	controller atomic.Pointer[Instance]
}

func newClient() *Client {
	return &Client{id: uuid.NewString()}
}

// ID 返回客户端标识。
func (c *Client) ID() string {
	return c.id
}

// Controller returns the instance currently controlling the client, or nil.
func (c *Client) Controller() *Instance {
	return c.controller.Load()
}
