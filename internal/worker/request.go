package worker

import (
	"context"
	"net/http"

	"github.com/quicknotes/offline-hub/internal/cache"
)

// Mode 对应 Fetch 标准中的 request mode。
type Mode string

const (
	ModeNavigate   Mode = "navigate"
	ModeSameOrigin Mode = "same-origin"
	ModeNoCORS     Mode = "no-cors"
	ModeCORS       Mode = "cors"
)

// Destination 对应 Fetch 标准中的 request destination，空值表示未声明。
type Destination string

const (
	DestinationEmpty    Destination = ""
	DestinationDocument Destination = "document"
	DestinationScript   Destination = "script"
	DestinationStyle    Destination = "style"
	DestinationImage    Destination = "image"
	DestinationManifest Destination = "manifest"
)

// Request is the worker's view of an intercepted request. URL is
// origin-relative (path plus optional query).
type Request struct {
	Method      string
	URL         string
	Header      http.Header
	Mode        Mode
	Destination Destination
	Body        []byte
}

// NewRequest returns a GET-style request with an empty header set.
func NewRequest(method, url string) *Request {
	return &Request{
		Method: method,
		URL:    url,
		Header: http.Header{},
	}
}

// Key 返回请求对应的缓存标识（method + URL）。
func (r *Request) Key() cache.Key {
	return cache.NewKey(r.Method, r.URL)
}

// IsNavigation reports whether the request is a top-level document load.
func (r *Request) IsNavigation() bool {
	return r.Mode == ModeNavigate
}

// Source 描述响应从何处得到，最终以 X-Offline-Hub-Source 头暴露给调用方。
type Source string

const (
	SourceCache       Source = "cache"
	SourceNetwork     Source = "network"
	SourceFallback    Source = "fallback"
	SourceOffline     Source = "offline"
	SourcePassthrough Source = "passthrough"
)

// Result is what a fetch handler resolves with. Response is never nil when
// the error is nil.
type Result struct {
	Response *http.Response
	Source   Source
}

// Fetcher is the network capability the worker calls out to. Any resolved
// HTTP status is a successful fetch; only transport failures return errors.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*http.Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req *Request) (*http.Response, error)

// Fetch makes FetcherFunc satisfy Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*http.Response, error) {
	return f(ctx, req)
}
