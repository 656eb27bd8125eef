package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/quicknotes/offline-hub/internal/worker"
)

// Fetcher 把 worker 的相对请求解析到源站并执行，实现 worker.Fetcher。
type Fetcher struct {
	client *http.Client
	origin *url.URL
}

// NewFetcher validates origin and binds it to client.
func NewFetcher(client *http.Client, origin string) (*Fetcher, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("origin must be absolute: %s", origin)
	}
	return &Fetcher{client: client, origin: parsed}, nil
}

// Origin 返回源站地址。
func (f *Fetcher) Origin() string {
	return f.origin.String()
}

// Fetch executes req against the origin. Non-2xx statuses are returned as
// responses, not errors.
func (f *Fetcher) Fetch(ctx context.Context, req *worker.Request) (*http.Response, error) {
	target, err := f.resolve(req.URL)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	upstreamReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}

	if req.Header != nil {
		CopyHeaders(upstreamReq.Header, req.Header)
	}
	// 缓存的是解码后的字节，避免把压缩编码写入快照。
	upstreamReq.Header.Del("Accept-Encoding")
	upstreamReq.Header.Del("Host")
	upstreamReq.Host = target.Host

	return f.client.Do(upstreamReq)
}

func (f *Fetcher) resolve(raw string) (*url.URL, error) {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return nil, fmt.Errorf("request url must be origin-relative: %q", raw)
	}
	relative, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}
	return f.origin.ResolveReference(relative), nil
}
