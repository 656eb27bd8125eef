package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/quicknotes/offline-hub/internal/cache"
	"github.com/quicknotes/offline-hub/internal/cache/fsstore"
)

var errOffline = errors.New("network unreachable")

// stubFetcher 模拟源站：按路径返回固定响应，offline 为 true 时所有请求失败。
type stubFetcher struct {
	mu       sync.Mutex
	bodies   map[string]string
	statuses map[string]int
	failing  map[string]bool
	offline  atomic.Bool
	calls    atomic.Int64
}

func newStubFetcher(bodies map[string]string) *stubFetcher {
	return &stubFetcher{
		bodies:   bodies,
		statuses: map[string]int{},
		failing:  map[string]bool{},
	}
}

func (s *stubFetcher) Fetch(ctx context.Context, req *Request) (*http.Response, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.offline.Load() {
		return nil, errOffline
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[req.URL] {
		return nil, errOffline
	}
	body, ok := s.bodies[req.URL]
	status := http.StatusOK
	if code, set := s.statuses[req.URL]; set {
		status = code
	} else if !ok {
		status = http.StatusNotFound
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func (s *stubFetcher) setStatus(path string, status int) {
	s.mu.Lock()
	s.statuses[path] = status
	s.mu.Unlock()
}

func (s *stubFetcher) fail(path string) {
	s.mu.Lock()
	s.failing[path] = true
	s.mu.Unlock()
}

type testEnv struct {
	backend cache.VersionedStore
	fetcher *stubFetcher
	logger  *logrus.Logger
	hook    *test.Hook
}

func newTestEnv(t *testing.T, bodies map[string]string) *testEnv {
	t.Helper()
	backend, err := fsstore.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return &testEnv{
		backend: backend,
		fetcher: newStubFetcher(bodies),
		logger:  logger,
		hook:    hook,
	}
}

func (e *testEnv) newWorker(t *testing.T, version cache.VersionTag, manifest []string) *Worker {
	t.Helper()
	w, err := New(Config{
		Version:            version,
		Manifest:           manifest,
		OfflinePath:        "/offline.html",
		NavigationFallback: "/",
	}, e.backend, e.fetcher, e.logger)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return w
}

func defaultBodies() map[string]string {
	return map[string]string{
		"/":                 "<html>root</html>",
		"/index.html":       "<html>index</html>",
		"/offline.html":     "<html>offline</html>",
		"/icon-192x192.png": "png-bytes",
		"/main.jsx":         "console.log('notes')",
		"/notes/42":         "<html>note 42</html>",
		"/api/notes?page=2": `{"page":2}`,
		"/vite.svg":         "<svg/>",
		"/manifest.json":    `{"name":"Quick Notes"}`,
		"/icon-512x512.png": "png-512",
	}
}

func readBody(t *testing.T, result *Result) string {
	t.Helper()
	if result == nil || result.Response == nil {
		t.Fatalf("expected a response")
	}
	data, err := io.ReadAll(result.Response.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func keyPaths(t *testing.T, store cache.Store) []string {
	t.Helper()
	keys, err := store.Keys(context.Background())
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	paths := make([]string, 0, len(keys))
	for _, key := range keys {
		paths = append(paths, key.URL)
	}
	return paths
}

type scopeRecorder struct {
	calls int
}

func (s *scopeRecorder) SkipWaiting() {
	s.calls++
}
