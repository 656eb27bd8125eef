package worker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/quicknotes/offline-hub/internal/cache"
)

func TestActivateKeepsOnlyCurrentTag(t *testing.T) {
	env := newTestEnv(t, defaultBodies())
	for _, tag := range []cache.VersionTag{"v0", "v1", "notes-app-v1"} {
		if _, err := env.backend.Open(context.Background(), tag); err != nil {
			t.Fatalf("open %s: %v", tag, err)
		}
	}
	w := env.newWorker(t, "v2", []string{"/", "/index.html", "/offline.html"})
	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := w.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}

	tags, err := env.backend.ListTags(context.Background())
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if len(tags) != 1 || tags[0] != "v2" {
		t.Fatalf("expected only v2, got %v", tags)
	}
	store, _ := env.backend.Open(context.Background(), "v2")
	if got := keyPaths(t, store); len(got) != 3 {
		t.Fatalf("expected 3 entries, got %v", got)
	}
}

// flakyBackend 对指定 tag 的 DeleteAll 返回错误，用于验证删除失败不致命。
type flakyBackend struct {
	cache.VersionedStore
	failTag  cache.VersionTag
	listFail bool
}

var errDiskBusy = errors.New("disk busy")

func (f *flakyBackend) DeleteAll(ctx context.Context, tag cache.VersionTag) error {
	if tag == f.failTag {
		return errDiskBusy
	}
	return f.VersionedStore.DeleteAll(ctx, tag)
}

func (f *flakyBackend) ListTags(ctx context.Context) ([]cache.VersionTag, error) {
	if f.listFail {
		return nil, errDiskBusy
	}
	return f.VersionedStore.ListTags(ctx)
}

func TestActivateDeletionFailureIsNonFatal(t *testing.T) {
	env := newTestEnv(t, defaultBodies())
	for _, tag := range []cache.VersionTag{"v0", "v1", "v2"} {
		_, _ = env.backend.Open(context.Background(), tag)
	}
	backend := &flakyBackend{VersionedStore: env.backend, failTag: "v1"}
	w, err := New(Config{Version: "v2"}, backend, env.fetcher, env.logger)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if err := w.Activate(context.Background()); err != nil {
		t.Fatalf("deletion failure must not fail activation: %v", err)
	}

	tags, _ := env.backend.ListTags(context.Background())
	if len(tags) != 2 || tags[0] != "v1" || tags[1] != "v2" {
		t.Fatalf("expected v1 (orphaned) and v2, got %v", tags)
	}

	warned := false
	for _, entry := range env.hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "delete cache v1") {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("删除失败应记录 warn 日志")
	}
}

func TestActivateListFailureIsStoreError(t *testing.T) {
	env := newTestEnv(t, nil)
	backend := &flakyBackend{VersionedStore: env.backend, listFail: true}
	w, _ := New(Config{Version: "v2"}, backend, env.fetcher, env.logger)

	err := w.Activate(context.Background())
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
}
