package worker

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"testing"
)

func TestInstallStoresExactlyManifest(t *testing.T) {
	env := newTestEnv(t, defaultBodies())
	manifest := []string{"/", "/index.html", "/offline.html"}
	w := env.newWorker(t, "v2", manifest)

	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}

	store, err := env.backend.Open(context.Background(), "v2")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got := keyPaths(t, store)
	sort.Strings(got)
	want := append([]string(nil), manifest...)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestInstallResetsStaleEntries(t *testing.T) {
	env := newTestEnv(t, defaultBodies())
	req := NewRequest(http.MethodGet, "/stale.js")
	w := env.newWorker(t, "v2", []string{"/"})
	w.writeThrough(context.Background(), req.Key(), snapshotOf("stale"))

	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	store, _ := env.backend.Open(context.Background(), "v2")
	if got := keyPaths(t, store); len(got) != 1 || got[0] != "/" {
		t.Fatalf("安装结果只应包含清单条目，得到 %v", got)
	}
}

func TestInstallFailureLeavesNoStore(t *testing.T) {
	env := newTestEnv(t, defaultBodies())
	env.fetcher.fail("/offline.html")
	w := env.newWorker(t, "v3", []string{"/", "/index.html", "/offline.html"})

	err := w.Install(context.Background())
	var installErr *InstallError
	if !errors.As(err, &installErr) {
		t.Fatalf("expected InstallError, got %v", err)
	}
	if installErr.Version != "v3" {
		t.Fatalf("unexpected version in error: %s", installErr.Version)
	}
	if !errors.Is(err, errOffline) {
		t.Fatalf("install error should wrap the network failure: %v", err)
	}

	tags, err := env.backend.ListTags(context.Background())
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	for _, tag := range tags {
		if tag == "v3" {
			t.Fatalf("失败的安装不应留下 v3 缓存")
		}
	}
}

func TestInstallRejectsNon2xx(t *testing.T) {
	env := newTestEnv(t, defaultBodies())
	env.fetcher.setStatus("/index.html", http.StatusInternalServerError)
	w := env.newWorker(t, "v2", []string{"/", "/index.html"})

	err := w.Install(context.Background())
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}
	tags, _ := env.backend.ListTags(context.Background())
	if len(tags) != 0 {
		t.Fatalf("expected no tags, got %v", tags)
	}
}

func TestInstallKeepsPreviousVersion(t *testing.T) {
	env := newTestEnv(t, defaultBodies())
	old := env.newWorker(t, "v1", []string{"/"})
	if err := old.Install(context.Background()); err != nil {
		t.Fatalf("install v1: %v", err)
	}

	env.fetcher.offline.Store(true)
	next := env.newWorker(t, "v2", []string{"/"})
	if err := next.Install(context.Background()); err == nil {
		t.Fatalf("offline install should fail")
	}

	tags, _ := env.backend.ListTags(context.Background())
	if len(tags) != 1 || tags[0] != "v1" {
		t.Fatalf("previous version must survive a failed install, got %v", tags)
	}
}

func TestNewRejectsRelativeManifestEntry(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := New(Config{Version: "v1", Manifest: []string{"index.html"}}, env.backend, env.fetcher, env.logger); err == nil {
		t.Fatalf("relative manifest entry should be rejected")
	}
	if _, err := New(Config{Version: ""}, env.backend, env.fetcher, env.logger); err == nil {
		t.Fatalf("empty version should be rejected")
	}
}
