package worker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/quicknotes/offline-hub/internal/cache"
	"github.com/quicknotes/offline-hub/internal/logging"
)

type manifestEntry struct {
	path     string
	key      cache.Key
	snapshot *cache.Snapshot
}

// Install populates a fresh store for the worker's version from the manifest.
// It is all-or-nothing: on any fetch or write failure the tag is deleted and
// an *InstallError is returned.
func (w *Worker) Install(ctx context.Context) error {
	started := time.Now()
	tag := w.cfg.Version

	// 先清掉上次失败或崩溃遗留的同名版本，保证结果只包含清单条目。
	if err := w.backend.DeleteAll(ctx, tag); err != nil {
		return &InstallError{Version: tag, Err: &StoreError{Op: "delete_all", Err: err}}
	}
	store, err := w.backend.Open(ctx, tag)
	if err != nil {
		return &InstallError{Version: tag, Err: &StoreError{Op: "open", Err: err}}
	}

	entries, err := w.fetchManifest(ctx)
	if err != nil {
		w.discard(ctx, tag)
		return err
	}
	for _, entry := range entries {
		if err := store.Put(ctx, entry.key, entry.snapshot); err != nil {
			w.discard(ctx, tag)
			return &InstallError{Version: tag, Path: entry.path, Err: err}
		}
	}
	w.setStore(store)

	fields := logging.WorkerFields("install", string(tag))
	fields["entries"] = len(entries)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	w.logger.WithFields(fields).Info("cache populated")
	return nil
}

func (w *Worker) fetchManifest(ctx context.Context) ([]manifestEntry, error) {
	p := pool.NewWithResults[manifestEntry]().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	for _, path := range w.cfg.Manifest {
		path := path
		p.Go(func(ctx context.Context) (manifestEntry, error) {
			return w.fetchManifestEntry(ctx, path)
		})
	}
	return p.Wait()
}

func (w *Worker) fetchManifestEntry(ctx context.Context, path string) (manifestEntry, error) {
	req := NewRequest(http.MethodGet, path)
	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		return manifestEntry{}, &InstallError{Version: w.cfg.Version, Path: path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return manifestEntry{}, &InstallError{
			Version: w.cfg.Version,
			Path:    path,
			Err:     fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode),
		}
	}
	snapshot, err := cache.Capture(resp)
	if err != nil {
		return manifestEntry{}, &InstallError{Version: w.cfg.Version, Path: path, Err: err}
	}
	return manifestEntry{path: path, key: req.Key(), snapshot: snapshot}, nil
}

// discard 回滚失败的安装；使用独立 context，调用方取消时也要清理干净。
func (w *Worker) discard(ctx context.Context, tag cache.VersionTag) {
	w.setStore(nil)
	if err := w.backend.DeleteAll(context.WithoutCancel(ctx), tag); err != nil {
		w.logger.WithFields(logging.WorkerFields("install_rollback", string(tag))).
			Warn(err.Error())
	}
}
