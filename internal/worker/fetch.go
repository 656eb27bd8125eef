package worker

import (
	"context"
	"errors"
	"net/http"

	"github.com/quicknotes/offline-hub/internal/cache"
	"github.com/quicknotes/offline-hub/internal/logging"
)

// Intercept answers one request. Navigations are network-first with a
// cached fallback chain; everything else is cache-first with write-through.
// It always resolves with a Result or an error.
func (w *Worker) Intercept(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if req.IsNavigation() {
		return w.interceptNavigation(ctx, req)
	}
	return w.interceptSubresource(ctx, req)
}

func (w *Worker) interceptNavigation(ctx context.Context, req *Request) (*Result, error) {
	resp, err := w.fetcher.Fetch(ctx, req)
	if err == nil {
		return &Result{Response: resp, Source: SourceNetwork}, nil
	}
	networkErr := err

	if fallback := w.cfg.NavigationFallback; fallback != "" {
		if snapshot := w.lookup(ctx, cache.NewKey(http.MethodGet, fallback)); snapshot != nil {
			return &Result{Response: snapshot.Response(nil), Source: SourceFallback}, nil
		}
	}
	if result := w.offlineDocument(ctx); result != nil {
		return result, nil
	}
	return nil, &FetchError{Method: req.Method, URL: req.URL, Err: networkErr}
}

func (w *Worker) interceptSubresource(ctx context.Context, req *Request) (*Result, error) {
	key := req.Key()
	if snapshot := w.lookup(ctx, key); snapshot != nil {
		return &Result{Response: snapshot.Response(nil), Source: SourceCache}, nil
	}

	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		if req.Destination == DestinationDocument {
			if result := w.offlineDocument(ctx); result != nil {
				return result, nil
			}
		}
		return nil, &FetchError{Method: req.Method, URL: req.URL, Err: err}
	}
	if key.Method != http.MethodGet || resp.StatusCode != http.StatusOK {
		return &Result{Response: resp, Source: SourceNetwork}, nil
	}

	snapshot, err := cache.Capture(resp)
	if err != nil {
		return nil, &FetchError{Method: req.Method, URL: req.URL, Err: err}
	}
	w.writeThrough(ctx, key, snapshot.Clone())
	return &Result{Response: snapshot.Response(nil), Source: SourceNetwork}, nil
}

func (w *Worker) offlineDocument(ctx context.Context) *Result {
	if w.cfg.OfflinePath == "" {
		return nil
	}
	snapshot := w.lookup(ctx, cache.NewKey(http.MethodGet, w.cfg.OfflinePath))
	if snapshot == nil {
		return nil
	}
	return &Result{Response: snapshot.Response(nil), Source: SourceOffline}
}

// lookup 返回缓存快照；未命中或存储异常时返回 nil，由调用方继续走网络/兜底链路。
func (w *Worker) lookup(ctx context.Context, key cache.Key) *cache.Snapshot {
	store, err := w.currentStore(ctx)
	if err != nil {
		w.logStoreError("cache_lookup", key, err)
		return nil
	}
	snapshot, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			w.logStoreError("cache_lookup", key, err)
		}
		return nil
	}
	return snapshot
}

func (w *Worker) writeThrough(ctx context.Context, key cache.Key, snapshot *cache.Snapshot) {
	store, err := w.currentStore(ctx)
	if err != nil {
		w.logStoreError("cache_write", key, err)
		return
	}
	if err := store.Put(ctx, key, snapshot); err != nil {
		w.logStoreError("cache_write", key, err)
	}
}

func (w *Worker) logStoreError(action string, key cache.Key, err error) {
	fields := logging.WorkerFields(action, string(w.cfg.Version))
	fields["key"] = key.String()
	w.logger.WithFields(fields).Warn(err.Error())
}
