package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/quicknotes/offline-hub/internal/cache"
)

// Config 是单个 worker 版本的不可变配置，构造后不再修改。
type Config struct {
	Version  cache.VersionTag
	Manifest []string
	// OfflinePath 在导航与缓存均失败时返回。
	OfflinePath string
	// NavigationFallback 是导航失败时优先尝试的缓存文档，留空则直接使用 OfflinePath。
	NavigationFallback string
}

// Worker owns one cache generation for its whole lifetime.
type Worker struct {
	cfg     Config
	backend cache.VersionedStore
	fetcher Fetcher
	logger  *logrus.Logger

	mu    sync.Mutex
	store cache.Store
}

// New validates cfg and returns a worker bound to backend and fetcher.
func New(cfg Config, backend cache.VersionedStore, fetcher Fetcher, logger *logrus.Logger) (*Worker, error) {
	if err := cfg.Version.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, errors.New("cache backend is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	for _, path := range cfg.Manifest {
		if !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("manifest entry %q must be origin-relative", path)
		}
	}
	cfg.Manifest = append([]string(nil), cfg.Manifest...)
	return &Worker{
		cfg:     cfg,
		backend: backend,
		fetcher: fetcher,
		logger:  logger,
	}, nil
}

// Version 返回该 worker 负责的缓存版本。
func (w *Worker) Version() cache.VersionTag {
	return w.cfg.Version
}

// Manifest 返回清单副本。
func (w *Worker) Manifest() []string {
	return append([]string(nil), w.cfg.Manifest...)
}

func (w *Worker) currentStore(ctx context.Context) (cache.Store, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.store != nil {
		return w.store, nil
	}
	store, err := w.backend.Open(ctx, w.cfg.Version)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	w.store = store
	return store, nil
}

func (w *Worker) setStore(store cache.Store) {
	w.mu.Lock()
	w.store = store
	w.mu.Unlock()
}
