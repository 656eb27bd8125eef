package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/quicknotes/offline-hub/internal/cache"
	"github.com/quicknotes/offline-hub/internal/config"
	"github.com/quicknotes/offline-hub/internal/coordinator"
	"github.com/quicknotes/offline-hub/internal/lifecycle"
	"github.com/quicknotes/offline-hub/internal/logging"
	"github.com/quicknotes/offline-hub/internal/server"
	"github.com/quicknotes/offline-hub/internal/server/routes"
	"github.com/quicknotes/offline-hub/internal/upstream"
	"github.com/quicknotes/offline-hub/internal/worker"
)

// hub 持有一次进程生命周期内共享的存储、注册表、页面与协调器。
type hub struct {
	cfg      *config.Config
	logger   *logrus.Logger
	store    cache.VersionedStore
	fetcher  *upstream.Fetcher
	reg      *lifecycle.Registration
	page     *server.Page
	prompter coordinator.Prompter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newHub(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*hub, error) {
	store, err := cache.OpenDriver(cfg.Global.StoreDriver, cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	fetcher, err := upstream.NewFetcher(upstream.NewClient(cfg), cfg.Global.Origin)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	records := lifecycle.NewFileRecordStore(cfg.Global.StoragePath)
	h := &hub{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		fetcher: fetcher,
		reg: lifecycle.New(lifecycle.Options{
			Logger:      logger,
			Passthrough: fetcher,
			Records:     records,
		}),
		prompter: coordinator.ForPolicy(cfg.Global.UpdatePolicy),
	}

	h.restore(ctx, records)
	h.Install(ctx, cfg.Worker)

	page, err := server.NewPage(h.reg)
	if err != nil {
		h.reg.Close()
		_ = store.Close()
		return nil, err
	}
	h.page = page

	coord, err := coordinator.New(h.reg, h.page, h.prompter, logger)
	if err != nil {
		h.reg.Close()
		_ = store.Close()
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_ = coord.Run(runCtx)
	}()
	return h, nil
}

// restore 只在记录的版本仍存在于存储中时恢复，否则等待 Install 重新安装。
func (h *hub) restore(ctx context.Context, records lifecycle.RecordStore) {
	fields := logging.WorkerFields("restore", "")
	record, err := records.Load()
	if err != nil {
		h.logger.WithFields(fields).Warn(err.Error())
		return
	}
	if record == nil {
		return
	}
	fields["version"] = string(record.ActiveVersion)

	tags, err := h.store.ListTags(ctx)
	if err != nil {
		h.logger.WithFields(fields).Warn(err.Error())
		return
	}
	found := false
	for _, tag := range tags {
		if tag == record.ActiveVersion {
			found = true
			break
		}
	}
	if !found {
		h.logger.WithFields(fields).Warn("persisted version missing from store")
		return
	}

	workerCfg := h.cfg.Worker
	workerCfg.CacheVersion = string(record.ActiveVersion)
	script, err := h.newWorker(workerCfg)
	if err != nil {
		h.logger.WithFields(fields).Warn(err.Error())
		return
	}
	if _, err := h.reg.Restore(script); err != nil {
		h.logger.WithFields(fields).Warn(err.Error())
	}
}

// Install 安装配置中的版本；同版本或安装失败时保留当前激活版本。
func (h *hub) Install(ctx context.Context, workerCfg config.WorkerConfig) {
	fields := logging.WorkerFields("update", string(workerCfg.Version()))
	script, err := h.newWorker(workerCfg)
	if err != nil {
		h.logger.WithFields(fields).Error(err.Error())
		return
	}
	inst, err := h.reg.Update(ctx, script)
	switch {
	case errors.Is(err, lifecycle.ErrSameVersion):
		h.logger.WithFields(fields).Debug("worker already current")
	case err != nil:
		h.logger.WithFields(fields).Warn(err.Error())
	default:
		fields["state"] = inst.State().String()
		h.logger.WithFields(fields).Info("worker updated")
	}
}

func (h *hub) newWorker(workerCfg config.WorkerConfig) (*worker.Worker, error) {
	return worker.New(worker.Config{
		Version:            workerCfg.Version(),
		Manifest:           workerCfg.Manifest,
		OfflinePath:        workerCfg.OfflinePath,
		NavigationFallback: workerCfg.NavigationFallback,
	}, h.store, h.fetcher, h.logger)
}

// pendingPrompter 仅在 prompt 策略下返回非空值，供 /-/update 使用。
func (h *hub) pendingPrompter() *coordinator.PendingPrompter {
	pending, _ := h.prompter.(*coordinator.PendingPrompter)
	return pending
}

// App 构建 Fiber 应用，在 catch-all 之后挂载 /-/ 诊断接口。
func (h *hub) App() (*fiber.App, error) {
	app, err := server.NewApp(server.AppOptions{
		Logger:       h.logger,
		Registration: h.reg,
		Page:         h.page,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterWorkerRoutes(app, h.reg, h.page, h.cfg.Global.StoreDriver)
	routes.RegisterUpdateRoutes(app, h.pendingPrompter())
	return app, nil
}

// Close 停止协调器并释放存储。
func (h *hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
	h.reg.Close()
	if err := h.store.Close(); err != nil {
		h.logger.WithFields(logging.WorkerFields("close", "")).Warn(err.Error())
	}
}
