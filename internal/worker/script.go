package worker

import (
	"context"
	"time"

	"github.com/quicknotes/offline-hub/internal/logging"
)

// OnInstall is the platform's install event handler.
func (w *Worker) OnInstall(ctx context.Context) error {
	err := w.Install(ctx)
	if err != nil {
		w.logger.WithFields(logging.WorkerFields("install", string(w.cfg.Version))).Error(err.Error())
	}
	return err
}

// OnActivate is the platform's activate event handler.
func (w *Worker) OnActivate(ctx context.Context) error {
	err := w.Activate(ctx)
	if err != nil {
		w.logger.WithFields(logging.WorkerFields("activate", string(w.cfg.Version))).Error(err.Error())
	}
	return err
}

// OnFetch is the platform's fetch event handler.
func (w *Worker) OnFetch(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return w.Intercept(ctx, req)
	}
	started := time.Now()
	result, err := w.Intercept(ctx, req)

	source := ""
	if result != nil {
		source = string(result.Source)
	}
	fields := logging.RequestFields(req.Method, req.URL, string(req.Mode), string(req.Destination), source)
	fields["action"] = "fetch"
	fields["version"] = string(w.cfg.Version)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		w.logger.WithFields(fields).Warn(err.Error())
		return nil, err
	}
	w.logger.WithFields(fields).Debug("request served")
	return result, nil
}

// OnMessage is the platform's message event handler.
func (w *Worker) OnMessage(ctx context.Context, scope Scope, msg Message) error {
	return w.HandleMessage(ctx, scope, msg)
}
