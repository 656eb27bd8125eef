package worker

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"github.com/quicknotes/offline-hub/internal/cache"
	"github.com/quicknotes/offline-hub/internal/logging"
)

// Activate deletes every cache generation other than the worker's own.
// Deletions run concurrently and the call returns once all have finished.
// Individual deletion failures are logged only; a failing ListTags is
// returned as a *StoreError.
func (w *Worker) Activate(ctx context.Context) error {
	current := w.cfg.Version
	tags, err := w.backend.ListTags(ctx)
	if err != nil {
		return &StoreError{Op: "list_tags", Err: err}
	}

	var (
		wg       conc.WaitGroup
		mu       sync.Mutex
		deleted  []cache.VersionTag
		failures error
	)
	for _, tag := range tags {
		if tag == current {
			continue
		}
		tag := tag
		wg.Go(func() {
			err := w.backend.DeleteAll(ctx, tag)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = multierr.Append(failures, &DeletionError{Tag: tag, Err: err})
				return
			}
			deleted = append(deleted, tag)
		})
	}
	wg.Wait()

	for _, failure := range multierr.Errors(failures) {
		w.logger.WithFields(logging.WorkerFields("activate", string(current))).Warn(failure.Error())
	}
	fields := logging.WorkerFields("activate", string(current))
	fields["deleted"] = len(deleted)
	fields["failed"] = len(multierr.Errors(failures))
	w.logger.WithFields(fields).Info("stale caches collected")
	return nil
}
