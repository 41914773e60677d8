package runner

import (
	"context"
	"time"

	"github.com/ritzau/module-graph/pkg/logging"
	"github.com/ritzau/module-graph/pkg/watcher"
)

// Debounce settings for re-analysis on file changes
const (
	QuietPeriod = 300 * time.Millisecond
	MaxWait     = 3 * time.Second
)

// Watch re-runs the analysis for every debounced batch of changes until
// changes is closed or ctx is done. onSnapshot, if set, receives every
// successful result.
func (r *Runner) Watch(ctx context.Context, changes <-chan watcher.ChangeEvent, onSnapshot func(*Snapshot)) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-changes:
			if !ok {
				return
			}

			// Fold whatever else is already queued into the same run
			events := []watcher.ChangeEvent{event}
		drain:
			for {
				select {
				case more, ok := <-changes:
					if !ok {
						break drain
					}
					events = append(events, more)
				default:
					break drain
				}
			}

			change := watcher.AnalyzeChanges(events...)
			if change.Empty() {
				continue
			}
			r.Forget(change.RemovedFiles)

			snap, err := r.Run(ctx, change.Reason)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if onSnapshot != nil {
				onSnapshot(snap)
			}
		}
	}
}

// WatchDirectory starts a debounced file watcher on the runner's root and
// re-analyzes on every change. It returns once watching has started.
func (r *Runner) WatchDirectory(ctx context.Context, onSnapshot func(*Snapshot)) error {
	fw, err := watcher.NewFileWatcher(r.root)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	debouncer := watcher.NewDebouncer(fw.Events(), QuietPeriod, MaxWait)
	debouncer.Start(ctx)

	logging.Info("watching for changes", "root", r.root)
	go r.Watch(ctx, debouncer.Output(), onSnapshot)
	return nil
}
