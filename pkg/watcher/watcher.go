package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ritzau/module-graph/pkg/ddi"
	"github.com/ritzau/module-graph/pkg/logging"
)

// batchWindow groups raw fsnotify events into one ChangeEvent per type
const batchWindow = 100 * time.Millisecond

// ChangeType represents the type of file change detected
type ChangeType int

const (
	// ChangeTypeDDI is a DDI file that was written or created
	ChangeTypeDDI ChangeType = iota
	// ChangeTypeRemoved is a DDI file that was removed or renamed away
	ChangeTypeRemoved
	// ChangeTypeDirectory is a new directory that may hold DDI files
	ChangeTypeDirectory
)

func (t ChangeType) String() string {
	switch t {
	case ChangeTypeDDI:
		return "ddi"
	case ChangeTypeRemoved:
		return "removed"
	case ChangeTypeDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// ChangeEvent represents a batch of file system changes
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string
	Timestamp time.Time
}

// FileWatcher watches a directory tree for DDI file changes. New
// directories are added to the watch as they appear.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	root    string
	events  chan ChangeEvent
}

// NewFileWatcher creates a new file system watcher for root
func NewFileWatcher(root string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		root:    root,
		events:  make(chan ChangeEvent, 100),
	}, nil
}

// Start begins watching for file changes. The events channel is closed
// when ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) error {
	count, err := fw.watchTree(fw.root)
	if err != nil {
		fw.watcher.Close()
		return err
	}

	logging.Info("started watching for DDI changes", "path", fw.root, "directories", count)

	go fw.processEvents(ctx)
	return nil
}

// watchTree adds dir and all directories below it to the watcher
func (fw *FileWatcher) watchTree(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil // Skip directories we can't access
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}

		if err := fw.watcher.Add(path); err != nil {
			logging.Warn("failed to watch directory", "path", path, "error", err)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return count, nil
}

// classify maps a raw event to a change type. ok is false for events that
// cannot affect the analysis.
func (fw *FileWatcher) classify(event fsnotify.Event) (ChangeType, bool) {
	isDDI := filepath.Ext(event.Name) == ddi.Extension

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		// The path is gone, so a directory cannot be told apart from a file
		return ChangeTypeRemoved, isDDI
	case event.Has(fsnotify.Create) && !isDDI:
		if count, err := fw.watchTree(event.Name); err == nil && count > 0 {
			return ChangeTypeDirectory, true
		}
		return 0, false
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		return ChangeTypeDDI, isDDI
	default:
		return 0, false
	}
}

// processEvents processes file system events and batches them by type
func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)
	defer fw.watcher.Close()

	pending := make(map[ChangeType][]string)

	flushTimer := time.NewTimer(batchWindow)
	flushTimer.Stop()

	flush := func() {
		for _, t := range []ChangeType{ChangeTypeDirectory, ChangeTypeRemoved, ChangeTypeDDI} {
			paths := pending[t]
			if len(paths) == 0 {
				continue
			}
			select {
			case fw.events <- ChangeEvent{Type: t, Paths: paths, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
		pending = make(map[ChangeType][]string)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			t, relevant := fw.classify(event)
			if !relevant {
				continue
			}
			logging.Trace("file change", "path", event.Name, "type", t.String())
			pending[t] = append(pending[t], event.Name)
			flushTimer.Reset(batchWindow)

		case <-flushTimer.C:
			flush()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost, force a full rescan
				pending[ChangeTypeDirectory] = append(pending[ChangeTypeDirectory], fw.root)
				flushTimer.Reset(batchWindow)
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}
