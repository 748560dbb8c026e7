package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/okian/huddle/internal/adapters/view"
	"github.com/okian/huddle/pkg/logger"
)

// RefresherOption applies a configuration option to the Refresher.
type RefresherOption func(*Refresher)

// WithRefresherLogger sets the logger.
func WithRefresherLogger(log logger.Logger) RefresherOption {
	return func(r *Refresher) {
		if log != nil {
			r.log = log
		}
	}
}

// Refresher watches a data directory and refreshes the analytics view when
// files appear or change. The refresh is a no-op when the view's source
// tables have not moved, so a burst of file events stays cheap.
type Refresher struct {
	log  logger.Logger
	view *view.View
	dir  string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewRefresher creates a refresher for the given data directory.
func NewRefresher(v *view.View, dir string, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		view: v,
		dir:  dir,
	}

	// Apply all options
	for _, opt := range opts {
		opt(r)
	}

	if r.log == nil {
		r.log = logger.Get().Named("refresher")
	}

	return r
}

// Start begins watching the data directory. Calling Start on a running
// refresher is a no-op.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", r.dir, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.watcher = watcher
	r.cancel = cancel
	r.wg.Add(1)
	go r.loop(runCtx, watcher)

	r.running = true
	r.log.Info(ctx, "data directory watch started", logger.String("dir", r.dir))
	return nil
}

// Stop ends the watch and waits for the event loop to exit.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	watcher := r.watcher
	r.cancel = nil
	r.watcher = nil
	r.mu.Unlock()

	cancel()
	_ = watcher.Close()
	r.wg.Wait()
	r.log.Info(context.Background(), "data directory watch stopped")
}

func (r *Refresher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			r.log.Debug(ctx, "data change detected", logger.String("file", ev.Name))
			if err := r.view.Refresh(ctx); err != nil {
				r.log.Warn(ctx, "view refresh failed", logger.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.log.Warn(ctx, "file watcher error", logger.Error(err))
		}
	}
}
