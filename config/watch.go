package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"scribe/logger"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file whenever it changes on disk
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	onChange func(*Config)
	delay    time.Duration
	pending  *time.Timer
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewWatcher creates a watcher for path. onChange receives every config that
// loads successfully after a change.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  w,
		path:     filepath.Clean(path),
		onChange: onChange,
		delay:    100 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start watches the directory holding the file, since editors often replace
// the file instead of writing it in place. It does not block.
func (cw *Watcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	if cw.running {
		cw.mu.Unlock()
		return nil
	}
	cw.running = true
	cw.mu.Unlock()

	if err := cw.watcher.Add(filepath.Dir(cw.path)); err != nil {
		cw.mu.Lock()
		cw.running = false
		cw.mu.Unlock()
		return err
	}
	logger.Debug("config: watching %s", cw.path)

	go cw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (cw *Watcher) Stop() {
	cw.mu.Lock()
	if !cw.running {
		cw.mu.Unlock()
		_ = cw.watcher.Close()
		return
	}
	cw.running = false
	if cw.pending != nil {
		cw.pending.Stop()
	}
	cw.mu.Unlock()

	close(cw.stopCh)
	<-cw.doneCh

	if err := cw.watcher.Close(); err != nil {
		logger.Error("config: error closing watcher: %v", err)
	}
}

func (cw *Watcher) run(ctx context.Context) {
	defer close(cw.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopCh:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			cw.schedule()
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("config: watcher error: %v", err)
		}
	}
}

// schedule coalesces a burst of events into one reload
func (cw *Watcher) schedule() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if !cw.running {
		return
	}
	if cw.pending != nil {
		cw.pending.Stop()
	}
	cw.pending = time.AfterFunc(cw.delay, cw.reload)
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	running := cw.running
	cw.mu.Unlock()
	if !running {
		return
	}

	cfg, err := Load(cw.path)
	if err != nil {
		logger.Warn("config: reload failed, keeping previous config: %v", err)
		return
	}
	logger.Info("config: reloaded %s", cw.path)
	cw.onChange(cfg)
}
