package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration file when it changes on disk and hands
// each freshly validated result to a callback. A file that fails to load
// keeps the previous configuration in effect.
type Watcher struct {
	path     string
	onReload func(*Config)
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}

	// debounce collapses the burst of events an editor save produces
	// into a single reload.
	debounce time.Duration
}

// NewWatcher builds a watcher for the configuration file at path. The
// callback runs on the watcher goroutine after every successful reload.
func NewWatcher(path string, onReload func(*Config), logger *slog.Logger) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config: watcher requires a config path")
	}
	if onReload == nil {
		return nil, fmt.Errorf("config: watcher requires a reload callback")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create file watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		onReload: onReload,
		watcher:  fw,
		logger:   logger,
		stopCh:   make(chan struct{}),
		debounce: time.Second,
	}, nil
}

// Start begins watching. It is a no-op when the watcher is already running.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory rather than the file itself: editors and atomic
	// writers replace the file by rename, which drops a direct watch.
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	w.logger.Info("config watcher started", "path", w.path)
	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher and releases the file handles. Safe to call twice.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)
	return w.watcher.Close()
}

// IsRunning reports whether the watch loop is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.matchesConfig(event) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.logger.Debug("config file event", "op", event.Op.String(), "file", event.Name)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)

		case <-w.stopCh:
			w.logger.Info("config watcher stopped")
			return

		case <-ctx.Done():
			w.logger.Info("config watcher context cancelled")
			return
		}
	}
}

// matchesConfig filters directory events down to the watched file.
func (w *Watcher) matchesConfig(event fsnotify.Event) bool {
	eventPath, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	configPath, err := filepath.Abs(w.path)
	if err != nil {
		return false
	}
	return eventPath == configPath
}

func (w *Watcher) reload() {
	start := time.Now()
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous configuration",
			"error", err,
			"duration", time.Since(start))
		return
	}
	w.logger.Info("config reloaded",
		"path", w.path,
		"duration", time.Since(start))
	w.onReload(cfg)
}
