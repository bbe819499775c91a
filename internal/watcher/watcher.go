// Package watcher provides inbox auto-ingest: files dropped into a
// configured directory are read and handed to the ingest callback, debounced
// so a file still being written is picked up once.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Inbox watches one directory and ingests matching files as they appear.
type Inbox struct {
	dir        string
	extensions []string
	onFile     func(name string, content []byte)
	debounce   time.Duration

	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	debounceMap map[string]*time.Timer
	started     bool
	done        chan struct{}
	stopOnce    sync.Once
	logger      *zap.Logger // optional
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Inbox) { w.logger = l }
}

// WithDebounce overrides the write-settle delay.
func WithDebounce(d time.Duration) Option {
	return func(w *Inbox) { w.debounce = d }
}

// NewInbox creates an inbox watcher over dir. onFile is called with the file
// name and contents once a dropped file has settled; extensions filter which
// files are picked up (empty = all).
func NewInbox(dir string, extensions []string, onFile func(name string, content []byte), opts ...Option) *Inbox {
	w := &Inbox{
		dir:         dir,
		extensions:  extensions,
		onFile:      onFile,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. The inbox directory is created if missing. Runs
// until ctx is cancelled or Stop is called.
func (w *Inbox) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		w.mu.Unlock()
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Info("inbox watcher started", zap.String("dir", w.dir), zap.Strings("extensions", w.extensions))
	}
	go w.run(ctx)
	return nil
}

func (w *Inbox) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("inbox watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Inbox) handleEvent(ev fsnotify.Event) {
	switch ev.Op {
	case fsnotify.Create, fsnotify.Write:
		if info, err := os.Stat(ev.Name); err != nil || info.IsDir() {
			return
		}
		if w.matchExtension(ev.Name) {
			w.debounceIngest(ev.Name)
		}
	case fsnotify.Remove, fsnotify.Rename:
		w.cancelDebounce(ev.Name)
	}
}

func (w *Inbox) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range w.extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Inbox) debounceIngest(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.ingest(path)
	})
}

func (w *Inbox) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

func (w *Inbox) ingest(path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("inbox file unreadable", zap.String("path", path), zap.Error(err))
		}
		return
	}
	if w.logger != nil {
		w.logger.Info("inbox file ingesting", zap.String("path", path), zap.Int("bytes", len(content)))
	}
	if w.onFile != nil {
		w.onFile(filepath.Base(path), content)
	}
}

// SyncExisting ingests files already present in the inbox, for files dropped
// while the server was down.
func (w *Inbox) SyncExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("inbox sync failed", zap.Error(err))
		}
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if w.matchExtension(path) {
			w.ingest(path)
		}
	}
}

// Stop stops the watcher and releases resources.
func (w *Inbox) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
