package host

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/klauern/wikisync/internal/logging"
)

// DefaultDebounce is how long a file must stay quiet after a write before
// OnWrite fires.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reports writes and removals of specific files. Editors usually
// save in several steps, so writes are debounced per file.
type Watcher struct {
	// OnWrite is called once a watched file stops changing.
	OnWrite func(path string)
	// OnRemove is called when a watched file is removed or renamed away.
	OnRemove func(path string)
	// Debounce overrides DefaultDebounce.
	Debounce time.Duration

	mu     sync.Mutex
	files  map[string]bool
	timers map[string]*time.Timer
	fsw    *fsnotify.Watcher
}

// NewWatcher returns a watcher with no files.
func NewWatcher() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		files:  make(map[string]bool),
		timers: make(map[string]*time.Timer),
		fsw:    fsw,
	}, nil
}

// Add starts watching path. The parent directory is watched so that
// editors replacing the file by rename are still seen.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.files[abs] = true
	w.mu.Unlock()
	if err := w.fsw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return nil
}

// Remove stops reporting events for path.
func (w *Watcher) Remove(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	delete(w.files, abs)
	if t, ok := w.timers[abs]; ok {
		t.Stop()
		delete(w.timers, abs)
	}
	w.mu.Unlock()
}

// Run delivers events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watch error", logging.Err(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.files[path] {
		return
	}

	switch {
	case ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create):
		delay := w.Debounce
		if delay <= 0 {
			delay = DefaultDebounce
		}
		if t, ok := w.timers[path]; ok {
			t.Reset(delay)
			return
		}
		w.timers[path] = time.AfterFunc(delay, func() { w.fireWrite(path) })
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		// Editors that save by rename recreate the file right away.
		if exists(path) {
			return
		}
		if t, ok := w.timers[path]; ok {
			t.Stop()
			delete(w.timers, path)
		}
		delete(w.files, path)
		if w.OnRemove != nil {
			go w.OnRemove(path)
		}
	}
}

func (w *Watcher) fireWrite(path string) {
	w.mu.Lock()
	delete(w.timers, path)
	watched := w.files[path]
	w.mu.Unlock()
	if watched && w.OnWrite != nil {
		w.OnWrite(path)
	}
}

func (w *Watcher) close() {
	w.mu.Lock()
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
	w.mu.Unlock()
	// Best effort: the watcher is discarded either way.
	_ = w.fsw.Close()
}
