package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation represents the type of file operation.
type Operation int

const (
	// OpWrite indicates the file was created or modified.
	OpWrite Operation = iota
	// OpRemove indicates the file was deleted or renamed away.
	OpRemove
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event represents a debounced change to the watched file.
type Event struct {
	Path string
	Op   Operation
	Time time.Time
}

// Watcher monitors one config file for changes.
//
// The parent directory is watched rather than the file itself so editors
// that save by renaming a temporary file are still observed.
type Watcher struct {
	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	path     string
	debounce time.Duration
	handler  func(Event)
	onError  func(error)

	timer   *time.Timer
	pending Operation

	done    chan struct{}
	wg      sync.WaitGroup
	stopped bool
}

// NewWatcher starts watching path. The handler runs on a timer goroutine
// once changes have been quiet for debounce.
func NewWatcher(path string, debounce time.Duration, handler func(Event)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		path:     abs,
		debounce: debounce,
		handler:  handler,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// OnError registers a callback for errors reported by fsnotify.
func (w *Watcher) OnError(fn func(error)) {
	w.mu.Lock()
	w.onError = fn
	w.mu.Unlock()
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Stop stops the watcher and cancels any pending event.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.done)
	w.mu.Unlock()

	_ = w.fsw.Close()
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			switch {
			case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
				w.queue(OpRemove)
			case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
				w.queue(OpWrite)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			fn := w.onError
			w.mu.Unlock()
			if fn != nil {
				fn(err)
			}
		}
	}
}

// queue records op and restarts the debounce timer. The last operation
// in a burst wins.
func (w *Watcher) queue(op Operation) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.pending = op
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	op := w.pending
	handler := w.handler
	w.mu.Unlock()

	if handler != nil {
		handler(Event{Path: w.path, Op: op, Time: time.Now()})
	}
}
