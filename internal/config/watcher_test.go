package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_WriteAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "depurador.toml")
	writeFile(t, path, "a = 1\n")

	events := make(chan Event, 8)
	w, err := NewWatcher(path, 20*time.Millisecond, func(e Event) { events <- e })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	next := func() Event {
		t.Helper()
		select {
		case e := <-events:
			return e
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for watcher event")
			return Event{}
		}
	}

	// Several writes inside the debounce window collapse into one event.
	writeFile(t, path, "a = 2\n")
	writeFile(t, path, "a = 3\n")
	e := next()
	if e.Op != OpWrite || e.Path != w.Path() {
		t.Errorf("event = %+v, want write of %s", e, w.Path())
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	for e := next(); e.Op != OpRemove; e = next() {
		if e.Op != OpWrite {
			t.Fatalf("event op = %v, want write or remove", e.Op)
		}
	}
}

func TestWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "depurador.toml")
	writeFile(t, path, "a = 1\n")

	events := make(chan Event, 8)
	w, err := NewWatcher(path, 10*time.Millisecond, func(e Event) { events <- e })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "other.toml"), "b = 1\n")

	select {
	case e := <-events:
		t.Errorf("unexpected event %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "depurador.toml")
	w, err := NewWatcher(path, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Stop()
	w.Stop()
}

func TestOperationString(t *testing.T) {
	if OpWrite.String() != "write" || OpRemove.String() != "remove" || Operation(9).String() != "unknown" {
		t.Error("unexpected Operation strings")
	}
}
