package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherDetectsDatabaseWrite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "chainrules.db")
	if err := os.WriteFile(dbPath, []byte("initial"), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	w, err := NewWatcher(dbPath, Config{DebounceDuration: 50 * time.Millisecond, BufferSize: 4})
	if err != nil {
		t.Fatalf("could not create watcher: %v", err)
	}
	defer w.Close()

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("could not start watcher: %v", err)
	}

	if err := os.WriteFile(dbPath, []byte("modified"), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case event := <-w.Events():
		if event.Path != dbPath {
			t.Errorf("event path = %q, want %q", event.Path, dbPath)
		}
		if event.Type != EventWrite && event.Type != EventCreate {
			t.Errorf("event type = %q, want write or create", event.Type)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event within 3s")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "chainrules.db")
	if err := os.WriteFile(dbPath, []byte("initial"), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	w, err := NewWatcher(dbPath, Config{DebounceDuration: 50 * time.Millisecond, BufferSize: 4})
	if err != nil {
		t.Fatalf("could not create watcher: %v", err)
	}
	defer w.Close()

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("could not start watcher: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("noise"), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case event := <-w.Events():
		t.Fatalf("unexpected event for unrelated file: %+v", event)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "chainrules.db")

	w, err := NewWatcher(dbPath, Config{DebounceDuration: 100 * time.Millisecond, BufferSize: 4})
	if err != nil {
		t.Fatalf("could not create watcher: %v", err)
	}
	defer w.Close()

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("could not start watcher: %v", err)
	}

	// a burst of writes, as SQLite produces during a transaction
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(dbPath, []byte{byte(i)}, 0600); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	events := 0
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-w.Events():
			events++
		case <-deadline:
			if events != 1 {
				t.Fatalf("got %d events, want 1 debounced event", events)
			}
			return
		}
	}
}

func TestIsDatabaseFile(t *testing.T) {
	w, err := NewWatcher("/data/chainrules.db", DefaultConfig())
	if err != nil {
		t.Fatalf("could not create watcher: %v", err)
	}
	defer w.Close()

	tests := []struct {
		path string
		want bool
	}{
		{"/data/chainrules.db", true},
		{"/data/chainrules.db-journal", true},
		{"/data/chainrules.db-wal", true},
		{"/data/chainrules.db-shm", true},
		{"/data/other.db", false},
		{"/data/notes.txt", false},
	}
	for _, tt := range tests {
		if got := w.isDatabaseFile(tt.path); got != tt.want {
			t.Errorf("isDatabaseFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "chainrules.db"), DefaultConfig())
	if err != nil {
		t.Fatalf("could not create watcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}
