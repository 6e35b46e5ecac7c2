package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/emtodo/emtodo/internal/db"
	"github.com/emtodo/emtodo/internal/filesync"
	"github.com/emtodo/emtodo/internal/schema"
)

// setupTestDB creates a temporary store for testing.
func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	store, err := db.OpenAndInit(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// writeTodoFile writes a todo to disk for testing.
func writeTodoFile(t *testing.T, dir string, id int64, name string) {
	t.Helper()

	todo := &schema.Todo{ID: id, Name: name, CreatedAt: time.Now()}
	if err := schema.WriteTodoFile(dir, todo); err != nil {
		t.Fatalf("Failed to write todo file: %v", err)
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewWithConfig_Validation(t *testing.T) {
	store := setupTestDB(t)
	syncer := filesync.New(store, nil)

	tests := []struct {
		name    string
		syncer  filesync.Syncer
		dir     string
		wantErr bool
	}{
		{name: "valid", syncer: syncer, dir: t.TempDir()},
		{name: "nil syncer", syncer: nil, dir: t.TempDir(), wantErr: true},
		{name: "empty dir", syncer: syncer, dir: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewWithConfig(tt.syncer, tt.dir, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewWithConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if d != nil {
				d.watcher.watcher.Close()
			}
		})
	}
}

func TestDaemon_ImportsWatchesAndDeletes(t *testing.T) {
	store := setupTestDB(t)
	dir := filepath.Join(t.TempDir(), "todos")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	// Present before start: picked up by the initial sync.
	writeTodoFile(t, dir, 1, "existing")

	var mu sync.Mutex
	synced := map[int64]bool{}
	config := &Config{
		DebounceInterval: 20 * time.Millisecond,
		OnSync: func(id int64, deleted bool) {
			mu.Lock()
			defer mu.Unlock()
			synced[id] = deleted
		},
	}

	d, err := NewWithConfig(filesync.New(store, nil), dir, config)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	eventually(t, "initial import", func() bool {
		_, err := store.GetTodo(1)
		return err == nil
	})

	writeTodoFile(t, dir, 2, "created while running")
	eventually(t, "new file synced", func() bool {
		got, err := store.GetTodo(2)
		return err == nil && got.Name == "created while running"
	})

	writeTodoFile(t, dir, 2, "edited")
	eventually(t, "edit synced", func() bool {
		got, err := store.GetTodo(2)
		return err == nil && got.Name == "edited"
	})

	if err := os.Remove(filepath.Join(dir, "1.json")); err != nil {
		t.Fatal(err)
	}
	eventually(t, "delete synced", func() bool {
		_, err := store.GetTodo(1)
		return errors.Is(err, db.ErrNotFound)
	})

	mu.Lock()
	if deleted, ok := synced[1]; !ok || !deleted {
		t.Errorf("OnSync not called with a delete for todo 1: %v", synced)
	}
	if deleted, ok := synced[2]; !ok || deleted {
		t.Errorf("OnSync not called with an upsert for todo 2: %v", synced)
	}
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemon_CreatesMissingDir(t *testing.T) {
	store := setupTestDB(t)
	dir := filepath.Join(t.TempDir(), "not", "yet")

	d, err := New(filesync.New(store, nil), dir)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	eventually(t, "watcher running", d.watcher.IsRunning)
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("todos directory not created: %v", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() returned %v", err)
	}
}

func TestFlush_DebouncesRecentChanges(t *testing.T) {
	store := setupTestDB(t)
	dir := t.TempDir()

	d, err := NewWithConfig(filesync.New(store, nil), dir, &Config{DebounceInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	defer d.watcher.watcher.Close()

	writeTodoFile(t, dir, 9, "queued")
	d.queueChange(FileEvent{Path: filepath.Join(dir, "9.json"), ID: 9, Op: OpCreate})

	d.flush(context.Background(), false)
	if d.Pending() != 1 {
		t.Fatalf("Pending() = %d, want the fresh change to wait", d.Pending())
	}
	if _, err := store.GetTodo(9); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("todo synced before debounce elapsed")
	}

	d.flush(context.Background(), true)
	if d.Pending() != 0 {
		t.Errorf("Pending() = %d after forced flush", d.Pending())
	}
	if _, err := store.GetTodo(9); err != nil {
		t.Errorf("GetTodo() after forced flush: %v", err)
	}
}
