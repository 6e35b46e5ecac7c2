// Package daemon keeps the todo store in step with a directory of {id}.json
// files while it runs.
//
// The daemon:
//  1. Imports every file in the directory on start
//  2. Watches the directory for creates, writes and removes
//  3. Debounces bursts of events per file before touching the store
//  4. Upserts changed files and deletes todos whose file disappeared
//  5. Shuts down when its context is cancelled
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/emtodo/emtodo/internal/filesync"
)

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long a file must be quiet before it is synced.
	// This batches rapid updates together.
	DebounceInterval time.Duration

	// Logger for daemon activity (nil = discard)
	Logger *slog.Logger

	// OnSync, when set, is called after each file has been applied to the
	// store. deleted is true when the todo was removed.
	OnSync func(id int64, deleted bool)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 100 * time.Millisecond,
	}
}

// pending is a queued change waiting out the debounce interval.
type pending struct {
	id       int64
	queuedAt time.Time
}

// Daemon orchestrates file watching and store updates.
type Daemon struct {
	syncer filesync.Syncer
	dir    string
	config *Config
	logger *slog.Logger

	watcher       *FileWatcher
	changeQueue   map[string]pending // path -> last event
	changeQueueMu sync.Mutex

	wg sync.WaitGroup
}

// New creates a daemon watching dir with the default configuration.
// Use Run() to begin watching and syncing.
func New(syncer filesync.Syncer, dir string) (*Daemon, error) {
	return NewWithConfig(syncer, dir, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(syncer filesync.Syncer, dir string, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("dir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}

	return &Daemon{
		syncer:      syncer,
		dir:         dir,
		config:      config,
		logger:      logger.With("component", "daemon"),
		watcher:     watcher,
		changeQueue: make(map[string]pending),
	}, nil
}

// Run imports the directory, then watches it until ctx is cancelled.
// The directory is created if it does not exist.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("starting daemon", "dir", d.dir)

	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return fmt.Errorf("failed to create todos directory: %w", err)
	}

	if _, err := d.syncer.FullSync(ctx, d.dir); err != nil {
		return fmt.Errorf("initial sync failed: %w", err)
	}

	if err := d.watcher.Start(d.dir); err != nil {
		_ = d.watcher.watcher.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.wg.Add(2)
	go d.watchFileEvents(runCtx)
	go d.processChangeQueue(runCtx)

	<-ctx.Done()
	d.logger.Info("shutdown signal received")
	cancel()

	if err := d.watcher.Stop(); err != nil {
		d.logger.Warn("error closing watcher", "error", err)
	}
	d.wg.Wait()

	// Apply whatever was still waiting out the debounce.
	d.flush(context.WithoutCancel(ctx), true)

	d.logger.Info("daemon stopped")
	return nil
}

// watchFileEvents moves watcher events into the change queue.
func (d *Daemon) watchFileEvents(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.logger.Debug("file event", "op", event.Op, "path", event.Path)
			d.queueChange(event)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.logger.Warn("watcher error", "error", err)
		}
	}
}

// queueChange records the latest event time for a file.
func (d *Daemon) queueChange(event FileEvent) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[event.Path] = pending{id: event.ID, queuedAt: time.Now()}
}

// processChangeQueue applies queued changes once they have settled.
func (d *Daemon) processChangeQueue(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			d.flush(ctx, false)
		}
	}
}

// flush syncs every queued file that has been quiet for the debounce
// interval, or every queued file when all is set.
func (d *Daemon) flush(ctx context.Context, all bool) {
	d.changeQueueMu.Lock()
	ready := make(map[string]int64)
	now := time.Now()
	for path, p := range d.changeQueue {
		if !all && now.Sub(p.queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready[path] = p.id
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	for path, id := range ready {
		deleted, err := d.applyFile(ctx, path, id)
		if err != nil {
			d.logger.Warn("failed to sync todo file", "path", path, "error", err)
			continue
		}
		if d.config.OnSync != nil {
			d.config.OnSync(id, deleted)
		}
	}
}

// applyFile upserts the file, or deletes the todo when the file is gone.
func (d *Daemon) applyFile(ctx context.Context, path string, id int64) (deleted bool, err error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		d.logger.Info("deleting todo", "id", id)
		return true, d.syncer.DeleteTodo(ctx, id)
	}

	d.logger.Info("syncing todo", "id", id)
	return false, d.syncer.SyncTodo(ctx, path)
}

// Pending returns the number of changes waiting out the debounce.
func (d *Daemon) Pending() int {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	return len(d.changeQueue)
}
