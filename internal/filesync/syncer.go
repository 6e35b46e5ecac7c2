package filesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/emtodo/emtodo/internal/db"
	"github.com/emtodo/emtodo/internal/schema"
)

// syncer implements the Syncer interface.
type syncer struct {
	db     *db.DB
	logger *slog.Logger
}

// New creates a new Syncer instance.
//
// The database must be initialized and have its schema created before
// passing it to this function. A nil logger discards output.
//
// Example:
//
//	store, err := db.OpenAndInit(ctx, "todos.db")
//	if err != nil {
//	    return err
//	}
//	syncer := filesync.New(store, nil)
func New(store *db.DB, logger *slog.Logger) Syncer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &syncer{
		db:     store,
		logger: logger.With("component", "filesync"),
	}
}

// SyncTodo implements Syncer.SyncTodo.
func (s *syncer) SyncTodo(ctx context.Context, path string) error {
	todo, err := schema.ReadTodoFile(path)
	if err != nil {
		return fmt.Errorf("failed to read todo file: %w", err)
	}

	if err := s.db.SaveTodosContext(ctx, []schema.Todo{*todo}); err != nil {
		return fmt.Errorf("failed to sync todo to database: %w", err)
	}

	s.logger.Debug("synced todo", "id", todo.ID, "name", todo.Name)
	return nil
}

// DeleteTodo implements Syncer.DeleteTodo.
func (s *syncer) DeleteTodo(ctx context.Context, id int64) error {
	err := s.db.DeleteTodoContext(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}

	s.logger.Debug("deleted todo", "id", id)
	return nil
}

// FullSync implements Syncer.FullSync.
func (s *syncer) FullSync(ctx context.Context, dir string) (Stats, error) {
	s.logger.Info("starting full sync", "dir", dir)

	var stats Stats

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		s.logger.Info("todos directory doesn't exist, skipping", "dir", dir)
		return stats, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return stats, fmt.Errorf("failed to read todos directory: %w", err)
	}

	var todos []schema.Todo
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		todo, err := schema.ReadTodoFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			s.logger.Warn("failed to read todo file", "file", entry.Name(), "error", err)
			stats.Failed++
			continue
		}
		todos = append(todos, *todo)
	}

	if err := s.db.SaveTodosContext(ctx, todos); err != nil {
		return stats, fmt.Errorf("failed to sync todos: %w", err)
	}
	stats.Synced = len(todos)

	s.logger.Info("full sync complete", "synced", stats.Synced, "failed", stats.Failed)
	return stats, nil
}

// Export implements Syncer.Export.
func (s *syncer) Export(ctx context.Context, dir string) (int, error) {
	todos, err := s.db.FetchTodosContext(ctx, db.TodoFilter{})
	if err != nil {
		return 0, fmt.Errorf("failed to load todos: %w", err)
	}

	for i := range todos {
		if err := schema.WriteTodoFile(dir, &todos[i]); err != nil {
			return i, err
		}
	}

	s.logger.Info("exported todos", "dir", dir, "count", len(todos))
	return len(todos), nil
}
