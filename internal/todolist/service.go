// Package todolist holds the list and detail interactions over the store:
// listing and searching, toggling completion, deleting, drafting and saving.
//
// Front ends (the CLI, the dashboard) call the Service and register an
// Observer to hear about changes made through it.
package todolist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/emtodo/emtodo/internal/db"
	"github.com/emtodo/emtodo/internal/schema"
	"github.com/emtodo/emtodo/internal/seed"
)

// Observer is notified after a change has been committed.
// Callbacks run synchronously on the caller's goroutine.
type Observer interface {
	// TodoSaved reports a created or updated todo.
	TodoSaved(todo schema.Todo, created bool)
	// TodoDeleted reports a removed todo.
	TodoDeleted(id int64)
	// TodosSeeded reports a seed run that wrote todos.
	TodosSeeded(res seed.Result)
}

// Service is the todo interactor.
type Service struct {
	db     *db.DB
	seeder *seed.Seeder
	now    func() time.Time
	logger *slog.Logger

	mu        sync.RWMutex
	observers []Observer
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for drafts.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger (default: discard).
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New creates a Service. seeder may be nil when the store is used offline.
func New(store *db.DB, seeder *seed.Seeder, opts ...Option) *Service {
	s := &Service{
		db:     store,
		seeder: seeder,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddObserver registers o for change notifications.
func (s *Service) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Service) notify(fn func(Observer)) {
	s.mu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.RUnlock()

	for _, o := range observers {
		fn(o)
	}
}

// Seed runs the one-time seed, or a forced reseed.
func (s *Service) Seed(ctx context.Context, force bool) (seed.Result, error) {
	if s.seeder == nil {
		return seed.Result{}, fmt.Errorf("seeding is not configured")
	}

	var res seed.Result
	var err error
	if force {
		res, err = s.seeder.Reseed(ctx)
	} else {
		res, err = s.seeder.SeedOnce(ctx)
	}
	if err != nil {
		return res, err
	}

	if !res.Skipped {
		s.notify(func(o Observer) { o.TodosSeeded(res) })
	}
	return res, nil
}

// List returns todos matching filter.
func (s *Service) List(ctx context.Context, filter db.TodoFilter) ([]schema.Todo, error) {
	return s.db.FetchTodosContext(ctx, filter)
}

// Search returns todos whose name, description or date contain text.
// Blank text lists everything.
func (s *Service) Search(ctx context.Context, text string, sort []db.SortKey) ([]schema.Todo, error) {
	if strings.TrimSpace(text) == "" {
		return s.List(ctx, db.TodoFilter{Sort: sort})
	}
	return s.db.SearchTodosContext(ctx, text, sort)
}

// Get loads one todo.
func (s *Service) Get(ctx context.Context, id int64) (schema.Todo, error) {
	return s.db.GetTodoContext(ctx, id)
}

// ToggleComplete flips the completion flag and returns the updated todo.
func (s *Service) ToggleComplete(ctx context.Context, id int64) (schema.Todo, error) {
	todo, err := s.db.ToggleCompletedContext(ctx, id)
	if err != nil {
		return schema.Todo{}, err
	}

	s.logger.Debug("toggled todo", "id", id, "completed", todo.IsCompleted)
	s.notify(func(o Observer) { o.TodoSaved(todo, false) })
	return todo, nil
}

// Delete removes a todo.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.db.DeleteTodoContext(ctx, id); err != nil {
		return err
	}

	s.logger.Debug("deleted todo", "id", id)
	s.notify(func(o Observer) { o.TodoDeleted(id) })
	return nil
}

// Draft returns an empty todo stamped with the current time. Its id is the
// creation time in milliseconds.
func (s *Service) Draft() schema.Todo {
	return schema.NewTodo(s.now())
}

// Save stores the todo edited in a detail view.
//
// A todo whose id is unknown is created; a known one is updated. Nothing is
// written, and saved is false, when the todo matches what is stored or when
// it is a draft that was left blank.
func (s *Service) Save(ctx context.Context, todo schema.Todo) (saved bool, err error) {
	todo.CreatedAt = schema.TruncateMillis(todo.CreatedAt)

	existing, err := s.db.GetTodoContext(ctx, todo.ID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		if isBlank(todo) {
			return false, nil
		}
		if err := s.db.CreateTodoContext(ctx, todo); err != nil {
			return false, err
		}
		s.logger.Debug("created todo", "id", todo.ID)
		s.notify(func(o Observer) { o.TodoSaved(todo, true) })
		return true, nil

	case err != nil:
		return false, err
	}

	if existing.Equal(todo) {
		return false, nil
	}

	if err := s.db.SaveTodoContext(ctx, todo); err != nil {
		return false, err
	}
	s.logger.Debug("updated todo", "id", todo.ID)
	s.notify(func(o Observer) { o.TodoSaved(todo, false) })
	return true, nil
}

// Stats returns completion counts.
func (s *Service) Stats(ctx context.Context) (db.Stats, error) {
	return s.db.StatsContext(ctx)
}

func isBlank(todo schema.Todo) bool {
	return strings.TrimSpace(todo.Name) == "" && strings.TrimSpace(todo.Description) == ""
}
