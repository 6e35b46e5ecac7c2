// Package seed fills an empty store from the remote todo list exactly once.
//
// A persisted meta flag records that seeding happened. The flag is written
// in the same transaction as the seeded rows, so an interrupted or failed
// seed leaves the store unflagged and the next run tries again. Once the
// flag is set the local store is authoritative and the remote list is never
// consulted again unless Reseed is called.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emtodo/emtodo/internal/db"
	"github.com/emtodo/emtodo/internal/schema"
)

// SeededKey is the meta key holding the seed flag.
const SeededKey = "seeded"

const seededValue = "true"

// Fetcher downloads the remote todo list. *todoapi.Service implements it.
type Fetcher interface {
	FetchTodoList(ctx context.Context) ([]schema.Todo, error)
}

// Result describes one seed run.
type Result struct {
	// Skipped is true when the store was already seeded
	Skipped bool
	// Count is the number of todos written
	Count int
	// Duration covers the fetch and the save
	Duration time.Duration
}

// Seeder runs the one-time seed.
type Seeder struct {
	db      *db.DB
	fetcher Fetcher
	logger  *slog.Logger
}

// New creates a Seeder. A nil logger discards output.
func New(store *db.DB, fetcher Fetcher, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Seeder{
		db:      store,
		fetcher: fetcher,
		logger:  logger.With("component", "seed"),
	}
}

// IsSeeded reports whether the seed flag is set.
func (s *Seeder) IsSeeded(ctx context.Context) (bool, error) {
	v, err := s.db.GetMetaContext(ctx, SeededKey)
	if err != nil {
		return false, fmt.Errorf("failed to read seed flag: %w", err)
	}
	return v == seededValue, nil
}

// SeedOnce fetches the remote list and saves it, unless the store has been
// seeded before. No network request is made when the flag is already set.
func (s *Seeder) SeedOnce(ctx context.Context) (Result, error) {
	seeded, err := s.IsSeeded(ctx)
	if err != nil {
		return Result{}, err
	}
	if seeded {
		s.logger.Debug("store already seeded, skipping")
		return Result{Skipped: true}, nil
	}

	return s.seed(ctx, false)
}

// seed fetches the remote list, then upserts it and sets the flag in one
// transaction. The flag is never cleared, so a failed run leaves the
// previous state intact. Unless forced, a flag set while fetching wins.
func (s *Seeder) seed(ctx context.Context, force bool) (Result, error) {
	start := time.Now()
	s.logger.Info("seeding store from remote list", "force", force)

	todos, err := s.fetcher.FetchTodoList(ctx)
	if err != nil {
		s.logger.Error("seed fetch failed", "error", err)
		return Result{}, fmt.Errorf("failed to fetch seed list: %w", err)
	}

	skipped := false
	err = s.db.Update(ctx, func(tx *db.Tx) error {
		if !force {
			// Another process may have finished seeding while we fetched.
			v, err := tx.GetMeta(ctx, SeededKey)
			if err != nil {
				return err
			}
			if v == seededValue {
				skipped = true
				return nil
			}
		}

		if err := tx.SaveTodos(ctx, todos); err != nil {
			return err
		}
		return tx.SetMeta(ctx, SeededKey, seededValue)
	})
	if err != nil {
		s.logger.Error("seed save failed", "error", err)
		return Result{}, fmt.Errorf("failed to save seed list: %w", err)
	}
	if skipped {
		s.logger.Info("store seeded concurrently, discarding fetched list")
		return Result{Skipped: true}, nil
	}

	res := Result{Count: len(todos), Duration: time.Since(start)}
	s.logger.Info("seed complete", "count", res.Count, "duration", res.Duration)
	return res, nil
}

// Reseed loads the remote list again even when already seeded. Remote
// todos overwrite local todos with the same id; other local todos are kept.
// A failed reseed leaves the store and its flag unchanged.
func (s *Seeder) Reseed(ctx context.Context) (Result, error) {
	return s.seed(ctx, true)
}
