// Package loadtest measures the todo store under concurrent access.
//
// It fills a scratch database with generated todos and runs concurrent
// readers (list, filtered list, search) with and without writers toggling
// completion, recording per-query latency.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/emtodo/emtodo/internal/db"
	"github.com/emtodo/emtodo/internal/schema"
)

// QueryKind selects the read performed by each reader.
type QueryKind string

const (
	// QueryList fetches every todo, newest first
	QueryList QueryKind = "list"
	// QueryOpen fetches open todos only
	QueryOpen QueryKind = "open"
	// QuerySearch runs a text search across name, description and date
	QuerySearch QueryKind = "search"
)

// QueryKinds lists every kind in report order.
var QueryKinds = []QueryKind{QueryList, QueryOpen, QuerySearch}

// TestDatabase represents a populated test database for load testing.
type TestDatabase struct {
	DB           *db.DB
	IDs          []int64
	CompletedIDs []int64
	TotalTodos   int
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
	Durations    []time.Duration
}

var words = []string{
	"buy", "milk", "call", "mom", "write", "report", "fix", "bike",
	"книга", "read", "plan", "trip", "pay", "rent", "walk", "dog",
}

// CreateTestDatabase creates a database at dbPath holding numTodos generated
// todos, of which roughly completedPct are completed.
func CreateTestDatabase(ctx context.Context, dbPath string, numTodos int, completedPct float64) (*TestDatabase, error) {
	database, err := db.OpenAndInit(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	todos := generateTodos(numTodos, completedPct)
	if err := database.SaveTodosContext(ctx, todos); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to insert todos: %w", err)
	}

	td := &TestDatabase{
		DB:         database,
		IDs:        make([]int64, 0, numTodos),
		TotalTodos: numTodos,
	}
	for _, todo := range todos {
		td.IDs = append(td.IDs, todo.ID)
		if todo.IsCompleted {
			td.CompletedIDs = append(td.CompletedIDs, todo.ID)
		}
	}
	return td, nil
}

// Close closes the test database connection.
func (td *TestDatabase) Close() error {
	if td.DB != nil {
		return td.DB.Close()
	}
	return nil
}

// RunConcurrentQueries starts numReaders goroutines that each run
// queriesPerReader queries of the given kind, and returns the aggregated
// latency.
func (td *TestDatabase) RunConcurrentQueries(ctx context.Context, kind QueryKind, numReaders, queriesPerReader int) (*LatencyStats, error) {
	var wg sync.WaitGroup
	resultsChan := make(chan []time.Duration, numReaders)
	errorsChan := make(chan error, numReaders)

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()

			durations := make([]time.Duration, 0, queriesPerReader)
			for j := 0; j < queriesPerReader; j++ {
				start := time.Now()
				_, err := td.query(ctx, kind, reader+j)
				durations = append(durations, time.Since(start))

				if err != nil {
					errorsChan <- fmt.Errorf("reader %d query %d failed: %w", reader, j, err)
					break
				}
			}
			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	var errs []error
	for err := range errorsChan {
		errs = append(errs, err)
	}

	var all []time.Duration
	for durations := range resultsChan {
		all = append(all, durations...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no queries completed")
	}
	if len(errs) == numReaders {
		return nil, errs[0]
	}

	stats := computeLatencyStats(all)
	stats.Errors = len(errs)
	return stats, nil
}

// VerifyConsistency runs readers against writers that toggle completion for
// the given duration. Readers check that the open filter only returns open
// todos and that the total count never changes.
func (td *TestDatabase) VerifyConsistency(ctx context.Context, numReaders, numWriters int, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var wg sync.WaitGroup
	errorsChan := make(chan error, numReaders+numWriters)

	for i := 0; i < numWriters; i++ {
		wg.Add(1)
		go func(writer int) {
			defer wg.Done()

			rng := rand.New(rand.NewSource(int64(writer)))
			for ctx.Err() == nil {
				id := td.IDs[rng.Intn(len(td.IDs))]
				if _, err := td.DB.ToggleCompletedContext(ctx, id); err != nil && ctx.Err() == nil {
					errorsChan <- fmt.Errorf("writer %d toggle %d failed: %w", writer, id, err)
					return
				}
				time.Sleep(time.Millisecond)
			}
		}(i)
	}

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()

			for ctx.Err() == nil {
				todos, err := td.query(ctx, QueryOpen, reader)
				if err != nil {
					if ctx.Err() == nil {
						errorsChan <- fmt.Errorf("reader %d read failed: %w", reader, err)
					}
					return
				}
				for _, todo := range todos {
					if todo.IsCompleted {
						errorsChan <- fmt.Errorf("reader %d found completed todo %d in open list", reader, todo.ID)
						return
					}
				}

				stats, err := td.DB.StatsContext(ctx)
				if err != nil {
					if ctx.Err() == nil {
						errorsChan <- fmt.Errorf("reader %d stats failed: %w", reader, err)
					}
					return
				}
				if stats.Total != td.TotalTodos || stats.Open+stats.Completed != stats.Total {
					errorsChan <- fmt.Errorf("reader %d saw inconsistent stats %+v", reader, stats)
					return
				}
				time.Sleep(time.Millisecond)
			}
		}(i)
	}

	wg.Wait()
	close(errorsChan)

	for err := range errorsChan {
		if err != nil {
			return err
		}
	}
	return nil
}

func (td *TestDatabase) query(ctx context.Context, kind QueryKind, n int) ([]schema.Todo, error) {
	switch kind {
	case QueryList:
		return td.DB.FetchTodosContext(ctx, db.TodoFilter{})
	case QueryOpen:
		open := false
		return td.DB.FetchTodosContext(ctx, db.TodoFilter{Completed: &open})
	case QuerySearch:
		return td.DB.SearchTodosContext(ctx, words[n%len(words)], nil)
	default:
		return nil, fmt.Errorf("unknown query kind %q", kind)
	}
}

// generateTodos creates todos with ids 1..count, creation times one minute
// apart ending now, and deterministic completion.
func generateTodos(count int, completedPct float64) []schema.Todo {
	todos := make([]schema.Todo, count)
	rng := rand.New(rand.NewSource(42))
	baseTime := time.Now().UTC().Add(-time.Duration(count) * time.Minute)

	for i := 0; i < count; i++ {
		a, b := words[rng.Intn(len(words))], words[rng.Intn(len(words))]
		todos[i] = schema.Todo{
			ID:          int64(i + 1),
			Name:        fmt.Sprintf("%s %s", a, b),
			Description: fmt.Sprintf("Generated todo %d (%s)", i+1, b),
			CreatedAt:   schema.TruncateMillis(baseTime.Add(time.Duration(i) * time.Minute)),
			IsCompleted: rng.Float64() < completedPct,
		}
	}
	return todos
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(durations)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(durations),
		Durations:    sorted,
	}
}

// Fprint writes the statistics to w.
func (s *LatencyStats) Fprint(w io.Writer) {
	fmt.Fprintf(w, "  Total Queries: %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
