package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/emtodo/emtodo/internal/schema"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "test.db")
}

// openTestDB opens an initialized database that is closed with the test.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	store, err := OpenAndInit(context.Background(), testDBPath(t))
	if err != nil {
		t.Fatalf("OpenAndInit() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var base = time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)

func todoAt(id int64, name string, created time.Time, done bool) schema.Todo {
	return schema.Todo{
		ID:          id,
		Name:        name,
		Description: "desc " + name,
		CreatedAt:   created,
		IsCompleted: done,
	}
}

func ids(todos []schema.Todo) []int64 {
	out := make([]int64, len(todos))
	for i, td := range todos {
		out[i] = td.ID
	}
	return out
}

func boolPtr(b bool) *bool { return &b }

func timePtr(t time.Time) *time.Time { return &t }

// TestOpen_Success tests successful database creation
func TestOpen_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "todos.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer store.Close()

	if store.Path() != path {
		t.Errorf("Path() = %q, want %q", store.Path(), path)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("Open(\"\") should fail")
	}
}

func TestClose_Twice(t *testing.T) {
	store, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("first Close() failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

// TestInitSchema_Idempotent tests that schema initialization is idempotent
func TestInitSchema_Idempotent(t *testing.T) {
	store := openTestDB(t)

	if err := store.InitSchema(); err != nil {
		t.Errorf("second InitSchema() failed: %v", err)
	}

	for _, table := range []string{"todos", "meta"} {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := store.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestSaveTodos_InsertAndUpdate(t *testing.T) {
	store := openTestDB(t)

	initial := []schema.Todo{
		todoAt(1, "one", base, false),
		todoAt(2, "two", base.Add(time.Hour), false),
	}
	if err := store.SaveTodos(initial); err != nil {
		t.Fatalf("SaveTodos() failed: %v", err)
	}

	updated := todoAt(2, "two updated", base.Add(time.Hour), true)
	if err := store.SaveTodos([]schema.Todo{updated, todoAt(3, "three", base, false)}); err != nil {
		t.Fatalf("SaveTodos() upsert failed: %v", err)
	}

	n, err := store.CountTodos()
	if err != nil {
		t.Fatalf("CountTodos() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("CountTodos() = %d, want 3", n)
	}

	got, err := store.GetTodo(2)
	if err != nil {
		t.Fatalf("GetTodo() failed: %v", err)
	}
	if diff := cmp.Diff(updated, got); diff != "" {
		t.Errorf("GetTodo(2) mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveTodos_DuplicateIDLastWins(t *testing.T) {
	store := openTestDB(t)

	batch := []schema.Todo{
		todoAt(7, "first", base, false),
		todoAt(7, "second", base, true),
	}
	if err := store.SaveTodos(batch); err != nil {
		t.Fatalf("SaveTodos() failed: %v", err)
	}

	got, err := store.GetTodo(7)
	if err != nil {
		t.Fatalf("GetTodo() failed: %v", err)
	}
	if got.Name != "second" || !got.IsCompleted {
		t.Errorf("GetTodo(7) = %+v, want the last todo of the batch", got)
	}
}

func TestSaveTodos_InvalidRejectsBatch(t *testing.T) {
	store := openTestDB(t)

	batch := []schema.Todo{
		todoAt(1, "ok", base, false),
		{ID: 2, CreatedAt: base}, // no text
	}
	if err := store.SaveTodos(batch); err == nil {
		t.Fatal("SaveTodos() should reject an invalid batch")
	}

	n, err := store.CountTodos()
	if err != nil {
		t.Fatalf("CountTodos() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("CountTodos() = %d after rejected batch, want 0", n)
	}
}

func TestSaveTodos_Empty(t *testing.T) {
	store := openTestDB(t)
	if err := store.SaveTodos(nil); err != nil {
		t.Errorf("SaveTodos(nil) failed: %v", err)
	}
}

func TestSaveTodo_RequiresExisting(t *testing.T) {
	store := openTestDB(t)

	err := store.SaveTodo(todoAt(42, "ghost", base, false))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("SaveTodo() on missing id = %v, want ErrNotFound", err)
	}

	if err := store.CreateTodo(todoAt(42, "real", base, false)); err != nil {
		t.Fatalf("CreateTodo() failed: %v", err)
	}

	edited := todoAt(42, "edited", base, true)
	if err := store.SaveTodo(edited); err != nil {
		t.Fatalf("SaveTodo() failed: %v", err)
	}

	got, err := store.GetTodo(42)
	if err != nil {
		t.Fatalf("GetTodo() failed: %v", err)
	}
	if diff := cmp.Diff(edited, got); diff != "" {
		t.Errorf("GetTodo(42) mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateTodo_Exists(t *testing.T) {
	store := openTestDB(t)

	if err := store.CreateTodo(todoAt(5, "a", base, false)); err != nil {
		t.Fatalf("CreateTodo() failed: %v", err)
	}
	err := store.CreateTodo(todoAt(5, "b", base, false))
	if !errors.Is(err, ErrExists) {
		t.Errorf("CreateTodo() duplicate = %v, want ErrExists", err)
	}

	got, _ := store.GetTodo(5)
	if got.Name != "a" {
		t.Errorf("duplicate create overwrote name: %q", got.Name)
	}
}

func TestDeleteTodo(t *testing.T) {
	store := openTestDB(t)

	if err := store.CreateTodo(todoAt(1, "a", base, false)); err != nil {
		t.Fatalf("CreateTodo() failed: %v", err)
	}
	if err := store.DeleteTodo(1); err != nil {
		t.Fatalf("DeleteTodo() failed: %v", err)
	}
	if _, err := store.GetTodo(1); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTodo() after delete = %v, want ErrNotFound", err)
	}
	if err := store.DeleteTodo(1); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteTodo() twice = %v, want ErrNotFound", err)
	}
}

func TestSetAndToggleCompleted(t *testing.T) {
	store := openTestDB(t)

	if err := store.CreateTodo(todoAt(1, "a", base, false)); err != nil {
		t.Fatalf("CreateTodo() failed: %v", err)
	}

	if err := store.SetCompleted(1, true); err != nil {
		t.Fatalf("SetCompleted() failed: %v", err)
	}
	got, _ := store.GetTodo(1)
	if !got.IsCompleted {
		t.Error("SetCompleted(true) did not persist")
	}

	toggled, err := store.ToggleCompleted(1)
	if err != nil {
		t.Fatalf("ToggleCompleted() failed: %v", err)
	}
	if toggled.IsCompleted {
		t.Error("ToggleCompleted() should return the flipped todo")
	}

	if _, err := store.ToggleCompleted(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("ToggleCompleted(99) = %v, want ErrNotFound", err)
	}
	if err := store.SetCompleted(99, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetCompleted(99) = %v, want ErrNotFound", err)
	}
}

func TestFetchTodos_Filters(t *testing.T) {
	store := openTestDB(t)

	todos := []schema.Todo{
		todoAt(1, "oldest", base, true),
		todoAt(2, "middle", base.Add(24*time.Hour), false),
		todoAt(3, "newest", base.Add(48*time.Hour), false),
		todoAt(4, "tie", base.Add(48*time.Hour), true),
	}
	if err := store.SaveTodos(todos); err != nil {
		t.Fatalf("SaveTodos() failed: %v", err)
	}

	tests := []struct {
		name   string
		filter TodoFilter
		want   []int64
	}{
		{
			name: "default sort newest first, id breaks ties",
			want: []int64{4, 3, 2, 1},
		},
		{
			name:   "completed only",
			filter: TodoFilter{Completed: boolPtr(true)},
			want:   []int64{4, 1},
		},
		{
			name:   "open only",
			filter: TodoFilter{Completed: boolPtr(false)},
			want:   []int64{3, 2},
		},
		{
			name:   "inclusive date range",
			filter: TodoFilter{CreatedFrom: timePtr(base), CreatedTo: timePtr(base.Add(24 * time.Hour))},
			want:   []int64{2, 1},
		},
		{
			name:   "sort by name ascending",
			filter: TodoFilter{Sort: []SortKey{{Field: SortByName, Ascending: true}}},
			want:   []int64{2, 3, 1, 4},
		},
		{
			name:   "limit and offset",
			filter: TodoFilter{Limit: 2, Offset: 1},
			want:   []int64{3, 2},
		},
		{
			name:   "offset without limit",
			filter: TodoFilter{Offset: 3},
			want:   []int64{1},
		},
		{
			name:   "search combined with completion",
			filter: TodoFilter{Search: "EST", Completed: boolPtr(false)},
			want:   []int64{3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.FetchTodos(tt.filter)
			if err != nil {
				t.Fatalf("FetchTodos() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("FetchTodos() ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchTodos_EmptyStore(t *testing.T) {
	store := openTestDB(t)

	got, err := store.FetchTodos(TodoFilter{})
	if err != nil {
		t.Fatalf("FetchTodos() failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("FetchTodos() = %#v, want empty non-nil slice", got)
	}
}

func TestSearchTodos(t *testing.T) {
	store := openTestDB(t)

	todos := []schema.Todo{
		{ID: 1, Name: "Купить молоко", CreatedAt: base},
		{ID: 2, Name: "Walk", Description: "take the DOG out", CreatedAt: base.Add(time.Hour)},
		{ID: 3, Name: "100% done", CreatedAt: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)},
		{ID: 4, Name: "file_name", CreatedAt: base.Add(2 * time.Hour)},
	}
	if err := store.SaveTodos(todos); err != nil {
		t.Fatalf("SaveTodos() failed: %v", err)
	}

	tests := []struct {
		query string
		want  []int64
	}{
		{query: "МОЛОКО", want: []int64{1}},
		{query: "dog", want: []int64{2}},
		{query: "09/03/24", want: []int64{4, 2, 1}},
		{query: "31/12", want: []int64{3}},
		{query: "%", want: []int64{3}},
		{query: "_", want: []int64{4}},
		{query: "   ", want: []int64{4, 2, 1, 3}},
		{query: "nothing matches", want: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := store.SearchTodos(tt.query, nil)
			if err != nil {
				t.Fatalf("SearchTodos() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("SearchTodos(%q) ids mismatch (-want +got):\n%s", tt.query, diff)
			}
		})
	}
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		spec    string
		want    []SortKey
		wantErr bool
	}{
		{spec: "", want: nil},
		{spec: "name", want: []SortKey{{Field: SortByName, Ascending: true}}},
		{
			spec: "created:desc, Name:ASC",
			want: []SortKey{
				{Field: SortByCreated, Ascending: false},
				{Field: SortByName, Ascending: true},
			},
		},
		{spec: "priority", wantErr: true},
		{spec: "name:sideways", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseSort(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSort(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseSort(%q) mismatch (-want +got):\n%s", tt.spec, diff)
			}
		})
	}
}

func TestStats(t *testing.T) {
	store := openTestDB(t)

	empty, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if empty != (Stats{}) {
		t.Errorf("Stats() on empty store = %+v", empty)
	}

	if err := store.SaveTodos([]schema.Todo{
		todoAt(1, "a", base, true),
		todoAt(2, "b", base, false),
		todoAt(3, "c", base, false),
	}); err != nil {
		t.Fatalf("SaveTodos() failed: %v", err)
	}

	got, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	want := Stats{Total: 3, Completed: 1, Open: 2}
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestMeta(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	v, err := store.GetMeta("seeded")
	if err != nil || v != "" {
		t.Fatalf("GetMeta() on unset key = %q, %v", v, err)
	}

	if err := store.SetMeta("seeded", "true"); err != nil {
		t.Fatalf("SetMeta() failed: %v", err)
	}
	if err := store.SetMeta("seeded", "yes"); err != nil {
		t.Fatalf("SetMeta() overwrite failed: %v", err)
	}
	if v, _ := store.GetMeta("seeded"); v != "yes" {
		t.Errorf("GetMeta() = %q, want %q", v, "yes")
	}

	if err := store.DeleteMeta(ctx, "seeded"); err != nil {
		t.Fatalf("DeleteMeta() failed: %v", err)
	}
	if v, _ := store.GetMeta("seeded"); v != "" {
		t.Errorf("GetMeta() after delete = %q", v)
	}
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Update(ctx, func(tx *Tx) error {
		if err := tx.SaveTodos(ctx, []schema.Todo{todoAt(1, "a", base, false)}); err != nil {
			return err
		}
		if err := tx.SetMeta(ctx, "seeded", "true"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() = %v, want boom", err)
	}

	if n, _ := store.CountTodos(); n != 0 {
		t.Errorf("CountTodos() = %d after rollback, want 0", n)
	}
	if v, _ := store.GetMeta("seeded"); v != "" {
		t.Errorf("meta survived rollback: %q", v)
	}
}

func TestReset(t *testing.T) {
	store := openTestDB(t)

	if err := store.SaveTodos([]schema.Todo{todoAt(1, "a", base, false)}); err != nil {
		t.Fatalf("SaveTodos() failed: %v", err)
	}
	if err := store.SetMeta("seeded", "true"); err != nil {
		t.Fatalf("SetMeta() failed: %v", err)
	}

	if err := store.Reset(); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}

	if n, _ := store.CountTodos(); n != 0 {
		t.Errorf("CountTodos() = %d after reset", n)
	}
	if v, _ := store.GetMeta("seeded"); v != "" {
		t.Errorf("meta survived reset: %q", v)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := testDBPath(t)
	ctx := context.Background()

	store, err := OpenAndInit(ctx, path)
	if err != nil {
		t.Fatalf("OpenAndInit() failed: %v", err)
	}
	want := todoAt(1, "kept", base.Add(123*time.Millisecond), true)
	if err := store.CreateTodo(want); err != nil {
		t.Fatalf("CreateTodo() failed: %v", err)
	}
	store.Close()

	reopened, err := OpenAndInit(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetTodo(1)
	if err != nil {
		t.Fatalf("GetTodo() failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetTodo() after reopen mismatch (-want +got):\n%s", diff)
	}
}
