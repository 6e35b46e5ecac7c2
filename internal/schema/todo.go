package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxNameLength is the longest name, in runes, a todo may carry.
const MaxNameLength = 500

// ShortDateLayout is the dd/MM/yy rendering used in lists and search.
const ShortDateLayout = "02/01/06"

// Todo is a single todo record.
//
// CreatedAt is kept at millisecond precision, which is what the store
// persists. ID doubles as the creation timestamp for locally created todos.
type Todo struct {
	ID          int64     `json:"id" yaml:"id" toml:"id"`
	Name        string    `json:"name" yaml:"name" toml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at" toml:"created_at"`
	IsCompleted bool      `json:"is_completed" yaml:"is_completed" toml:"is_completed"`
}

// NewTodo returns an empty draft created at now. Its ID is now in Unix
// milliseconds.
func NewTodo(now time.Time) Todo {
	now = TruncateMillis(now)
	return Todo{
		ID:        now.UnixMilli(),
		CreatedAt: now,
	}
}

// Validate checks if the Todo has valid field values.
func (t *Todo) Validate() error {
	if t.ID <= 0 {
		return fmt.Errorf("id must be positive (got %d)", t.ID)
	}
	if strings.TrimSpace(t.Name) == "" && strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("name or description is required")
	}
	if n := utf8.RuneCountInString(t.Name); n > MaxNameLength {
		return fmt.Errorf("name must be %d characters or less (got %d)", MaxNameLength, n)
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// Equal reports whether two todos carry the same values.
// CreatedAt is compared at millisecond precision.
func (t Todo) Equal(other Todo) bool {
	return t.ID == other.ID &&
		t.Name == other.Name &&
		t.Description == other.Description &&
		t.IsCompleted == other.IsCompleted &&
		t.CreatedAt.UnixMilli() == other.CreatedAt.UnixMilli()
}

// ShortDate renders CreatedAt as dd/MM/yy in UTC.
func (t Todo) ShortDate() string {
	return t.CreatedAt.UTC().Format(ShortDateLayout)
}

// SearchText is the lower-cased haystack free-text search matches against:
// name, description and the short date.
func (t Todo) SearchText() string {
	return strings.ToLower(t.Name + "\n" + t.Description + "\n" + t.ShortDate())
}

// Filename returns the canonical filename for this todo: {id}.json
func (t Todo) Filename() string {
	return fmt.Sprintf("%d.json", t.ID)
}

// IDFromFilename extracts the todo ID from a {id}.json filename.
func IDFromFilename(name string) (int64, error) {
	base := filepath.Base(name)
	if filepath.Ext(base) != ".json" {
		return 0, fmt.Errorf("not a todo file: %s", name)
	}
	id, err := strconv.ParseInt(strings.TrimSuffix(base, ".json"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid todo filename %s: %w", name, err)
	}
	return id, nil
}

// TruncateMillis drops sub-millisecond precision and monotonic clock data.
func TruncateMillis(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// ReadTodoFile reads and parses a todo JSON file from the given path.
// A numeric filename must match the id in the file body.
func ReadTodoFile(path string) (*Todo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read todo file %s: %w", path, err)
	}

	var todo Todo
	if err := json.Unmarshal(data, &todo); err != nil {
		return nil, fmt.Errorf("failed to parse todo file %s: %w", path, err)
	}
	todo.CreatedAt = TruncateMillis(todo.CreatedAt)

	if err := todo.Validate(); err != nil {
		return nil, fmt.Errorf("invalid todo file %s: %w", path, err)
	}
	if id, err := IDFromFilename(path); err == nil && id != todo.ID {
		return nil, fmt.Errorf("todo file %s holds id %d", path, todo.ID)
	}

	return &todo, nil
}

// WriteTodoFile writes a Todo to dir/{id}.json with pretty-printed formatting.
func WriteTodoFile(dir string, todo *Todo) error {
	if err := todo.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid todo: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create todos directory: %w", err)
	}

	data, err := json.MarshalIndent(todo, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal todo %d: %w", todo.ID, err)
	}

	// Write through a temp file so watchers never see a half-written todo.
	path := filepath.Join(dir, todo.Filename())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write todo file %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write todo file %s: %w", path, err)
	}

	return nil
}
