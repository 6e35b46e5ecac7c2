package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emtodo/emtodo/internal/schema"
)

const todoColumns = `id, name, description, created_at, is_completed`

// SortField names a sortable todo column.
type SortField string

const (
	SortByID          SortField = "id"
	SortByName        SortField = "name"
	SortByDescription SortField = "description"
	SortByCreated     SortField = "created"
	SortByCompleted   SortField = "completed"
)

var sortColumns = map[SortField]string{
	SortByID:          "id",
	SortByName:        "name",
	SortByDescription: "description",
	SortByCreated:     "created_at",
	SortByCompleted:   "is_completed",
}

// SortKey orders fetch results by one field.
type SortKey struct {
	Field     SortField
	Ascending bool
}

// DefaultSort lists the newest todos first.
var DefaultSort = []SortKey{
	{Field: SortByCreated, Ascending: false},
	{Field: SortByID, Ascending: false},
}

// ParseSort parses "created:desc,name:asc" style sort specs.
// A key without a direction sorts ascending.
func ParseSort(spec string) ([]SortKey, error) {
	var keys []SortKey
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		field, dir, _ := strings.Cut(part, ":")
		key := SortKey{Field: SortField(strings.ToLower(field)), Ascending: true}
		if _, ok := sortColumns[key.Field]; !ok {
			return nil, fmt.Errorf("unknown sort field %q", field)
		}

		switch strings.ToLower(dir) {
		case "", "asc":
		case "desc":
			key.Ascending = false
		default:
			return nil, fmt.Errorf("unknown sort direction %q for %s", dir, field)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// TodoFilter configures FetchTodos.
type TodoFilter struct {
	// Completed filters by completion state (nil = all)
	Completed *bool
	// CreatedFrom keeps todos created at or after this instant (nil = no bound)
	CreatedFrom *time.Time
	// CreatedTo keeps todos created at or before this instant (nil = no bound)
	CreatedTo *time.Time
	// Search keeps todos whose name, description or dd/MM/yy date contains
	// the text, ignoring case (blank = no text filter)
	Search string
	// Sort orders the results (empty = DefaultSort)
	Sort []SortKey
	// Limit restricts the number of results (0 = no limit)
	Limit int
	// Offset skips the first N results
	Offset int
}

// FetchTodos retrieves todos matching the filter.
func (db *DB) FetchTodos(filter TodoFilter) ([]schema.Todo, error) {
	return db.FetchTodosContext(context.Background(), filter)
}

// FetchTodosContext retrieves todos matching the filter with context support.
func (db *DB) FetchTodosContext(ctx context.Context, filter TodoFilter) ([]schema.Todo, error) {
	var conditions []string
	var args []interface{}

	if filter.Completed != nil {
		conditions = append(conditions, "is_completed = ?")
		args = append(args, *filter.Completed)
	}

	if filter.CreatedFrom != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.CreatedFrom.UnixMilli())
	}

	if filter.CreatedTo != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, filter.CreatedTo.UnixMilli())
	}

	// instr keeps the user's text literal; no LIKE wildcards to escape.
	if text := strings.TrimSpace(filter.Search); text != "" {
		conditions = append(conditions, "instr(search_text, ?) > 0")
		args = append(args, strings.ToLower(text))
	}

	query := `SELECT ` + todoColumns + ` FROM todos`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY " + orderBy(filter.Sort)

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch todos: %w", err)
	}
	defer rows.Close()

	return scanTodos(rows)
}

// SearchTodos finds todos whose name, description or creation date contain
// text, ignoring case. Blank text returns every todo.
func (db *DB) SearchTodos(text string, sort []SortKey) ([]schema.Todo, error) {
	return db.SearchTodosContext(context.Background(), text, sort)
}

// SearchTodosContext runs SearchTodos with context support.
func (db *DB) SearchTodosContext(ctx context.Context, text string, sort []SortKey) ([]schema.Todo, error) {
	return db.FetchTodosContext(ctx, TodoFilter{Search: text, Sort: sort})
}

func orderBy(keys []SortKey) string {
	if len(keys) == 0 {
		keys = DefaultSort
	}

	var parts []string
	hasID := false
	for _, key := range keys {
		col, ok := sortColumns[key.Field]
		if !ok {
			continue
		}
		if key.Field == SortByID {
			hasID = true
		}
		dir := "DESC"
		if key.Ascending {
			dir = "ASC"
		}
		parts = append(parts, col+" "+dir)
	}
	// id breaks ties so paging is stable
	if !hasID {
		parts = append(parts, "id DESC")
	}
	return strings.Join(parts, ", ")
}

// GetTodo retrieves a single todo by ID.
// Returns ErrNotFound if the todo does not exist.
func (db *DB) GetTodo(id int64) (schema.Todo, error) {
	return db.GetTodoContext(context.Background(), id)
}

// GetTodoContext retrieves a single todo by ID with context support.
func (db *DB) GetTodoContext(ctx context.Context, id int64) (schema.Todo, error) {
	return getTodo(ctx, db.conn, id)
}

func getTodo(ctx context.Context, q queryer, id int64) (schema.Todo, error) {
	row := q.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = ?`, id)
	todo, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Todo{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return schema.Todo{}, fmt.Errorf("failed to get todo %d: %w", id, err)
	}
	return todo, nil
}

// SaveTodos upserts a batch of todos by id in one transaction.
//
// Every todo is validated before anything is written; one invalid todo
// rejects the whole batch. When the batch repeats an id the last one wins.
func (db *DB) SaveTodos(todos []schema.Todo) error {
	return db.SaveTodosContext(context.Background(), todos)
}

// SaveTodosContext upserts a batch of todos with context support.
func (db *DB) SaveTodosContext(ctx context.Context, todos []schema.Todo) error {
	return db.Update(ctx, func(tx *Tx) error {
		return tx.SaveTodos(ctx, todos)
	})
}

// SaveTodos upserts a batch of todos inside the transaction.
func (tx *Tx) SaveTodos(ctx context.Context, todos []schema.Todo) error {
	for i := range todos {
		if err := todos[i].Validate(); err != nil {
			return fmt.Errorf("invalid todo %d: %w", todos[i].ID, err)
		}
	}

	stmt, err := tx.tx.PrepareContext(ctx, `
	INSERT INTO todos (id, name, description, created_at, is_completed, search_text)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		description = excluded.description,
		created_at = excluded.created_at,
		is_completed = excluded.is_completed,
		search_text = excluded.search_text
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, todo := range todos {
		if _, err := stmt.ExecContext(ctx, todoArgs(todo)...); err != nil {
			return fmt.Errorf("failed to upsert todo %d: %w", todo.ID, err)
		}
	}
	return nil
}

// SaveTodo updates an existing todo.
// Returns ErrNotFound if no todo has this id; use CreateTodo for new ones.
func (db *DB) SaveTodo(todo schema.Todo) error {
	return db.SaveTodoContext(context.Background(), todo)
}

// SaveTodoContext updates an existing todo with context support.
func (db *DB) SaveTodoContext(ctx context.Context, todo schema.Todo) error {
	if err := todo.Validate(); err != nil {
		return fmt.Errorf("invalid todo: %w", err)
	}

	args := todoArgs(todo)
	res, err := db.conn.ExecContext(ctx, `
	UPDATE todos SET
		name = ?, description = ?, created_at = ?, is_completed = ?, search_text = ?
	WHERE id = ?
	`, append(args[1:], todo.ID)...)
	if err != nil {
		return fmt.Errorf("failed to save todo %d: %w", todo.ID, err)
	}
	return affected(res, todo.ID)
}

// CreateTodo inserts a new todo.
// Returns ErrExists if the id is already taken.
func (db *DB) CreateTodo(todo schema.Todo) error {
	return db.CreateTodoContext(context.Background(), todo)
}

// CreateTodoContext inserts a new todo with context support.
func (db *DB) CreateTodoContext(ctx context.Context, todo schema.Todo) error {
	if err := todo.Validate(); err != nil {
		return fmt.Errorf("invalid todo: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO todos (id, name, description, created_at, is_completed, search_text)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING
	`, todoArgs(todo)...)
	if err != nil {
		return fmt.Errorf("failed to create todo %d: %w", todo.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrExists, todo.ID)
	}
	return nil
}

// DeleteTodo removes a todo.
// Returns ErrNotFound if the todo does not exist.
func (db *DB) DeleteTodo(id int64) error {
	return db.DeleteTodoContext(context.Background(), id)
}

// DeleteTodoContext removes a todo with context support.
func (db *DB) DeleteTodoContext(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete todo %d: %w", id, err)
	}
	return affected(res, id)
}

// SetCompleted sets the completion flag of a todo.
func (db *DB) SetCompleted(id int64, completed bool) error {
	return db.SetCompletedContext(context.Background(), id, completed)
}

// SetCompletedContext sets the completion flag with context support.
func (db *DB) SetCompletedContext(ctx context.Context, id int64, completed bool) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE todos SET is_completed = ? WHERE id = ?`, completed, id)
	if err != nil {
		return fmt.Errorf("failed to update todo %d: %w", id, err)
	}
	return affected(res, id)
}

// ToggleCompleted flips the completion flag and returns the updated todo.
func (db *DB) ToggleCompleted(id int64) (schema.Todo, error) {
	return db.ToggleCompletedContext(context.Background(), id)
}

// ToggleCompletedContext flips the completion flag with context support.
func (db *DB) ToggleCompletedContext(ctx context.Context, id int64) (schema.Todo, error) {
	row := db.conn.QueryRowContext(ctx, `
	UPDATE todos SET is_completed = 1 - is_completed
	WHERE id = ?
	RETURNING `+todoColumns, id)

	todo, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Todo{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return schema.Todo{}, fmt.Errorf("failed to toggle todo %d: %w", id, err)
	}
	return todo, nil
}

// Stats summarizes the todo table.
type Stats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Open      int `json:"open"`
}

// Stats counts todos by completion state.
func (db *DB) Stats() (Stats, error) {
	return db.StatsContext(context.Background())
}

// StatsContext counts todos by completion state with context support.
func (db *DB) StatsContext(ctx context.Context) (Stats, error) {
	var s Stats
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_completed), 0) FROM todos`,
	).Scan(&s.Total, &s.Completed)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get todo stats: %w", err)
	}
	s.Open = s.Total - s.Completed
	return s, nil
}

// CountTodos returns the total number of todos in the database.
func (db *DB) CountTodos() (int, error) {
	return db.CountTodosContext(context.Background())
}

// CountTodosContext returns the total number of todos with context support.
func (db *DB) CountTodosContext(ctx context.Context) (int, error) {
	s, err := db.StatsContext(ctx)
	if err != nil {
		return 0, err
	}
	return s.Total, nil
}

func todoArgs(todo schema.Todo) []interface{} {
	return []interface{}{
		todo.ID,
		todo.Name,
		todo.Description,
		todo.CreatedAt.UnixMilli(),
		todo.IsCompleted,
		todo.SearchText(),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTodo(row rowScanner) (schema.Todo, error) {
	var todo schema.Todo
	var createdAt int64
	var completed int64

	if err := row.Scan(&todo.ID, &todo.Name, &todo.Description, &createdAt, &completed); err != nil {
		return schema.Todo{}, err
	}

	todo.CreatedAt = time.UnixMilli(createdAt).UTC()
	todo.IsCompleted = completed != 0
	return todo, nil
}

// scanTodos is a helper function to scan multiple todos from query results.
func scanTodos(rows *sql.Rows) ([]schema.Todo, error) {
	todos := []schema.Todo{}

	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, todo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating todos: %w", err)
	}

	return todos, nil
}

// GetTodo reads a todo inside the transaction.
func (tx *Tx) GetTodo(ctx context.Context, id int64) (schema.Todo, error) {
	return getTodo(ctx, tx.tx, id)
}

// DeleteTodo removes a todo inside the transaction.
func (tx *Tx) DeleteTodo(ctx context.Context, id int64) error {
	res, err := tx.tx.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete todo %d: %w", id, err)
	}
	return affected(res, id)
}
