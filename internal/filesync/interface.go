// Package filesync mirrors a directory of per-todo JSON files into the store.
package filesync

import "context"

// Syncer keeps the todo store in sync with a directory of {id}.json files.
//
// Individual file failures do not stop a full sync: they are logged and
// counted, and the sync continues with the remaining files.
type Syncer interface {
	// SyncTodo reads a todo file and upserts it into the store.
	//
	// Returns an error if the file cannot be read, is invalid, or the
	// database update fails.
	//
	// Example:
	//   err := syncer.SyncTodo(ctx, "/path/to/todos/1718000000000.json")
	SyncTodo(ctx context.Context, path string) error

	// DeleteTodo removes a todo from the store after its file disappeared.
	// Returns nil if the todo doesn't exist (idempotent).
	DeleteTodo(ctx context.Context, id int64) error

	// FullSync upserts every valid todo file in dir in one transaction.
	// A missing directory is not an error.
	FullSync(ctx context.Context, dir string) (Stats, error)

	// Export writes every stored todo to dir as {id}.json and returns the
	// number of files written.
	Export(ctx context.Context, dir string) (int, error)
}

// Stats counts the outcome of a full sync.
type Stats struct {
	Synced int
	Failed int
}
