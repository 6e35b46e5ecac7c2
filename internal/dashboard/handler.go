package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/emtodo/emtodo/internal/schema"
	"github.com/emtodo/emtodo/internal/seed"
)

// TodoUpdateData contains todo change information
type TodoUpdateData struct {
	ID          int64  `json:"id"`
	Action      string `json:"action"` // created, updated, deleted
	Name        string `json:"name,omitempty"`
	IsCompleted bool   `json:"is_completed,omitempty"`
}

// SeedCompleteData contains seed completion information
type SeedCompleteData struct {
	Count    int           `json:"count"`
	Duration time.Duration `json:"duration"`
}

// Handler turns store changes into dashboard messages. It implements
// todolist.Observer, and OnFileSync can be plugged into the watch daemon.
type Handler struct {
	server *Server
	todos  TodoSource
	logger *slog.Logger
}

// NewHandler creates a new event handler connected to a dashboard server.
// todos is used for stats and may be nil.
func NewHandler(server *Server, todos TodoSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		server: server,
		todos:  todos,
		logger: logger.With("component", "dashboard"),
	}
}

// TodoSaved broadcasts a created or updated todo.
func (h *Handler) TodoSaved(todo schema.Todo, created bool) {
	action := "updated"
	if created {
		action = "created"
	}
	h.logger.Debug("todo saved", "id", todo.ID, "action", action)

	h.send(MessageTypeTodoUpdate, TodoUpdateData{
		ID:          todo.ID,
		Action:      action,
		Name:        todo.Name,
		IsCompleted: todo.IsCompleted,
	})
	h.BroadcastStats()
}

// TodoDeleted broadcasts a removed todo.
func (h *Handler) TodoDeleted(id int64) {
	h.logger.Debug("todo deleted", "id", id)

	h.send(MessageTypeTodoUpdate, TodoUpdateData{ID: id, Action: "deleted"})
	h.BroadcastStats()
}

// TodosSeeded broadcasts a finished seed run.
func (h *Handler) TodosSeeded(res seed.Result) {
	h.logger.Debug("seed complete", "count", res.Count, "duration", res.Duration)

	h.send(MessageTypeSeedComplete, SeedCompleteData{
		Count:    res.Count,
		Duration: res.Duration,
	})
	h.BroadcastStats()
}

// OnFileSync reports a todo file applied by the watch daemon. The file
// carries no created/updated distinction, so saves are sent as updates.
func (h *Handler) OnFileSync(id int64, deleted bool) {
	if deleted {
		h.TodoDeleted(id)
		return
	}

	data := TodoUpdateData{ID: id, Action: "updated"}
	if h.todos != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		todo, err := h.todos.Get(ctx, id)
		cancel()
		if err == nil {
			data.Name = todo.Name
			data.IsCompleted = todo.IsCompleted
		}
	}
	h.send(MessageTypeTodoUpdate, data)
	h.BroadcastStats()
}

// BroadcastStats sends current counts to all clients.
func (h *Handler) BroadcastStats() {
	if h.todos == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := h.todos.Stats(ctx)
	if err != nil {
		h.logger.Warn("failed to load stats", "error", err)
		return
	}
	h.send(MessageTypeStats, stats)
}

func (h *Handler) send(typ MessageType, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn("failed to marshal message data", "type", typ, "error", err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
