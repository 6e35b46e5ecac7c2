package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/go-cmp/cmp"

	"github.com/emtodo/emtodo/internal/db"
	"github.com/emtodo/emtodo/internal/schema"
	"github.com/emtodo/emtodo/internal/todolist"
)

var created = time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

func setupTodos(t *testing.T) (*todolist.Service, *db.DB) {
	t.Helper()

	store, err := db.OpenAndInit(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	err = store.SaveTodos([]schema.Todo{
		{ID: 1, Name: "Buy milk", Description: "two litres", CreatedAt: created},
		{ID: 2, Name: "Call mom", CreatedAt: created.Add(time.Hour), IsCompleted: true},
	})
	if err != nil {
		t.Fatalf("failed to seed todos: %v", err)
	}

	return todolist.New(store, nil), store
}

func startServer(t *testing.T, todos TodoSource) *Server {
	t.Helper()

	server := NewServer(&Config{Port: 0, Todos: todos})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketWelcomeStats(t *testing.T) {
	svc, _ := setupTodos(t)
	server := startServer(t, svc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	msg := readMessage(t, ctx, conn)

	if msg.Type != MessageTypeStats {
		t.Fatalf("Expected welcome message type %s, got %s", MessageTypeStats, msg.Type)
	}
	var stats db.Stats
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if diff := cmp.Diff(db.Stats{Total: 2, Completed: 1, Open: 1}, stats); diff != "" {
		t.Errorf("welcome stats mismatch (-want +got):\n%s", diff)
	}

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestMultipleClients(t *testing.T) {
	server := startServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const numClients = 3
	for i := 0; i < numClients; i++ {
		conn := dial(t, ctx, server)
		readMessage(t, ctx, conn)
	}

	if count := server.ClientCount(); count != numClients {
		t.Errorf("Expected %d clients, got %d", numClients, count)
	}
}

func TestHandlerBroadcastsChanges(t *testing.T) {
	svc, _ := setupTodos(t)
	server := startServer(t, svc)
	svc.AddObserver(NewHandler(server, svc, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn) // welcome

	if _, err := svc.ToggleComplete(ctx, 1); err != nil {
		t.Fatalf("ToggleComplete failed: %v", err)
	}

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeTodoUpdate {
		t.Fatalf("Expected %s, got %s", MessageTypeTodoUpdate, msg.Type)
	}
	var update TodoUpdateData
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("Failed to decode update: %v", err)
	}
	want := TodoUpdateData{ID: 1, Action: "updated", Name: "Buy milk", IsCompleted: true}
	if diff := cmp.Diff(want, update); diff != "" {
		t.Errorf("update mismatch (-want +got):\n%s", diff)
	}

	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("Expected %s, got %s", MessageTypeStats, msg.Type)
	}
	var stats db.Stats
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if diff := cmp.Diff(db.Stats{Total: 2, Completed: 2, Open: 0}, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	if err := svc.Delete(ctx, 2); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	msg = readMessage(t, ctx, conn)
	update = TodoUpdateData{}
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("Failed to decode update: %v", err)
	}
	if update.ID != 2 || update.Action != "deleted" {
		t.Errorf("got %+v, want deleted todo 2", update)
	}
}

func TestHandlerOnFileSync(t *testing.T) {
	svc, _ := setupTodos(t)
	server := startServer(t, svc)
	handler := NewHandler(server, svc, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn)

	handler.OnFileSync(2, false)

	msg := readMessage(t, ctx, conn)
	var update TodoUpdateData
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("Failed to decode update: %v", err)
	}
	want := TodoUpdateData{ID: 2, Action: "updated", Name: "Call mom", IsCompleted: true}
	if diff := cmp.Diff(want, update); diff != "" {
		t.Errorf("update mismatch (-want +got):\n%s", diff)
	}
}

func TestListTodosAPI(t *testing.T) {
	svc, _ := setupTodos(t)
	ts := httptest.NewServer(NewServer(&Config{Todos: svc}).Handler())
	defer ts.Close()

	tests := []struct {
		name    string
		query   string
		status  int
		wantIDs []int64
	}{
		{"all newest first", "", http.StatusOK, []int64{2, 1}},
		{"search", "?q=MILK", http.StatusOK, []int64{1}},
		{"search by date", "?q=09/03/24", http.StatusOK, []int64{2, 1}},
		{"completed", "?completed=true", http.StatusOK, []int64{2}},
		{"open", "?completed=false", http.StatusOK, []int64{1}},
		{"sorted", "?sort=name:asc", http.StatusOK, []int64{1, 2}},
		{"limit", "?limit=1", http.StatusOK, []int64{2}},
		{"no match", "?q=nothing", http.StatusOK, []int64{}},
		{"bad completed", "?completed=maybe", http.StatusBadRequest, nil},
		{"bad sort", "?sort=color", http.StatusBadRequest, nil},
		{"bad limit", "?limit=-1", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/api/todos" + tt.query)
			if err != nil {
				t.Fatalf("GET failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}

			var todos []schema.Todo
			if err := json.NewDecoder(resp.Body).Decode(&todos); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			ids := []int64{}
			for _, todo := range todos {
				ids = append(ids, todo.ID)
			}
			if diff := cmp.Diff(tt.wantIDs, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetTodoAPI(t *testing.T) {
	svc, _ := setupTodos(t)
	ts := httptest.NewServer(NewServer(&Config{Todos: svc}).Handler())
	defer ts.Close()

	tests := []struct {
		path   string
		status int
	}{
		{"/api/todos/1", http.StatusOK},
		{"/api/todos/99", http.StatusNotFound},
		{"/api/todos/abc", http.StatusBadRequest},
		{"/health", http.StatusOK},
		{"/api/stats", http.StatusOK},
		{"/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		resp, err := http.Get(ts.URL + tt.path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.status {
			t.Errorf("GET %s: status = %d, want %d", tt.path, resp.StatusCode, tt.status)
		}
	}
}

func TestAPIWithoutStore(t *testing.T) {
	ts := httptest.NewServer(NewServer(&Config{}).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/todos")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}
