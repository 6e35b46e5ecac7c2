// Package dashboard serves live todo updates over WebSocket plus a small
// read-only JSON API.
//
// Connected clients receive todo_update messages as todos are created,
// edited, toggled or deleted, seed_complete after the remote seed, and a
// stats message after every change.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/emtodo/emtodo/internal/db"
	"github.com/emtodo/emtodo/internal/schema"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeTodoUpdate indicates a todo was created, updated, or deleted
	MessageTypeTodoUpdate MessageType = "todo_update"

	// MessageTypeSeedComplete indicates the remote seed wrote todos
	MessageTypeSeedComplete MessageType = "seed_complete"

	// MessageTypeStats carries current completion counts
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// TodoSource is the read side the dashboard needs. *todolist.Service
// implements it.
type TodoSource interface {
	List(ctx context.Context, filter db.TodoFilter) ([]schema.Todo, error)
	Get(ctx context.Context, id int64) (schema.Todo, error)
	Stats(ctx context.Context) (db.Stats, error)
}

// Server manages WebSocket connections and broadcasts dashboard messages
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	todos    TodoSource

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080, 0 = any free port)
	Port int

	// Todos backs the JSON API and the stats sent to new clients
	Todos TodoSource

	// Logger for server activity (default: discard)
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{Port: 8080}
}

// NewServer creates a new dashboard server
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      fmt.Sprintf(":%d", config.Port),
		todos:     config.Todos,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.With("component", "dashboard"),
	}
}

// Handler returns the HTTP routes, for mounting or testing without a
// listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/todos", s.handleListTodos)
	mux.HandleFunc("GET /api/todos/{id}", s.handleGetTodo)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start begins the HTTP server and the broadcast loop
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("dashboard server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Info("dashboard server stopped")
	return nil
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Warn("broadcast channel full, dropping message", "type", msg.Type)
	}
}

// broadcastLoop handles message broadcasting to all clients
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Warn("failed to marshal message", "error", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Write outside the lock so a slow client cannot block others joining.
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Debug("failed to send to client", "error", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Info("client connected", "clients", clientCount)

	// New clients start from the current counts.
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	welcome := Message{Type: MessageTypeStats, Timestamp: time.Now()}
	if s.todos != nil {
		if stats, err := s.todos.Stats(ctx); err == nil {
			welcome.Data, _ = json.Marshal(stats)
		}
	}
	welcomeData, _ := json.Marshal(welcome)
	_ = conn.Write(ctx, websocket.MessageText, welcomeData)
	cancel()

	go s.readLoop(conn)
}

// readLoop keeps the WebSocket connection alive and notices disconnects
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
		// Client messages are ignored.
	}
}

// removeClient safely removes a client connection
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Info("client disconnected", "clients", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// handleListTodos serves GET /api/todos?q=&completed=&sort=&limit=
func (s *Server) handleListTodos(w http.ResponseWriter, r *http.Request) {
	if s.todos == nil {
		writeError(w, http.StatusServiceUnavailable, "no todo store attached")
		return
	}

	query := r.URL.Query()
	filter := db.TodoFilter{Search: query.Get("q")}

	if v := query.Get("completed"); v != "" {
		completed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "completed must be true or false")
			return
		}
		filter.Completed = &completed
	}

	if v := query.Get("sort"); v != "" {
		sort, err := db.ParseSort(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Sort = sort
	}

	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	todos, err := s.todos.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list todos", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list todos")
		return
	}
	writeJSON(w, http.StatusOK, todos)
}

// handleGetTodo serves GET /api/todos/{id}
func (s *Server) handleGetTodo(w http.ResponseWriter, r *http.Request) {
	if s.todos == nil {
		writeError(w, http.StatusServiceUnavailable, "no todo store attached")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid todo id")
		return
	}

	todo, err := s.todos.Get(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to get todo", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get todo")
		return
	}
	writeJSON(w, http.StatusOK, todo)
}

// handleStats serves GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.todos == nil {
		writeError(w, http.StatusServiceUnavailable, "no todo store attached")
		return
	}

	stats, err := s.todos.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleRoot returns basic server information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>emtodo dashboard</title>
</head>
<body>
    <h1>emtodo dashboard</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Todos: <a href="/api/todos">/api/todos</a> (q, completed, sort, limit)</p>
    <p>Health check: <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
