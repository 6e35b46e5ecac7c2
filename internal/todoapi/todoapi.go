// Package todoapi fetches the remote todo list used to seed a fresh store.
package todoapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/emtodo/emtodo/internal/netclient"
	"github.com/emtodo/emtodo/internal/schema"
)

// DefaultBaseURL is the public endpoint serving the seed list.
const DefaultBaseURL = "https://dummyjson.com/todos"

// Item is one todo as the remote API returns it.
type Item struct {
	ID        int64  `json:"id"`
	Todo      string `json:"todo"`
	Completed bool   `json:"completed"`
	UserID    int64  `json:"userId"`
}

// ToTodo maps a remote item to a local todo created at now.
// The name is the remote id; the remote text becomes the description.
func (it Item) ToTodo(now time.Time) schema.Todo {
	return schema.Todo{
		ID:          it.ID,
		Name:        strconv.FormatInt(it.ID, 10),
		Description: it.Todo,
		CreatedAt:   schema.TruncateMillis(now),
		IsCompleted: it.Completed,
	}
}

// ListResponse is one page of the remote list.
type ListResponse struct {
	Todos []Item `json:"todos"`
	Total int64  `json:"total"`
	Skip  int64  `json:"skip"`
	Limit int64  `json:"limit"`
}

// Doer sends a request and decodes the JSON reply. *netclient.Client
// implements it.
type Doer interface {
	Do(ctx context.Context, ep netclient.Endpoint, body, out interface{}) error
}

// Config holds configuration for the service.
type Config struct {
	// BaseURL of the list endpoint (empty = DefaultBaseURL)
	BaseURL string

	// PageSize requested per call (0 = one request, server default size)
	PageSize int

	// Now stamps the creation time of fetched todos (nil = time.Now)
	Now func() time.Time

	// Logger (nil = discard)
	Logger *slog.Logger
}

// Service reads the remote todo list.
type Service struct {
	client   Doer
	baseURL  string
	pageSize int
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a service on top of client.
func New(client Doer, config Config) *Service {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		client:   client,
		baseURL:  config.BaseURL,
		pageSize: config.PageSize,
		now:      config.Now,
		logger:   config.Logger,
	}
}

// FetchPage requests one page. limit <= 0 leaves paging to the server.
func (s *Service) FetchPage(ctx context.Context, limit, skip int) (*ListResponse, error) {
	ep := netclient.Endpoint{Method: http.MethodGet, URL: s.baseURL}
	if limit > 0 {
		ep.Query = url.Values{
			"limit": []string{strconv.Itoa(limit)},
			"skip":  []string{strconv.Itoa(skip)},
		}
	}

	var page ListResponse
	if err := s.client.Do(ctx, ep, nil, &page); err != nil {
		return nil, fmt.Errorf("failed to fetch todo list: %w", err)
	}
	return &page, nil
}

// FetchTodoList downloads the whole remote list and maps it to local todos.
//
// With a page size set, pages are requested until the reported total is
// reached or the server returns an empty page. Items without a positive id
// are dropped.
func (s *Service) FetchTodoList(ctx context.Context) ([]schema.Todo, error) {
	now := s.now()
	todos := []schema.Todo{}

	skip := 0
	for {
		page, err := s.FetchPage(ctx, s.pageSize, skip)
		if err != nil {
			return nil, err
		}

		for _, item := range page.Todos {
			if item.ID <= 0 {
				s.logger.Warn("skipping remote todo without id", "todo", item.Todo)
				continue
			}
			todos = append(todos, item.ToTodo(now))
		}

		skip += len(page.Todos)
		s.logger.Debug("fetched todo page", "count", len(page.Todos), "skip", skip, "total", page.Total)

		if s.pageSize <= 0 || len(page.Todos) == 0 || int64(skip) >= page.Total {
			break
		}
	}

	return todos, nil
}
