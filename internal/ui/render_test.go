package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/emtodo/emtodo/internal/db"
	"github.com/emtodo/emtodo/internal/schema"
)

func plain() *Renderer {
	return New(&bytes.Buffer{}, "never")
}

func TestMatches(t *testing.T) {
	tests := []struct {
		text  string
		query string
		want  [][2]int
	}{
		{text: "Buy milk", query: "MILK", want: [][2]int{{4, 8}}},
		{text: "aaaa", query: "aa", want: [][2]int{{0, 2}, {2, 4}}},
		{text: "Купить молоко", query: "МОЛ", want: [][2]int{{7, 10}}},
		{text: "09/03/24", query: "03", want: [][2]int{{3, 5}}},
		{text: "anything", query: "  ", want: nil},
		{text: "short", query: "much longer", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.text+"/"+tt.query, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Matches(tt.text, tt.query)); diff != "" {
				t.Errorf("Matches() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTodoLine_Plain(t *testing.T) {
	todo := schema.Todo{
		ID:          12,
		Name:        "Walk",
		Description: "take the dog out\nand back",
		CreatedAt:   time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
	}

	got := plain().TodoLine(todo, "dog")
	want := "[ ] 12  Walk  take the dog out  09/03/24"
	if got != want {
		t.Errorf("TodoLine() = %q, want %q", got, want)
	}

	todo.IsCompleted = true
	if got := plain().TodoLine(todo, ""); !strings.HasPrefix(got, "[x] ") {
		t.Errorf("completed TodoLine() = %q, want [x] prefix", got)
	}
}

func TestTodoList_Empty(t *testing.T) {
	if got := plain().TodoList(nil, ""); got != "No todos" {
		t.Errorf("TodoList(nil) = %q", got)
	}
}

func TestTodoDetail_Plain(t *testing.T) {
	todo := schema.Todo{
		ID:          1,
		Name:        "Groceries",
		Description: "milk",
		CreatedAt:   time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		IsCompleted: true,
	}

	got := plain().TodoDetail(todo)
	for _, want := range []string{"Groceries", "ID:      1", "Created: 01/12/24", "Status:  completed", "milk"} {
		if !strings.Contains(got, want) {
			t.Errorf("TodoDetail() missing %q:\n%s", want, got)
		}
	}
}

func TestStats_Plain(t *testing.T) {
	got := plain().Stats(db.Stats{Total: 3, Completed: 1, Open: 2})
	if got != "total 3  open 2  done 1" {
		t.Errorf("Stats() = %q", got)
	}
}

func TestRenderer_AlwaysColorEmitsEscapes(t *testing.T) {
	r := New(&bytes.Buffer{}, "always")
	got := r.TodoLine(schema.Todo{ID: 1, Name: "x", CreatedAt: time.Now(), IsCompleted: true}, "")
	if !strings.Contains(got, "\x1b[") {
		t.Errorf("expected ANSI escapes with color=always, got %q", got)
	}
}
