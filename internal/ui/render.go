// Package ui renders todos for the terminal.
package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/emtodo/emtodo/internal/db"
	"github.com/emtodo/emtodo/internal/schema"
)

var (
	accent = lipgloss.AdaptiveColor{Light: "#101F38", Dark: "#8BC34A"}
	muted  = lipgloss.AdaptiveColor{Light: "#8A8F98", Dark: "#6B7385"}
	mark   = lipgloss.Color("#FFC107")
)

// Renderer formats todos with styles bound to one output.
type Renderer struct {
	title     lipgloss.Style
	done      lipgloss.Style
	dim       lipgloss.Style
	check     lipgloss.Style
	highlight lipgloss.Style
	label     lipgloss.Style
}

// New returns a Renderer for w. color is auto (detect from w), always or
// never.
func New(w io.Writer, color string) *Renderer {
	r := lipgloss.NewRenderer(w)
	switch color {
	case "always":
		r.SetColorProfile(termenv.ANSI256)
	case "never":
		r.SetColorProfile(termenv.Ascii)
	}

	return &Renderer{
		title:     r.NewStyle().Bold(true),
		done:      r.NewStyle().Strikethrough(true).Foreground(muted),
		dim:       r.NewStyle().Foreground(muted),
		check:     r.NewStyle().Foreground(accent).Bold(true),
		highlight: r.NewStyle().Background(mark).Foreground(lipgloss.Color("#000000")),
		label:     r.NewStyle().Foreground(accent),
	}
}

// TodoLine renders one list row. Occurrences of query are highlighted.
func (r *Renderer) TodoLine(todo schema.Todo, query string) string {
	box := "[ ]"
	if todo.IsCompleted {
		box = r.check.Render("[x]")
	}

	nameStyle := r.title
	if todo.IsCompleted {
		nameStyle = r.done
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s  %s", box, r.dim.Render(fmt.Sprintf("%d", todo.ID)), r.mark(todo.Name, query, nameStyle))
	if desc := firstLine(todo.Description); desc != "" {
		b.WriteString("  ")
		b.WriteString(r.mark(desc, query, r.dim))
	}
	b.WriteString("  ")
	b.WriteString(r.mark(todo.ShortDate(), query, r.dim))
	return b.String()
}

// TodoList renders rows, or a placeholder when empty.
func (r *Renderer) TodoList(todos []schema.Todo, query string) string {
	if len(todos) == 0 {
		return r.dim.Render("No todos")
	}
	lines := make([]string, len(todos))
	for i, todo := range todos {
		lines[i] = r.TodoLine(todo, query)
	}
	return strings.Join(lines, "\n")
}

// TodoDetail renders every field of a todo.
func (r *Renderer) TodoDetail(todo schema.Todo) string {
	status := "open"
	if todo.IsCompleted {
		status = "completed"
	}

	name := todo.Name
	if todo.IsCompleted {
		name = r.done.Render(name)
	} else {
		name = r.title.Render(name)
	}

	rows := []string{
		name,
		r.label.Render("ID:      ") + fmt.Sprintf("%d", todo.ID),
		r.label.Render("Created: ") + todo.ShortDate(),
		r.label.Render("Status:  ") + status,
	}
	if todo.Description != "" {
		rows = append(rows, "", todo.Description)
	}
	return strings.Join(rows, "\n")
}

// Stats renders a one-line summary.
func (r *Renderer) Stats(s db.Stats) string {
	return fmt.Sprintf("%s %d  %s %d  %s %d",
		r.label.Render("total"), s.Total,
		r.label.Render("open"), s.Open,
		r.label.Render("done"), s.Completed)
}

// mark renders text with base, highlighting every match of query.
func (r *Renderer) mark(text, query string, base lipgloss.Style) string {
	spans := Matches(text, query)
	if len(spans) == 0 {
		return base.Render(text)
	}

	runes := []rune(text)
	var b strings.Builder
	prev := 0
	for _, s := range spans {
		if s[0] > prev {
			b.WriteString(base.Render(string(runes[prev:s[0]])))
		}
		b.WriteString(r.highlight.Render(string(runes[s[0]:s[1]])))
		prev = s[1]
	}
	if prev < len(runes) {
		b.WriteString(base.Render(string(runes[prev:])))
	}
	return b.String()
}

// Matches returns the non-overlapping rune ranges [start, end) of text that
// equal query ignoring case. Blank queries match nothing.
func Matches(text, query string) [][2]int {
	q := []rune(strings.ToLower(strings.TrimSpace(query)))
	if len(q) == 0 {
		return nil
	}

	runes := []rune(text)
	var spans [][2]int
	for i := 0; i+len(q) <= len(runes); {
		if matchAt(runes, q, i) {
			spans = append(spans, [2]int{i, i + len(q)})
			i += len(q)
			continue
		}
		i++
	}
	return spans
}

func matchAt(runes, q []rune, at int) bool {
	for j, c := range q {
		if unicode.ToLower(runes[at+j]) != c {
			return false
		}
	}
	return true
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
