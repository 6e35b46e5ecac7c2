package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/emtodo/emtodo/internal/db"
	"github.com/emtodo/emtodo/internal/schema"
	"github.com/emtodo/emtodo/internal/timeparse"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "todos",
	Short:   "List todos",
	Long: `List todos, newest first.

The first run loads the remote todo list into the local database. Use
--offline to skip that.

Dates for --since and --until accept natural language ("yesterday",
"2 weeks ago", "вчера"), 2006-01-02, dd/mm/yy or RFC3339.

Examples:
  td list --open
  td list --since "last monday" --sort name:asc
  td list --format yaml > todos.yaml`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.Close()
		ctx := cmd.Context()

		filter, err := listFilter(cmd, time.Now())
		if err != nil {
			a.fatalf("%v", err)
		}

		offline, _ := cmd.Flags().GetBool("offline")
		a.autoSeed(ctx, offline)

		todos, err := a.todos.List(ctx, filter)
		if err != nil {
			a.fatalf("failed to list todos: %v", err)
		}

		format, _ := cmd.Flags().GetString("format")
		if format != "" {
			if err := writeTodos(format, todos); err != nil {
				a.fatalf("%v", err)
			}
			return
		}
		fmt.Print(a.ui.TodoList(todos, ""))
	},
}

var searchCmd = &cobra.Command{
	Use:     "search <text>...",
	Aliases: []string{"find"},
	GroupID: "todos",
	Short:   "Search todos by name, description or date",
	Long: `Search todos whose name, description or dd/mm/yy creation date
contains the text, ignoring case. Matches are highlighted.

Examples:
  td search milk
  td search 09/03/24`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.Close()
		ctx := cmd.Context()

		sort, err := sortFlag(cmd)
		if err != nil {
			a.fatalf("%v", err)
		}

		offline, _ := cmd.Flags().GetBool("offline")
		a.autoSeed(ctx, offline)

		query := strings.Join(args, " ")
		todos, err := a.todos.Search(ctx, query, sort)
		if err != nil {
			a.fatalf("search failed: %v", err)
		}
		fmt.Print(a.ui.TodoList(todos, strings.TrimSpace(query)))
	},
}

// listFilter builds a TodoFilter from list flags.
func listFilter(cmd *cobra.Command, now time.Time) (db.TodoFilter, error) {
	var filter db.TodoFilter

	if completed, _ := cmd.Flags().GetBool("completed"); completed {
		v := true
		filter.Completed = &v
	}
	if open, _ := cmd.Flags().GetBool("open"); open {
		v := false
		filter.Completed = &v
	}

	parser := timeparse.New()
	if since, _ := cmd.Flags().GetString("since"); since != "" {
		t, err := parser.ParseSince(since, now)
		if err != nil {
			return filter, err
		}
		filter.CreatedFrom = &t
	}
	if until, _ := cmd.Flags().GetString("until"); until != "" {
		t, err := parser.ParseUntil(until, now)
		if err != nil {
			return filter, err
		}
		filter.CreatedTo = &t
	}

	sort, err := sortFlag(cmd)
	if err != nil {
		return filter, err
	}
	filter.Sort = sort

	filter.Limit, _ = cmd.Flags().GetInt("limit")
	filter.Offset, _ = cmd.Flags().GetInt("offset")
	if filter.Limit < 0 || filter.Offset < 0 {
		return filter, fmt.Errorf("--limit and --offset must not be negative")
	}
	return filter, nil
}

func sortFlag(cmd *cobra.Command) ([]db.SortKey, error) {
	spec, _ := cmd.Flags().GetString("sort")
	return db.ParseSort(spec)
}

// writeTodos encodes todos to stdout.
func writeTodos(format string, todos []schema.Todo) error {
	f, err := schema.ParseFormat(format)
	if err != nil {
		return err
	}
	return schema.Encode(os.Stdout, f, todos)
}

// addListFlags registers the filter flags read by listFilter.
func addListFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("completed", false, "Only completed todos")
	cmd.Flags().Bool("open", false, "Only open todos")
	cmd.MarkFlagsMutuallyExclusive("completed", "open")
	cmd.Flags().String("since", "", "Created at or after this date")
	cmd.Flags().String("until", "", "Created at or before this date")
	cmd.Flags().String("sort", "", "Sort keys, e.g. created:desc,name:asc (fields: id, name, description, created, completed)")
	cmd.Flags().IntP("limit", "n", 0, "Maximum number of todos (0 = all)")
	cmd.Flags().Int("offset", 0, "Skip the first N todos")
}

func init() {
	addListFlags(listCmd)
	listCmd.Flags().String("format", "", "Print as json, jsonl, yaml or toml instead of a table")
	listCmd.Flags().Bool("offline", false, "Do not load the remote list")

	searchCmd.Flags().String("sort", "", "Sort keys, e.g. name:asc")
	searchCmd.Flags().Bool("offline", false, "Do not load the remote list")

	rootCmd.AddCommand(listCmd, searchCmd)
}
