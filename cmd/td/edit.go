package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/emtodo/emtodo/internal/db"
	"github.com/emtodo/emtodo/internal/schema"
)

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "todos",
	Short:   "Show one todo",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.Close()

		id, err := parseID(args[0])
		if err != nil {
			a.fatalf("%v", err)
		}
		todo, err := a.todos.Get(cmd.Context(), id)
		if err != nil {
			a.fatalf("%v", err)
		}
		fmt.Print(a.ui.TodoDetail(todo))
	},
}

var addCmd = &cobra.Command{
	Use:     "add",
	Aliases: []string{"new"},
	GroupID: "todos",
	Short:   "Create a todo",
	Long: `Create a todo. Without --name or --description an interactive form
opens when running in a terminal. A todo left blank is not saved.

Examples:
  td add --name "Buy milk" --description "two litres"
  td add`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.Close()
		ctx := cmd.Context()

		todo := a.todos.Draft()
		if err := fillTodo(ctx, cmd, &todo, "New todo"); err != nil {
			a.fatalf("%v", err)
		}

		saved, err := a.todos.Save(ctx, todo)
		if err != nil {
			a.fatalf("failed to save todo: %v", err)
		}
		if !saved {
			fmt.Println("Nothing to save")
			return
		}
		fmt.Println(a.ui.TodoLine(todo, ""))
	},
}

var editCmd = &cobra.Command{
	Use:     "edit <id>",
	GroupID: "todos",
	Short:   "Edit a todo",
	Long: `Edit a todo's name, description or completion. Without field flags an
interactive form opens when running in a terminal. Unchanged todos are not
written.

Examples:
  td edit 3 --name "Call mom" --completed
  td edit 3`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.Close()
		ctx := cmd.Context()

		id, err := parseID(args[0])
		if err != nil {
			a.fatalf("%v", err)
		}
		todo, err := a.todos.Get(ctx, id)
		if err != nil {
			a.fatalf("%v", err)
		}

		if err := fillTodo(ctx, cmd, &todo, fmt.Sprintf("Edit todo %d", id)); err != nil {
			a.fatalf("%v", err)
		}

		saved, err := a.todos.Save(ctx, todo)
		if err != nil {
			a.fatalf("failed to save todo: %v", err)
		}
		if !saved {
			fmt.Println("No changes")
			return
		}
		fmt.Println(a.ui.TodoLine(todo, ""))
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <id>...",
	Aliases: []string{"toggle"},
	GroupID: "todos",
	Short:   "Toggle todos between open and completed",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.Close()

		for _, arg := range args {
			id, err := parseID(arg)
			if err != nil {
				a.fatalf("%v", err)
			}
			todo, err := a.todos.ToggleComplete(cmd.Context(), id)
			if err != nil {
				a.fatalf("%v", err)
			}
			fmt.Println(a.ui.TodoLine(todo, ""))
		}
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>...",
	Aliases: []string{"delete"},
	GroupID: "todos",
	Short:   "Delete todos",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.Close()

		for _, arg := range args {
			id, err := parseID(arg)
			if err != nil {
				a.fatalf("%v", err)
			}
			if err := a.todos.Delete(cmd.Context(), id); err != nil {
				if errors.Is(err, db.ErrNotFound) {
					a.fatalf("todo %d not found", id)
				}
				a.fatalf("%v", err)
			}
			fmt.Printf("Deleted %d\n", id)
		}
	},
}

// fillTodo applies field flags to todo, or runs the form when no field flag
// was given and a terminal is attached.
func fillTodo(ctx context.Context, cmd *cobra.Command, todo *schema.Todo, title string) error {
	flags := cmd.Flags()
	if flags.Changed("name") || flags.Changed("description") || flags.Changed("completed") {
		if flags.Changed("name") {
			todo.Name, _ = flags.GetString("name")
		}
		if flags.Changed("description") {
			todo.Description, _ = flags.GetString("description")
		}
		if flags.Changed("completed") {
			todo.IsCompleted, _ = flags.GetBool("completed")
		}
		return nil
	}

	if !interactive() {
		return fmt.Errorf("no fields given; use --name, --description or --completed")
	}
	return runTodoForm(ctx, todo, title)
}

func runTodoForm(ctx context.Context, todo *schema.Todo, title string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Description("Name").
				CharLimit(500).
				Value(&todo.Name),
			huh.NewText().
				Title("Description").
				Value(&todo.Description),
			huh.NewConfirm().
				Title("Completed?").
				Value(&todo.IsCompleted),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return fmt.Errorf("cancelled")
		}
		return fmt.Errorf("form failed: %w", err)
	}
	return nil
}

func init() {
	for _, cmd := range []*cobra.Command{addCmd, editCmd} {
		cmd.Flags().String("name", "", "Todo name")
		cmd.Flags().StringP("description", "d", "", "Todo description")
		cmd.Flags().Bool("completed", false, "Mark as completed")
	}

	rootCmd.AddCommand(showCmd, addCmd, editCmd, doneCmd, rmCmd)
}
