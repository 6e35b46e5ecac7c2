package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:     "seed",
	GroupID: "data",
	Short:   "Load the remote todo list once",
	Long: `Load the remote todo list into the local database.

This normally happens on the first list or search. Once it has succeeded it is
never repeated, so local edits stay authoritative. --force loads the remote
list again: remote todos overwrite local todos with the same id, todos created
locally are kept.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.Close()

		force, _ := cmd.Flags().GetBool("force")
		res, err := a.todos.Seed(cmd.Context(), force)
		if err != nil {
			a.fatalf("seed failed: %v", err)
		}
		if res.Skipped {
			fmt.Println("Already seeded (use --force to load again)")
			return
		}
		fmt.Printf("Loaded %d todos in %v\n", res.Count, res.Duration.Round(time.Millisecond))
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "data",
	Short:   "Show database status",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.Close()
		ctx := cmd.Context()

		stats, err := a.todos.Stats(ctx)
		if err != nil {
			a.fatalf("%v", err)
		}
		seeded, err := a.seeder.IsSeeded(ctx)
		if err != nil {
			a.fatalf("%v", err)
		}

		sizeStr := "unknown"
		if info, err := os.Stat(a.store.Path()); err == nil {
			sizeStr = formatSize(info.Size())
		}

		fmt.Printf("Database: %s\n", a.store.Path())
		fmt.Printf("Size: %s\n", sizeStr)
		fmt.Printf("Seeded: %t\n", seeded)
		fmt.Printf("Todos: %s\n", a.ui.Stats(stats))
	},
}

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: "data",
	Short:   "Delete all todos and the seed flag",
	Long: `Delete every todo and clear the seed flag. The next list or search
loads the remote todo list again.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.Close()

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if !interactive() {
				a.fatalf("refusing to reset without --yes")
			}
			err := huh.NewConfirm().
				Title("Delete all todos?").
				Affirmative("Delete").
				Negative("Cancel").
				Value(&yes).
				Run()
			if err != nil && !errors.Is(err, huh.ErrUserAborted) {
				a.fatalf("%v", err)
			}
		}
		if !yes {
			fmt.Println("Cancelled")
			return
		}

		if err := a.store.ResetContext(cmd.Context()); err != nil {
			a.fatalf("%v", err)
		}
		fmt.Println("Database reset")
	},
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

func init() {
	seedCmd.Flags().Bool("force", false, "Load the remote list even if already seeded")
	resetCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	rootCmd.AddCommand(seedCmd, statusCmd, resetCmd)
}
