package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/emtodo/emtodo/internal/daemon"
	"github.com/emtodo/emtodo/internal/db"
	"github.com/emtodo/emtodo/internal/filesync"
	"github.com/emtodo/emtodo/internal/schema"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "data",
	Short:   "Export todos to a file or a directory",
	Long: `Export every todo.

With a file argument the todos are written as one document; the format comes
from --format or the file extension (.json, .jsonl, .yaml, .yml, .toml). Without an
argument the document goes to stdout. With --dir each todo is written to
<dir>/<id>.json, the layout 'td import --watch' reads.

Examples:
  td export todos.yaml
  td export --format toml > todos.toml
  td export --dir ./todos`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.Close()
		ctx := cmd.Context()

		if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
			n, err := filesync.New(a.store, a.logger).Export(ctx, dir)
			if err != nil {
				a.fatalf("export failed: %v", err)
			}
			fmt.Fprintf(os.Stderr, "Exported %d todos to %s\n", n, dir)
			return
		}

		todos, err := a.store.FetchTodosContext(ctx, db.TodoFilter{
			Sort: []db.SortKey{{Field: db.SortByID, Ascending: true}},
		})
		if err != nil {
			a.fatalf("%v", err)
		}

		format, err := documentFormat(cmd, args)
		if err != nil {
			a.fatalf("%v", err)
		}

		if len(args) == 0 || args[0] == "-" {
			if err := schema.Encode(os.Stdout, format, todos); err != nil {
				a.fatalf("export failed: %v", err)
			}
			return
		}

		f, err := os.Create(args[0])
		if err != nil {
			a.fatalf("%v", err)
		}
		if err := schema.Encode(f, format, todos); err != nil {
			f.Close()
			a.fatalf("export failed: %v", err)
		}
		if err := f.Close(); err != nil {
			a.fatalf("%v", err)
		}
		fmt.Fprintf(os.Stderr, "Exported %d todos to %s\n", len(todos), args[0])
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file|dir>",
	GroupID: "data",
	Short:   "Import todos from a file or a directory",
	Long: `Import todos, updating those whose id already exists.

A file holds one document (json, jsonl, yaml or toml). A directory holds one
<id>.json file per todo. With --watch the directory keeps being watched:
created or changed files are imported and removed files delete their todo,
until interrupted.

Examples:
  td import todos.yaml
  td import ./todos --watch`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.Close()
		ctx := cmd.Context()
		path := args[0]

		watch, _ := cmd.Flags().GetBool("watch")
		info, err := os.Stat(path)
		if err != nil && !(watch && os.IsNotExist(err)) {
			a.fatalf("%v", err)
		}

		if watch {
			if info != nil && !info.IsDir() {
				a.fatalf("--watch needs a directory")
			}
			d, err := daemon.NewWithConfig(filesync.New(a.store, a.logger), path, &daemon.Config{
				DebounceInterval: a.cfg.Watch.Debounce,
				Logger:           a.logger,
				OnSync: func(id int64, deleted bool) {
					if deleted {
						fmt.Printf("Deleted %d\n", id)
					} else {
						fmt.Printf("Imported %d\n", id)
					}
				},
			})
			if err != nil {
				a.fatalf("%v", err)
			}

			fmt.Printf("Watching %s (Ctrl+C to stop)\n", path)
			if err := d.Run(ctx); err != nil {
				a.fatalf("%v", err)
			}
			return
		}

		if info.IsDir() {
			stats, err := filesync.New(a.store, a.logger).FullSync(ctx, path)
			if err != nil {
				a.fatalf("import failed: %v", err)
			}
			fmt.Printf("Imported %d todos", stats.Synced)
			if stats.Failed > 0 {
				fmt.Printf(" (%d files skipped, see log)", stats.Failed)
			}
			fmt.Println()
			return
		}

		format, err := documentFormat(cmd, args)
		if err != nil {
			a.fatalf("%v", err)
		}
		f, err := os.Open(path)
		if err != nil {
			a.fatalf("%v", err)
		}
		todos, err := schema.Decode(f, format)
		f.Close()
		if err != nil {
			a.fatalf("failed to read %s: %v", filepath.Base(path), err)
		}

		if err := a.store.SaveTodosContext(ctx, todos); err != nil {
			a.fatalf("import failed: %v", err)
		}
		fmt.Printf("Imported %d todos\n", len(todos))
	},
}

// documentFormat takes --format when set, else the extension of the file
// argument, else JSON.
func documentFormat(cmd *cobra.Command, args []string) (schema.Format, error) {
	if format, _ := cmd.Flags().GetString("format"); format != "" {
		return schema.ParseFormat(format)
	}
	if len(args) > 0 && args[0] != "-" && filepath.Ext(args[0]) != "" {
		return schema.FormatFromPath(args[0])
	}
	return schema.FormatJSON, nil
}

func init() {
	exportCmd.Flags().String("format", "", "json, jsonl, yaml or toml (default from file extension, else json)")
	exportCmd.Flags().String("dir", "", "Write one <id>.json file per todo into this directory")
	exportCmd.MarkFlagsMutuallyExclusive("format", "dir")

	importCmd.Flags().String("format", "", "json, jsonl, yaml or toml (default from file extension, else json)")
	importCmd.Flags().Bool("watch", false, "Keep importing changes to a directory until interrupted")

	rootCmd.AddCommand(exportCmd, importCmd)
}
