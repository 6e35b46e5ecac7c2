package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emtodo/emtodo/internal/daemon"
	"github.com/emtodo/emtodo/internal/dashboard"
	"github.com/emtodo/emtodo/internal/filesync"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "data",
	Short:   "Serve live todo updates over WebSocket",
	Long: `Start a dashboard server that broadcasts todo changes to WebSocket
clients and serves the todo list as JSON.

WebSocket messages (ws://localhost:8080/ws):
- todo_update: todo created, updated, or deleted
- seed_complete: remote todo list loaded
- stats: total, open and completed counts

HTTP endpoints:
- /api/todos?q=&completed=&sort=&limit=
- /api/todos/<id>
- /api/stats
- /health

With --watch, a directory of <id>.json files is imported and watched, and every
imported change is broadcast.

Example usage:
  td dashboard                   # Start on the configured port (default 8080)
  td dashboard --port 9000       # Start on custom port
  td dashboard --watch ./todos   # Also watch a todo directory`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.Close()
		ctx := cmd.Context()

		port := a.cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Todos:  a.todos,
			Logger: a.logger,
		})
		handler := dashboard.NewHandler(server, a.todos, a.logger)
		a.todos.AddObserver(handler)

		if err := server.Start(); err != nil {
			a.fatalf("failed to start dashboard: %v", err)
		}

		fmt.Printf("Dashboard server started on http://%s\n", server.GetAddr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.GetAddr())

		offline, _ := cmd.Flags().GetBool("offline")
		a.autoSeed(ctx, offline)

		var watchErr chan error
		if dir, _ := cmd.Flags().GetString("watch"); dir != "" {
			d, err := daemon.NewWithConfig(filesync.New(a.store, a.logger), dir, &daemon.Config{
				DebounceInterval: a.cfg.Watch.Debounce,
				Logger:           a.logger,
				OnSync:           handler.OnFileSync,
			})
			if err != nil {
				_ = server.Stop()
				a.fatalf("%v", err)
			}
			fmt.Printf("Watching %s\n", dir)
			watchErr = make(chan error, 1)
			go func() { watchErr <- d.Run(ctx) }()
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		select {
		case <-ctx.Done():
			// The daemon flushes pending changes before returning.
			if watchErr != nil {
				<-watchErr
			}
		case err := <-watchErr:
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: watch failed: %v\n", err)
			}
		}

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			a.fatalf("during shutdown: %v", err)
		}
		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8080, "Port to listen on (default from dashboard.port)")
	dashboardCmd.Flags().String("watch", "", "Import and watch a directory of <id>.json files")
	dashboardCmd.Flags().Bool("offline", false, "Do not load the remote list")

	rootCmd.AddCommand(dashboardCmd)
}
