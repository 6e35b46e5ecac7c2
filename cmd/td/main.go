// Command td is a terminal todo list backed by a local SQLite store. The
// store is filled once from the remote todo list and is authoritative after
// that.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/emtodo/emtodo/internal/config"
	"github.com/emtodo/emtodo/internal/db"
	"github.com/emtodo/emtodo/internal/logging"
	"github.com/emtodo/emtodo/internal/netclient"
	"github.com/emtodo/emtodo/internal/seed"
	"github.com/emtodo/emtodo/internal/todoapi"
	"github.com/emtodo/emtodo/internal/todolist"
	"github.com/emtodo/emtodo/internal/ui"
)

var (
	configFile string
	dbPath     string
	colorMode  string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "td",
	Short: "Todo list with a one-time remote seed",
	Long: `td keeps a todo list in a local SQLite database.

The first list or search fetches the remote todo list and stores it. After
that the local database is the only source of truth: edits are never
overwritten by the remote list unless 'td seed --force' is run.

Configuration is read from $XDG_CONFIG_HOME/emtodo/config.yaml (or --config)
and EMTODO_* environment variables, e.g. EMTODO_DB_PATH.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/emtodo/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides db.path)")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "", "Color output: auto, always or never")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddGroup(
		&cobra.Group{ID: "todos", Title: "Todos:"},
		&cobra.Group{ID: "data", Title: "Data:"},
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// app bundles what every command needs once the store is open.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *db.DB
	seeder *seed.Seeder
	todos  *todolist.Service
	ui     *ui.Renderer

	logCloser io.Closer
}

// openApp loads configuration and opens the store.
func openApp(ctx context.Context) (*app, error) {
	overrides := map[string]interface{}{}
	if dbPath != "" {
		overrides["db.path"] = dbPath
	}
	if colorMode != "" {
		overrides["ui.color"] = colorMode
	}
	if verbose {
		overrides["log.level"] = "debug"
	}

	cfg, err := config.Load(config.Options{File: configFile, Overrides: overrides})
	if err != nil {
		return nil, err
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	logger, logCloser, err := logging.New(logging.Options{
		Level:      level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	store, err := db.OpenAndInit(ctx, cfg.DB.Path)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}
	logger.Debug("opened store", "path", store.Path())

	client := netclient.New(netclient.Config{
		MaxRetries: cfg.API.MaxRetries,
		FirstDelay: cfg.API.FirstDelay,
		MaxDelay:   cfg.API.MaxDelay,
		Timeout:    cfg.API.Timeout,
		UserAgent:  "emtodo",
		Logger:     logger.With("component", "netclient"),
	})
	api := todoapi.New(client, todoapi.Config{
		BaseURL:  cfg.API.URL,
		PageSize: cfg.API.PageSize,
		Logger:   logger.With("component", "todoapi"),
	})
	seeder := seed.New(store, api, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		seeder:    seeder,
		todos:     todolist.New(store, seeder, todolist.WithLogger(logger.With("component", "todolist"))),
		ui:        ui.New(os.Stdout, cfg.UI.Color),
		logCloser: logCloser,
	}, nil
}

// mustOpenApp opens the app or exits.
func mustOpenApp(cmd *cobra.Command) *app {
	a, err := openApp(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return a
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", "error", err)
	}
	_ = a.logCloser.Close()
}

// fatalf closes the app, prints an error and exits 1. Deferred calls do
// not run after os.Exit, so the store is closed here.
func (a *app) fatalf(format string, args ...interface{}) {
	a.Close()
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// autoSeed runs the one-time seed unless offline. A failed seed is reported
// and the local list is still shown.
func (a *app) autoSeed(ctx context.Context, offline bool) {
	if offline {
		return
	}
	res, err := a.todos.Seed(ctx, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load remote todos: %v\n", err)
		return
	}
	if !res.Skipped {
		fmt.Fprintf(os.Stderr, "Loaded %d todos\n", res.Count)
	}
}

// interactive reports whether both stdin and stdout are terminals.
func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid todo id %q", s)
	}
	return id, nil
}
