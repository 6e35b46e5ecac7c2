package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/emtodo/emtodo/internal/loadtest"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "data",
	Short:   "Measure store query latency on a scratch database",
	Long: `Create a scratch database with generated todos and measure query latency
under concurrent readers. Your own database is not touched.

Each query kind is measured separately:
  list    - all todos, newest first
  open    - open todos only
  search  - text search across name, description and date

Examples:
  td bench
  td bench --todos 5000 --readers 50 --queries 20
  td bench --json`,
	Args: cobra.NoArgs,
	Run:  runBench,
}

func init() {
	benchCmd.Flags().Int("todos", 1000, "Number of todos in the scratch database")
	benchCmd.Flags().Int("readers", 20, "Number of concurrent readers")
	benchCmd.Flags().Int("queries", 10, "Number of queries per reader")
	benchCmd.Flags().Float64("completed", 0.3, "Share of completed todos (0.0-1.0)")
	benchCmd.Flags().Bool("json", false, "Output results as JSON")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) {
	todos, _ := cmd.Flags().GetInt("todos")
	readers, _ := cmd.Flags().GetInt("readers")
	queries, _ := cmd.Flags().GetInt("queries")
	completed, _ := cmd.Flags().GetFloat64("completed")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if todos <= 0 || readers <= 0 || queries <= 0 {
		fmt.Fprintf(os.Stderr, "Error: --todos, --readers and --queries must be positive\n")
		os.Exit(1)
	}
	if completed < 0 || completed > 1 {
		fmt.Fprintf(os.Stderr, "Error: --completed must be between 0.0 and 1.0\n")
		os.Exit(1)
	}

	dir, err := os.MkdirTemp("", "emtodo-bench-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	ctx := cmd.Context()
	td, err := loadtest.CreateTestDatabase(ctx, filepath.Join(dir, "bench.db"), todos, completed)
	if err != nil {
		os.RemoveAll(dir)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer td.Close()

	results := make(map[loadtest.QueryKind]*loadtest.LatencyStats)
	for _, kind := range loadtest.QueryKinds {
		stats, err := td.RunConcurrentQueries(ctx, kind, readers, queries)
		if err != nil {
			td.Close()
			os.RemoveAll(dir)
			fmt.Fprintf(os.Stderr, "Error: %s benchmark failed: %v\n", kind, err)
			os.Exit(1)
		}
		stats.Durations = nil
		results[kind] = stats
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(results)
		return
	}

	fmt.Printf("%d todos, %d readers x %d queries\n", todos, readers, queries)
	for _, kind := range loadtest.QueryKinds {
		fmt.Printf("\n%s:\n", kind)
		results[kind].Fprint(os.Stdout)
	}
}
