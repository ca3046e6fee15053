package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/logsift/internal/app"
	"github.com/efebarandurmaz/logsift/internal/config"
	"github.com/efebarandurmaz/logsift/internal/export"
	"github.com/efebarandurmaz/logsift/internal/metrics"
	"github.com/efebarandurmaz/logsift/internal/query"
)

func main() {
	var (
		configPath string
		jsonOutput bool
	)

	rootCmd := &cobra.Command{
		Use:           "logsift",
		Short:         "Semantic search over commit history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (defaults plus LOGSIFT_* environment when empty)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	var (
		inputDir string
		dryRun   bool
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest [documents...]",
		Short: "Rebuild the store and the index from commit export documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), configPath, inputDir, args, dryRun, jsonOutput)
		},
	}
	ingestCmd.Flags().StringVar(&inputDir, "dir", "", "Directory of export documents")
	ingestCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Index into process memory instead of the configured vector backend")

	var limit int
	searchCmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Find the commits closest to a free-text query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), configPath, strings.Join(args, " "), limit, jsonOutput)
		},
	}
	searchCmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (default from query.limit)")

	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the vector index from the relational store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(cmd.Context(), configPath, jsonOutput)
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that the vector index matches the relational store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), configPath, jsonOutput)
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show repository, commit and point counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), configPath, jsonOutput)
		},
	}

	authorsCmd := &cobra.Command{
		Use:   "authors <name>",
		Short: "List the commits the commit graph attributes to an author",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthors(cmd.Context(), configPath, strings.Join(args, " "), jsonOutput)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("logsift", app.Version)
		},
	}

	rootCmd.AddCommand(ingestCmd, searchCmd, reindexCmd, verifyCmd, statsCmd, authorsCmd, versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// open loads configuration and wires the components. The caller closes
// the returned App.
func open(ctx context.Context, configPath string, mutate func(*config.Config)) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	return app.New(ctx, cfg, logger)
}

func runIngest(ctx context.Context, configPath, dir string, paths []string, dryRun, jsonOutput bool) error {
	a, err := open(ctx, configPath, func(cfg *config.Config) {
		if dryRun {
			cfg.Vector.Backend = "memory"
		}
	})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if dir != "" {
		found, err := export.Discover(dir, a.Config.Ingest.Extension)
		if err != nil {
			return err
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no export documents given: pass paths or --dir")
	}

	if !jsonOutput {
		fmt.Printf("Rebuilding %s from %d document(s) with %s\n", a.Config.Vector.Collection, len(paths), a.Generator.Name())
	}
	report, err := a.Pipeline.Run(ctx, paths)
	printReport(os.Stdout, report, jsonOutput)
	return err
}

func runReindex(ctx context.Context, configPath string, jsonOutput bool) error {
	a, err := open(ctx, configPath, nil)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	report, err := a.Pipeline.Reindex(ctx)
	printReport(os.Stdout, report, jsonOutput)
	return err
}

func printReport(w io.Writer, report *metrics.RebuildReport, jsonOutput bool) {
	if report == nil {
		return
	}
	if jsonOutput {
		data, _ := report.JSON()
		fmt.Fprintln(w, string(data))
		return
	}
	report.PrintSummary(w)
}

func runSearch(ctx context.Context, configPath, text string, limit int, jsonOutput bool) error {
	a, err := open(ctx, configPath, func(cfg *config.Config) {
		if limit > 0 {
			cfg.Query.Limit = limit
		}
	})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	res, err := a.Query.Search(ctx, text)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(os.Stdout, res)
	}
	printResults(os.Stdout, res)
	return nil
}

func printResults(w io.Writer, res query.Results) {
	if !res.Found() {
		fmt.Fprintln(w, "No similar commit found.")
		return
	}
	for i, m := range res.Matches {
		fmt.Fprintf(w, "%d. [%.4f] %s  %s  %s\n", i+1, m.Score, shortHash(m.CommitHash), m.Author, m.Date)
		fmt.Fprintf(w, "   %s\n", m.Repository)
		for _, line := range strings.Split(strings.TrimSpace(m.Message), "\n") {
			fmt.Fprintf(w, "   | %s\n", line)
		}
		if m.Text != "" && m.Text != strings.TrimSpace(m.Message) {
			fmt.Fprintf(w, "   matched: %q\n", m.Text)
		}
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func runVerify(ctx context.Context, configPath string, jsonOutput bool) error {
	a, err := open(ctx, configPath, nil)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	v, err := a.Pipeline.Verify(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		if err := writeJSON(os.Stdout, v); err != nil {
			return err
		}
	} else {
		fmt.Printf("Collection %s: %d commits, %d points\n", v.Collection, v.Commits, v.Points)
		fmt.Printf("  missing: %d  orphans: %d  id gaps: %d  other granularity: %d\n",
			len(v.Missing), len(v.Orphans), v.Gaps, v.Mixed)
		for _, k := range v.Missing {
			fmt.Printf("  - not indexed: %s\n", k)
		}
		for _, k := range v.Orphans {
			fmt.Printf("  - not stored:  %s\n", k)
		}
	}
	if !v.OK() {
		return fmt.Errorf("index does not match the store; run 'logsift reindex'")
	}
	return nil
}

type stats struct {
	Store        string `json:"store"`
	Collection   string `json:"collection"`
	Repositories int    `json:"repositories"`
	Commits      int    `json:"commits"`
	Points       int    `json:"points"`
}

func runStats(ctx context.Context, configPath string, jsonOutput bool) error {
	a, err := open(ctx, configPath, nil)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	counts, err := a.Store.Counts(ctx)
	if err != nil {
		return err
	}
	points, err := a.Index.Count(ctx, a.Config.Vector.Collection)
	if err != nil {
		return err
	}
	s := stats{
		Store:        a.Store.Path(),
		Collection:   a.Config.Vector.Collection,
		Repositories: counts.Repositories,
		Commits:      counts.Commits,
		Points:       points,
	}
	if jsonOutput {
		return writeJSON(os.Stdout, s)
	}
	fmt.Printf("Store:        %s\n", s.Store)
	fmt.Printf("Repositories: %d\n", s.Repositories)
	fmt.Printf("Commits:      %d\n", s.Commits)
	fmt.Printf("Collection:   %s (%d points)\n", s.Collection, s.Points)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
