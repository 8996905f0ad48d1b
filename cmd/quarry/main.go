package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/index"
)

var (
	flagRoot    string
	flagVerbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "quarry",
	Short:         "Persistent, incrementally maintained source-code index",
	Long:          "Quarry maintains a SQLite index of files, symbols, call edges, imports and cross-language FFI references for a project tree, refreshed incrementally from filesystem mtimes.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", ".", "project root directory")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(xrefCmd)
}

// openIndex opens the index for the configured root.
func openIndex() (*index.FileIndex, error) {
	return index.Open(flagRoot)
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Fully rebuild the index: file table, call graph and cross references",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ix, err := openIndex()
	if err != nil {
		return err
	}
	defer ix.Close()

	ctx := context.Background()
	files, err := ix.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh files: %w", err)
	}
	counts, err := ix.RefreshCallGraph(ctx)
	if err != nil {
		return fmt.Errorf("refresh call graph: %w", err)
	}
	refs, err := ix.RefreshCrossRefs(ctx)
	if err != nil {
		return fmt.Errorf("refresh cross refs: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Indexed %d files: %d symbols, %d calls, %d imports, %d cross refs in %s\n",
		files, counts.Symbols, counts.Calls, counts.Imports, refs,
		time.Since(start).Round(time.Millisecond))
	return nil
}

var flagForce bool

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Incrementally re-index changed files",
	Args:  cobra.NoArgs,
	RunE:  runRefresh,
}

func init() {
	refreshCmd.Flags().BoolVar(&flagForce, "force", false, "refresh even when the staleness heuristic says the index is fresh")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ix, err := openIndex()
	if err != nil {
		return err
	}
	defer ix.Close()

	if !flagForce {
		stale, err := ix.NeedsRefresh()
		if err != nil {
			return err
		}
		if !stale {
			fmt.Fprintln(os.Stderr, "Index is fresh")
			return nil
		}
	}

	counts, err := ix.IncrementalCallGraphRefresh(context.Background())
	if err != nil {
		return fmt.Errorf("incremental refresh: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Refreshed: %d symbols, %d calls, %d imports\n",
		counts.Symbols, counts.Calls, counts.Imports)
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show call-graph statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := openIndex()
		if err != nil {
			return err
		}
		defer ix.Close()

		st, err := ix.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("files:      %d\n", st.Files)
		fmt.Printf("symbols:    %d\n", st.Symbols)
		fmt.Printf("calls:      %d\n", st.Calls)
		fmt.Printf("imports:    %d\n", st.Imports)
		fmt.Printf("cross refs: %d\n", st.CrossRefs)
		for kind, count := range st.ByKind {
			fmt.Printf("  %-10s %d\n", kind, count)
		}
		if len(st.TopCallees) > 0 {
			fmt.Println("top callees:")
			for _, cc := range st.TopCallees {
				fmt.Printf("  %-30s %d\n", cc.Name, cc.Count)
			}
		}
		return nil
	},
}

var flagXrefRefresh bool

var xrefCmd = &cobra.Command{
	Use:   "xref [module]",
	Short: "List cross-language FFI references, optionally filtered by target module",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runXref,
}

func init() {
	xrefCmd.Flags().BoolVar(&flagXrefRefresh, "refresh", false, "re-run detection before listing")
}

func runXref(cmd *cobra.Command, args []string) error {
	ix, err := openIndex()
	if err != nil {
		return err
	}
	defer ix.Close()

	if flagXrefRefresh {
		if _, err := ix.RefreshCrossRefs(context.Background()); err != nil {
			return fmt.Errorf("refresh cross refs: %w", err)
		}
	}
	module := ""
	if len(args) > 0 {
		module = args[0]
	}
	refs, err := ix.CrossRefs(module)
	if err != nil {
		return err
	}
	for _, r := range refs {
		fmt.Printf("%s:%d\t%s\t%s -> %s (%s)\n",
			r.SourceFile, r.Line, r.RefType, r.SourceLang, r.TargetModule, r.TargetLang)
	}
	return nil
}
