package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jward/girder"
	"github.com/spf13/cobra"
)

var (
	flagSnapshot string
	flagFormat   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "girder",
	Short:         "Generate safe Rust/C++ call bridges from C++ headers",
	Long:          "Girder analyzes C++ headers and generates a coordinated pair of artifacts: a Rust wrapper module and a C++ shim translation unit that link against each other.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
	// No Run — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSnapshot, "snapshot", "", "SQLite snapshot path (default: .girder/run.db next to the request file)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: json|text")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(inspectCmd)
}

var (
	flagRequest string
	flagRustOut string
	flagCxxOut  string
	flagNoSnap  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [header...]",
	Short: "Generate the bridge artifact pair",
	Long:  "Parses the given C++ headers, runs the analysis pipeline for the request file, and writes the Rust wrapper and C++ shim.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&flagRequest, "request", "bridge.yaml", "generation request file")
	generateCmd.Flags().StringVar(&flagRustOut, "rust-out", "bridge.rs", "output path for the Rust wrapper")
	generateCmd.Flags().StringVar(&flagCxxOut, "cxx-out", "bridge_shim.cc", "output path for the C++ shim")
	generateCmd.Flags().BoolVar(&flagNoSnap, "no-snapshot", false, "skip writing the run snapshot")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	start := time.Now()

	req, err := girder.LoadRequest(flagRequest)
	if err != nil {
		return err
	}

	var opts []girder.Option
	if !flagNoSnap {
		snapPath := flagSnapshot
		if snapPath == "" {
			snapPath = filepath.Join(filepath.Dir(flagRequest), ".girder", "run.db")
		}
		if err := os.MkdirAll(filepath.Dir(snapPath), 0o755); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
		opts = append(opts, girder.WithSnapshot(snapPath))
	}

	eng := girder.New(opts...)
	res, err := eng.GenerateFromHeaders(context.Background(), args, req)
	if err != nil {
		return err
	}

	if err := os.WriteFile(flagRustOut, res.Artifacts.RustSource, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", flagRustOut, err)
	}
	if err := os.WriteFile(flagCxxOut, res.Artifacts.CxxSource, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", flagCxxOut, err)
	}

	for _, d := range res.Diagnostics {
		fmt.Fprintf(os.Stderr, "%s\n", d)
	}
	fmt.Fprintf(os.Stderr, "Generated %s and %s in %s (%d entities, %d reachable, %d symbols)\n",
		flagRustOut, flagCxxOut,
		time.Since(start).Round(time.Millisecond),
		res.Stats.Entities, res.Stats.Reachable, res.Stats.Symbols,
	)
	return nil
}
