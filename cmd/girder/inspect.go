package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jward/girder/internal/snapshot"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Query the snapshot of the last generation run",
	Long:  "Reads the SQLite snapshot written by generate and reports entities, classification facts, assigned symbols, trampolines, and diagnostics.",
	// No Run — prints help by default.
}

var flagKind string

func init() {
	inspectCmd.AddCommand(inspectEntitiesCmd)
	inspectCmd.AddCommand(inspectEntityCmd)
	inspectCmd.AddCommand(inspectTrampolinesCmd)
	inspectCmd.AddCommand(inspectDiagnosticsCmd)

	inspectEntitiesCmd.Flags().StringVar(&flagKind, "kind", "", "filter by kind: namespace|class|function|enum|typedef|field")
}

// openSnapshot opens the snapshot store, resolving the default path the
// same way generate does.
func openSnapshot() (*snapshot.Store, error) {
	path := flagSnapshot
	if path == "" {
		path = filepath.Join(".girder", "run.db")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no snapshot at %s (run generate first, or pass --snapshot)", path)
	}
	return snapshot.NewStore(path)
}

var inspectEntitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List ingested entities and their reachability",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSnapshot()
		if err != nil {
			return err
		}
		defer store.Close()

		entities, err := store.Entities(flagKind)
		if err != nil {
			return err
		}
		return output(entities, formatEntitiesText)
	},
}

var inspectEntityCmd = &cobra.Command{
	Use:   "entity <fully-qualified-name>",
	Short: "Show one entity's facts and assigned symbols",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSnapshot()
		if err != nil {
			return err
		}
		defer store.Close()

		fact, err := store.FactFor(args[0])
		if err != nil {
			return err
		}
		syms, err := store.SymbolsFor(args[0])
		if err != nil {
			return err
		}
		detail := entityDetail{Name: args[0], Fact: fact, Symbols: syms}
		return output(detail, formatEntityDetailText)
	},
}

var inspectTrampolinesCmd = &cobra.Command{
	Use:   "trampolines",
	Short: "List planned subclass trampolines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSnapshot()
		if err != nil {
			return err
		}
		defer store.Close()

		tramps, err := store.Trampolines()
		if err != nil {
			return err
		}
		return output(tramps, formatTrampolinesText)
	},
}

var inspectDiagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "List diagnostics from the last run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSnapshot()
		if err != nil {
			return err
		}
		defer store.Close()

		diags, err := store.Diagnostics()
		if err != nil {
			return err
		}
		return output(diags, formatDiagnosticsText)
	},
}

// entityDetail bundles one entity's snapshot rows for output.
type entityDetail struct {
	Name    string            `json:"name"`
	Fact    *snapshot.Fact    `json:"fact,omitempty"`
	Symbols []snapshot.Symbol `json:"symbols,omitempty"`
}
