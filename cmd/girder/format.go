package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jward/girder/internal/snapshot"
)

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}

// output renders v to stdout in the selected format.
func output[T any](v T, text func(io.Writer, T)) error {
	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(os.Stdout, v)
	return nil
}

func formatEntitiesText(w io.Writer, entities []snapshot.Entity) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tSCOPE\tREACHABLE")
	for _, e := range entities {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", e.Name, e.Kind, e.Scope, e.Reachable)
	}
	tw.Flush()
}

func formatEntityDetailText(w io.Writer, d entityDetail) {
	fmt.Fprintf(w, "Entity: %s\n", d.Name)
	if d.Fact != nil {
		fmt.Fprintln(w, "Facts:")
		printFact(w, "relocatable", d.Fact.Relocatable)
		printFact(w, "pod", d.Fact.POD)
		printFact(w, "abstract", d.Fact.Abstract)
		printFact(w, "default-constructible", d.Fact.DefaultConstructible)
		printFact(w, "copy-constructible", d.Fact.CopyConstructible)
		printFact(w, "move-constructible", d.Fact.MoveConstructible)
	}
	if len(d.Symbols) > 0 {
		fmt.Fprintln(w, "Symbols:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  SHIM\tHOST\tKIND\tOVERLOAD")
		for _, s := range d.Symbols {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\n", s.Shim, s.Host, s.Kind, s.Overload)
		}
		tw.Flush()
	}
}

func printFact(w io.Writer, name string, v *bool) {
	if v == nil {
		return
	}
	fmt.Fprintf(w, "  %s: %v\n", name, *v)
}

func formatTrampolinesText(w io.Writer, tramps []snapshot.Trampoline) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tMETHOD\tSLOT\tSYMBOL\tSUPER")
	for _, t := range tramps {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", t.Class, t.Method, t.Slot, t.Symbol, t.Super)
	}
	tw.Flush()
}

func formatDiagnosticsText(w io.Writer, diags []snapshot.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintf(w, "%s[%s] %s: %s\n", d.Severity, d.Code, d.Entity, d.Message)
	}
}
