package girder

import "github.com/jward/girder/internal/diag"

// Artifacts holds the two generated sources. They are produced together
// from one frozen plan and are only meaningful as a pair.
type Artifacts struct {
	RustSource []byte // host wrapper module
	CxxSource  []byte // native shim translation unit
}

// Result is everything a generation run produced.
type Result struct {
	Artifacts   Artifacts
	Diagnostics []diag.Diagnostic

	// Stats summarizes the run for logging and the CLI.
	Stats Stats
}

// Stats counts what the run processed and emitted.
type Stats struct {
	Entities   int // entities ingested into the database
	Reachable  int // entities in the frozen emission set
	Symbols    int // flat shim symbols assigned to functions
	Subclasses int // classes with generated subclass support
}

// Diagnostic is re-exported so CLI and library consumers don't import the
// internal package.
type Diagnostic = diag.Diagnostic
