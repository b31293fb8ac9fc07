// Package classify runs the ordered analysis passes that decide how each
// native type and function may cross the ABI boundary. Passes are pure
// functions from (entity, fact table) to fact deltas; the driver applies
// deltas and repeats the pass list until nothing changes. Deferral handles
// forward references: a class's relocatability needs its field types'
// relocatability, which may not be computed yet on the first sweep.
package classify

import (
	"fmt"

	"github.com/jward/girder/internal/apidb"
)

// ConvergenceError reports that the fixed-point loop hit its iteration cap
// with passes still deferring. That only happens when the input encodes a
// cyclic value dependency (two classes containing each other by value),
// which the native type system itself forbids — so it flags an ingestion
// inconsistency, and the run aborts.
type ConvergenceError struct {
	Iterations int
	Pending    []string // entity names still deferred
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("classification did not converge after %d iterations; %d entities pending (first: %s)",
		e.Iterations, len(e.Pending), first(e.Pending))
}

func first(names []string) string {
	if len(names) == 0 {
		return "<none>"
	}
	return names[0]
}

// Config carries the caller-supplied classification knobs.
type Config struct {
	// PODOverrides forces is_pod for the named types, bypassing the
	// derived POD rules. The caller asserts layout transparency.
	PODOverrides map[string]bool
}

// Pass is one analysis step. Run inspects a single entity and returns the
// facts it can conclude, or deferred=true when a needed input fact is not
// in the table yet. A pass that already sees its output fact present must
// return nothing, so sweeps are idempotent.
type Pass struct {
	Name string
	Run  func(e *apidb.Entity, db *apidb.DB, t *apidb.Table, cfg Config) (deltas []apidb.Delta, deferred bool)
}

// passes is the fixed total order. Later passes read facts written by
// earlier ones; no two passes write the same fact slot.
var passes = []Pass{
	{Name: "specials", Run: specialsPass},
	{Name: "abstract", Run: abstractPass},
	{Name: "relocatable", Run: relocatablePass},
	{Name: "pod", Run: podPass},
	{Name: "shapes", Run: shapesPass},
}

// Run drives the pass list to a fixed point. The iteration cap is the
// entity count plus one: every productive sweep settles at least one
// entity, so a real fixed point always lands within the cap and one extra
// sweep observes quiescence.
func Run(db *apidb.DB, t *apidb.Table, cfg Config) error {
	maxIter := db.Len() + 1
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		var pending []string

		for _, p := range passes {
			var batch []apidb.Delta
			for _, e := range db.Iterate(apidb.KindAny) {
				deltas, deferred := p.Run(e, db, t, cfg)
				if deferred {
					pending = append(pending, e.Name)
					continue
				}
				batch = append(batch, deltas...)
			}
			if len(batch) > 0 {
				changed = true
				if err := t.Apply(batch); err != nil {
					return fmt.Errorf("classify: pass %s: %w", p.Name, err)
				}
			}
		}

		if !changed {
			if len(pending) == 0 {
				return nil // fixed point
			}
			// No progress but work remains: a dependency cycle.
			return &ConvergenceError{Iterations: iter + 1, Pending: pending}
		}
	}
	return &ConvergenceError{Iterations: maxIter, Pending: []string{"<cap exceeded>"}}
}
