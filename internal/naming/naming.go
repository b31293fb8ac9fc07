// Package naming assigns every emitted function exactly one ABI shim
// symbol and one host-visible name. Native overloads collapse onto flat
// names here, deterministically: unchanged input yields identical names
// across runs, which is what makes builds reproducible. The Set doubles as
// the global symbol registry — anything else that mints a flat symbol
// (trampolines, helpers) registers through it so collisions are caught in
// one place.
package naming

import (
	"fmt"

	"github.com/jward/girder/decl"
	"github.com/jward/girder/internal/apidb"
	"github.com/jward/girder/internal/diag"
	"github.com/jward/girder/internal/reach"
)

// CollisionError reports two logically distinct entities mapping to the
// same flat symbol. Fatal: emitting would produce artifacts that cannot
// both be correct.
type CollisionError struct {
	Symbol string
	First  string
	Second string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("symbol collision: %q claimed by both %s and %s", e.Symbol, e.First, e.Second)
}

// RecordKind says what a symbol record stands for.
type RecordKind int

const (
	RecordFn          RecordKind = iota // free function or ordinary method
	RecordCtor                          // declared constructor overload
	RecordDefaultCtor                   // synthesized default-construct shim
	RecordDestroy                       // synthesized destructor shim
)

// Record is the authoritative mapping for one (entity, overload) pair.
// Both emitters consume the same record, which is the whole point: the
// host call site and the native definition cannot drift apart.
type Record struct {
	Kind     RecordKind
	Entity   string // owning entity: function FQN, or class FQN for synthesized records
	Overload int
	Fn       *decl.Function // nil for synthesized records
	Shim     string         // flat ABI symbol
	Host     string         // host-visible name within its scope
}

// Set holds all assigned records plus the flat-symbol registry.
type Set struct {
	Records  []Record
	byEntity map[string][]Record
	symbols  map[string]string // shim symbol -> owner

	// Fixed helper symbols, always present: the std::string constructor
	// shim and its destroy counterpart.
	MakeString    string
	StringDestroy string
}

// ForEntity returns the records assigned to an entity, in overload order.
func (s *Set) ForEntity(name string) []Record {
	return s.byEntity[name]
}

// Register claims a flat symbol for owner. Anything minting symbols
// outside Assign (trampolines, fixed helpers) must pass through here.
func (s *Set) Register(symbol, owner string) error {
	if prev, ok := s.symbols[symbol]; ok {
		return &CollisionError{Symbol: symbol, First: prev, Second: owner}
	}
	s.symbols[symbol] = owner
	return nil
}

// Symbols returns the full registry (symbol -> owner) for inspection.
func (s *Set) Symbols() map[string]string { return s.symbols }

// Assign walks the frozen reachable set in insertion order and produces
// one record per representable overload, plus synthesized construct and
// destroy records for non-POD classes. Overload groups of one keep the
// bare name; larger groups all get a suffix hashed from the normalized
// parameter signature, with a rename note per overload.
func Assign(db *apidb.DB, t *apidb.Table, r *reach.Result, diags *diag.List) (*Set, error) {
	s := &Set{
		byEntity: make(map[string][]Record),
		symbols:  make(map[string]string),
	}
	hostSeen := make(map[string]string) // scope + "\x00" + host name -> owner

	claim := func(rec Record, scope string) error {
		if err := s.Register(rec.Shim, rec.Entity); err != nil {
			return err
		}
		hostKey := scope + "\x00" + rec.Host
		if prev, ok := hostSeen[hostKey]; ok && prev != rec.Entity {
			return &CollisionError{Symbol: rec.Host, First: prev, Second: rec.Entity}
		}
		hostSeen[hostKey] = rec.Entity
		s.Records = append(s.Records, rec)
		s.byEntity[rec.Entity] = append(s.byEntity[rec.Entity], rec)
		return nil
	}

	s.MakeString = Symbol("", "make_string", "")
	s.StringDestroy = Symbol("", "string_destroy", "")
	if err := s.Register(s.MakeString, "string helper"); err != nil {
		return nil, err
	}
	if err := s.Register(s.StringDestroy, "string helper"); err != nil {
		return nil, err
	}

	for _, e := range r.Order {
		switch e.Kind {
		case apidb.KindFunction:
			if len(e.Funcs) > 0 && e.Funcs[0].IsDtor {
				continue // destruction goes through the class destroy record
			}
			if len(e.Funcs) > 0 && e.Funcs[0].IsCtor {
				// POD types construct inline with no shim; abstract types
				// never construct at all.
				if pod, _ := t.POD(e.Scope); pod {
					continue
				}
				if abstract, _ := t.Abstract(e.Scope); abstract {
					diags.Notef(diag.CodeEntityDropped, e.Name, "constructor suppressed: class is abstract")
					continue
				}
			}
			if err := assignFunction(e, t, s, diags, claim); err != nil {
				return nil, err
			}

		case apidb.KindClass:
			if err := assignClassSpecials(e, t, diags, claim); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func assignFunction(e *apidb.Entity, t *apidb.Table, s *Set, diags *diag.List, claim func(Record, string) error) error {
	shapes, _ := t.Shapes(e.Name)

	// Count representable overloads first: a group of one keeps its name.
	var live []int
	for i := range e.Funcs {
		if i < len(shapes) && !shapes[i].OK {
			continue
		}
		if e.Funcs[i].IsOperator {
			if _, ok := operatorNames[e.Funcs[i].Name]; !ok {
				diags.Warnf(diag.CodeUnrepresentable, e.Name, "operator %q has no host equivalent", e.Funcs[i].Name)
				continue
			}
		}
		live = append(live, i)
	}
	needSuffix := len(live) > 1

	for _, i := range live {
		fn := e.Funcs[i]
		base := fn.Name
		kind := RecordFn
		switch {
		case fn.IsCtor:
			base = "new"
			kind = RecordCtor
		case fn.IsOperator:
			base = operatorNames[fn.Name]
		}

		host := base
		suffix := ""
		if needSuffix {
			suffix = overloadSuffix(fn)
			host = base + "_" + suffix
			diags.Notef(diag.CodeOverloadRenamed, e.Name, "overload %d exposed as %q", i, host)
		}

		rec := Record{
			Kind:     kind,
			Entity:   e.Name,
			Overload: i,
			Fn:       fn,
			Shim:     Symbol(e.Scope, base, suffix),
			Host:     host,
		}
		if err := claim(rec, e.Scope); err != nil {
			return err
		}
	}
	return nil
}

// assignClassSpecials synthesizes construct/destroy shims for classes the
// host wrapper must manage explicitly. POD classes need neither; abstract
// classes are never instantiated so they get neither.
//
// The synthesized symbols spell "girder_<scope>_<Class>_new" and
// "girder_<scope>_<Class>_destroy", which reserves those two spellings per
// class: the shim namespace is flat over C identifiers, so a method
// literally named "destroy" (or any declaration whose flattened spelling
// matches) lands on the same symbol and the run aborts with a
// CollisionError naming both claimants rather than emitting two
// definitions. Every flat identifier is producible from some native name,
// so there is no unreachable segment to hide these in; detection is the
// guarantee.
func assignClassSpecials(e *apidb.Entity, t *apidb.Table, diags *diag.List, claim func(Record, string) error) error {
	pod, _ := t.POD(e.Name)
	abstract, _ := t.Abstract(e.Name)
	if pod || abstract {
		return nil
	}
	f, ok := t.Specials(e.Name)
	if !ok {
		return nil
	}

	// A default-construct shim when no constructor was declared but the
	// type is default-constructible. Declared constructors get their own
	// records through the Class::Class function entity.
	hasDeclaredCtor := false
	for _, m := range e.Class.Methods {
		if m.IsCtor {
			hasDeclaredCtor = true
			break
		}
	}
	if !hasDeclaredCtor && f.DefaultConstructible {
		rec := Record{
			Kind:   RecordDefaultCtor,
			Entity: e.Name,
			Shim:   Symbol(e.Scope, e.Local()+"_new", ""),
			Host:   "new",
		}
		if err := claim(rec, e.Name); err != nil {
			return err
		}
	}

	rec := Record{
		Kind:   RecordDestroy,
		Entity: e.Name,
		Shim:   Symbol(e.Scope, e.Local()+"_destroy", ""),
		Host:   "destroy",
	}
	return claim(rec, e.Name)
}
