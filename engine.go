package girder

import (
	"context"
	"fmt"
	"time"

	"github.com/jward/girder/decl"
	"github.com/jward/girder/internal/apidb"
	"github.com/jward/girder/internal/classify"
	"github.com/jward/girder/internal/diag"
	"github.com/jward/girder/internal/emit"
	"github.com/jward/girder/internal/frontend"
	"github.com/jward/girder/internal/naming"
	"github.com/jward/girder/internal/reach"
	"github.com/jward/girder/internal/rules"
	"github.com/jward/girder/internal/snapshot"
	"github.com/jward/girder/internal/subclass"
)

// Engine orchestrates the girder pipeline: header parsing, ingestion,
// classification, reachability, symbol assignment, subclass planning, and
// dual emission. An Engine is stateless between runs; every Generate call
// builds a fresh entity database.
type Engine struct {
	parser       *frontend.Parser
	rules        *rules.Runtime
	snapshotPath string
}

// Option configures an Engine.
type Option func(*Engine)

// WithSnapshot persists each run to a SQLite database at path, for
// post-run inspection with the CLI. Empty disables snapshotting.
func WithSnapshot(path string) Option {
	return func(e *Engine) {
		e.snapshotPath = path
	}
}

// WithRules replaces the default rules runtime, e.g. to load scripts from
// an embedded filesystem.
func WithRules(rt *rules.Runtime) Option {
	return func(e *Engine) {
		e.rules = rt
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		parser: frontend.New(),
		rules:  rules.NewRuntime(""),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GenerateFromHeaders parses the given header files and generates the
// artifact pair for the request. Declarations from all headers are merged
// into one database.
func (e *Engine) GenerateFromHeaders(ctx context.Context, paths []string, req *Request) (*Result, error) {
	merged := &decl.Set{}
	for _, path := range paths {
		set, err := e.parser.ParseFile(ctx, path)
		if err != nil {
			return nil, err
		}
		merged.Namespaces = append(merged.Namespaces, set.Namespaces...)
		merged.Classes = append(merged.Classes, set.Classes...)
		merged.Functions = append(merged.Functions, set.Functions...)
		merged.Enums = append(merged.Enums, set.Enums...)
		merged.Typedefs = append(merged.Typedefs, set.Typedefs...)
	}
	return e.Generate(ctx, merged, req)
}

// Generate runs the full pipeline over an already-parsed declaration set.
// The request is not mutated; rules amendments apply to a copy.
func (e *Engine) Generate(ctx context.Context, set *decl.Set, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("girder: %w", err)
	}

	run := *req
	if run.RulesScript != "" {
		am, err := e.rules.RunScript(ctx, run.RulesScript)
		if err != nil {
			return nil, fmt.Errorf("girder: %w", err)
		}
		applyAmendments(&run, am)
		if err := run.Validate(); err != nil {
			return nil, fmt.Errorf("girder: after rules script: %w", err)
		}
	}

	db, err := Ingest(set)
	if err != nil {
		return nil, fmt.Errorf("girder: ingest: %w", err)
	}

	t := apidb.NewTable()
	if err := classify.Run(db, t, classify.Config{PODOverrides: run.PODOverrides}); err != nil {
		return nil, fmt.Errorf("girder: %w", err)
	}

	diags := &diag.List{}
	r := reach.Resolve(db, t, run.Allow, diags)

	syms, err := naming.Assign(db, t, r, diags)
	if err != nil {
		return nil, fmt.Errorf("girder: %w", err)
	}

	subs, err := subclass.Plan(db, t, run.Subclass, syms, diags)
	if err != nil {
		return nil, fmt.Errorf("girder: %w", err)
	}

	plan := &emit.Plan{
		DB:         db,
		Facts:      t,
		Reach:      r,
		Symbols:    syms,
		Subclasses: subs,
		Includes:   run.ExtraIncludes,
		Diags:      diags,
	}
	usage := emit.NewUsage()
	rust, err := emit.Rust(plan, usage)
	if err != nil {
		return nil, fmt.Errorf("girder: %w", err)
	}
	cxx, err := emit.Cxx(plan, usage)
	if err != nil {
		return nil, fmt.Errorf("girder: %w", err)
	}
	if err := usage.Check(); err != nil {
		return nil, fmt.Errorf("girder: %w", err)
	}

	res := &Result{
		Artifacts:   Artifacts{RustSource: rust, CxxSource: cxx},
		Diagnostics: diags.Items(),
		Stats: Stats{
			Entities:   db.Len(),
			Reachable:  len(r.Order),
			Symbols:    len(syms.Records),
			Subclasses: len(subs),
		},
	}

	if e.snapshotPath != "" {
		if err := writeSnapshot(e.snapshotPath, db, t, r, syms, subs, diags); err != nil {
			return nil, fmt.Errorf("girder: snapshot: %w", err)
		}
	}
	return res, nil
}

// applyAmendments folds a rules script's output into the run's request.
// Exclusions remove exact matches from the allow and subclass lists.
func applyAmendments(req *Request, am *rules.Amendments) {
	req.Allow = append(req.Allow, am.Allow...)
	req.Subclass = append(req.Subclass, am.SubclassRequests...)
	req.ExtraIncludes = append(req.ExtraIncludes, am.ExtraIncludes...)

	if len(am.Exclude) > 0 {
		excluded := make(map[string]bool, len(am.Exclude))
		for _, name := range am.Exclude {
			excluded[name] = true
		}
		req.Allow = filterOut(req.Allow, excluded)
		req.Subclass = filterOut(req.Subclass, excluded)
	}

	if len(am.PODOverrides) > 0 {
		if req.PODOverrides == nil {
			req.PODOverrides = make(map[string]bool, len(am.PODOverrides))
		}
		for name, pod := range am.PODOverrides {
			req.PODOverrides[name] = pod
		}
	}
}

func filterOut(names []string, excluded map[string]bool) []string {
	out := names[:0]
	for _, n := range names {
		if !excluded[n] {
			out = append(out, n)
		}
	}
	return out
}

// Ingest normalizes a declaration set into the entity database. Function
// overloads merge under one entity; a reopened namespace is not a
// conflict; any other name collision is a fatal DuplicateIdentityError.
func Ingest(set *decl.Set) (*apidb.DB, error) {
	db := apidb.New()

	for _, ns := range set.Namespaces {
		name := decl.Qualified(ns.Scope, ns.Name)
		if existing := db.Lookup(name); existing != nil {
			if existing.Kind == apidb.KindNamespace {
				continue // reopened namespace
			}
			return nil, &apidb.DuplicateIdentityError{Name: name}
		}
		if err := db.Insert(&apidb.Entity{
			Name: name, Scope: ns.Scope, Kind: apidb.KindNamespace, Namespace: ns,
		}); err != nil {
			return nil, err
		}
	}

	for _, en := range set.Enums {
		if err := db.Insert(&apidb.Entity{
			Name: decl.Qualified(en.Scope, en.Name), Scope: en.Scope,
			Kind: apidb.KindEnum, Enum: en,
		}); err != nil {
			return nil, err
		}
	}

	for _, td := range set.Typedefs {
		if err := db.Insert(&apidb.Entity{
			Name: decl.Qualified(td.Scope, td.Name), Scope: td.Scope,
			Kind: apidb.KindTypedef, Typedef: td,
		}); err != nil {
			return nil, err
		}
	}

	for _, c := range set.Classes {
		name := decl.Qualified(c.Scope, c.Name)
		if err := db.Insert(&apidb.Entity{
			Name: name, Scope: c.Scope, Kind: apidb.KindClass, Class: c,
		}); err != nil {
			return nil, err
		}
		for _, f := range c.Fields {
			if err := db.Insert(&apidb.Entity{
				Name: name + "::" + f.Name, Scope: name,
				Kind: apidb.KindField, Field: f, Owner: name,
			}); err != nil {
				return nil, err
			}
		}
		for _, m := range c.Methods {
			ename := apidb.MethodEntityName(name, m)
			if existing := db.Lookup(ename); existing != nil {
				if existing.Kind != apidb.KindFunction {
					return nil, &apidb.DuplicateIdentityError{Name: ename}
				}
				existing.Funcs = append(existing.Funcs, m)
				continue
			}
			if err := db.Insert(&apidb.Entity{
				Name: ename, Scope: name, Kind: apidb.KindFunction,
				Funcs: []*decl.Function{m}, Owner: name,
			}); err != nil {
				return nil, err
			}
		}
	}

	for _, fn := range set.Functions {
		name := decl.Qualified(fn.Scope, fn.Name)
		if existing := db.Lookup(name); existing != nil {
			if existing.Kind != apidb.KindFunction {
				return nil, &apidb.DuplicateIdentityError{Name: name}
			}
			existing.Funcs = append(existing.Funcs, fn)
			continue
		}
		if err := db.Insert(&apidb.Entity{
			Name: name, Scope: fn.Scope, Kind: apidb.KindFunction,
			Funcs: []*decl.Function{fn},
		}); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// writeSnapshot persists the run to SQLite in one transaction, replacing
// any previous snapshot.
func writeSnapshot(path string, db *apidb.DB, t *apidb.Table, r *reach.Result,
	syms *naming.Set, subs []subclass.Class, diags *diag.List) error {

	store, err := snapshot.NewStore(path)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		return err
	}
	if err := store.Reset(); err != nil {
		return err
	}

	tx, err := store.DB().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range db.Iterate(apidb.KindAny) {
		if err := store.InsertEntity(tx, &snapshot.Entity{
			Name: e.Name, Scope: e.Scope, Kind: e.Kind.String(),
			Ord: e.Order, Reachable: r.Reachable[e.Name],
		}); err != nil {
			return err
		}
		fact := factFor(t, e.Name)
		if fact != nil {
			if err := store.InsertFact(tx, fact); err != nil {
				return err
			}
		}
	}

	for _, rec := range syms.Records {
		kind := "fn"
		switch rec.Kind {
		case naming.RecordCtor:
			kind = "ctor"
		case naming.RecordDefaultCtor:
			kind = "default-ctor"
		case naming.RecordDestroy:
			kind = "destroy"
		}
		if err := store.InsertSymbol(tx, &snapshot.Symbol{
			Shim: rec.Shim, Host: rec.Host, Entity: rec.Entity,
			Kind: kind, Overload: rec.Overload,
		}); err != nil {
			return err
		}
	}

	for _, sc := range subs {
		for _, m := range sc.Methods {
			if err := store.InsertTrampoline(tx, &snapshot.Trampoline{
				Class: sc.Entity.Name, Method: m.Fn.Name, Slot: m.Slot,
				Symbol: m.Symbol, Super: m.SuperSymbol, Binding: m.Binding,
			}); err != nil {
				return err
			}
		}
	}

	for _, d := range diags.Items() {
		if err := store.InsertDiagnostic(tx, &snapshot.Diagnostic{
			Severity: d.Severity.String(), Code: string(d.Code),
			Entity: d.Entity, Message: d.Message,
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return store.SetMetadata("generated_at", time.Now().UTC().Format(time.RFC3339))
}

// factFor flattens the fact table's view of one entity into a snapshot
// row, or nil when no pass recorded anything for it.
func factFor(t *apidb.Table, name string) *snapshot.Fact {
	f := &snapshot.Fact{Entity: name}
	any := false
	if v, ok := t.Relocatable(name); ok {
		f.Relocatable, any = boolPtr(v), true
	}
	if v, ok := t.POD(name); ok {
		f.POD, any = boolPtr(v), true
	}
	if v, ok := t.Abstract(name); ok {
		f.Abstract, any = boolPtr(v), true
	}
	if sp, ok := t.Specials(name); ok {
		f.DefaultConstructible = boolPtr(sp.DefaultConstructible)
		f.CopyConstructible = boolPtr(sp.CopyConstructible)
		f.MoveConstructible = boolPtr(sp.MoveConstructible)
		any = true
	}
	if !any {
		return nil
	}
	return f
}

func boolPtr(v bool) *bool { return &v }
