package subclass

import (
	"testing"

	"github.com/jward/girder/decl"
	"github.com/jward/girder/internal/apidb"
	"github.com/jward/girder/internal/classify"
	"github.com/jward/girder/internal/diag"
	"github.com/jward/girder/internal/naming"
	"github.com/jward/girder/internal/reach"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertClass(t *testing.T, db *apidb.DB, c *decl.Class) {
	t.Helper()
	name := decl.Qualified(c.Scope, c.Name)
	require.NoError(t, db.Insert(&apidb.Entity{
		Name: name, Scope: c.Scope, Kind: apidb.KindClass, Class: c,
	}))
	for _, m := range c.Methods {
		ename := apidb.MethodEntityName(name, m)
		if existing := db.Lookup(ename); existing != nil {
			existing.Funcs = append(existing.Funcs, m)
			continue
		}
		require.NoError(t, db.Insert(&apidb.Entity{
			Name: ename, Scope: name, Kind: apidb.KindFunction,
			Funcs: []*decl.Function{m}, Owner: name,
		}))
	}
}

// plan classifies the database, resolves the allow-list, and builds the
// subclass plan for the requested classes.
func plan(t *testing.T, db *apidb.DB, allow, requests []string) ([]Class, *diag.List) {
	t.Helper()
	tbl := apidb.NewTable()
	require.NoError(t, classify.Run(db, tbl, classify.Config{}))
	diags := &diag.List{}
	r := reach.Resolve(db, tbl, allow, diags)
	set, err := naming.Assign(db, tbl, r, diags)
	require.NoError(t, err)
	out, err := Plan(db, tbl, requests, set, diags)
	require.NoError(t, err)
	return out, diags
}

func TestPlan_SlotLayout(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{
		Name: "Base", HasDefaultCtor: true,
		Methods: []*decl.Function{
			{Scope: "Base", Name: "open", ReturnType: "void", IsMethod: true, IsVirtual: true},
			{Scope: "Base", Name: "close", ReturnType: "void", IsMethod: true, IsVirtual: true},
		},
	})
	insertClass(t, db, &decl.Class{
		Name: "Derived", Bases: []string{"Base"}, HasDefaultCtor: true,
		Methods: []*decl.Function{
			{Scope: "Derived", Name: "close", ReturnType: "void", IsMethod: true, IsVirtual: true},
			{Scope: "Derived", Name: "flush", ReturnType: "void", IsMethod: true, IsVirtual: true},
		},
	})
	out, _ := plan(t, db, []string{"Derived"}, []string{"Derived"})

	require.Len(t, out, 1)
	c := out[0]
	require.Len(t, c.Methods, 3)

	// Inherited slot keeps its base index and owner.
	assert.Equal(t, 0, c.Methods[0].Slot)
	assert.Equal(t, "open", c.Methods[0].Fn.Name)
	assert.Equal(t, "Base", c.Methods[0].Owner)

	// An override stays in its inherited slot but moves ownership down.
	assert.Equal(t, 1, c.Methods[1].Slot)
	assert.Equal(t, "close", c.Methods[1].Fn.Name)
	assert.Equal(t, "Derived", c.Methods[1].Owner)

	// Newly declared virtuals append.
	assert.Equal(t, 2, c.Methods[2].Slot)
	assert.Equal(t, "flush", c.Methods[2].Fn.Name)

	assert.Equal(t, "girder_Derived_peer_new", c.PeerNew)
	assert.Equal(t, "girder_Derived_peer_destroy", c.PeerDestroy)
	assert.Equal(t, "girder_Derived_upcast", c.Upcast)
}

func TestPlan_PureVirtualHasNoSuperDelegate(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{
		Name: "Sink", HasDefaultCtor: true,
		Methods: []*decl.Function{
			{Scope: "Sink", Name: "write", ReturnType: "void", IsMethod: true, IsVirtual: true, IsPureVirtual: true,
				Params: []*decl.Param{{Name: "n", TypeExpr: "int"}}},
			{Scope: "Sink", Name: "flush", ReturnType: "void", IsMethod: true, IsVirtual: true},
		},
	})
	out, _ := plan(t, db, []string{"Sink"}, []string{"Sink"})

	require.Len(t, out, 1)
	require.Len(t, out[0].Methods, 2)
	assert.Empty(t, out[0].Methods[0].SuperSymbol)
	assert.Equal(t, "girder_Sink_flush_super", out[0].Methods[1].SuperSymbol)
}

func TestPlan_MultipleInheritanceDisablesSubclassing(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{Name: "A", HasDefaultCtor: true})
	insertClass(t, db, &decl.Class{Name: "B", HasDefaultCtor: true})
	insertClass(t, db, &decl.Class{
		Name: "Both", Bases: []string{"A", "B"}, HasDefaultCtor: true,
		Methods: []*decl.Function{
			{Scope: "Both", Name: "tick", ReturnType: "void", IsMethod: true, IsVirtual: true},
		},
	})
	out, diags := plan(t, db, []string{"Both"}, []string{"Both"})

	assert.Empty(t, out)
	skipped := false
	for _, d := range diags.Items() {
		if d.Code == diag.CodeTrampolineSkip && d.Entity == "Both" {
			skipped = true
		}
	}
	assert.True(t, skipped)
}

func TestPlan_UnrepresentableMethodSkipped(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{
		Name: "Codec", HasDefaultCtor: true,
		Methods: []*decl.Function{
			{Scope: "Codec", Name: "decode", ReturnType: "void", IsMethod: true, IsVirtual: true,
				Params: []*decl.Param{{Name: "f", TypeExpr: "Frame"}}},
			{Scope: "Codec", Name: "reset", ReturnType: "void", IsMethod: true, IsVirtual: true},
		},
	})
	out, diags := plan(t, db, []string{"Codec"}, []string{"Codec"})

	// The bad slot is skipped; the rest of the class stays subclassable.
	require.Len(t, out, 1)
	require.Len(t, out[0].Methods, 1)
	assert.Equal(t, "reset", out[0].Methods[0].Fn.Name)

	skipped := false
	for _, d := range diags.Items() {
		if d.Code == diag.CodeTrampolineSkip && d.Entity == "Codec" {
			skipped = true
		}
	}
	assert.True(t, skipped)
}

func TestPlan_UnknownClassWarns(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	out, diags := plan(t, db, nil, []string{"Missing"})

	assert.Empty(t, out)
	require.Equal(t, 1, diags.Len())
	assert.Equal(t, diag.CodeEntityDropped, diags.Items()[0].Code)
}

func TestPlan_SymbolsRegisteredOnSet(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{
		Name: "Task", HasDefaultCtor: true,
		Methods: []*decl.Function{
			{Scope: "Task", Name: "run", ReturnType: "void", IsMethod: true, IsVirtual: true},
		},
	})

	tbl := apidb.NewTable()
	require.NoError(t, classify.Run(db, tbl, classify.Config{}))
	diags := &diag.List{}
	r := reach.Resolve(db, tbl, []string{"Task"}, diags)
	set, err := naming.Assign(db, tbl, r, diags)
	require.NoError(t, err)

	out, err := Plan(db, tbl, []string{"Task"}, set, diags)
	require.NoError(t, err)
	require.Len(t, out, 1)

	syms := set.Symbols()
	for _, sym := range []string{
		out[0].PeerNew, out[0].PeerDestroy, out[0].Upcast,
		out[0].Methods[0].Symbol, out[0].Methods[0].Binding, out[0].Methods[0].SuperSymbol,
	} {
		assert.Contains(t, syms, sym)
	}
}

func TestPlan_VirtualDestructorSkipped(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{
		Name: "Sink", HasDefaultCtor: true, HasUserDtor: true,
		Methods: []*decl.Function{
			{Scope: "Sink", Name: "~Sink", IsMethod: true, IsVirtual: true, IsDtor: true},
			{Scope: "Sink", Name: "ping", ReturnType: "void", IsMethod: true, IsVirtual: true,
				Params: []*decl.Param{{Name: "n", TypeExpr: "int"}}},
		},
	})
	out, diags := plan(t, db, []string{"Sink"}, []string{"Sink"})

	// The destructor claims no slot: peers destroy through peer_destroy.
	require.Len(t, out, 1)
	require.Len(t, out[0].Methods, 1)
	assert.Equal(t, "ping", out[0].Methods[0].Fn.Name)
	assert.Equal(t, 0, out[0].Methods[0].Slot)
	for _, d := range diags.Items() {
		assert.NotContains(t, d.Message, "~Sink")
	}
}
