package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "run.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())
	return s
}

func boolPtr(v bool) *bool { return &v }

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
	require.NoError(t, s.Migrate())
}

func TestEntities_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	tx, err := s.DB().Begin()
	require.NoError(t, err)
	require.NoError(t, s.InsertEntity(tx, &Entity{Name: "audio", Scope: "", Kind: "namespace", Ord: 0}))
	require.NoError(t, s.InsertEntity(tx, &Entity{Name: "audio::Mixer", Scope: "audio", Kind: "class", Ord: 1, Reachable: true}))
	require.NoError(t, s.InsertEntity(tx, &Entity{Name: "audio::start", Scope: "audio", Kind: "function", Ord: 2, Reachable: true}))
	require.NoError(t, tx.Commit())

	all, err := s.Entities("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "audio", all[0].Name)
	assert.Equal(t, "audio::Mixer", all[1].Name)
	assert.True(t, all[1].Reachable)

	classes, err := s.Entities("class")
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "audio::Mixer", classes[0].Name)
}

func TestFacts_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	tx, err := s.DB().Begin()
	require.NoError(t, err)
	require.NoError(t, s.InsertFact(tx, &Fact{
		Entity:               "audio::Mixer",
		Relocatable:          boolPtr(false),
		POD:                  boolPtr(false),
		Abstract:             boolPtr(false),
		DefaultConstructible: boolPtr(true),
		CopyConstructible:    boolPtr(true),
	}))
	require.NoError(t, tx.Commit())

	f, err := s.FactFor("audio::Mixer")
	require.NoError(t, err)
	require.NotNil(t, f)
	require.NotNil(t, f.Relocatable)
	assert.False(t, *f.Relocatable)
	require.NotNil(t, f.DefaultConstructible)
	assert.True(t, *f.DefaultConstructible)
	// Never classified on this entity.
	assert.Nil(t, f.MoveConstructible)

	missing, err := s.FactFor("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSymbols_ByEntityInOverloadOrder(t *testing.T) {
	s := newTestStore(t)

	tx, err := s.DB().Begin()
	require.NoError(t, err)
	require.NoError(t, s.InsertSymbol(tx, &Symbol{Shim: "girder_f_b2c3", Host: "f_b2c3", Entity: "f", Kind: "fn", Overload: 1}))
	require.NoError(t, s.InsertSymbol(tx, &Symbol{Shim: "girder_f_a1d4", Host: "f_a1d4", Entity: "f", Kind: "fn", Overload: 0}))
	require.NoError(t, s.InsertSymbol(tx, &Symbol{Shim: "girder_g", Host: "g", Entity: "g", Kind: "fn"}))
	require.NoError(t, tx.Commit())

	syms, err := s.SymbolsFor("f")
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, 0, syms[0].Overload)
	assert.Equal(t, 1, syms[1].Overload)
}

func TestTrampolines_OrderedByClassAndSlot(t *testing.T) {
	s := newTestStore(t)

	tx, err := s.DB().Begin()
	require.NoError(t, err)
	require.NoError(t, s.InsertTrampoline(tx, &Trampoline{
		Class: "Widget", Method: "resize", Slot: 1,
		Symbol: "girder_Widget_resize_tramp", Binding: "girder_Widget_resize_bind",
	}))
	require.NoError(t, s.InsertTrampoline(tx, &Trampoline{
		Class: "Widget", Method: "ping", Slot: 0,
		Symbol: "girder_Widget_ping_tramp", Super: "girder_Widget_ping_super", Binding: "girder_Widget_ping_bind",
	}))
	require.NoError(t, tx.Commit())

	tramps, err := s.Trampolines()
	require.NoError(t, err)
	require.Len(t, tramps, 2)
	assert.Equal(t, "ping", tramps[0].Method)
	assert.Equal(t, "girder_Widget_ping_super", tramps[0].Super)
	// A pure-virtual slot stores no super delegate.
	assert.Equal(t, "", tramps[1].Super)
}

func TestDiagnostics_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	tx, err := s.DB().Begin()
	require.NoError(t, err)
	require.NoError(t, s.InsertDiagnostic(tx, &Diagnostic{
		Severity: "warning", Code: "entity-dropped", Entity: "ns::f", Message: "no representable overloads",
	}))
	require.NoError(t, tx.Commit())

	diags, err := s.Diagnostics()
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "entity-dropped", diags[0].Code)
}

func TestReset_ClearsRows(t *testing.T) {
	s := newTestStore(t)

	tx, err := s.DB().Begin()
	require.NoError(t, err)
	require.NoError(t, s.InsertEntity(tx, &Entity{Name: "X", Kind: "class", Ord: 0}))
	require.NoError(t, tx.Commit())

	require.NoError(t, s.Reset())
	all, err := s.Entities("")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMetadata_Upsert(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetMetadata("generated_at")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, s.SetMetadata("generated_at", "2026-01-01T00:00:00Z"))
	require.NoError(t, s.SetMetadata("generated_at", "2026-02-01T00:00:00Z"))

	v, err = s.GetMetadata("generated_at")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01T00:00:00Z", v)
}
