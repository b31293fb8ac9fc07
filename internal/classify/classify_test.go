package classify

import (
	"errors"
	"testing"

	"github.com/jward/girder/decl"
	"github.com/jward/girder/internal/apidb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// insertClass ingests a class entity plus its field and method entities,
// the same shape the engine produces.
func insertClass(t *testing.T, db *apidb.DB, c *decl.Class) {
	t.Helper()
	name := decl.Qualified(c.Scope, c.Name)
	require.NoError(t, db.Insert(&apidb.Entity{
		Name: name, Scope: c.Scope, Kind: apidb.KindClass, Class: c,
	}))
	for _, f := range c.Fields {
		require.NoError(t, db.Insert(&apidb.Entity{
			Name: name + "::" + f.Name, Scope: name, Kind: apidb.KindField, Field: f, Owner: name,
		}))
	}
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

func insertFunc(t *testing.T, db *apidb.DB, fn *decl.Function) {
	t.Helper()
	name := decl.Qualified(fn.Scope, fn.Name)
	if existing := db.Lookup(name); existing != nil {
		existing.Funcs = append(existing.Funcs, fn)
		return
	}
	require.NoError(t, db.Insert(&apidb.Entity{
		Name: name, Scope: fn.Scope, Kind: apidb.KindFunction, Funcs: []*decl.Function{fn},
	}))
}

func runClassify(t *testing.T, db *apidb.DB, cfg Config) *apidb.Table {
	t.Helper()
	tbl := apidb.NewTable()
	require.NoError(t, Run(db, tbl, cfg))
	return tbl
}

func TestSpecials_Derivation(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{
		Name: "Resource", HasDefaultCtor: true, HasUserDtor: true,
	})
	tbl := runClassify(t, db, Config{})

	f, ok := tbl.Specials("Resource")
	require.True(t, ok)
	assert.True(t, f.DefaultConstructible)
	assert.True(t, f.CopyConstructible)
	// A user destructor suppresses the implicit move constructor.
	assert.False(t, f.MoveConstructible)
	assert.True(t, f.HasDestructor)
	assert.False(t, f.HasVirtual)
}

func TestSpecials_MoveOnly(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{Name: "Conn", HasUserMoveCtor: true})
	tbl := runClassify(t, db, Config{})

	f, ok := tbl.Specials("Conn")
	require.True(t, ok)
	// A user move constructor suppresses the implicit copy constructor.
	assert.False(t, f.CopyConstructible)
	assert.True(t, f.MoveConstructible)
}

func TestAbstract_InheritedPureVirtual(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{
		Name: "Shape", HasDefaultCtor: true,
		Methods: []*decl.Function{
			{Scope: "Shape", Name: "area", ReturnType: "double", IsMethod: true, IsVirtual: true, IsPureVirtual: true},
		},
	})
	insertClass(t, db, &decl.Class{
		Name: "Sketch", Bases: []string{"Shape"}, HasDefaultCtor: true,
	})
	insertClass(t, db, &decl.Class{
		Name: "Circle", Bases: []string{"Shape"}, HasDefaultCtor: true,
		Methods: []*decl.Function{
			{Scope: "Circle", Name: "area", ReturnType: "double", IsMethod: true, IsVirtual: true},
		},
	})
	tbl := runClassify(t, db, Config{})

	abstract, _ := tbl.Abstract("Shape")
	assert.True(t, abstract)
	// Inherits the pure slot without overriding it.
	abstract, _ = tbl.Abstract("Sketch")
	assert.True(t, abstract)
	// Overrides it with an implementation.
	abstract, _ = tbl.Abstract("Circle")
	assert.False(t, abstract)
}

func TestRelocatable_FieldWithUserDestructor(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{Name: "Guard", HasDefaultCtor: true, HasUserDtor: true})
	insertClass(t, db, &decl.Class{
		Name: "Holder", IsStruct: true, HasDefaultCtor: true,
		Fields: []*decl.Field{{Name: "g", TypeExpr: "Guard", Public: true}},
	})
	insertClass(t, db, &decl.Class{
		Name: "Plain", IsStruct: true, HasDefaultCtor: true,
		Fields: []*decl.Field{{Name: "n", TypeExpr: "int", Public: true}},
	})
	tbl := runClassify(t, db, Config{})

	v, _ := tbl.Relocatable("Guard")
	assert.False(t, v)
	// Relocatability propagates through by-value fields.
	v, _ = tbl.Relocatable("Holder")
	assert.False(t, v)
	v, _ = tbl.Relocatable("Plain")
	assert.True(t, v)
}

func TestRelocatable_PointerFieldStaysRelocatable(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{Name: "Guard", HasDefaultCtor: true, HasUserDtor: true})
	insertClass(t, db, &decl.Class{
		Name: "Ref", IsStruct: true, HasDefaultCtor: true,
		Fields: []*decl.Field{{Name: "g", TypeExpr: "Guard*", Public: true}},
	})
	tbl := runClassify(t, db, Config{})

	v, _ := tbl.Relocatable("Ref")
	assert.True(t, v)
}

func TestPOD_Derivation(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{
		Name: "Point", IsStruct: true, HasDefaultCtor: true,
		Fields: []*decl.Field{
			{Name: "x", TypeExpr: "int", Public: true},
			{Name: "y", TypeExpr: "int", Public: true},
		},
	})
	insertClass(t, db, &decl.Class{
		Name: "Vtbl", HasDefaultCtor: true,
		Methods: []*decl.Function{
			{Scope: "Vtbl", Name: "tick", ReturnType: "void", IsMethod: true, IsVirtual: true},
		},
	})
	tbl := runClassify(t, db, Config{})

	pod, _ := tbl.POD("Point")
	assert.True(t, pod)
	pod, _ = tbl.POD("Vtbl")
	assert.False(t, pod)
}

func TestPOD_InheritedVirtualDisqualifies(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{
		Name: "Base", HasDefaultCtor: true,
		Methods: []*decl.Function{
			{Scope: "Base", Name: "tick", ReturnType: "void", IsMethod: true, IsVirtual: true},
		},
	})
	insertClass(t, db, &decl.Class{
		Name: "Child", IsStruct: true, Bases: []string{"Base"}, HasDefaultCtor: true,
	})
	tbl := runClassify(t, db, Config{})

	pod, _ := tbl.POD("Child")
	assert.False(t, pod)
}

func TestPOD_OverrideShortCircuits(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{Name: "Opaque", HasDefaultCtor: true, HasUserDtor: true})
	tbl := runClassify(t, db, Config{PODOverrides: map[string]bool{"Opaque": true}})

	pod, _ := tbl.POD("Opaque")
	assert.True(t, pod)
}

func TestShapes_ValuePointerReference(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{
		Name: "Point", IsStruct: true, HasDefaultCtor: true,
		Fields: []*decl.Field{{Name: "x", TypeExpr: "int", Public: true}},
	})
	insertClass(t, db, &decl.Class{Name: "Blob", HasDefaultCtor: true, HasUserDtor: true})
	insertFunc(t, db, &decl.Function{
		Name: "mix",
		Params: []*decl.Param{
			{Name: "p", TypeExpr: "Point"},
			{Name: "b", TypeExpr: "Blob"},
			{Name: "r", TypeExpr: "const Blob&"},
			{Name: "s", TypeExpr: "std::string"},
		},
		ReturnType: "Blob",
	})
	tbl := runClassify(t, db, Config{})

	shapes, ok := tbl.Shapes("mix")
	require.True(t, ok)
	require.Len(t, shapes, 1)
	fs := shapes[0]
	require.True(t, fs.OK)
	assert.Equal(t, apidb.ShapeValue, fs.Params[0])     // POD crosses inline
	assert.Equal(t, apidb.ShapePointer, fs.Params[1])   // non-POD crosses by opaque copy
	assert.Equal(t, apidb.ShapeReference, fs.Params[2]) // aliasing only
	assert.Equal(t, apidb.ShapePointer, fs.Params[3])   // owned string handle
	assert.Equal(t, apidb.ShapePointer, fs.Return)
}

func TestShapes_AbstractByValueDropped(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{
		Name: "Shape", HasDefaultCtor: true,
		Methods: []*decl.Function{
			{Scope: "Shape", Name: "area", ReturnType: "double", IsMethod: true, IsVirtual: true, IsPureVirtual: true},
		},
	})
	insertFunc(t, db, &decl.Function{
		Name:   "draw",
		Params: []*decl.Param{{Name: "s", TypeExpr: "Shape"}},
	})
	insertFunc(t, db, &decl.Function{
		Name:   "draw_ref",
		Params: []*decl.Param{{Name: "s", TypeExpr: "const Shape&"}},
	})
	tbl := runClassify(t, db, Config{})

	shapes, _ := tbl.Shapes("draw")
	require.Len(t, shapes, 1)
	assert.False(t, shapes[0].OK)
	assert.Contains(t, shapes[0].Reason, "abstract")

	// Pointer and reference forms stay representable.
	shapes, _ = tbl.Shapes("draw_ref")
	require.Len(t, shapes, 1)
	assert.True(t, shapes[0].OK)
}

func TestShapes_MoveOnlyByValueDropped(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{Name: "Conn", HasUserMoveCtor: true, HasDefaultCtor: true})
	insertFunc(t, db, &decl.Function{
		Name:   "take",
		Params: []*decl.Param{{Name: "c", TypeExpr: "Conn"}},
	})
	insertFunc(t, db, &decl.Function{
		Name:       "open",
		ReturnType: "Conn",
	})
	tbl := runClassify(t, db, Config{})

	shapes, _ := tbl.Shapes("take")
	require.Len(t, shapes, 1)
	assert.False(t, shapes[0].OK)
	assert.Contains(t, shapes[0].Reason, "move-only")

	// Returning move-only by value is fine; the shim move-constructs.
	shapes, _ = tbl.Shapes("open")
	require.Len(t, shapes, 1)
	assert.True(t, shapes[0].OK)
	assert.Equal(t, apidb.ShapePointer, shapes[0].Return)
}

func TestShapes_UnknownType(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertFunc(t, db, &decl.Function{
		Name:   "use",
		Params: []*decl.Param{{Name: "m", TypeExpr: "Missing"}},
	})
	tbl := runClassify(t, db, Config{})

	shapes, _ := tbl.Shapes("use")
	require.Len(t, shapes, 1)
	assert.False(t, shapes[0].OK)
	assert.Contains(t, shapes[0].Reason, "unknown type")
}

func TestRun_ConvergenceErrorOnValueCycle(t *testing.T) {
	t.Parallel()
	db := apidb.New()
	insertClass(t, db, &decl.Class{
		Name: "A", HasDefaultCtor: true,
		Fields: []*decl.Field{{Name: "b", TypeExpr: "B"}},
	})
	insertClass(t, db, &decl.Class{
		Name: "B", HasDefaultCtor: true,
		Fields: []*decl.Field{{Name: "a", TypeExpr: "A"}},
	})

	err := Run(db, apidb.NewTable(), Config{})
	var conv *ConvergenceError
	require.True(t, errors.As(err, &conv))
	assert.NotEmpty(t, conv.Pending)
}
