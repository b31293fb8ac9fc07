package frontend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jward/girder/decl"
	"github.com/jward/girder/internal/apidb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *decl.Set {
	t.Helper()
	set, err := New().Parse(context.Background(), []byte(src))
	require.NoError(t, err)
	return set
}

func findClass(t *testing.T, set *decl.Set, name string) *decl.Class {
	t.Helper()
	for _, c := range set.Classes {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("class %q not parsed", name)
	return nil
}

func findMethod(t *testing.T, c *decl.Class, name string) *decl.Function {
	t.Helper()
	for _, m := range c.Methods {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("method %q not parsed on %s", name, c.Name)
	return nil
}

const mixerHeader = `
namespace audio {

class Mixer : public Device {
public:
    Mixer(int rate);
    Mixer(const Mixer&) = delete;
    ~Mixer();

    virtual void start();
    virtual int mix(const std::string& name) = 0;
    int rate() const;
    static int version();

private:
    int rate_;
};

struct Point {
    int x;
    int y;
};

enum class Mode { Off = 0, On = 1 };

enum Flags { A = 1, B, C };

typedef unsigned int SampleRate;
using Name = std::string;

int clamp(int v, int lo, int hi);

}
`

func TestParse_Namespace(t *testing.T) {
	t.Parallel()
	set := parse(t, mixerHeader)

	require.Len(t, set.Namespaces, 1)
	assert.Equal(t, "", set.Namespaces[0].Scope)
	assert.Equal(t, "audio", set.Namespaces[0].Name)
}

func TestParse_ClassSpecials(t *testing.T) {
	t.Parallel()
	set := parse(t, mixerHeader)
	c := findClass(t, set, "Mixer")

	assert.Equal(t, "audio", c.Scope)
	assert.Equal(t, []string{"Device"}, c.Bases)
	assert.False(t, c.IsStruct)
	assert.True(t, c.HasUserDtor)
	assert.True(t, c.DeletedCopyCtor)
	assert.False(t, c.HasUserCopyCtor)
	// A declared constructor suppresses the implicit default.
	assert.False(t, c.HasDefaultCtor)

	// The deleted copy constructor shapes the facts but is not callable.
	for _, m := range c.Methods {
		if m.IsCtor {
			require.Len(t, m.Params, 1)
			assert.Equal(t, "rate", m.Params[0].Name)
		}
	}
}

func TestParse_Methods(t *testing.T) {
	t.Parallel()
	set := parse(t, mixerHeader)
	c := findClass(t, set, "Mixer")

	start := findMethod(t, c, "start")
	assert.True(t, start.IsMethod)
	assert.True(t, start.IsVirtual)
	assert.False(t, start.IsPureVirtual)

	mix := findMethod(t, c, "mix")
	assert.True(t, mix.IsPureVirtual)
	assert.Equal(t, "int", mix.ReturnType)
	require.Len(t, mix.Params, 1)
	assert.Equal(t, "name", mix.Params[0].Name)
	ref := apidb.ParseTypeRef(mix.Params[0].TypeExpr)
	assert.Equal(t, "std::string", ref.Name)
	assert.True(t, ref.Const)
	assert.True(t, ref.Reference)

	rate := findMethod(t, c, "rate")
	assert.True(t, rate.IsConst)
	assert.False(t, rate.IsStatic)

	version := findMethod(t, c, "version")
	assert.True(t, version.IsStatic)
}

func TestParse_StructFields(t *testing.T) {
	t.Parallel()
	set := parse(t, mixerHeader)
	p := findClass(t, set, "Point")

	assert.True(t, p.IsStruct)
	assert.True(t, p.HasDefaultCtor)
	require.Len(t, p.Fields, 2)
	assert.Equal(t, "x", p.Fields[0].Name)
	assert.Equal(t, "int", p.Fields[0].TypeExpr)
	assert.True(t, p.Fields[0].Public)
}

func TestParse_PrivateFields(t *testing.T) {
	t.Parallel()
	set := parse(t, mixerHeader)
	c := findClass(t, set, "Mixer")

	require.Len(t, c.Fields, 1)
	assert.Equal(t, "rate_", c.Fields[0].Name)
	assert.False(t, c.Fields[0].Public)
}

func TestParse_Enums(t *testing.T) {
	t.Parallel()
	set := parse(t, mixerHeader)
	require.Len(t, set.Enums, 2)

	mode := set.Enums[0]
	assert.Equal(t, "Mode", mode.Name)
	assert.True(t, mode.Scoped)
	require.Len(t, mode.Values, 2)
	assert.Equal(t, decl.EnumValue{Name: "Off", Value: 0}, mode.Values[0])
	assert.Equal(t, decl.EnumValue{Name: "On", Value: 1}, mode.Values[1])

	// Unassigned enumerators auto-increment from the previous value.
	flags := set.Enums[1]
	assert.False(t, flags.Scoped)
	require.Len(t, flags.Values, 3)
	assert.Equal(t, int64(1), flags.Values[0].Value)
	assert.Equal(t, int64(2), flags.Values[1].Value)
	assert.Equal(t, int64(3), flags.Values[2].Value)
}

func TestParse_Typedefs(t *testing.T) {
	t.Parallel()
	set := parse(t, mixerHeader)
	require.Len(t, set.Typedefs, 2)

	assert.Equal(t, "SampleRate", set.Typedefs[0].Name)
	assert.Equal(t, "unsigned int", set.Typedefs[0].Target)
	assert.Equal(t, "Name", set.Typedefs[1].Name)
	assert.Equal(t, "std::string", set.Typedefs[1].Target)
}

func TestParse_FreeFunction(t *testing.T) {
	t.Parallel()
	set := parse(t, mixerHeader)
	require.Len(t, set.Functions, 1)

	fn := set.Functions[0]
	assert.Equal(t, "audio", fn.Scope)
	assert.Equal(t, "clamp", fn.Name)
	assert.Equal(t, "int", fn.ReturnType)
	require.Len(t, fn.Params, 3)
	assert.Equal(t, "lo", fn.Params[1].Name)
	assert.Equal(t, "int", fn.Params[1].TypeExpr)
}

func TestParse_PointerReturnAndParams(t *testing.T) {
	t.Parallel()
	set := parse(t, `
class Widget {};
Widget* make_widget(const Widget* tmpl, int& out);
`)
	require.Len(t, set.Functions, 1)
	fn := set.Functions[0]

	ret := apidb.ParseTypeRef(fn.ReturnType)
	assert.Equal(t, "Widget", ret.Name)
	assert.Equal(t, 1, ret.Pointers)

	require.Len(t, fn.Params, 2)
	p0 := apidb.ParseTypeRef(fn.Params[0].TypeExpr)
	assert.True(t, p0.Const)
	assert.Equal(t, 1, p0.Pointers)
	p1 := apidb.ParseTypeRef(fn.Params[1].TypeExpr)
	assert.True(t, p1.Reference)
	assert.Equal(t, "i32", p1.Builtin)
}

func TestParse_NestedTypes(t *testing.T) {
	t.Parallel()
	set := parse(t, `
namespace ui {
class Panel {
public:
    enum class State { Hidden = 0, Shown = 1 };
    struct Margin { int top; int left; };
};
}
`)
	require.Len(t, set.Enums, 1)
	assert.Equal(t, "ui::Panel", set.Enums[0].Scope)

	m := findClass(t, set, "Margin")
	assert.Equal(t, "ui::Panel", m.Scope)
	assert.True(t, m.IsStruct)
}

func TestParse_DeletedDefaultCtor(t *testing.T) {
	t.Parallel()
	set := parse(t, `
class NoDefault {
public:
    NoDefault() = delete;
};
`)
	c := findClass(t, set, "NoDefault")
	assert.True(t, c.DeletedDefault)
	assert.False(t, c.HasDefaultCtor)
	assert.Empty(t, c.Methods)
}

func TestParse_MoveCtor(t *testing.T) {
	t.Parallel()
	set := parse(t, `
class Conn {
public:
    Conn(Conn&& other);
};
`)
	c := findClass(t, set, "Conn")
	assert.True(t, c.HasUserMoveCtor)
	assert.False(t, c.HasUserCopyCtor)
}

func TestParseFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "widget.h")
	require.NoError(t, os.WriteFile(path, []byte("class Widget {};"), 0644))

	set, err := New().ParseFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, set.Classes, 1)
	assert.Equal(t, "Widget", set.Classes[0].Name)

	_, err = New().ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.h"))
	require.Error(t, err)
}
