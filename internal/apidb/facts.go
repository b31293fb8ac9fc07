package apidb

import "fmt"

// SpecialFacts records a class's special-member situation, read straight
// off the declaration by the first classification pass.
type SpecialFacts struct {
	DefaultConstructible bool
	CopyConstructible    bool
	MoveConstructible    bool
	HasDestructor        bool // user-defined destructor
	UserCopyOrMove       bool // user-defined copy or move constructor
	HasVirtual           bool // declares at least one virtual method
}

// Shape is how one value crosses the ABI boundary.
type Shape int

const (
	ShapeValue     Shape = iota // relocatable types, passed as raw bytes
	ShapePointer                // opaque storage address, wrapper owns lifetime
	ShapeReference              // aliasing only, no ownership transfer
)

func (s Shape) String() string {
	switch s {
	case ShapePointer:
		return "pointer"
	case ShapeReference:
		return "reference"
	}
	return "value"
}

// FnShape is the calling shape decided for one function overload. When the
// signature cannot cross the boundary, OK is false and Reason says why; the
// overload is dropped with a diagnostic, not the whole run.
type FnShape struct {
	OK     bool
	Reason string
	Params []Shape
	Return Shape
}

// Table is the fact store for one run. Facts are monotonic: a fact set
// once is never overwritten, and passes run in a fixed order so no two
// passes race for the same slot. Writing a slot twice is a bug in the
// pass pipeline and fails loudly.
type Table struct {
	specials    map[string]SpecialFacts
	abstract    map[string]bool
	relocatable map[string]bool
	pod         map[string]bool
	shapes      map[string][]FnShape
}

// NewTable returns an empty fact table.
func NewTable() *Table {
	return &Table{
		specials:    make(map[string]SpecialFacts),
		abstract:    make(map[string]bool),
		relocatable: make(map[string]bool),
		pod:         make(map[string]bool),
		shapes:      make(map[string][]FnShape),
	}
}

// Delta is one fact produced by a pass, applied by the driver. Passes never
// touch the table directly; they return deltas, which keeps each pass a
// pure function of (entity, table).
type Delta interface {
	apply(t *Table) error
}

// Apply commits a batch of deltas.
func (t *Table) Apply(deltas []Delta) error {
	for _, d := range deltas {
		if err := d.apply(t); err != nil {
			return err
		}
	}
	return nil
}

type SetSpecials struct {
	Entity string
	Facts  SpecialFacts
}

func (d SetSpecials) apply(t *Table) error {
	if _, ok := t.specials[d.Entity]; ok {
		return fmt.Errorf("specials fact for %q set twice", d.Entity)
	}
	t.specials[d.Entity] = d.Facts
	return nil
}

type SetAbstract struct {
	Entity   string
	Abstract bool
}

func (d SetAbstract) apply(t *Table) error {
	if _, ok := t.abstract[d.Entity]; ok {
		return fmt.Errorf("abstract fact for %q set twice", d.Entity)
	}
	t.abstract[d.Entity] = d.Abstract
	return nil
}

type SetRelocatable struct {
	Entity      string
	Relocatable bool
}

func (d SetRelocatable) apply(t *Table) error {
	if _, ok := t.relocatable[d.Entity]; ok {
		return fmt.Errorf("relocatable fact for %q set twice", d.Entity)
	}
	t.relocatable[d.Entity] = d.Relocatable
	return nil
}

type SetPOD struct {
	Entity string
	POD    bool
}

func (d SetPOD) apply(t *Table) error {
	if _, ok := t.pod[d.Entity]; ok {
		return fmt.Errorf("pod fact for %q set twice", d.Entity)
	}
	t.pod[d.Entity] = d.POD
	return nil
}

type SetShapes struct {
	Entity string
	Shapes []FnShape
}

func (d SetShapes) apply(t *Table) error {
	if _, ok := t.shapes[d.Entity]; ok {
		return fmt.Errorf("shapes fact for %q set twice", d.Entity)
	}
	t.shapes[d.Entity] = d.Shapes
	return nil
}

// Accessors. The bool second return distinguishes "fact not yet computed"
// from a false fact, which is what lets passes defer on missing inputs.

func (t *Table) Specials(name string) (SpecialFacts, bool) {
	f, ok := t.specials[name]
	return f, ok
}

func (t *Table) Abstract(name string) (bool, bool) {
	v, ok := t.abstract[name]
	return v, ok
}

func (t *Table) Relocatable(name string) (bool, bool) {
	v, ok := t.relocatable[name]
	return v, ok
}

func (t *Table) POD(name string) (bool, bool) {
	v, ok := t.pod[name]
	return v, ok
}

func (t *Table) Shapes(name string) ([]FnShape, bool) {
	v, ok := t.shapes[name]
	return v, ok
}
