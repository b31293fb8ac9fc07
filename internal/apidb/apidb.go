// Package apidb holds the in-memory semantic model for one generation run:
// every native declaration of interest, keyed by fully-qualified name, plus
// the fact table that classification passes fill in. Entities are created
// once during ingestion and never deleted; the whole database is discarded
// when emission finishes.
package apidb

import "fmt"

// DuplicateIdentityError reports two different declarations ingested under
// the same fully-qualified name. Fatal: the input is malformed.
type DuplicateIdentityError struct {
	Name string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("duplicate identity: %q already ingested", e.Name)
}

// UnknownTypeError reports a type reference naming an entity that was never
// ingested. Recoverable: the referencing entity is excluded with a
// diagnostic rather than aborting the run.
type UnknownTypeError struct {
	Name string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type: %q not in database", e.Name)
}

// DB is the entity arena. Iteration order is insertion order, which makes
// every downstream stage deterministic for unchanged input.
type DB struct {
	byName map[string]*Entity
	order  []*Entity
}

// New returns an empty database.
func New() *DB {
	return &DB{byName: make(map[string]*Entity)}
}

// Insert adds an entity. Overload merging is the caller's job: inserting a
// function name twice is still a duplicate-identity error here.
func (db *DB) Insert(e *Entity) error {
	if _, exists := db.byName[e.Name]; exists {
		return &DuplicateIdentityError{Name: e.Name}
	}
	e.Order = len(db.order)
	db.byName[e.Name] = e
	db.order = append(db.order, e)
	return nil
}

// Lookup returns the entity with the given fully-qualified name, or nil.
func (db *DB) Lookup(name string) *Entity {
	return db.byName[name]
}

// Resolve follows a type reference to its entity. Builtin refs resolve to
// nil with no error. Typedef chains are followed to the underlying entity;
// the visited set guards against typedef cycles, which resolve as unknown.
func (db *DB) Resolve(ref TypeRef) (*Entity, error) {
	if ref.IsBuiltin() {
		return nil, nil
	}
	if ref.Name == "" {
		return nil, nil
	}
	visited := make(map[string]bool)
	name := ref.Name
	for {
		if visited[name] {
			return nil, &UnknownTypeError{Name: ref.Name}
		}
		visited[name] = true

		e, ok := db.byName[name]
		if !ok {
			return nil, &UnknownTypeError{Name: name}
		}
		if e.Kind != KindTypedef {
			return e, nil
		}
		target := ParseTypeRef(e.Typedef.Target)
		if target.IsBuiltin() || target.Name == "" {
			// Alias of a fundamental type: resolves like a builtin.
			return nil, nil
		}
		name = target.Name
	}
}

// Iterate returns entities of the given kind in insertion order. KindAny
// returns everything. The returned slice is shared; callers must not
// mutate it.
func (db *DB) Iterate(kind Kind) []*Entity {
	if kind == KindAny {
		return db.order
	}
	var out []*Entity
	for _, e := range db.order {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entities.
func (db *DB) Len() int { return len(db.order) }
