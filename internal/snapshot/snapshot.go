// Package snapshot persists a generation run to SQLite for post-run
// inspection. The pipeline itself runs entirely in memory; the snapshot is
// written once after emission and queried by the CLI's inspect command.
// Rewriting the snapshot for a new run drops the previous one.
package snapshot

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite access layer for run snapshots.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the snapshot tables. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS entities (
  id         INTEGER PRIMARY KEY,
  name       TEXT NOT NULL UNIQUE,
  scope      TEXT NOT NULL,
  kind       TEXT NOT NULL,
  ord        INTEGER NOT NULL,
  reachable  BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS facts (
  id                    INTEGER PRIMARY KEY,
  entity                TEXT NOT NULL UNIQUE,
  relocatable           BOOLEAN,
  pod                   BOOLEAN,
  abstract              BOOLEAN,
  default_constructible BOOLEAN,
  copy_constructible    BOOLEAN,
  move_constructible    BOOLEAN
);

CREATE TABLE IF NOT EXISTS symbols (
  id        INTEGER PRIMARY KEY,
  shim      TEXT NOT NULL UNIQUE,
  host      TEXT NOT NULL,
  entity    TEXT NOT NULL,
  kind      TEXT NOT NULL,
  overload  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trampolines (
  id       INTEGER PRIMARY KEY,
  class    TEXT NOT NULL,
  method   TEXT NOT NULL,
  slot     INTEGER NOT NULL,
  symbol   TEXT NOT NULL,
  super    TEXT,
  binding  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS diagnostics (
  id        INTEGER PRIMARY KEY,
  severity  TEXT NOT NULL,
  code      TEXT NOT NULL,
  entity    TEXT NOT NULL,
  message   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key    TEXT PRIMARY KEY,
  value  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
CREATE INDEX IF NOT EXISTS idx_symbols_entity ON symbols(entity);
CREATE INDEX IF NOT EXISTS idx_diagnostics_entity ON diagnostics(entity);
`

// Reset clears all snapshot rows so a new run replaces the old one.
func (s *Store) Reset() error {
	for _, table := range []string{"entities", "facts", "symbols", "trampolines", "diagnostics"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

// SetMetadata stores a key/value pair, replacing any existing value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for key, or "" when absent.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Entity is one snapshot row of the entity table.
type Entity struct {
	Name      string
	Scope     string
	Kind      string
	Ord       int
	Reachable bool
}

// Fact is one entity's classification summary.
type Fact struct {
	Entity               string
	Relocatable          *bool
	POD                  *bool
	Abstract             *bool
	DefaultConstructible *bool
	CopyConstructible    *bool
	MoveConstructible    *bool
}

// Symbol is one assigned shim symbol.
type Symbol struct {
	Shim     string
	Host     string
	Entity   string
	Kind     string
	Overload int
}

// Trampoline is one subclass override slot.
type Trampoline struct {
	Class   string
	Method  string
	Slot    int
	Symbol  string
	Super   string
	Binding string
}

// Diagnostic is one recorded notice.
type Diagnostic struct {
	Severity string
	Code     string
	Entity   string
	Message  string
}

// InsertEntity writes one entity row within tx.
func (s *Store) InsertEntity(tx *sql.Tx, e *Entity) error {
	_, err := tx.Exec(
		"INSERT INTO entities (name, scope, kind, ord, reachable) VALUES (?, ?, ?, ?, ?)",
		e.Name, e.Scope, e.Kind, e.Ord, e.Reachable,
	)
	return err
}

// InsertFact writes one fact row within tx.
func (s *Store) InsertFact(tx *sql.Tx, f *Fact) error {
	_, err := tx.Exec(
		`INSERT INTO facts (entity, relocatable, pod, abstract,
		   default_constructible, copy_constructible, move_constructible)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.Entity, f.Relocatable, f.POD, f.Abstract,
		f.DefaultConstructible, f.CopyConstructible, f.MoveConstructible,
	)
	return err
}

// InsertSymbol writes one symbol row within tx.
func (s *Store) InsertSymbol(tx *sql.Tx, sym *Symbol) error {
	_, err := tx.Exec(
		"INSERT INTO symbols (shim, host, entity, kind, overload) VALUES (?, ?, ?, ?, ?)",
		sym.Shim, sym.Host, sym.Entity, sym.Kind, sym.Overload,
	)
	return err
}

// InsertTrampoline writes one trampoline row within tx.
func (s *Store) InsertTrampoline(tx *sql.Tx, t *Trampoline) error {
	_, err := tx.Exec(
		"INSERT INTO trampolines (class, method, slot, symbol, super, binding) VALUES (?, ?, ?, ?, ?, ?)",
		t.Class, t.Method, t.Slot, t.Symbol, t.Super, t.Binding,
	)
	return err
}

// InsertDiagnostic writes one diagnostic row within tx.
func (s *Store) InsertDiagnostic(tx *sql.Tx, d *Diagnostic) error {
	_, err := tx.Exec(
		"INSERT INTO diagnostics (severity, code, entity, message) VALUES (?, ?, ?, ?)",
		d.Severity, d.Code, d.Entity, d.Message,
	)
	return err
}

// Entities returns snapshot entities in pipeline order, optionally
// filtered by kind ("" means all).
func (s *Store) Entities(kind string) ([]Entity, error) {
	query := "SELECT name, scope, kind, ord, reachable FROM entities"
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY ord"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.Name, &e.Scope, &e.Kind, &e.Ord, &e.Reachable); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FactFor returns the classification summary for one entity, or nil.
func (s *Store) FactFor(entity string) (*Fact, error) {
	f := Fact{Entity: entity}
	err := s.db.QueryRow(
		`SELECT relocatable, pod, abstract, default_constructible,
		   copy_constructible, move_constructible
		 FROM facts WHERE entity = ?`, entity,
	).Scan(&f.Relocatable, &f.POD, &f.Abstract,
		&f.DefaultConstructible, &f.CopyConstructible, &f.MoveConstructible)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// SymbolsFor returns the symbols assigned to one entity, in overload order.
func (s *Store) SymbolsFor(entity string) ([]Symbol, error) {
	rows, err := s.db.Query(
		"SELECT shim, host, entity, kind, overload FROM symbols WHERE entity = ? ORDER BY overload",
		entity,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Symbol
	for rows.Next() {
		var sym Symbol
		if err := rows.Scan(&sym.Shim, &sym.Host, &sym.Entity, &sym.Kind, &sym.Overload); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// Trampolines returns all trampoline rows, by class then slot.
func (s *Store) Trampolines() ([]Trampoline, error) {
	rows, err := s.db.Query(
		"SELECT class, method, slot, symbol, COALESCE(super, ''), binding FROM trampolines ORDER BY class, slot",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trampoline
	for rows.Next() {
		var t Trampoline
		if err := rows.Scan(&t.Class, &t.Method, &t.Slot, &t.Symbol, &t.Super, &t.Binding); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Diagnostics returns all recorded diagnostics in emission order.
func (s *Store) Diagnostics() ([]Diagnostic, error) {
	rows, err := s.db.Query("SELECT severity, code, entity, message FROM diagnostics ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Diagnostic
	for rows.Next() {
		var d Diagnostic
		if err := rows.Scan(&d.Severity, &d.Code, &d.Entity, &d.Message); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
