// Package diag collects the ordered, non-fatal notices a generation run
// produces: excluded entities, renamed overloads, skipped trampolines.
// Fatal conditions are ordinary Go errors and never pass through here.
package diag

import "fmt"

// Severity of a diagnostic. Notes record decisions (an overload was
// renamed); warnings record losses (an entity was excluded).
type Severity int

const (
	Note Severity = iota
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "note"
}

// Code identifies the class of diagnostic, mirroring the error taxonomy.
type Code string

const (
	CodeUnknownType     Code = "unknown-type"
	CodeUnrepresentable Code = "unrepresentable-signature"
	CodeOverloadRenamed Code = "overload-renamed"
	CodeTrampolineSkip  Code = "trampoline-skipped"
	CodeEntityDropped   Code = "entity-dropped"
)

// Diagnostic is one notice tied to an entity.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Entity   string // fully-qualified name of the affected entity
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s[%s] %s: %s", d.Severity, d.Code, d.Entity, d.Message)
}

// List accumulates diagnostics in emission order.
type List struct {
	items []Diagnostic
}

// Add appends a diagnostic.
func (l *List) Add(sev Severity, code Code, entity, format string, args ...any) {
	l.items = append(l.items, Diagnostic{
		Severity: sev,
		Code:     code,
		Entity:   entity,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Notef appends a note.
func (l *List) Notef(code Code, entity, format string, args ...any) {
	l.Add(Note, code, entity, format, args...)
}

// Warnf appends a warning.
func (l *List) Warnf(code Code, entity, format string, args ...any) {
	l.Add(Warning, code, entity, format, args...)
}

// Items returns the accumulated diagnostics in order.
func (l *List) Items() []Diagnostic {
	return l.items
}

// Len returns the number of diagnostics.
func (l *List) Len() int { return len(l.items) }
