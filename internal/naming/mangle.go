package naming

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/jward/girder/internal/apidb"
	"github.com/jward/girder/decl"
)

// shimPrefix namespaces every generated ABI symbol. The shim namespace is
// globally flat, so the full scope path rides inside the symbol.
const shimPrefix = "girder"

// operatorNames maps C++ operator tokens to host-side method names.
// Operators outside this table cannot be represented and are dropped
// per-overload with a diagnostic.
var operatorNames = map[string]string{
	"operator==": "eq",
	"operator!=": "ne",
	"operator<":  "lt",
	"operator<=": "le",
	"operator>":  "gt",
	"operator>=": "ge",
	"operator+":  "add",
	"operator-":  "sub",
	"operator*":  "mul",
	"operator/":  "div",
	"operator[]": "index",
	"operator()": "call",
}

// sanitize rewrites a qualified name into a flat identifier chunk:
// "audio::engine::Mixer" -> "audio_engine_Mixer". Any character that can't
// appear in a C identifier becomes an underscore.
func sanitize(name string) string {
	name = strings.ReplaceAll(name, "::", "_")
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Symbol builds the flat ABI symbol for a scope/name pair plus an
// optional overload suffix. Exported so the subclass synthesizer mints its
// trampoline symbols with the same shape (and registers them on the Set).
func Symbol(scope, name, suffix string) string {
	parts := []string{shimPrefix}
	if scope != "" {
		parts = append(parts, sanitize(scope))
	}
	parts = append(parts, sanitize(name))
	if suffix != "" {
		parts = append(parts, suffix)
	}
	return strings.Join(parts, "_")
}

// overloadSuffix derives the deterministic disambiguator for one overload:
// the first two bytes of the SHA-256 of the normalized parameter-type
// signature, hex encoded. Parameter names don't participate, so renames
// never churn generated symbols.
func overloadSuffix(fn *decl.Function) string {
	var sig []string
	for _, p := range fn.Params {
		sig = append(sig, apidb.ParseTypeRef(p.TypeExpr).String())
	}
	sum := sha256.Sum256([]byte(strings.Join(sig, ",")))
	return hex.EncodeToString(sum[:2])
}
