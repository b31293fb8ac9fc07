package emit

import (
	"fmt"
	"sort"
)

// Usage tracks which emitter defined and which referenced each flat
// symbol. The link-consistency invariant — every symbol defined exactly
// once on the native side and referenced at least once on the host side —
// is what makes the two separately compiled artifacts link. It is checked
// mechanically after both emitters run, not assumed.
type Usage struct {
	defined    map[string]int // symbol -> definition count (native emitter)
	referenced map[string]int // symbol -> reference count (host emitter)
}

// NewUsage returns an empty tracker.
func NewUsage() *Usage {
	return &Usage{
		defined:    make(map[string]int),
		referenced: make(map[string]int),
	}
}

// Define records the native emitter writing a definition for symbol.
func (u *Usage) Define(symbol string) { u.defined[symbol]++ }

// Reference records the host emitter writing a call site for symbol.
func (u *Usage) Reference(symbol string) { u.referenced[symbol]++ }

// Check verifies the invariant over everything either emitter touched.
// A violation is a bug in the emitters, surfaced as a fatal error rather
// than a silently broken artifact pair.
func (u *Usage) Check() error {
	var symbols []string
	seen := make(map[string]bool)
	for s := range u.defined {
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	for s := range u.referenced {
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)

	for _, s := range symbols {
		switch {
		case u.defined[s] == 0:
			return fmt.Errorf("link consistency: %q referenced by the host wrapper but never defined in the shim", s)
		case u.defined[s] > 1:
			return fmt.Errorf("link consistency: %q defined %d times in the shim", s, u.defined[s])
		case u.referenced[s] == 0:
			return fmt.Errorf("link consistency: %q defined in the shim but never referenced by the host wrapper", s)
		}
	}
	return nil
}
