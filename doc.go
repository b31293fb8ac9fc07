// Package girder generates safe bidirectional call bridges between a Rust
// host crate and a native C++ library. Given parsed C++ headers and a
// generation request, it produces two coordinated artifacts: a Rust
// wrapper module and a C++ shim translation unit that compile separately
// and link against each other.
//
// # Pipeline
//
// Generation runs in fixed stages:
//
//  1. Ingest: normalize the parsed declarations into an entity database
//     keyed by fully-qualified name, merging function overloads under one
//     entity.
//
//  2. Classify: run ordered analysis passes to a fixed point, deciding
//     for every type whether it is relocatable, POD, or abstract, and for
//     every function overload how each parameter and return value crosses
//     the boundary.
//
//  3. Reach: expand the request's allow-list (exact names plus trailing
//     namespace wildcards) into the closure of entities the artifacts
//     must contain.
//
//  4. Name: assign every emitted function exactly one flat shim symbol
//     and one host name, collapsing overloads deterministically.
//
//  5. Subclass: plan trampolines for classes the host wants to extend,
//     one per overridable virtual method.
//
//  6. Emit: render both artifacts from the same frozen plan and verify
//     the link-consistency invariant — every shim symbol defined exactly
//     once native-side and referenced at least once host-side.
//
// # Usage
//
// Create an Engine, load a request, and generate:
//
//	eng := girder.New()
//	req, err := girder.LoadRequest("bridge.yaml")
//	if err != nil { ... }
//
//	res, err := eng.GenerateFromHeaders(ctx, []string{"widget.h"}, req)
//	if err != nil { ... }
//	os.WriteFile("bridge.rs", res.Artifacts.RustSource, 0o644)
//	os.WriteFile("bridge_shim.cc", res.Artifacts.CxxSource, 0o644)
//
// Partial success is the default: entities that cannot cross the boundary
// are dropped with diagnostics in [Result.Diagnostics] while the rest of
// the closure generates. Only identity conflicts, symbol collisions, and
// classification divergence abort a run.
//
// # Rules scripts
//
// A request may name a Risor rules script that amends it before the
// pipeline runs: adding or excluding entities, forcing POD treatment, or
// requesting subclass support. See the internal/rules package for the
// host functions exposed to scripts.
package girder
