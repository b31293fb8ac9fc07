// Package rules runs caller-supplied Risor scripts that amend a generation
// request before the pipeline sees it. A rules script is the programmable
// edge of the request file: it can add or exclude entities, force POD
// classification, ask for subclass support, and add shim includes, based on
// whatever logic the caller wants to express.
package rules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"
)

// Amendments is everything a rules script asked for, applied to the
// request by the engine after the script finishes.
type Amendments struct {
	Allow            []string
	Exclude          []string
	PODOverrides     map[string]bool
	SubclassRequests []string
	ExtraIncludes    []string
}

// Runtime embeds a Risor VM and exposes the request-amending host
// functions to scripts.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithFS loads scripts from an fs.FS instead of from disk, enabling
// embedded rules via go:embed.
func WithFS(fsys fs.FS) Option {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// NewRuntime creates a Runtime that loads scripts relative to scriptsDir
// (or from an fs.FS when WithFS is given).
func NewRuntime(scriptsDir string, opts ...Option) *Runtime {
	r := &Runtime{scriptsDir: scriptsDir}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript loads and executes a rules script, returning its amendments.
func (r *Runtime) RunScript(ctx context.Context, path string) (*Amendments, error) {
	src, err := r.loadScript(path)
	if err != nil {
		return nil, err
	}
	return r.eval(ctx, src, path)
}

// RunSource executes rules source directly. Useful for tests and inline
// request-file scripts.
func (r *Runtime) RunSource(ctx context.Context, source string) (*Amendments, error) {
	return r.eval(ctx, source, "<inline>")
}

func (r *Runtime) eval(ctx context.Context, source, label string) (*Amendments, error) {
	am := &Amendments{PODOverrides: make(map[string]bool)}

	var opts []risor.Option
	for name, val := range buildGlobals(am) {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return nil, fmt.Errorf("rules: script %s: %w", label, err)
	}
	return am, nil
}

func (r *Runtime) loadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := filepath.ToSlash(path)
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("rules: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}
	fullPath := path
	if !filepath.IsAbs(path) && r.scriptsDir != "" {
		fullPath = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("rules: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the host functions exposed to rules scripts.
// Each one records into the Amendments; nothing touches the pipeline
// directly.
func buildGlobals(am *Amendments) map[string]any {
	return map[string]any{
		"allow":            makeAppendFn("allow", &am.Allow),
		"exclude":          makeAppendFn("exclude", &am.Exclude),
		"request_subclass": makeAppendFn("request_subclass", &am.SubclassRequests),
		"add_include":      makeAppendFn("add_include", &am.ExtraIncludes),
		"force_pod":        makeForcePODFn(am),
		"log":              mustProxy(&logObject{prefix: "girder"}),
	}
}

// makeAppendFn creates a one-string-argument host function appending to
// the given slice.
func makeAppendFn(name string, dst *[]string) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		s, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("%s: argument must be a string, got %s", name, args[0].Type())
		}
		*dst = append(*dst, s.Value())
		return object.Nil
	})
}

// makeForcePODFn creates force_pod(name, is_pod).
func makeForcePODFn(am *Amendments) *object.Builtin {
	return object.NewBuiltin("force_pod", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("force_pod", 2, len(args))
		}
		s, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("force_pod: name must be a string, got %s", args[0].Type())
		}
		b, ok := args[1].(*object.Bool)
		if !ok {
			return object.Errorf("force_pod: value must be a bool, got %s", args[1].Type())
		}
		am.PODOverrides[s.Value()] = b.Value()
		return object.Nil
	})
}

// logObject provides log.info/warn/error methods for rules scripts.
type logObject struct {
	prefix string
}

func (l *logObject) Info(msg string) {
	fmt.Fprintf(os.Stderr, "[%s] INFO: %s\n", l.prefix, msg)
}

func (l *logObject) Warn(msg string) {
	fmt.Fprintf(os.Stderr, "[%s] WARN: %s\n", l.prefix, msg)
}

func (l *logObject) Error(msg string) {
	fmt.Fprintf(os.Stderr, "[%s] ERROR: %s\n", l.prefix, msg)
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("rules: proxy error: %v", err))
	}
	return p
}
