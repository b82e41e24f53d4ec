// Package loader resolves the import tree of a Slang entry module and loads
// every module into a compiler session exactly once, dependencies first.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/jormeli/slangload/pkg/compiler"
	"github.com/jormeli/slangload/pkg/depgraph"
	"github.com/jormeli/slangload/pkg/imports"
	"github.com/jormeli/slangload/pkg/resolve"
)

// DefaultMaxDepth is the import nesting limit used when none is configured.
const DefaultMaxDepth = 64

const (
	spanLoadModule = "slangload.load_module"

	attrPath  = "slang.path"
	attrDepth = "slang.depth"

	parentSegment = "../"
	chainArrow    = " -> "
)

var (
	// ErrCycleDetected is returned when a module imports one of its own importers.
	ErrCycleDetected = errors.New("import cycle detected")
	// ErrMaxDepthExceeded is returned when imports nest deeper than the configured limit.
	ErrMaxDepthExceeded = errors.New("max import depth exceeded")
)

// ModuleLoader is the part of a compiler session the loader drives.
type ModuleLoader interface {
	LoadModuleFromSource(source, name, path string) (compiler.Module, error)
}

// Result is the outcome of a top-level load.
type Result struct {
	// Modules holds one handle per distinct file, dependencies first, entry last.
	Modules []compiler.Module
	// Dependencies holds every imported file; the entry itself is not included.
	Dependencies *DependencySet
	// Graph records every resolved import edge.
	Graph *depgraph.Graph
	// Missing lists the candidate paths climbing looked at and found absent.
	Missing []string
}

// Loader resolves and loads module trees. A Loader holds no per-request
// state and can serve concurrent requests.
type Loader struct {
	fsys     resolve.FileSystem
	maxDepth int
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Loader.
type Option func(*Loader)

// WithMaxDepth sets the import nesting limit. Zero disables the limit.
func WithMaxDepth(depth int) Option {
	return func(l *Loader) {
		l.maxDepth = depth
	}
}

// WithLogger sets the logger used for resolution events.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTracer sets the tracer used for per-module spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(l *Loader) {
		if tracer != nil {
			l.tracer = tracer
		}
	}
}

// New creates a Loader reading modules from fsys.
func New(fsys resolve.FileSystem, opts ...Option) *Loader {
	l := &Loader{
		fsys:     fsys,
		maxDepth: DefaultMaxDepth,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   nooptrace.NewTracerProvider().Tracer(""),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load runs a top-level request for entryPath with a fresh dependency set.
func (l *Loader) Load(ctx context.Context, session ModuleLoader, entryPath, rootPath string) (*Result, error) {
	graph := depgraph.New()

	w, err := l.newWalk(session, entryPath, rootPath, NewDependencySet(), graph)
	if err != nil {
		return nil, err
	}

	modules, err := w.run(ctx)
	if err != nil {
		return nil, err
	}

	return &Result{Modules: modules, Dependencies: w.deps, Graph: graph, Missing: w.stats.Missing()}, nil
}

// LoadModule loads entryPath and, recursively, every module it imports that
// is not yet in deps. Imports are resolved against rootPath by
// directory-climbing search. The returned modules are ordered dependencies
// first with entryPath last; deps is the same set passed in, grown by every
// imported path.
func (l *Loader) LoadModule(
	ctx context.Context, session ModuleLoader, entryPath, rootPath string, deps *DependencySet,
) ([]compiler.Module, *DependencySet, error) {
	if deps == nil {
		deps = NewDependencySet()
	}

	w, err := l.newWalk(session, entryPath, rootPath, deps, depgraph.New())
	if err != nil {
		return nil, nil, err
	}

	modules, err := w.run(ctx)
	if err != nil {
		return nil, nil, err
	}

	return modules, deps, nil
}

func (l *Loader) newWalk(
	session ModuleLoader, entryPath, rootPath string, deps *DependencySet, graph *depgraph.Graph,
) (*walk, error) {
	entry, absErr := filepath.Abs(entryPath)
	if absErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", resolve.ErrUnresolvableImport, entryPath, absErr)
	}

	root, absErr := filepath.Abs(rootPath)
	if absErr != nil {
		return nil, fmt.Errorf("resolve root %s: %w", rootPath, absErr)
	}

	stats := resolve.NewStatCache(l.fsys)

	return &walk{
		loader:  l,
		session: session,
		entry:   entry,
		root:    root,
		stats:   stats,
		deps:    deps,
		graph:   graph,
		pending: make(map[string]bool),
	}, nil
}

// walk is the state of one request. Requests run strictly sequentially, so
// none of it is synchronized.
type walk struct {
	loader  *Loader
	session ModuleLoader
	entry   string
	root    string
	stats   *resolve.StatCache
	deps    *DependencySet
	graph   *depgraph.Graph
	pending map[string]bool
	stack   []string
}

func (w *walk) run(ctx context.Context) ([]compiler.Module, error) {
	w.graph.AddNode(w.entry)

	return w.visit(ctx, w.entry, 0)
}

func (w *walk) visit(ctx context.Context, path string, depth int) ([]compiler.Module, error) {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return nil, fmt.Errorf("load %s: %w", path, ctxErr)
	}

	if w.loader.maxDepth > 0 && depth > w.loader.maxDepth {
		return nil, fmt.Errorf("%w (%d) at %s", ErrMaxDepthExceeded, w.loader.maxDepth, path)
	}

	ctx, span := w.loader.tracer.Start(ctx, spanLoadModule, trace.WithAttributes(
		attribute.String(attrPath, path),
		attribute.Int(attrDepth, depth),
	))
	defer span.End()

	data, readErr := w.stats.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", resolve.ErrUnresolvableImport, path, readErr)
	}

	source := string(data)

	w.pending[path] = true
	w.stack = append(w.stack, path)

	defer func() {
		delete(w.pending, path)
		w.stack = w.stack[:len(w.stack)-1]
	}()

	var modules []compiler.Module

	for _, ref := range imports.Scan(source) {
		dep, climbErr := resolve.Climb(w.stats, w.root, ref)
		if climbErr != nil {
			return nil, climbErr
		}

		w.graph.AddImport(path, dep)

		if w.deps.Has(dep) {
			continue
		}

		if w.pending[dep] {
			return nil, fmt.Errorf("%w: %s", ErrCycleDetected, w.chain(dep))
		}

		w.loader.logger.DebugContext(ctx, "resolved import", "ref", ref, "path", dep, "importer", path)

		depModules, depErr := w.visit(ctx, dep, depth+1)
		if depErr != nil {
			return nil, depErr
		}

		modules = append(modules, depModules...)
		w.deps.Add(dep)
	}

	name := DisplayName(w.root, path)

	mod, loadErr := w.session.LoadModuleFromSource(source, name, path)
	if loadErr != nil {
		return nil, fmt.Errorf("load module %s: %w", path, loadErr)
	}

	return append(modules, mod), nil
}

// chain renders the import stack from the first occurrence of dep back to dep.
func (w *walk) chain(dep string) string {
	start := 0

	for i, path := range w.stack {
		if path == dep {
			start = i

			break
		}
	}

	names := make([]string, 0, len(w.stack)-start+1)
	for _, path := range w.stack[start:] {
		names = append(names, DisplayName(w.root, path))
	}

	names = append(names, DisplayName(w.root, dep))

	return strings.Join(names, chainArrow)
}

// DisplayName is the virtual module name of path: relative to root, without
// the .slang extension and without parent-directory segments.
func DisplayName(root, path string) string {
	rel, relErr := filepath.Rel(root, path)
	if relErr != nil {
		rel = filepath.Base(path)
	}

	name := filepath.ToSlash(strings.TrimSuffix(rel, imports.SourceExt))

	return strings.ReplaceAll(name, parentSegment, "")
}
