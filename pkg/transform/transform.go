// Package transform turns a Slang entry module id into a JavaScript module
// exporting the compiled target code. It is the host-facing half of the
// loader: id matching, session lifecycle, linking, and error shaping.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"

	"github.com/jormeli/slangload/pkg/compiler"
	"github.com/jormeli/slangload/pkg/loader"
	"github.com/jormeli/slangload/pkg/observability"
	"github.com/jormeli/slangload/pkg/resolve"
)

// DefaultTarget is the compile target used when an id carries no query.
const DefaultTarget = "wgsl"

const (
	opTransform   = "transform"
	spanTransform = "slangload.transform"
	spanLink      = "slangload.link"

	attrEntry   = "slang.entry"
	attrTarget  = "slang.target"
	attrModules = "slang.modules"
	attrCached  = "slang.cached"

	// targetCodeIndex selects the single entry point/target pair of a link.
	targetCodeIndex = 0
)

var idRE = regexp.MustCompile(`(?i)\.slang(\?([A-Za-z0-9_-]+))?$`)

// Request is a matched module id.
type Request struct {
	ID   string
	Path string
	// Target is the query part of the id, empty when absent.
	Target string
}

// Match reports whether id names a Slang module and splits it into path and
// target query.
func Match(id string) (Request, bool) {
	loc := idRE.FindStringSubmatchIndex(id)
	if loc == nil {
		return Request{}, false
	}

	req := Request{ID: id, Path: id}

	if loc[4] >= 0 {
		req.Path = id[:loc[2]]
		req.Target = id[loc[4]:loc[5]]
	}

	return req, true
}

// Output is a successful transform.
type Output struct {
	ID     string
	Entry  string
	Target string
	// Code is the raw generated target code.
	Code string
	// Module is Code wrapped as a JavaScript default export.
	Module string
	// Dependencies lists every imported file; the entry is not included.
	Dependencies []string
	Modules      int
	Cached       bool
}

// Transformer compiles Slang entry modules. It is safe for concurrent use;
// each request owns its own sessions and dependency set.
type Transformer struct {
	rt            compiler.Runtime
	fsys          resolve.FileSystem
	defaultTarget string
	root          string
	maxDepth      int
	pluginName    string
	logger        *slog.Logger
	tracer        trace.Tracer
	metrics       *observability.REDMetrics
	cache         *Cache
	tracker       Tracker

	loader   *loader.Loader
	inflight singleflight.Group
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithDefaultTarget sets the target used for ids without a query.
func WithDefaultTarget(target string) Option {
	return func(t *Transformer) {
		if target != "" {
			t.defaultTarget = target
		}
	}
}

// WithRoot fixes the import search root. By default each entry's own
// directory is used.
func WithRoot(root string) Option {
	return func(t *Transformer) { t.root = root }
}

// WithMaxDepth sets the import nesting limit.
func WithMaxDepth(depth int) Option {
	return func(t *Transformer) { t.maxDepth = depth }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transformer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(t *Transformer) {
		if tracer != nil {
			t.tracer = tracer
		}
	}
}

// WithMetrics records request metrics.
func WithMetrics(metrics *observability.REDMetrics) Option {
	return func(t *Transformer) { t.metrics = metrics }
}

// WithCache enables the artifact cache.
func WithCache(cache *Cache) Option {
	return func(t *Transformer) { t.cache = cache }
}

// WithTracker reports each output's input files to tracker.
func WithTracker(tracker Tracker) Option {
	return func(t *Transformer) { t.tracker = tracker }
}

// WithPluginName sets the plugin name carried by errors.
func WithPluginName(name string) Option {
	return func(t *Transformer) {
		if name != "" {
			t.pluginName = name
		}
	}
}

// New creates a Transformer compiling with rt and reading sources from fsys.
func New(rt compiler.Runtime, fsys resolve.FileSystem, opts ...Option) *Transformer {
	t := &Transformer{
		rt:            rt,
		fsys:          fsys,
		defaultTarget: DefaultTarget,
		maxDepth:      loader.DefaultMaxDepth,
		pluginName:    DefaultPluginName,
		logger:        slog.New(slog.DiscardHandler),
		tracer:        nooptrace.NewTracerProvider().Tracer(""),
	}

	for _, opt := range opts {
		opt(t)
	}

	t.loader = loader.New(fsys,
		loader.WithMaxDepth(t.maxDepth),
		loader.WithLogger(t.logger),
		loader.WithTracer(t.tracer),
	)

	return t
}

// Load compiles the module named by id. Ids that do not name a Slang module
// return a nil Output and nil error so the host can hand them to another
// loader. Every failure is returned as *Error, attributed to the module file
// with the target query stripped.
func (t *Transformer) Load(ctx context.Context, id string) (*Output, error) {
	req, ok := Match(id)
	if !ok {
		return nil, nil
	}

	out, err := t.Compile(ctx, req)
	if err != nil {
		return nil, t.hostError(req.Path, err)
	}

	return out, nil
}

// Compile runs a matched request. Errors are returned unshaped.
func (t *Transformer) Compile(ctx context.Context, req Request) (*Output, error) {
	start := time.Now()

	done := t.metrics.TrackInflight(ctx, opTransform)
	defer done()

	out, err := t.compile(ctx, req)

	status := observability.StatusOK
	if err != nil {
		status = observability.StatusError
	}

	t.metrics.RecordRequest(ctx, opTransform, status, time.Since(start))

	return out, err
}

func (t *Transformer) compile(ctx context.Context, req Request) (*Output, error) {
	targetName := req.Target
	if targetName == "" {
		targetName = t.defaultTarget
	}

	target, lookupErr := compiler.Lookup(t.rt, targetName)
	if lookupErr != nil {
		return nil, lookupErr
	}

	entry, absErr := filepath.Abs(req.Path)
	if absErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", resolve.ErrUnresolvableImport, req.Path, absErr)
	}

	root := t.root
	if root == "" {
		root = filepath.Dir(entry)
	}

	key := entry + "?" + strings.ToLower(target.Name)

	res, err, _ := t.inflight.Do(key, func() (any, error) {
		return t.build(ctx, req.ID, entry, root, key, target)
	})
	if err != nil {
		return nil, err
	}

	shared, _ := res.(*Output)
	out := *shared
	out.ID = req.ID
	out.Dependencies = slices.Clone(shared.Dependencies)

	if t.tracker != nil {
		t.tracker.TrackFiles(out.Entry, out.Dependencies)
	}

	return &out, nil
}

func (t *Transformer) build(
	ctx context.Context, id, entry, root, key string, target compiler.Target,
) (*Output, error) {
	targetName := strings.ToLower(target.Name)
	start := time.Now()

	ctx, span := t.tracer.Start(ctx, spanTransform, trace.WithAttributes(
		attribute.String(attrEntry, entry),
		attribute.String(attrTarget, targetName),
	))
	defer span.End()

	if t.cache != nil {
		art, hit := t.cache.Get(key, t.fsys)
		t.metrics.RecordCache(ctx, hit)

		if hit {
			span.SetAttributes(attribute.Bool(attrCached, true))
			t.logger.DebugContext(ctx, "artifact cache hit", "entry", entry, "target", targetName)

			return &Output{
				ID:           id,
				Entry:        entry,
				Target:       targetName,
				Code:         art.Code,
				Module:       WrapModule(art.Code),
				Dependencies: art.Dependencies,
				Modules:      len(art.Dependencies) + 1,
				Cached:       true,
			}, nil
		}
	}

	code, result, err := t.link(ctx, entry, root, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	deps := result.Dependencies.Paths()

	span.SetAttributes(attribute.Int(attrModules, len(result.Modules)))
	t.metrics.RecordModules(ctx, targetName, len(result.Modules))

	t.logger.InfoContext(ctx, "compiled",
		"entry", entry,
		"target", targetName,
		"modules", len(result.Modules),
		"duration", time.Since(start),
	)

	if t.cache != nil {
		t.store(key, entry, code, deps, result.Missing)
	}

	return &Output{
		ID:           id,
		Entry:        entry,
		Target:       targetName,
		Code:         code,
		Module:       WrapModule(code),
		Dependencies: deps,
		Modules:      len(result.Modules),
	}, nil
}

// link runs the compiler pipeline for one request with fresh sessions.
func (t *Transformer) link(
	ctx context.Context, entry, root string, target compiler.Target,
) (string, *loader.Result, error) {
	global, err := t.rt.CreateGlobalSession()
	if err != nil {
		return "", nil, err
	}

	session, err := global.CreateSession(target.Value)
	if err != nil {
		return "", nil, err
	}

	result, err := t.loader.Load(ctx, session, entry, root)
	if err != nil {
		return "", nil, err
	}

	program, err := session.CreateCompositeComponentType(result.Modules)
	if err != nil {
		return "", nil, err
	}

	linkCtx, span := t.tracer.Start(ctx, spanLink)
	linked, err := program.Link(linkCtx)
	span.End()

	if err != nil {
		return "", nil, err
	}

	code, err := linked.TargetCode(targetCodeIndex)
	if err != nil {
		return "", nil, err
	}

	return code, result, nil
}

func (t *Transformer) store(key, entry, code string, deps, absent []string) {
	inputs := append([]string{entry}, deps...)

	prints, err := FingerprintFiles(t.fsys, inputs)
	if err != nil {
		t.logger.Warn("skip artifact cache", "entry", entry, "error", err)

		return
	}

	t.cache.Put(key, &Artifact{Code: code, Dependencies: deps, Fingerprints: prints, Absent: absent})
}

// Targets returns the lower-cased target names the runtime supports.
func (t *Transformer) Targets() []string {
	return compiler.TargetNames(t.rt)
}
