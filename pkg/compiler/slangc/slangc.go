// Package slangc implements compiler.Runtime by driving the slangc executable.
//
// Loaded modules are kept in memory. Linking stages every module source under
// its display name in a scratch directory and compiles the entry module
// (the last one composed) with that directory on the include path, so imports
// between staged modules resolve the same way they did during loading.
package slangc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"github.com/jormeli/slangload/pkg/compiler"
	"github.com/jormeli/slangload/pkg/imports"
)

const (
	// DefaultPath is the executable looked up on PATH when Options.Path is empty.
	DefaultPath = "slangc"

	// DefaultTimeout bounds a single slangc invocation.
	DefaultTimeout = 30 * time.Second

	stagingPattern = "slangload-*"
	outputName     = "out"
	stagedDirPerm  = 0o750
	stagedFilePerm = 0o600

	kindRuntime  = "RuntimeInit"
	kindModule   = "ModuleError"
	kindCompiler = "CompilerError"
	kindTarget   = "TargetError"
)

// Slang compile-target enum values for the textual targets slangc can emit.
const (
	TargetGLSL     = 2
	TargetHLSL     = 5
	TargetSPIRVAsm = 7
	TargetCPP      = 13
	TargetCUDA     = 17
	TargetMetal    = 24
	TargetWGSL     = 28
)

type targetInfo struct {
	name  string
	flag  string
	value int
}

var targetTable = []targetInfo{
	{name: "GLSL", flag: "glsl", value: TargetGLSL},
	{name: "HLSL", flag: "hlsl", value: TargetHLSL},
	{name: "SPIRV_ASM", flag: "spirv-asm", value: TargetSPIRVAsm},
	{name: "CPP", flag: "cpp", value: TargetCPP},
	{name: "CUDA", flag: "cuda", value: TargetCUDA},
	{name: "METAL", flag: "metal", value: TargetMetal},
	{name: "WGSL", flag: "wgsl", value: TargetWGSL},
}

// diagnosticRE picks the first numbered diagnostic out of slangc output,
// e.g. "a.slang(3): error 30015: undefined identifier 'x'".
var diagnosticRE = regexp.MustCompile(`error (\d+): (.*)`)

// ErrNoModules is returned when composing an empty module list.
var ErrNoModules = errors.New("no modules to compose")

// Options configures the slangc runtime.
type Options struct {
	// Path is the slangc executable; looked up on PATH when not absolute.
	Path string
	// ExtraArgs are appended to every compile invocation.
	ExtraArgs []string
	// Timeout bounds one invocation. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// Runtime is a slangc-backed compiler runtime.
type Runtime struct {
	path      string
	extraArgs []string
	timeout   time.Duration
}

// Open locates slangc and checks that it runs.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	name := opts.Path
	if name == "" {
		name = DefaultPath
	}

	path, lookErr := exec.LookPath(name)
	if lookErr != nil {
		return nil, compiler.NewError(compiler.OpInit, kindRuntime, lookErr.Error())
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	rt := &Runtime{
		path:      path,
		extraArgs: slices.Clone(opts.ExtraArgs),
		timeout:   timeout,
	}

	_, probeErr := rt.run(ctx, "-v")
	if probeErr != nil {
		return nil, compiler.NewError(compiler.OpInit, kindRuntime, probeErr.Error())
	}

	return rt, nil
}

// Path returns the resolved executable path.
func (r *Runtime) Path() string {
	return r.path
}

// Targets lists the textual targets slangc can emit.
func (r *Runtime) Targets() []compiler.Target {
	targets := make([]compiler.Target, 0, len(targetTable))

	for _, info := range targetTable {
		targets = append(targets, compiler.Target{Name: info.name, Value: info.value})
	}

	return targets
}

// CreateGlobalSession returns a new global session.
func (r *Runtime) CreateGlobalSession() (compiler.GlobalSession, error) {
	return &globalSession{rt: r}, nil
}

type globalSession struct {
	rt *Runtime
}

func (g *globalSession) CreateSession(targetID int) (compiler.Session, error) {
	for _, info := range targetTable {
		if info.value == targetID {
			return &session{rt: g.rt, target: info, byName: make(map[string]*module)}, nil
		}
	}

	return nil, compiler.NewError(compiler.OpSession, kindTarget, fmt.Sprintf("unsupported target id %d", targetID))
}

type module struct {
	name   string
	path   string
	source string
}

func (m *module) Name() string { return m.name }

func (m *module) Path() string { return m.path }

type session struct {
	rt     *Runtime
	target targetInfo
	byName map[string]*module
}

func (s *session) LoadModuleFromSource(source, name, path string) (compiler.Module, error) {
	if name == "" {
		return nil, compiler.NewError(compiler.OpLoadModule, kindModule, "empty module name for "+path)
	}

	if prev, ok := s.byName[name]; ok {
		return nil, compiler.NewError(compiler.OpLoadModule, kindModule,
			fmt.Sprintf("module %q from %s already loaded from %s", name, path, prev.path))
	}

	mod := &module{name: name, path: path, source: source}
	s.byName[name] = mod

	return mod, nil
}

func (s *session) CreateCompositeComponentType(modules []compiler.Module) (compiler.Program, error) {
	if len(modules) == 0 {
		return nil, compiler.NewError(compiler.OpCompose, kindModule, ErrNoModules.Error())
	}

	prog := &program{sess: s, modules: make([]*module, 0, len(modules))}

	for _, handle := range modules {
		mod, ok := s.byName[handle.Name()]
		if !ok || mod != handle {
			return nil, compiler.NewError(compiler.OpCompose, kindModule,
				fmt.Sprintf("module %q does not belong to this session", handle.Name()))
		}

		prog.modules = append(prog.modules, mod)
	}

	return prog, nil
}

type program struct {
	sess    *session
	modules []*module
}

func (p *program) Link(ctx context.Context) (compiler.LinkedProgram, error) {
	staging, mkErr := os.MkdirTemp("", stagingPattern)
	if mkErr != nil {
		return nil, fmt.Errorf("create staging dir: %w", mkErr)
	}

	defer os.RemoveAll(staging)

	includeDirs := []string{staging}

	for _, mod := range p.modules {
		stageErr := stage(staging, mod)
		if stageErr != nil {
			return nil, stageErr
		}

		dir := filepath.Dir(mod.path)
		if !slices.Contains(includeDirs, dir) {
			includeDirs = append(includeDirs, dir)
		}
	}

	entry := p.modules[len(p.modules)-1]
	outPath := filepath.Join(staging, outputName)

	args := []string{stagedPath(staging, entry.name), "-target", p.sess.target.flag}
	for _, dir := range includeDirs {
		args = append(args, "-I", dir)
	}

	args = append(args, "-o", outPath)
	args = append(args, p.sess.rt.extraArgs...)

	_, runErr := p.sess.rt.run(ctx, args...)
	if runErr != nil {
		return nil, runErr
	}

	code, readErr := os.ReadFile(outPath)
	if readErr != nil {
		return nil, compiler.NewError(compiler.OpLink, kindCompiler, "no output produced: "+readErr.Error())
	}

	return &linked{code: string(code)}, nil
}

type linked struct {
	code string
}

func (l *linked) TargetCode(index int) (string, error) {
	if index != 0 {
		return "", compiler.NewError(compiler.OpTargetCode, kindTarget, fmt.Sprintf("target index %d out of range", index))
	}

	if l.code == "" {
		return "", compiler.NewError(compiler.OpTargetCode, kindCompiler, "empty target code")
	}

	return l.code, nil
}

func stagedPath(staging, name string) string {
	return filepath.Join(staging, filepath.FromSlash(name)+imports.SourceExt)
}

func stage(staging string, mod *module) error {
	path := stagedPath(staging, mod.name)

	mkErr := os.MkdirAll(filepath.Dir(path), stagedDirPerm)
	if mkErr != nil {
		return fmt.Errorf("stage %s: %w", mod.name, mkErr)
	}

	writeErr := os.WriteFile(path, []byte(mod.source), stagedFilePerm)
	if writeErr != nil {
		return fmt.Errorf("stage %s: %w", mod.name, writeErr)
	}

	return nil
}

// run executes slangc and converts a failing exit into a compiler error.
func (r *Runtime) run(ctx context.Context, args ...string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(runCtx, r.path, args...) //nolint:gosec // path resolved by LookPath at Open.
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		if ctxErr := runCtx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("slangc: %w", ctxErr)
		}

		return nil, diagnose(stderr.String(), runErr)
	}

	return stdout.Bytes(), nil
}

func diagnose(stderr string, runErr error) *compiler.Error {
	if match := diagnosticRE.FindStringSubmatch(stderr); match != nil {
		return compiler.NewError(compiler.OpLink, "E"+match[1], match[2])
	}

	msg := stderr
	if msg == "" {
		msg = runErr.Error()
	}

	return compiler.NewError(compiler.OpLink, kindCompiler, msg)
}
