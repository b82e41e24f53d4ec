// Package compilertest provides an in-memory compiler.Runtime for tests.
//
// The generated "code" lists every composed module in order, so callers can
// assert on load order and deduplication without a real compiler.
package compilertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jormeli/slangload/pkg/compiler"
)

// Target identifiers exposed by the fake runtime.
const (
	TargetGLSL = 2
	TargetWGSL = 28
)

// Failure kinds reported by injected failures.
const (
	KindInjected  = "E_INJECTED"
	KindDuplicate = "E_DUPLICATE_MODULE"
)

// Runtime is a fake compiler runtime. Fail* fields inject failures; the zero
// value of each means success.
type Runtime struct {
	FailGlobalSession bool
	FailSession       bool
	FailCompose       bool
	FailLink          bool
	FailTargetCode    bool
	// FailLoad names modules whose load fails.
	FailLoad map[string]bool

	mu       sync.Mutex
	sessions []*Session
	globals  int
}

// New creates a fake runtime with GLSL and WGSL targets.
func New() *Runtime {
	return &Runtime{FailLoad: make(map[string]bool)}
}

// Targets lists GLSL and WGSL.
func (r *Runtime) Targets() []compiler.Target {
	return []compiler.Target{
		{Name: "GLSL", Value: TargetGLSL},
		{Name: "WGSL", Value: TargetWGSL},
	}
}

// CreateGlobalSession returns a new global session.
func (r *Runtime) CreateGlobalSession() (compiler.GlobalSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailGlobalSession {
		return nil, compiler.NewError(compiler.OpGlobalSession, KindInjected, "global session failed")
	}

	r.globals++

	return &globalSession{rt: r}, nil
}

// GlobalSessions returns how many global sessions were created.
func (r *Runtime) GlobalSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.globals
}

// Sessions returns every session created so far.
func (r *Runtime) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*Session(nil), r.sessions...)
}

type globalSession struct {
	rt *Runtime
}

func (g *globalSession) CreateSession(targetID int) (compiler.Session, error) {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()

	if g.rt.FailSession {
		return nil, compiler.NewError(compiler.OpSession, KindInjected, "session failed")
	}

	sess := &Session{rt: g.rt, TargetID: targetID}
	g.rt.sessions = append(g.rt.sessions, sess)

	return sess, nil
}

// Module is a loaded fake module.
type Module struct {
	ModuleName string
	ModulePath string
	Source     string
}

// Name returns the display name.
func (m *Module) Name() string { return m.ModuleName }

// Path returns the source path.
func (m *Module) Path() string { return m.ModulePath }

// Session records loaded modules in load order.
type Session struct {
	TargetID int

	rt     *Runtime
	mu     sync.Mutex
	loaded []*Module
}

// Loaded returns the modules loaded into the session, in order.
func (s *Session) Loaded() []*Module {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*Module(nil), s.loaded...)
}

// LoadModuleFromSource records the module. Loading the same name twice fails.
func (s *Session) LoadModuleFromSource(source, name, path string) (compiler.Module, error) {
	s.rt.mu.Lock()
	fail := s.rt.FailLoad[name]
	s.rt.mu.Unlock()

	if fail {
		return nil, compiler.NewError(compiler.OpLoadModule, KindInjected, "cannot load "+name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mod := range s.loaded {
		if mod.ModuleName == name {
			return nil, compiler.NewError(compiler.OpLoadModule, KindDuplicate, "module already loaded: "+name)
		}
	}

	mod := &Module{ModuleName: name, ModulePath: path, Source: source}
	s.loaded = append(s.loaded, mod)

	return mod, nil
}

// CreateCompositeComponentType composes the given modules.
func (s *Session) CreateCompositeComponentType(modules []compiler.Module) (compiler.Program, error) {
	s.rt.mu.Lock()
	defer s.rt.mu.Unlock()

	if s.rt.FailCompose {
		return nil, compiler.NewError(compiler.OpCompose, KindInjected, "compose failed")
	}

	return &program{rt: s.rt, targetID: s.TargetID, modules: append([]compiler.Module(nil), modules...)}, nil
}

type program struct {
	rt       *Runtime
	targetID int
	modules  []compiler.Module
}

func (p *program) Link(ctx context.Context) (compiler.LinkedProgram, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}

	p.rt.mu.Lock()
	defer p.rt.mu.Unlock()

	if p.rt.FailLink {
		return nil, compiler.NewError(compiler.OpLink, KindInjected, "link failed")
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "// target %d\n", p.targetID)

	for _, mod := range p.modules {
		fmt.Fprintf(&sb, "// module %s\n", mod.Name())
	}

	return &linked{rt: p.rt, code: sb.String()}, nil
}

type linked struct {
	rt   *Runtime
	code string
}

func (l *linked) TargetCode(index int) (string, error) {
	l.rt.mu.Lock()
	defer l.rt.mu.Unlock()

	if l.rt.FailTargetCode || index != 0 {
		return "", compiler.NewError(compiler.OpTargetCode, KindInjected, fmt.Sprintf("no code for target index %d", index))
	}

	return l.code, nil
}

// ModuleNames extracts the module names listed in fake generated code.
func ModuleNames(code string) []string {
	var names []string

	for line := range strings.SplitSeq(code, "\n") {
		if name, ok := strings.CutPrefix(line, "// module "); ok {
			names = append(names, name)
		}
	}

	return names
}
