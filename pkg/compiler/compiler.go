// Package compiler defines the capability interfaces of a Slang compiler
// service: sessions bound to a compile target, module loading from source,
// composition, linking and target code extraction.
//
// Implementations report every failure as a *Error carrying the compiler's
// error kind and message, fetched at the failing call.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Operation names used in Error.Op.
const (
	OpInit          = "init"
	OpGlobalSession = "create global session"
	OpSession       = "create session"
	OpLoadModule    = "load module"
	OpCompose       = "create composite component type"
	OpLink          = "link"
	OpTargetCode    = "get target code"
)

// ErrInvalidTarget is returned when a target name is not supported by the runtime.
var ErrInvalidTarget = errors.New("invalid compile target")

// Target is one output format the compiler can generate.
type Target struct {
	Name  string
	Value int
}

// Runtime is an initialized compiler service.
type Runtime interface {
	// Targets lists the supported compile targets.
	Targets() []Target
	// CreateGlobalSession creates a fresh global session.
	CreateGlobalSession() (GlobalSession, error)
}

// GlobalSession creates target-bound sessions.
type GlobalSession interface {
	CreateSession(targetID int) (Session, error)
}

// Session loads modules and composes them into programs. A session belongs to
// one compile request.
type Session interface {
	// LoadModuleFromSource loads a module from source text under a virtual name.
	LoadModuleFromSource(source, name, path string) (Module, error)
	// CreateCompositeComponentType composes modules into a linkable program.
	CreateCompositeComponentType(modules []Module) (Program, error)
}

// Module is an opaque loaded-module handle.
type Module interface {
	Name() string
	Path() string
}

// Program is a composed, not yet linked, program.
type Program interface {
	Link(ctx context.Context) (LinkedProgram, error)
}

// LinkedProgram holds generated code per target index.
type LinkedProgram interface {
	TargetCode(index int) (string, error)
}

// Error is a compiler-reported failure.
type Error struct {
	Op      string
	Kind    string
	Message string
}

// NewError builds an Error for the given operation.
func NewError(op, kind, message string) *Error {
	return &Error{Op: op, Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

// Lookup maps a case-insensitive target name to its numeric identifier.
// Hyphens and underscores are interchangeable, so "spirv-asm" (the slangc
// flag spelling) finds SPIRV_ASM.
func Lookup(rt Runtime, name string) (Target, error) {
	want := targetKey(name)

	for _, target := range rt.Targets() {
		if strings.EqualFold(targetKey(target.Name), want) {
			return target, nil
		}
	}

	return Target{}, fmt.Errorf("%w: %s", ErrInvalidTarget, name)
}

func targetKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// TargetNames returns the lower-cased names of the runtime's targets.
func TargetNames(rt Runtime) []string {
	targets := rt.Targets()
	names := make([]string, 0, len(targets))

	for _, target := range targets {
		names = append(names, strings.ToLower(target.Name))
	}

	return names
}
