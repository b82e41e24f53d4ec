package loader

import "github.com/jormeli/slangload/pkg/compiler"

// SourceModule is a module recorded by a Collector.
type SourceModule struct {
	ModuleName string
	ModulePath string
	Size       int
}

// Name returns the display name.
func (m *SourceModule) Name() string { return m.ModuleName }

// Path returns the absolute source path.
func (m *SourceModule) Path() string { return m.ModulePath }

// Collector is a ModuleLoader that records modules without compiling them.
// It lets the import tree be resolved when no compiler is available.
type Collector struct {
	Modules []*SourceModule
}

// LoadModuleFromSource records the module.
func (c *Collector) LoadModuleFromSource(source, name, path string) (compiler.Module, error) {
	mod := &SourceModule{ModuleName: name, ModulePath: path, Size: len(source)}
	c.Modules = append(c.Modules, mod)

	return mod, nil
}
