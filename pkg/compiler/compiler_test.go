package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jormeli/slangload/pkg/compiler"
	"github.com/jormeli/slangload/pkg/compiler/compilertest"
)

func TestLookup_CaseInsensitive(t *testing.T) {
	t.Parallel()

	rt := compilertest.New()

	for _, name := range []string{"wgsl", "WGSL", "WgSl"} {
		target, err := compiler.Lookup(rt, name)
		require.NoError(t, err)
		assert.Equal(t, "WGSL", target.Name)
		assert.Equal(t, compilertest.TargetWGSL, target.Value)
	}
}

// tableRuntime overrides the target table of the fake runtime.
type tableRuntime struct {
	*compilertest.Runtime

	targets []compiler.Target
}

func (r tableRuntime) Targets() []compiler.Target { return r.targets }

func TestLookup_HyphenMatchesUnderscore(t *testing.T) {
	t.Parallel()

	rt := tableRuntime{
		Runtime: compilertest.New(),
		targets: []compiler.Target{{Name: "SPIRV_ASM", Value: 7}, {Name: "WGSL", Value: 28}},
	}

	for _, name := range []string{"spirv_asm", "spirv-asm", "SPIRV-ASM"} {
		target, err := compiler.Lookup(rt, name)
		require.NoError(t, err, name)
		assert.Equal(t, 7, target.Value)
	}

	_, err := compiler.Lookup(rt, "spirvasm")
	require.ErrorIs(t, err, compiler.ErrInvalidTarget)
}

func TestLookup_Unknown(t *testing.T) {
	t.Parallel()

	_, err := compiler.Lookup(compilertest.New(), "dxbc")
	require.ErrorIs(t, err, compiler.ErrInvalidTarget)
	assert.Contains(t, err.Error(), "dxbc")
}

func TestTargetNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"glsl", "wgsl"}, compiler.TargetNames(compilertest.New()))
}

func TestError_Message(t *testing.T) {
	t.Parallel()

	err := compiler.NewError(compiler.OpLink, "E30015", "undefined identifier 'foo'")

	assert.Equal(t, "link: E30015: undefined identifier 'foo'", err.Error())

	var target *compiler.Error

	require.ErrorAs(t, error(err), &target)
	assert.Equal(t, "E30015", target.Kind)
}
