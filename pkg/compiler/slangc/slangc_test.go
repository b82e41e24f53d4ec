package slangc_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jormeli/slangload/pkg/compiler"
	"github.com/jormeli/slangload/pkg/compiler/slangc"
)

// fakeSlangc answers -v, fails on sources containing FAIL, and otherwise
// writes the staged file list followed by the entry source to the -o path.
const fakeSlangc = `#!/bin/sh
if [ "$1" = "-v" ]; then echo "slang 2025.1"; exit 0; fi
in="$1"
out=""
target=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift ;;
    -target) target="$2"; shift ;;
  esac
  shift
done
if grep -q FAIL "$in"; then
  echo "$in(1): error 30015: undefined identifier 'FAIL'" >&2
  exit 1
fi
{
  echo "// target $target"
  for f in $(cd "$(dirname "$in")" && find . -name '*.slang' | sort); do echo "// staged $f"; done
  cat "$in"
} > "$out"
`

func writeFakeSlangc(t *testing.T) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake slangc is a POSIX shell script")
	}

	path := filepath.Join(t.TempDir(), "slangc")
	require.NoError(t, os.WriteFile(path, []byte(fakeSlangc), 0o700)) //nolint:gosec // test executable.

	return path
}

func openFake(t *testing.T) *slangc.Runtime {
	t.Helper()

	rt, err := slangc.Open(context.Background(), slangc.Options{Path: writeFakeSlangc(t)})
	require.NoError(t, err)

	return rt
}

func newSession(t *testing.T, rt *slangc.Runtime, name string) compiler.Session {
	t.Helper()

	target, err := compiler.Lookup(rt, name)
	require.NoError(t, err)

	global, err := rt.CreateGlobalSession()
	require.NoError(t, err)

	sess, err := global.CreateSession(target.Value)
	require.NoError(t, err)

	return sess
}

func TestOpen_MissingExecutable(t *testing.T) {
	t.Parallel()

	_, err := slangc.Open(context.Background(), slangc.Options{Path: filepath.Join(t.TempDir(), "nope")})

	var compErr *compiler.Error

	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, compiler.OpInit, compErr.Op)
}

func TestTargets_IncludeWGSLAndGLSL(t *testing.T) {
	t.Parallel()

	rt := openFake(t)

	wgsl, err := compiler.Lookup(rt, "wgsl")
	require.NoError(t, err)
	assert.Equal(t, slangc.TargetWGSL, wgsl.Value)

	glsl, err := compiler.Lookup(rt, "GLSL")
	require.NoError(t, err)
	assert.Equal(t, slangc.TargetGLSL, glsl.Value)

	spirv, err := compiler.Lookup(rt, "spirv-asm")
	require.NoError(t, err)
	assert.Equal(t, slangc.TargetSPIRVAsm, spirv.Value)
}

func TestLink_StagesModulesAndCompilesEntry(t *testing.T) {
	t.Parallel()

	rt := openFake(t)
	sess := newSession(t, rt, "wgsl")

	common, err := sess.LoadModuleFromSource("float one() { return 1; }", "lib/common", "/src/lib/common.slang")
	require.NoError(t, err)

	entry, err := sess.LoadModuleFromSource("import lib.common;\nvoid main() {}", "main", "/src/main.slang")
	require.NoError(t, err)

	prog, err := sess.CreateCompositeComponentType([]compiler.Module{common, entry})
	require.NoError(t, err)

	linked, err := prog.Link(context.Background())
	require.NoError(t, err)

	code, err := linked.TargetCode(0)
	require.NoError(t, err)

	assert.Contains(t, code, "// target wgsl")
	assert.Contains(t, code, "// staged ./lib/common.slang")
	assert.Contains(t, code, "// staged ./main.slang")
	assert.Contains(t, code, "void main() {}")

	_, err = linked.TargetCode(1)
	require.Error(t, err)
}

func TestLink_ReportsDiagnostic(t *testing.T) {
	t.Parallel()

	rt := openFake(t)
	sess := newSession(t, rt, "glsl")

	entry, err := sess.LoadModuleFromSource("FAIL", "main", "/src/main.slang")
	require.NoError(t, err)

	prog, err := sess.CreateCompositeComponentType([]compiler.Module{entry})
	require.NoError(t, err)

	_, err = prog.Link(context.Background())

	var compErr *compiler.Error

	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "E30015", compErr.Kind)
	assert.Equal(t, "undefined identifier 'FAIL'", compErr.Message)
}

func TestLoadModule_DuplicateName(t *testing.T) {
	t.Parallel()

	rt := openFake(t)
	sess := newSession(t, rt, "wgsl")

	_, err := sess.LoadModuleFromSource("", "common", "/a/common.slang")
	require.NoError(t, err)

	_, err = sess.LoadModuleFromSource("", "common", "/common.slang")

	var compErr *compiler.Error

	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, compiler.OpLoadModule, compErr.Op)
}

func TestCreateSession_UnknownTarget(t *testing.T) {
	t.Parallel()

	rt := openFake(t)

	global, err := rt.CreateGlobalSession()
	require.NoError(t, err)

	_, err = global.CreateSession(9999)
	require.Error(t, err)
}

func TestCompose_Empty(t *testing.T) {
	t.Parallel()

	sess := newSession(t, openFake(t), "wgsl")

	_, err := sess.CreateCompositeComponentType(nil)
	require.Error(t, err)
}
