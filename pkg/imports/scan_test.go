package imports_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jormeli/slangload/pkg/imports"
)

func TestScan_NoImports(t *testing.T) {
	t.Parallel()

	for _, src := range []string{
		"",
		"float4 main() : SV_Target { return 0; }",
		`// importance of lighting;`,
		`import "quoted.slang";`,
	} {
		assert.Empty(t, imports.Scan(src), "source %q", src)
	}
}

func TestScan_SourceOrderWithDuplicates(t *testing.T) {
	t.Parallel()

	src := `
// header comment
import common;
struct Light { float3 dir; };
import lighting.shadows;
import common;
[shader("compute")]
void main() {}
`

	refs := imports.Scan(src)

	assert.Equal(t, []string{
		"common",
		filepath.Join("lighting", "shadows"),
		"common",
	}, refs)
}

func TestScan_IgnoresIdentifiersEndingInImport(t *testing.T) {
	t.Parallel()

	refs := imports.Scan("reimport foo; import bar;")

	assert.Equal(t, []string{"bar"}, refs)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	sep := string(filepath.Separator)

	cases := []struct {
		raw  string
		want string
	}{
		{raw: "common", want: "common"},
		{raw: "a.b.c", want: "a" + sep + "b" + sep + "c"},
		{raw: "pbr_utils", want: "pbr-utils"},
		{raw: "lib.pbr_utils", want: "lib" + sep + "pbr-utils"},
		{raw: "noise.slang", want: "noise" + sep + "slang"},
		{raw: "lib.noise_util.slang", want: "lib" + sep + "noise-util" + sep + "slang"},
		{raw: " spaced ", want: "spaced"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, imports.Normalize(tc.raw), "raw %q", tc.raw)
		assert.Equal(t, imports.Normalize(tc.raw), imports.Normalize(tc.raw))
	}
}
