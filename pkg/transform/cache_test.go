package transform_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jormeli/slangload/pkg/resolve"
	"github.com/jormeli/slangload/pkg/transform"
)

func cachedArtifact(t *testing.T, fsys resolve.FileSystem, code string, paths ...string) *transform.Artifact {
	t.Helper()

	fingerprints, err := transform.FingerprintFiles(fsys, paths)
	require.NoError(t, err)

	return &transform.Artifact{Code: code, Dependencies: paths[1:], Fingerprints: fingerprints}
}

func TestCache_HitWhileInputsUnchanged(t *testing.T) {
	t.Parallel()

	fsys := resolve.NewMemoryFS()
	fsys.WriteFile("/p/main.slang", []byte("import common;"))
	fsys.WriteFile("/p/common.slang", []byte("float pi;"))

	cache := transform.NewCache(0)
	cache.Put("/p/main.slang?wgsl", cachedArtifact(t, fsys, "code", "/p/main.slang", "/p/common.slang"))

	got, ok := cache.Get("/p/main.slang?wgsl", fsys)
	require.True(t, ok)
	assert.Equal(t, "code", got.Code)
	assert.Equal(t, []string{"/p/common.slang"}, got.Dependencies)

	_, ok = cache.Get("/p/main.slang?glsl", fsys)
	assert.False(t, ok)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(transform.DefaultCacheSize), stats.MaxSize)
	assert.InDelta(t, 0.5, stats.HitRate(), 0.001)
}

func TestCache_ChangedDependencyIsStale(t *testing.T) {
	t.Parallel()

	fsys := resolve.NewMemoryFS()
	fsys.WriteFile("/p/main.slang", []byte("import common;"))
	fsys.WriteFile("/p/common.slang", []byte("float pi;"))

	cache := transform.NewCache(0)
	cache.Put("main", cachedArtifact(t, fsys, "code", "/p/main.slang", "/p/common.slang"))

	fsys.WriteFile("/p/common.slang", []byte("float tau;"))

	_, ok := cache.Get("main", fsys)
	assert.False(t, ok)
	assert.Zero(t, cache.Stats().Entries)
	assert.Zero(t, cache.Stats().CurrentSize)
}

func TestCache_DeletedDependencyIsStale(t *testing.T) {
	t.Parallel()

	fsys := resolve.NewMemoryFS()
	fsys.WriteFile("/p/main.slang", []byte("import common;"))
	fsys.WriteFile("/p/common.slang", []byte("float pi;"))

	cache := transform.NewCache(0)
	cache.Put("main", cachedArtifact(t, fsys, "code", "/p/main.slang", "/p/common.slang"))

	fsys.Remove("/p/common.slang")

	_, ok := cache.Get("main", fsys)
	assert.False(t, ok)
}

func TestCache_AppearedCandidateIsStale(t *testing.T) {
	t.Parallel()

	fsys := resolve.NewMemoryFS()
	fsys.WriteFile("/p/sub/main.slang", []byte("import common;"))
	fsys.WriteFile("/p/common.slang", []byte("float pi;"))

	art := cachedArtifact(t, fsys, "code", "/p/sub/main.slang", "/p/common.slang")
	art.Absent = []string{"/p/sub/common.slang"}

	cache := transform.NewCache(0)
	cache.Put("main", art)

	_, ok := cache.Get("main", fsys)
	require.True(t, ok)

	fsys.WriteFile("/p/sub/common.slang", []byte("float tau;"))

	_, ok = cache.Get("main", fsys)
	assert.False(t, ok)
	assert.Zero(t, cache.Stats().Entries)
}

func TestCache_PutStoresCopy(t *testing.T) {
	t.Parallel()

	fsys := resolve.NewMemoryFS()
	fsys.WriteFile("/p/main.slang", []byte("x"))
	fsys.WriteFile("/p/dep.slang", []byte("y"))

	art := cachedArtifact(t, fsys, "code", "/p/main.slang", "/p/dep.slang")

	cache := transform.NewCache(0)
	cache.Put("main", art)

	art.Dependencies[0] = "/elsewhere.slang"

	got, ok := cache.Get("main", fsys)
	require.True(t, ok)
	assert.Equal(t, []string{"/p/dep.slang"}, got.Dependencies)
}

func TestCache_EvictsColdEntries(t *testing.T) {
	t.Parallel()

	fsys := resolve.NewMemoryFS()
	for _, p := range []string{"/a.slang", "/b.slang", "/c.slang"} {
		fsys.WriteFile(p, []byte(p))
	}

	code := strings.Repeat("x", 600)

	cache := transform.NewCache(1500)
	cache.Put("a", cachedArtifact(t, fsys, code, "/a.slang"))
	cache.Put("b", cachedArtifact(t, fsys, code, "/b.slang"))

	_, ok := cache.Get("a", fsys)
	require.True(t, ok)

	cache.Put("c", cachedArtifact(t, fsys, code, "/c.slang"))

	stats := cache.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.LessOrEqual(t, stats.CurrentSize, stats.MaxSize)

	_, ok = cache.Get("a", fsys)
	assert.True(t, ok)

	_, ok = cache.Get("b", fsys)
	assert.False(t, ok)
}

func TestCache_OversizedArtifactIsNotStored(t *testing.T) {
	t.Parallel()

	fsys := resolve.NewMemoryFS()
	fsys.WriteFile("/a.slang", []byte("a"))

	cache := transform.NewCache(100)
	cache.Put("a", cachedArtifact(t, fsys, strings.Repeat("x", 200), "/a.slang"))
	cache.Put("nil", nil)

	assert.Zero(t, cache.Stats().Entries)

	cache.Put("small", cachedArtifact(t, fsys, "tiny", "/a.slang"))
	assert.Equal(t, 1, cache.Stats().Entries)

	cache.Clear()
	assert.Zero(t, cache.Stats().Entries)
	assert.Zero(t, cache.Stats().CurrentSize)
}

func TestWrapModule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code string
		want string
	}{
		{"plain", "void main() {}\n", "export default `void main() {}\n`;\n"},
		{"backtick", "a`b", "export default `a\\`b`;\n"},
		{"backslash", `a\nb`, "export default `a\\\\nb`;\n"},
		{"interpolation", "${x}", "export default `\\${x}`;\n"},
		{"lone dollar", "$x", "export default `$x`;\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, transform.WrapModule(tt.code))
		})
	}
}
