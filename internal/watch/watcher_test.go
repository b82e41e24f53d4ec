package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jormeli/slangload/internal/watch"
)

const (
	testDebounce = 30 * time.Millisecond
	waitTimeout  = 5 * time.Second
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func write(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// start runs a watcher tracking files and returns the change channel and a
// stop function that waits for Run to return.
func start(t *testing.T, files []string) (<-chan []string, *watch.Watcher, func()) {
	t.Helper()

	changes := make(chan []string, 16)

	w, err := watch.New(watch.Config{
		Debounce: testDebounce,
		OnChange: func(_ context.Context, changed []string) error {
			changes <- changed

			return nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, w.SetFiles(files))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- w.Run(ctx) }()

	stop := func() {
		cancel()
		require.NoError(t, <-done)
	}

	return changes, w, stop
}

func expectChange(t *testing.T, changes <-chan []string) []string {
	t.Helper()

	select {
	case changed := <-changes:
		return changed
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for change")

		return nil
	}
}

func TestWatcher_TrackedFileChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	entry := filepath.Join(dir, "main.slang")
	write(t, entry, "import common;")

	changes, _, stop := start(t, []string{entry})
	defer stop()

	write(t, entry, "import common;\nvoid main() {}")

	assert.Equal(t, []string{entry}, expectChange(t, changes))
}

func TestWatcher_IgnoresUntrackedFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	entry := filepath.Join(dir, "main.slang")
	notes := filepath.Join(dir, "notes.txt")
	write(t, entry, "")
	write(t, notes, "")

	changes, _, stop := start(t, []string{entry})
	defer stop()

	write(t, notes, "scratch")
	time.Sleep(4 * testDebounce)
	write(t, entry, "void main() {}")

	assert.Equal(t, []string{entry}, expectChange(t, changes))
}

func TestWatcher_NewModuleInWatchedDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	entry := filepath.Join(dir, "main.slang")
	write(t, entry, "import common;")

	changes, _, stop := start(t, []string{entry})
	defer stop()

	created := filepath.Join(dir, "common.slang")
	write(t, created, "")

	assert.Contains(t, expectChange(t, changes), created)
}

func TestWatcher_CoalescesBurst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.slang")
	b := filepath.Join(dir, "b.slang")
	write(t, a, "")
	write(t, b, "")

	changes, _, stop := start(t, []string{a, b})
	defer stop()

	write(t, a, "1")
	write(t, b, "1")

	got := expectChange(t, changes)
	if len(got) == 1 {
		got = append(got, expectChange(t, changes)...)
	}

	assert.ElementsMatch(t, []string{a, b}, got)
}

func TestWatcher_SetFilesReplacesTrackedSet(t *testing.T) {
	t.Parallel()

	dirA := t.TempDir()
	dirB := t.TempDir()
	a := filepath.Join(dirA, "a.slang")
	b := filepath.Join(dirB, "b.slang")
	write(t, a, "")
	write(t, b, "")

	changes, w, stop := start(t, []string{a})
	defer stop()

	require.NoError(t, w.SetFiles([]string{b}))
	assert.Equal(t, []string{b}, w.Files())

	write(t, b, "changed")

	assert.Equal(t, []string{b}, expectChange(t, changes))
}

func TestWatcher_RunTwice(t *testing.T) {
	t.Parallel()

	w, err := watch.New(watch.Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, w.Run(ctx))
	require.ErrorIs(t, w.Run(context.Background()), watch.ErrAlreadyRunning)
}

func TestWatcher_CloseWithoutRun(t *testing.T) {
	t.Parallel()

	w, err := watch.New(watch.Config{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
}
