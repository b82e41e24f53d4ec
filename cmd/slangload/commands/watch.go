package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jormeli/slangload/internal/watch"
	"github.com/jormeli/slangload/pkg/imports"
	"github.com/jormeli/slangload/pkg/observability"
	"github.com/jormeli/slangload/pkg/transform"
)

const (
	flagMetricsAddr = "metrics-addr"

	readHeaderTimeout = 5 * time.Second
)

// ErrNoOutDir is returned when watch has nowhere to write artifacts.
var ErrNoOutDir = errors.New("watch needs an output directory (--out-dir or build.out_dir)")

type watchCommand struct {
	app         *app
	target      string
	outDir      string
	raw         bool
	metricsAddr string
}

func newWatchCommand(a *app) *cobra.Command {
	wc := &watchCommand{app: a}

	cmd := &cobra.Command{
		Use:   "watch <entry.slang[?target]>...",
		Short: "Rebuild entries when their sources change",
		Long: `Compile the entries, then watch every file they were built from and
rebuild the affected entries on change. A new .slang file next to a tracked
file rebuilds everything, since it can change where an import resolves.`,
		Args: cobra.MinimumNArgs(1),
		RunE: wc.run,
	}

	cmd.Flags().StringVarP(&wc.target, flagTarget, "t", "", "target for arguments without a query")
	cmd.Flags().StringVarP(&wc.outDir, flagOutDir, "o", "", "output directory (default build.out_dir)")
	cmd.Flags().BoolVar(&wc.raw, flagRaw, false, "write generated code instead of a JavaScript module")
	cmd.Flags().StringVar(&wc.metricsAddr, flagMetricsAddr, "", "serve Prometheus metrics on this address (default watch.metrics_addr)")

	return cmd
}

func (wc *watchCommand) run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader, metricsHandler, err := observability.PrometheusReader()
	if err != nil {
		return err
	}

	setupErr := wc.app.setup(cmd, observability.ModeWatch, observability.WithMetricReader(reader))
	if setupErr != nil {
		return setupErr
	}
	defer wc.app.shutdown(ctx)

	outDir := wc.outDir
	if outDir == "" {
		outDir = wc.app.cfg.Build.OutDir
	}

	if outDir == "" {
		return ErrNoOutDir
	}

	ids := make([]string, 0, len(args))

	for _, arg := range args {
		id, idErr := requestID(arg, wc.target)
		if idErr != nil {
			return idErr
		}

		ids = append(ids, id)
	}

	graph := transform.NewGraph()

	tr, err := wc.app.newTransformer(ctx, transform.WithTracker(graph))
	if err != nil {
		return err
	}

	b := &builder{
		tr:     tr,
		graph:  graph,
		ids:    ids,
		outDir: outDir,
		raw:    wc.raw,
		out:    cmd.ErrOrStderr(),
		app:    wc.app,
	}

	b.build(ctx, ids)

	w, err := watch.New(watch.Config{
		Debounce: wc.app.cfg.Watch.Debounce,
		Logger:   wc.app.providers.Logger,
		OnChange: func(ctx context.Context, changed []string) error {
			b.build(ctx, b.affected(changed))

			return b.track()
		},
	})
	if err != nil {
		return err
	}

	b.watcher = w

	trackErr := b.track()
	if trackErr != nil {
		return errors.Join(trackErr, w.Close())
	}

	addr := wc.metricsAddr
	if addr == "" {
		addr = wc.app.cfg.Watch.MetricsAddr
	}

	if addr != "" {
		serveErr := wc.serveMetrics(ctx, addr, metricsHandler)
		if serveErr != nil {
			return errors.Join(serveErr, w.Close())
		}
	}

	wc.app.status(cmd.ErrOrStderr(), "%s %d entries\n", color.CyanString("watching"), len(ids))

	return w.Run(ctx)
}

func (wc *watchCommand) serveMetrics(ctx context.Context, addr string, handler http.Handler) error {
	mux := observability.NewMetricsMux(wc.app.providers.Tracer, observability.ModeWatch, handler)

	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		serveErr := srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			wc.app.providers.Logger.Error("metrics server", "error", serveErr)
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readHeaderTimeout)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	wc.app.providers.Logger.Info("serving metrics", "addr", listener.Addr().String(), "path", observability.MetricsPath)

	return nil
}

// builder rebuilds watched entries and writes their artifacts.
type builder struct {
	tr      *transform.Transformer
	graph   *transform.Graph
	ids     []string
	outDir  string
	raw     bool
	out     io.Writer
	app     *app
	watcher *watch.Watcher
}

// track registers every input of every entry with the watcher. Entries
// that failed before being tracked are still watched.
func (b *builder) track() error {
	files := b.graph.Files()

	for _, id := range b.ids {
		files = append(files, entryPath(id))
	}

	return b.watcher.SetFiles(files)
}

// affected maps changed files to the ids that must be rebuilt. A changed
// file no entry was built from is a new module and rebuilds everything.
func (b *builder) affected(changed []string) []string {
	entries := make(map[string]bool)

	for _, file := range changed {
		hits := b.graph.Affected(file)
		if len(hits) == 0 && strings.EqualFold(filepath.Ext(file), imports.SourceExt) {
			return b.ids
		}

		for _, entry := range hits {
			entries[entry] = true
		}
	}

	var ids []string

	for _, id := range b.ids {
		if entries[entryPath(id)] {
			ids = append(ids, id)
		}
	}

	return ids
}

// build compiles ids and reports each result. Failures are reported and
// do not stop the loop.
func (b *builder) build(ctx context.Context, ids []string) int {
	var failed int

	for _, id := range ids {
		start := time.Now()

		out, err := b.tr.Load(ctx, id)
		if err != nil {
			failed++

			b.app.status(b.out, "%s %v\n", color.RedString("failed"), err)

			continue
		}

		path, writeErr := writeArtifact(b.outDir, out, b.raw)
		if writeErr != nil {
			failed++

			b.app.status(b.out, "%s %v\n", color.RedString("failed"), writeErr)

			continue
		}

		b.app.status(b.out, "%s %s -> %s in %s\n",
			color.GreenString("built"), id, path, time.Since(start).Round(time.Millisecond))
	}

	return failed
}

// entryPath is the absolute file path named by a matched id.
func entryPath(id string) string {
	req, _ := transform.Match(id)

	abs, err := filepath.Abs(req.Path)
	if err != nil {
		return req.Path
	}

	return abs
}
