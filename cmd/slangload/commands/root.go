// Package commands implements the slangload CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jormeli/slangload/pkg/compiler"
	"github.com/jormeli/slangload/pkg/compiler/slangc"
	"github.com/jormeli/slangload/pkg/config"
	"github.com/jormeli/slangload/pkg/observability"
	"github.com/jormeli/slangload/pkg/resolve"
	"github.com/jormeli/slangload/pkg/transform"
	"github.com/jormeli/slangload/pkg/version"
)

// Persistent flag names.
const (
	flagConfig  = "config"
	flagVerbose = "verbose"
	flagQuiet   = "quiet"
	flagNoColor = "no-color"
)

// RuntimeFactory opens the compiler runtime described by cfg.
type RuntimeFactory func(ctx context.Context, cfg *config.Config) (compiler.Runtime, error)

// OpenSlangc opens the slangc backend configured in cfg.
func OpenSlangc(ctx context.Context, cfg *config.Config) (compiler.Runtime, error) {
	rt, err := slangc.Open(ctx, slangc.Options{
		Path:      cfg.Compiler.SlangcPath,
		ExtraArgs: cfg.Compiler.ExtraArgs,
		Timeout:   cfg.Compiler.Timeout,
	})
	if err != nil {
		return nil, err
	}

	return rt, nil
}

// Option adjusts the root command.
type Option func(*app)

// WithRuntimeFactory replaces the slangc backend.
func WithRuntimeFactory(factory RuntimeFactory) Option {
	return func(a *app) { a.openRuntime = factory }
}

// app is the state shared by all commands of one invocation.
type app struct {
	configPath string
	verbose    bool
	quiet      bool
	noColor    bool

	openRuntime RuntimeFactory

	cfg       *config.Config
	providers observability.Providers
	metrics   *observability.REDMetrics
}

// NewRootCommand builds the slangload command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{openRuntime: OpenSlangc}
	for _, opt := range opts {
		opt(a)
	}

	rootCmd := &cobra.Command{
		Use:   "slangload",
		Short: "Compile Slang shader modules into JavaScript modules",
		Long: `slangload resolves the import tree of a Slang entry module, compiles it
for a target shading language, and emits the result as a JavaScript module.

Commands:
  compile   Compile entry modules
  deps      Show the resolved import tree
  targets   List compile targets
  watch     Rebuild entries when their sources change
  bundle    Bundle JavaScript that imports .slang modules`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, flagConfig, "", "config file (default .slangload.yaml in . or $HOME)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, flagVerbose, "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&a.quiet, flagQuiet, "q", false, "suppress output")
	rootCmd.PersistentFlags().BoolVar(&a.noColor, flagNoColor, false, "disable colored output")
	rootCmd.MarkFlagsMutuallyExclusive(flagVerbose, flagQuiet)

	rootCmd.AddCommand(
		newCompileCommand(a),
		newDepsCommand(a),
		newTargetsCommand(a),
		newWatchCommand(a),
		newBundleCommand(a),
		versionCmd(),
	)

	return rootCmd
}

// setup loads configuration and starts telemetry for one command.
func (a *app) setup(cmd *cobra.Command, mode observability.AppMode, obsOpts ...observability.Option) error {
	if a.noColor {
		color.NoColor = true
	}

	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}

	switch {
	case a.verbose:
		level = slog.LevelDebug
	case a.quiet:
		level = slog.LevelError
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Mode = mode
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Logging.JSON
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure

	obsOpts = append([]observability.Option{observability.WithLogOutput(cmd.ErrOrStderr())}, obsOpts...)

	providers, err := observability.Init(obsCfg, obsOpts...)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	metrics, err := observability.NewREDMetrics(providers.Meter)
	if err != nil {
		return errors.Join(err, providers.Shutdown(cmd.Context()))
	}

	a.cfg = cfg
	a.providers = providers
	a.metrics = metrics

	return nil
}

func (a *app) shutdown(ctx context.Context) {
	if a.providers.Shutdown == nil {
		return
	}

	err := a.providers.Shutdown(context.WithoutCancel(ctx))
	if err != nil {
		a.providers.Logger.Warn("telemetry shutdown", "error", err)
	}
}

// newTransformer opens the runtime and builds a transformer from config.
func (a *app) newTransformer(ctx context.Context, extra ...transform.Option) (*transform.Transformer, error) {
	rt, err := a.openRuntime(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("open compiler: %w", err)
	}

	opts := []transform.Option{
		transform.WithDefaultTarget(a.cfg.DefaultTarget),
		transform.WithRoot(a.cfg.Root),
		transform.WithMaxDepth(a.cfg.MaxDepth),
		transform.WithLogger(a.providers.Logger),
		transform.WithTracer(a.providers.Tracer),
		transform.WithMetrics(a.metrics),
	}

	if a.cfg.Cache.Enabled {
		size, sizeErr := a.cfg.CacheBytes()
		if sizeErr != nil {
			return nil, sizeErr
		}

		opts = append(opts, transform.WithCache(transform.NewCache(size)))
	}

	return transform.New(rt, resolve.NewLocalFS(), append(opts, extra...)...), nil
}

// status prints a progress line unless --quiet is set.
func (a *app) status(w io.Writer, format string, args ...any) {
	if a.quiet {
		return
	}

	fmt.Fprintf(w, format, args...)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "slangload %s\n", version.Info())
		},
	}
}
