package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jormeli/slangload/pkg/esbuildplugin"
	"github.com/jormeli/slangload/pkg/observability"
)

const (
	flagOutfile = "outfile"
	flagMinify  = "minify"

	bundleFormatESM  = "esm"
	bundleFormatIIFE = "iife"
)

var (
	// ErrBundleFailed is returned when esbuild reports errors.
	ErrBundleFailed = errors.New("bundle failed")
	// ErrNoOutfile is returned when bundle has no --outfile.
	ErrNoOutfile = errors.New("bundle needs --outfile")
)

type bundleCommand struct {
	app     *app
	outfile string
	format  string
	minify  bool
}

func newBundleCommand(a *app) *cobra.Command {
	bc := &bundleCommand{app: a}

	cmd := &cobra.Command{
		Use:   "bundle <entry.js>",
		Short: "Bundle JavaScript that imports .slang modules",
		Long:  "Bundle a JavaScript or TypeScript entry with esbuild, compiling every imported .slang module on the way.",
		Args:  cobra.ExactArgs(1),
		RunE:  bc.run,
	}

	cmd.Flags().StringVarP(&bc.outfile, flagOutfile, "o", "", "output bundle file")
	cmd.Flags().StringVar(&bc.format, flagFormat, bundleFormatESM, "bundle format: esm, iife")
	cmd.Flags().BoolVar(&bc.minify, flagMinify, false, "minify the bundle")

	return cmd
}

func (bc *bundleCommand) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if bc.outfile == "" {
		return ErrNoOutfile
	}

	format := api.FormatESModule

	switch bc.format {
	case bundleFormatESM:
	case bundleFormatIIFE:
		format = api.FormatIIFE
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, bc.format)
	}

	setupErr := bc.app.setup(cmd, observability.ModeCLI)
	if setupErr != nil {
		return setupErr
	}
	defer bc.app.shutdown(ctx)

	tr, err := bc.app.newTransformer(ctx)
	if err != nil {
		return err
	}

	result := api.Build(api.BuildOptions{
		EntryPoints:       []string{args[0]},
		Outfile:           bc.outfile,
		Bundle:            true,
		Write:             true,
		Format:            format,
		MinifyWhitespace:  bc.minify,
		MinifyIdentifiers: bc.minify,
		MinifySyntax:      bc.minify,
		LogLevel:          api.LogLevelSilent,
		Plugins:           []api.Plugin{esbuildplugin.New(ctx, tr, "")},
	})

	if len(result.Errors) > 0 {
		texts := make([]string, 0, len(result.Errors))
		for _, msg := range result.Errors {
			texts = append(texts, msg.Text)
		}

		return fmt.Errorf("%w: %s", ErrBundleFailed, strings.Join(texts, "; "))
	}

	info, statErr := os.Stat(bc.outfile)
	if statErr != nil {
		return fmt.Errorf("stat bundle: %w", statErr)
	}

	bc.app.status(cmd.ErrOrStderr(), "%s %s (%s)\n",
		color.GreenString("bundled"), bc.outfile, humanize.Bytes(uint64(info.Size()))) //nolint:gosec // file sizes are non-negative.

	return nil
}
