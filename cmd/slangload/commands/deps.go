package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jormeli/slangload/pkg/loader"
	"github.com/jormeli/slangload/pkg/observability"
	"github.com/jormeli/slangload/pkg/resolve"
	"github.com/jormeli/slangload/pkg/transform"
)

// Output formats of the deps command.
const (
	FormatTable = "table"
	FormatYAML  = "yaml"
	FormatDOT   = "dot"

	flagFormat = "format"
)

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

// DepsReport is the YAML shape of a resolved import tree.
type DepsReport struct {
	Entry   string       `yaml:"entry"`
	Root    string       `yaml:"root"`
	Modules []DepsModule `yaml:"modules"`
}

// DepsModule is one module of a DepsReport, in load order.
type DepsModule struct {
	Name    string   `yaml:"name"`
	Path    string   `yaml:"path"`
	Size    int      `yaml:"size"`
	Imports []string `yaml:"imports,omitempty"`
}

type depsCommand struct {
	app    *app
	format string
}

func newDepsCommand(a *app) *cobra.Command {
	dc := &depsCommand{app: a}

	cmd := &cobra.Command{
		Use:   "deps <entry.slang>",
		Short: "Show the resolved import tree",
		Long:  "Resolve every import of an entry module without compiling it and print the modules in load order.",
		Args:  cobra.ExactArgs(1),
		RunE:  dc.run,
	}

	cmd.Flags().StringVar(&dc.format, flagFormat, FormatTable, "output format: table, yaml, dot")

	return cmd
}

func (dc *depsCommand) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	switch dc.format {
	case FormatTable, FormatYAML, FormatDOT:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, dc.format)
	}

	setupErr := dc.app.setup(cmd, observability.ModeCLI)
	if setupErr != nil {
		return setupErr
	}
	defer dc.app.shutdown(ctx)

	req, ok := transform.Match(args[0])
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSlangModule, args[0])
	}

	entry, err := filepath.Abs(req.Path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", req.Path, err)
	}

	root := dc.app.cfg.Root
	if root == "" {
		root = filepath.Dir(entry)
	}

	ld := loader.New(resolve.NewLocalFS(),
		loader.WithMaxDepth(dc.app.cfg.MaxDepth),
		loader.WithLogger(dc.app.providers.Logger),
		loader.WithTracer(dc.app.providers.Tracer),
	)

	var collector loader.Collector

	res, err := ld.Load(ctx, &collector, entry, root)
	if err != nil {
		return err
	}

	report := buildDepsReport(entry, root, collector.Modules, res)
	w := cmd.OutOrStdout()

	switch dc.format {
	case FormatYAML:
		return writeDepsYAML(w, report)
	case FormatDOT:
		fmt.Fprint(w, res.Graph.DOT(func(path string) string {
			return loader.DisplayName(root, path)
		}))

		return nil
	default:
		writeDepsTable(w, report)

		return nil
	}
}

func buildDepsReport(entry, root string, modules []*loader.SourceModule, res *loader.Result) DepsReport {
	report := DepsReport{Entry: entry, Root: root, Modules: make([]DepsModule, 0, len(modules))}

	for _, mod := range modules {
		var names []string
		for _, dep := range res.Graph.Imports(mod.Path()) {
			names = append(names, loader.DisplayName(root, dep))
		}

		report.Modules = append(report.Modules, DepsModule{
			Name:    mod.Name(),
			Path:    mod.Path(),
			Size:    mod.Size,
			Imports: names,
		})
	}

	return report
}

func writeDepsYAML(w io.Writer, report DepsReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	encodeErr := enc.Encode(report)
	if encodeErr != nil {
		return fmt.Errorf("encode yaml: %w", encodeErr)
	}

	closeErr := enc.Close()
	if closeErr != nil {
		return fmt.Errorf("encode yaml: %w", closeErr)
	}

	return nil
}

func writeDepsTable(w io.Writer, report DepsReport) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"#", "Module", "Size", "Imports", "Path"})

	var total int

	for i, mod := range report.Modules {
		total += mod.Size
		tbl.AppendRow(table.Row{i + 1, mod.Name, humanize.Bytes(uint64(mod.Size)), strings.Join(mod.Imports, ", "), mod.Path}) //nolint:gosec // sizes are non-negative.
	}

	tbl.AppendFooter(table.Row{"", fmt.Sprintf("%d modules", len(report.Modules)), humanize.Bytes(uint64(total)), "", ""}) //nolint:gosec // sizes are non-negative.
	tbl.Render()
}
