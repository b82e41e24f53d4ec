package commands

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jormeli/slangload/pkg/observability"
	"github.com/jormeli/slangload/pkg/transform"
)

const (
	flagTarget = "target"
	flagOutDir = "out-dir"
	flagRaw    = "raw"
	flagJobs   = "jobs"
)

type compileCommand struct {
	app    *app
	target string
	outDir string
	raw    bool
	jobs   int
}

func newCompileCommand(a *app) *cobra.Command {
	cc := &compileCommand{app: a}

	cmd := &cobra.Command{
		Use:   "compile <entry.slang[?target]>...",
		Short: "Compile entry modules",
		Long: `Compile one or more entry modules. Each argument may carry a target query
(post.slang?glsl); otherwise --target or the configured default is used.
Without --out-dir the results are written to stdout in argument order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: cc.run,
	}

	cmd.Flags().StringVarP(&cc.target, flagTarget, "t", "", "target for arguments without a query")
	cmd.Flags().StringVarP(&cc.outDir, flagOutDir, "o", "", "output directory (default build.out_dir)")
	cmd.Flags().BoolVar(&cc.raw, flagRaw, false, "write generated code instead of a JavaScript module")
	cmd.Flags().IntVarP(&cc.jobs, flagJobs, "j", 0, "parallel compiles (default build.jobs)")

	return cmd
}

func (cc *compileCommand) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	setupErr := cc.app.setup(cmd, observability.ModeCLI)
	if setupErr != nil {
		return setupErr
	}
	defer cc.app.shutdown(ctx)

	ids := make([]string, 0, len(args))

	for _, arg := range args {
		id, err := requestID(arg, cc.target)
		if err != nil {
			return err
		}

		ids = append(ids, id)
	}

	tr, err := cc.app.newTransformer(ctx)
	if err != nil {
		return err
	}

	jobs := cc.jobs
	if jobs <= 0 {
		jobs = cc.app.cfg.Build.Jobs
	}

	outputs, err := compileAll(ctx, tr, ids, jobs)
	if err != nil {
		return err
	}

	outDir := cc.outDir
	if outDir == "" {
		outDir = cc.app.cfg.Build.OutDir
	}

	for _, out := range outputs {
		body := payload(out, cc.raw)

		if outDir == "" {
			fmt.Fprint(cmd.OutOrStdout(), body)

			continue
		}

		path, writeErr := writeArtifact(outDir, out, cc.raw)
		if writeErr != nil {
			return writeErr
		}

		cc.app.status(cmd.ErrOrStderr(), "%s %s -> %s (%s, %d modules)\n",
			color.GreenString("compiled"), out.ID, path, humanize.Bytes(uint64(len(body))), out.Modules)
	}

	return nil
}

// compileAll compiles ids concurrently, at most jobs at a time, and returns
// the outputs in argument order. The first failure cancels the rest.
func compileAll(ctx context.Context, tr *transform.Transformer, ids []string, jobs int) ([]*transform.Output, error) {
	outputs := make([]*transform.Output, len(ids))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(jobs)

	for i, id := range ids {
		group.Go(func() error {
			out, err := tr.Load(groupCtx, id)
			if err != nil {
				return err
			}

			outputs[i] = out

			return nil
		})
	}

	waitErr := group.Wait()
	if waitErr != nil {
		return nil, waitErr
	}

	return outputs, nil
}
