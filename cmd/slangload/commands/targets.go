package commands

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jormeli/slangload/pkg/observability"
)

func newTargetsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List compile targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			setupErr := a.setup(cmd, observability.ModeCLI)
			if setupErr != nil {
				return setupErr
			}
			defer a.shutdown(ctx)

			rt, err := a.openRuntime(ctx, a.cfg)
			if err != nil {
				return err
			}

			tbl := table.NewWriter()
			tbl.SetOutputMirror(cmd.OutOrStdout())
			tbl.SetStyle(table.StyleLight)
			tbl.AppendHeader(table.Row{"Target", "ID", "Default"})

			for _, target := range rt.Targets() {
				name := strings.ToLower(target.Name)

				var mark string
				if strings.EqualFold(name, a.cfg.DefaultTarget) {
					mark = "*"
				}

				tbl.AppendRow(table.Row{name, target.Value, mark})
			}

			tbl.Render()

			return nil
		},
	}
}
