package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocat/pkg/gc"
)

func newGCCmd(deps *Deps) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Purge stored content no metacard refers to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := deps.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			if rt.Storage == nil {
				return fmt.Errorf("storage is disabled, there is no content to collect")
			}

			gcCfg := deps.Config.GC
			if cmd.Flags().Changed("dry-run") {
				gcCfg.DryRun = dryRun
			}

			collector, err := gc.NewCollector(rt.Catalog, rt.Storage, gcCfg, nil)
			if err != nil {
				return err
			}

			stats, err := collector.RunNow(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), stats.Summary())
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be purged without purging")
	return cmd
}
