package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocat/pkg/catalog"
)

func newDeleteCmd(deps *Deps) *cobra.Command {
	var stores []string

	cmd := &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete metacards and their stored content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := deps.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			req := catalog.NewDeleteRequestByID(args...)
			req.StoreIDs = stores

			resp, err := rt.Framework.Delete(cmd.Context(), req)
			if err != nil {
				return err
			}
			for _, m := range resp.Deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\t%s\n", m.ID(), m.Title())
			}
			printDetails(cmd.ErrOrStderr(), resp.ProcessingErrors)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&stores, "store", nil, "catalog store ids to delete from instead of the local catalog")
	return cmd
}
