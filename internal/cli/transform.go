package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/filter"
	"github.com/marmos91/dittocat/pkg/framework"
	"github.com/marmos91/dittocat/pkg/transform"
)

func newTransformCmd(deps *Deps) *cobra.Command {
	var (
		format     string
		source     string
		enterprise bool
		list       bool
		pretty     bool
	)

	cmd := &cobra.Command{
		Use:   "transform [ID]",
		Short: "Render a metacard with a metacard transformer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := deps.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			if list {
				for _, id := range rt.Framework.Transformers().MetacardIDs() {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("a metacard id is required")
			}

			m, err := findMetacard(cmd.Context(), rt.Framework, args[0], source, enterprise)
			if err != nil {
				return err
			}

			out, err := rt.Framework.TransformMetacard(cmd.Context(), m, format,
				map[string]any{transform.ArgPretty: pretty})
			if err != nil {
				return err
			}
			return writeContent(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "metacard transformer id")
	cmd.Flags().StringVar(&source, "source", "", "id of the source holding the metacard")
	cmd.Flags().BoolVar(&enterprise, "enterprise", false, "look the metacard up across every source")
	cmd.Flags().BoolVar(&list, "list", false, "list the metacard transformer ids")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")

	return cmd
}

// findMetacard queries for a single metacard by id.
func findMetacard(ctx context.Context, fw *framework.CatalogFramework, id, source string, enterprise bool) (*catalog.Metacard, error) {
	q := catalog.NewQuery(filter.Equal(catalog.AttrID, id))
	q.PageSize = 1

	req := &catalog.QueryRequest{Query: q, Enterprise: enterprise}
	if source != "" {
		req.SourceIDs = []string{source}
	}

	resp, err := fw.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("metacard %s not found", id)
	}
	return resp.Results[0].Metacard, nil
}

// writeContent copies transformer output to w, ending with a newline.
func writeContent(w io.Writer, content *catalog.BinaryContent) error {
	if content == nil {
		return nil
	}
	if _, err := w.Write(content.Data); err != nil {
		return err
	}
	if n := len(content.Data); n > 0 && content.Data[n-1] != '\n' {
		_, err := io.WriteString(w, "\n")
		return err
	}
	return nil
}
