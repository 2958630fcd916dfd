package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocat/pkg/catalog"
)

type ingestFlags struct {
	attrs    []string
	stores   []string
	mimeType string
	name     string
	update   string
}

func newIngestCmd(deps *Deps) *cobra.Command {
	var flags ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Store files and catalog the metacards produced from them",
		Long: `Ingest stores each file in the content store and creates a metacard for it
through the matching input transformer. Use "-" to read a single product from
standard input; --name then gives it a filename.

With --update the single file replaces the content of an existing metacard.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseKeyValues(flags.attrs)
			if err != nil {
				return err
			}

			items, err := contentItems(args, flags, deps.In)
			if err != nil {
				return err
			}

			rt, err := deps.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			out := cmd.OutOrStdout()

			if flags.update != "" {
				req := catalog.NewUpdateStorageRequest(items...)
				req.StoreIDs = flags.stores
				req.Properties.AttributeOverrides = overrides

				resp, err := rt.Framework.UpdateStorage(cmd.Context(), req)
				if err != nil {
					return err
				}
				for _, pair := range resp.Updated {
					fmt.Fprintf(out, "updated %s\t%s\n", pair.New.ID(), pair.New.Title())
				}
				printDetails(cmd.ErrOrStderr(), resp.ProcessingErrors)
				return nil
			}

			req := catalog.NewCreateStorageRequest(items...)
			req.StoreIDs = flags.stores
			req.Properties.AttributeOverrides = overrides

			resp, err := rt.Framework.CreateStorage(cmd.Context(), req)
			if err != nil {
				return err
			}
			for _, m := range resp.Created {
				fmt.Fprintf(out, "created %s\t%s\n", m.ID(), m.Title())
			}
			printDetails(cmd.ErrOrStderr(), resp.ProcessingErrors)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&flags.attrs, "attr", "a", nil, "attribute override as name=value (repeatable)")
	cmd.Flags().StringSliceVar(&flags.stores, "store", nil, "catalog store ids to write to instead of the local catalog")
	cmd.Flags().StringVar(&flags.mimeType, "mime-type", "", "content type of the input, detected when empty")
	cmd.Flags().StringVar(&flags.name, "name", "", "filename to record for standard input")
	cmd.Flags().StringVar(&flags.update, "update", "", "metacard id whose content is replaced")

	return cmd
}

// contentItems builds one item per argument. Files are opened lazily by
// the framework.
func contentItems(args []string, flags ingestFlags, stdin io.Reader) ([]*catalog.ContentItem, error) {
	if flags.update != "" && len(args) != 1 {
		return nil, fmt.Errorf("--update takes exactly one file, got %d", len(args))
	}

	items := make([]*catalog.ContentItem, 0, len(args))
	for _, arg := range args {
		item := &catalog.ContentItem{ID: flags.update, MimeType: flags.mimeType}

		if arg == "-" {
			if len(args) != 1 {
				return nil, fmt.Errorf("standard input cannot be combined with other files")
			}
			item.Filename = flags.name
			item.Source = catalog.NewReaderSource(stdin)
			items = append(items, item)
			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot ingest %s: %w", arg, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("cannot ingest %s: is a directory", arg)
		}

		item.Filename = filepath.Base(arg)
		if flags.name != "" && len(args) == 1 {
			item.Filename = flags.name
		}
		item.Size = info.Size()
		item.Source = catalog.FileSource(arg)
		items = append(items, item)
	}
	return items, nil
}

// parseKeyValues turns repeated name=value flags into a multi-valued map.
func parseKeyValues(pairs []string) (map[string][]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid attribute %q, expected name=value", pair)
		}
		out[name] = append(out[name], value)
	}
	return out, nil
}

func printDetails(w io.Writer, details []catalog.ProcessingDetails) {
	for _, d := range details {
		fmt.Fprintf(w, "warning: %s\n", d.String())
	}
}
