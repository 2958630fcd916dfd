package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittocat/pkg/catalog"
)

func newSourcesCmd(deps *Deps) *cobra.Command {
	var (
		enterprise bool
		ids        []string
		format     string
	)

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Describe the local catalog and the federated sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "yaml" {
				return fmt.Errorf("unknown format %q (table, yaml)", format)
			}

			rt, err := deps.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			// Probe once so availability reflects the sources right now.
			rt.Framework.Poller().Poll(cmd.Context())

			resp, err := rt.Framework.GetSourceInfo(cmd.Context(), &catalog.SourceInfoRequest{
				Enterprise: enterprise,
				SourceIDs:  ids,
			})
			if err != nil {
				return err
			}

			if format == "yaml" {
				return writeSourcesYAML(cmd.OutOrStdout(), resp.Sources)
			}
			return writeSourcesTable(cmd.OutOrStdout(), resp.Sources)
		},
	}

	cmd.Flags().BoolVar(&enterprise, "enterprise", false, "describe every registered source")
	cmd.Flags().StringSliceVar(&ids, "source", nil, "source ids to describe")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or yaml")

	return cmd
}

func writeSourcesTable(w io.Writer, sources []catalog.SourceDescriptor) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tVERSION\tAVAILABLE\tCONTENT TYPES")
	for _, s := range sources {
		types := make([]string, 0, len(s.ContentTypes))
		for _, ct := range s.ContentTypes {
			types = append(types, contentTypeString(ct))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\n", s.ID, s.Title, s.Version, s.Available, strings.Join(types, ","))
	}
	return tw.Flush()
}

type sourceYAML struct {
	ID            string   `yaml:"id"`
	Title         string   `yaml:"title,omitempty"`
	Version       string   `yaml:"version,omitempty"`
	Description   string   `yaml:"description,omitempty"`
	Available     bool     `yaml:"available"`
	LastAvailable string   `yaml:"last_available,omitempty"`
	ContentTypes  []string `yaml:"content_types,omitempty"`
}

func writeSourcesYAML(w io.Writer, sources []catalog.SourceDescriptor) error {
	out := make([]sourceYAML, 0, len(sources))
	for _, s := range sources {
		entry := sourceYAML{
			ID:          s.ID,
			Title:       s.Title,
			Version:     s.Version,
			Description: s.Description,
			Available:   s.Available,
		}
		if !s.LastAvailable.IsZero() {
			entry.LastAvailable = s.LastAvailable.UTC().Format(time.RFC3339)
		}
		for _, ct := range s.ContentTypes {
			entry.ContentTypes = append(entry.ContentTypes, contentTypeString(ct))
		}
		out = append(out, entry)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}
	return enc.Close()
}

func contentTypeString(ct catalog.ContentType) string {
	if ct.Version == "" {
		return ct.Name
	}
	return ct.Name + "@" + ct.Version
}
