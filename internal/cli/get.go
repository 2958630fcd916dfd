package cli

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocat/internal/logger"
	"github.com/marmos91/dittocat/pkg/catalog"
)

type getFlags struct {
	source     string
	enterprise bool
	qualifier  string
	byURI      bool
	output     string
	options    bool
}

func newGetCmd(deps *Deps) *cobra.Command {
	var flags getFlags

	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Retrieve the resource of a metacard",
		Long: `Get retrieves the resource behind a metacard id, or behind a resource URI
with --uri, and writes it to standard output or to --output. An --output
naming a directory keeps the resource's own filename.

Without --source or --enterprise the local catalog is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := deps.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			ctx := cmd.Context()
			fw := rt.Framework

			if flags.options {
				var options []string
				switch {
				case flags.enterprise:
					options, err = fw.GetEnterpriseResourceOptions(ctx, args[0])
				case flags.source != "":
					options, err = fw.GetResourceOptions(ctx, args[0], flags.source)
				default:
					options, err = fw.GetLocalResourceOptions(ctx, args[0])
				}
				if err != nil {
					return err
				}
				for _, o := range options {
					fmt.Fprintln(cmd.OutOrStdout(), o)
				}
				return nil
			}

			req := catalog.NewResourceRequestByID(args[0])
			if flags.byURI {
				u, err := url.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid resource URI %q: %w", args[0], err)
				}
				req = catalog.NewResourceRequestByURI(u)
			}
			req.Properties.Qualifier = flags.qualifier

			var resp *catalog.ResourceResponse
			switch {
			case flags.enterprise:
				resp, err = fw.GetEnterpriseResource(ctx, req)
			case flags.source != "":
				resp, err = fw.GetResource(ctx, req, flags.source)
			default:
				resp, err = fw.GetLocalResource(ctx, req)
			}
			if err != nil {
				return err
			}

			res := resp.Resource
			defer res.Body.Close()

			if flags.output == "" || flags.output == "-" {
				_, err = io.Copy(cmd.OutOrStdout(), res.Body)
				return err
			}

			path, err := writeResource(flags.output, res)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%s)\n", path, res.MimeType)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.source, "source", "", "id of the source holding the metacard")
	cmd.Flags().BoolVar(&flags.enterprise, "enterprise", false, "look the metacard up across every source")
	cmd.Flags().StringVar(&flags.qualifier, "qualifier", "", "derived resource qualifier")
	cmd.Flags().BoolVar(&flags.byURI, "uri", false, "treat the argument as a resource URI")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "file or directory to write to (default: stdout)")
	cmd.Flags().BoolVar(&flags.options, "options", false, "list the retrieval options instead of retrieving")

	return cmd
}

// writeResource copies res into target, a file path or an existing
// directory. It returns the path written.
func writeResource(target string, res *catalog.Resource) (string, error) {
	path := target
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		name := filepath.Base(strings.TrimSpace(res.Name))
		if name == "" || name == "." || name == string(filepath.Separator) {
			name = "resource"
		}
		path = filepath.Join(target, name)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}

	n, err := io.Copy(f, res.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := os.Remove(path); rerr != nil {
			logger.Debug("Failed to remove partial file %s: %v", path, rerr)
		}
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if res.Size >= 0 && n != res.Size {
		logger.Warn("Resource size mismatch for %s: expected %d bytes, wrote %d", path, res.Size, n)
	}
	return path, nil
}
