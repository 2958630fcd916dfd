package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/filter"
	"github.com/marmos91/dittocat/pkg/transform"
)

type queryFlags struct {
	equal      []string
	like       []string
	after      []string
	before     []string
	missing    []string
	any        bool
	sources    []string
	enterprise bool
	start      int
	page       int
	sort       []string
	count      bool
	timeout    time.Duration
	format     string
	pretty     bool
}

func newQueryCmd(deps *Deps) *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the local catalog or the federation",
		Long: `Query builds a filter from the criteria flags. Criteria are combined with AND
unless --any is given; with no criteria every metacard matches.

Examples:
  dittocat query --like title='*report*'
  dittocat query --eq content-type=application/json --enterprise
  dittocat query --after created=2024-01-01T00:00:00Z --sort created:desc --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := buildFilter(flags)
			if err != nil {
				return err
			}
			sortBy, err := parseSort(flags.sort)
			if err != nil {
				return err
			}

			rt, err := deps.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			q := catalog.NewQuery(f)
			q.StartIndex = flags.start
			q.PageSize = flags.page
			q.RequestsTotalCount = flags.count
			q.Timeout = flags.timeout
			if len(sortBy) > 0 {
				q.Sort = sortBy
			}

			req := &catalog.QueryRequest{
				Query:      q,
				Enterprise: flags.enterprise,
				SourceIDs:  flags.sources,
			}

			resp, err := rt.Framework.Query(cmd.Context(), req)
			if err != nil {
				return err
			}
			printDetails(cmd.ErrOrStderr(), resp.Details)

			out, err := rt.Framework.TransformResponse(cmd.Context(), resp, flags.format,
				map[string]any{transform.ArgPretty: flags.pretty})
			if err != nil {
				return err
			}
			return writeContent(cmd.OutOrStdout(), out)
		},
	}

	fl := cmd.Flags()
	fl.StringArrayVar(&flags.equal, "eq", nil, "attribute equals value, as name=value (repeatable)")
	fl.StringArrayVar(&flags.like, "like", nil, "case-insensitive wildcard match, as name=pattern (repeatable)")
	fl.StringArrayVar(&flags.after, "after", nil, "date attribute after an RFC 3339 time, as name=time (repeatable)")
	fl.StringArrayVar(&flags.before, "before", nil, "date attribute before an RFC 3339 time, as name=time (repeatable)")
	fl.StringArrayVar(&flags.missing, "missing", nil, "attribute has no value (repeatable)")
	fl.BoolVar(&flags.any, "any", false, "match any criterion instead of all")
	fl.StringSliceVar(&flags.sources, "source", nil, "source ids to query")
	fl.BoolVar(&flags.enterprise, "enterprise", false, "query every available source")
	fl.IntVar(&flags.start, "start", 1, "1-based index of the first result")
	fl.IntVar(&flags.page, "page", catalog.DefaultPageSize, "maximum number of results")
	fl.StringSliceVar(&flags.sort, "sort", nil, "sort attributes, as name[:asc|:desc]")
	fl.BoolVar(&flags.count, "count", false, "request the total hit count")
	fl.DurationVar(&flags.timeout, "timeout", 0, "query timeout, the framework default when zero")
	fl.StringVar(&flags.format, "format", "json", "response transformer id")
	fl.BoolVar(&flags.pretty, "pretty", false, "indent JSON output")

	return cmd
}

// buildFilter combines the criteria flags into one filter.
func buildFilter(flags queryFlags) (filter.Filter, error) {
	var filters []filter.Filter

	for _, pair := range flags.equal {
		name, value, err := splitCriterion("eq", pair)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter.Equal(name, value))
	}
	for _, pair := range flags.like {
		name, value, err := splitCriterion("like", pair)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter.Like(name, value))
	}
	for _, pair := range flags.after {
		name, t, err := splitTimeCriterion("after", pair)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter.After(name, t))
	}
	for _, pair := range flags.before {
		name, t, err := splitTimeCriterion("before", pair)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter.Before(name, t))
	}
	for _, name := range flags.missing {
		filters = append(filters, filter.IsNull(name))
	}

	if flags.any {
		if len(filters) == 0 {
			return filter.Include, nil
		}
		return filter.AnyOf(filters...), nil
	}
	return filter.AllOf(filters...), nil
}

func splitCriterion(flag, pair string) (string, string, error) {
	name, value, ok := strings.Cut(pair, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("invalid --%s %q, expected name=value", flag, pair)
	}
	return name, value, nil
}

func splitTimeCriterion(flag, pair string) (string, time.Time, error) {
	name, value, err := splitCriterion(flag, pair)
	if err != nil {
		return "", time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid --%s time %q: %w", flag, value, err)
	}
	return name, t, nil
}

// parseSort reads name[:asc|:desc] sort keys. "relevance" sorts by score.
func parseSort(keys []string) ([]catalog.SortBy, error) {
	out := make([]catalog.SortBy, 0, len(keys))
	for _, key := range keys {
		name, dir, _ := strings.Cut(key, ":")
		if name == "" {
			return nil, fmt.Errorf("invalid sort key %q", key)
		}
		if strings.EqualFold(name, catalog.SortRelevance) {
			name = catalog.SortRelevance
		}

		by := catalog.SortBy{Attribute: name}
		switch strings.ToLower(dir) {
		case "", "asc":
		case "desc":
			by.Descending = true
		default:
			return nil, fmt.Errorf("invalid sort direction %q in %q", dir, key)
		}
		out = append(out, by)
	}
	return out, nil
}
