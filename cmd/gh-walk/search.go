package main

import (
	"fmt"

	"github.com/bitwiseman/github-api/pkg/client"
	"github.com/bitwiseman/github-api/pkg/pagination"
	"github.com/spf13/cobra"
)

// searchResult is printed for json and yaml output.
type searchResult struct {
	TotalCount        int   `json:"total_count" yaml:"total_count"`
	IncompleteResults bool  `json:"incomplete_results" yaml:"incomplete_results"`
	Items             []any `json:"items" yaml:"items"`
}

func newSearchCommand(a *app) *cobra.Command {
	var (
		sort     string
		order    string
		maxItems int
	)

	cmd := &cobra.Command{
		Use:   "search <kind> <query>",
		Short: "Run a search and walk its result pages",
		Long: `Run a GitHub search and walk its result pages.

Kind is one of the /search endpoints: repositories, issues, code, commits,
users, topics or labels.`,
		Example: `  gh-walk search issues "repo:golang/go is:open label:NeedsFix"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, a, args[0], args[1], sort, order, maxItems)
		},
	}

	cmd.Flags().StringVar(&sort, "sort", "", "sort field")
	cmd.Flags().StringVar(&order, "order", "", "sort order (asc, desc)")
	cmd.Flags().IntVar(&maxItems, "max", 0, "stop after this many items (0 for all)")

	return cmd
}

func runSearch(cmd *cobra.Command, a *app, kind, query, sort, order string, maxItems int) error {
	ctx := cmd.Context()
	c, cleanup, err := a.newClient(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	b := client.NewRequest().WithURLPath("/search", kind).With("q", query)
	if sort != "" {
		b.With("sort", sort)
	}
	if order != "" {
		b.With("order", order)
	}
	req, err := b.Build()
	if err != nil {
		return err
	}

	search, err := pagination.Search[any](c, req, nil)
	if err != nil {
		return err
	}
	search = search.WithPageSize(a.v.GetInt("per-page"))

	items := search.Iterator(ctx)
	var found []any
	for (maxItems <= 0 || len(found) < maxItems) && items.HasNext() {
		item, err := items.Next()
		if err != nil {
			return err
		}
		found = append(found, item)
	}
	if err := items.Err(); err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	result := searchResult{Items: found}
	if page, ok := items.CurrentPage(); ok {
		result.TotalCount = page.TotalCount
		result.IncompleteResults = page.IncompleteResults
	}
	if result.Items == nil {
		result.Items = []any{}
	}

	out := cmd.OutOrStdout()
	switch a.v.GetString("output") {
	case outputYAML:
		return renderYAML(out, result)
	case outputTable:
		_, _ = fmt.Fprintf(out, "Total: %d", result.TotalCount)
		if result.IncompleteResults {
			_, _ = fmt.Fprint(out, " (incomplete)")
		}
		_, _ = fmt.Fprintln(out)
		return renderItems(out, outputTable, found)
	default:
		return renderJSON(out, result)
	}
}
