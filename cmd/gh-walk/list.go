package main

import (
	"fmt"

	"github.com/bitwiseman/github-api/pkg/client"
	"github.com/bitwiseman/github-api/pkg/pagination"
	"github.com/spf13/cobra"
)

func newListCommand(a *app) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "list <path>...",
		Short: "Walk every page of one or more list endpoints",
		Long: `Walk every page of one or more list endpoints and print the concatenated items.

Paths may carry a query string, e.g. "/repos/golang/go/issues?state=open&labels=NeedsFix".
Several paths are walked concurrently and printed in argument order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, a, args, concurrency)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", pagination.DefaultConfig().MaxConcurrency, "endpoints walked in parallel")

	return cmd
}

func runList(cmd *cobra.Command, a *app, targets []string, concurrency int) error {
	ctx := cmd.Context()
	c, cleanup, err := a.newClient(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	walkers := make([]pagination.Walker[any], 0, len(targets))
	for _, target := range targets {
		endpoint, err := a.endpointFor(c, target)
		if err != nil {
			return err
		}
		walkers = append(walkers, endpoint)
	}

	cfg := pagination.DefaultConfig()
	cfg.MaxConcurrency = concurrency
	results, err := pagination.NewBatchFetcher[any](cfg).FetchAll(ctx, walkers)
	if err != nil {
		return fmt.Errorf("walk failed: %w", err)
	}

	var items []any
	for _, r := range results {
		items = append(items, r.Items...)
	}

	a.logger.Info().Int("endpoints", len(targets)).Int("items", len(items)).Msg("Walk complete")
	return renderItems(cmd.OutOrStdout(), a.v.GetString("output"), items)
}

func (a *app) endpointFor(c *client.Client, target string) (*pagination.Endpoint[any, pagination.ArrayPage[any]], error) {
	req, err := requestFor(target)
	if err != nil {
		return nil, err
	}
	endpoint, err := pagination.List[any](c, req, nil)
	if err != nil {
		return nil, err
	}
	return endpoint.WithPageSize(a.v.GetInt("per-page")), nil
}
