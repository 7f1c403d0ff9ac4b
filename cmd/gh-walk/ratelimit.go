package main

import (
	"fmt"
	"time"

	"github.com/bitwiseman/github-api/pkg/ratelimit"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// bucketRow is the printable form of one bucket.
type bucketRow struct {
	Bucket    string    `json:"bucket" yaml:"bucket"`
	Limit     int       `json:"limit" yaml:"limit"`
	Remaining int       `json:"remaining" yaml:"remaining"`
	ResetAt   time.Time `json:"reset_at" yaml:"reset_at"`
}

func newRateLimitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rate-limit",
		Aliases: []string{"rl"},
		Short:   "Show the rate limit buckets",
		Long:    "Fetch /rate_limit, which does not count against the quota, and print every bucket.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			snapshot, err := c.RateLimit(cmd.Context())
			if err != nil {
				return err
			}
			return renderRateLimit(cmd, a.v.GetString("output"), snapshot)
		},
	}
}

func renderRateLimit(cmd *cobra.Command, format string, snapshot ratelimit.RateLimit) error {
	var rows []bucketRow
	for _, bucket := range ratelimit.Buckets() {
		rec := snapshot.Record(bucket)
		if rec.IsUnknown() {
			continue
		}
		rows = append(rows, bucketRow{
			Bucket:    string(bucket),
			Limit:     rec.Limit,
			Remaining: rec.Remaining,
			ResetAt:   rec.ResetDate.UTC(),
		})
	}

	out := cmd.OutOrStdout()
	switch format {
	case outputJSON:
		return renderJSON(out, rows)
	case outputYAML:
		return renderYAML(out, rows)
	}

	table := tablewriter.NewWriter(out)
	table.Header("Bucket", "Limit", "Remaining", "Resets")
	for _, row := range rows {
		_ = table.Append(row.Bucket, fmt.Sprint(row.Limit), fmt.Sprint(row.Remaining), row.ResetAt.Format(time.RFC3339))
	}
	_ = table.Render()
	return nil
}
