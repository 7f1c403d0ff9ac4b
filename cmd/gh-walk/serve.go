package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bitwiseman/github-api/pkg/client"
	"github.com/bitwiseman/github-api/pkg/metrics"
	"github.com/bitwiseman/github-api/pkg/pagination"
	"github.com/bitwiseman/github-api/pkg/ratelimit"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const walkPrefix = "/gh/"

func newServeCommand(a *app) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve paginated walks over HTTP",
		Long: `Run an HTTP server that walks GitHub endpoints on behalf of its callers.

  GET /gh/<path>?<query>  walks every page and returns the concatenated JSON array
  GET /health             liveness and remaining core quota
  GET /metrics            Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, cleanup, err := a.newClient(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			server := &http.Server{
				Addr:              addr,
				Handler:           newServeMux(c, a.v.GetInt("per-page"), timeout, a.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info().
					Str("addr", addr).
					Str("api_url", c.APIURL()).
					Msg("Starting gh-walk server")
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			a.logger.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().DurationVar(&timeout, "walk-timeout", 2*time.Minute, "maximum duration of one walk")

	return cmd
}

func newServeMux(c *client.Client, perPage int, timeout time.Duration, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(c))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc(walkPrefix, walkHandler(c, perPage, timeout, logger))
	return mux
}

func healthHandler(c *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		core := c.Tracker().Current(ratelimit.BucketCore)
		if !core.IsUnknown() {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(core.Remaining))
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func walkHandler(c *client.Client, perPage int, timeout time.Duration, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "only GET can be paginated", http.StatusMethodNotAllowed)
			return
		}

		// /gh/repos/octo/hello/issues?state=open -> /repos/octo/hello/issues?state=open
		target := "/" + strings.TrimPrefix(r.URL.Path, walkPrefix)
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}

		req, err := requestFor(target)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		endpoint, err := pagination.List[any](c, req, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		items, err := endpoint.WithPageSize(perPage).ToSlice(ctx)
		if err != nil {
			status := walkErrorStatus(err)
			logger.Warn().
				Err(err).
				Str("target", target).
				Int("status", status).
				Msg("Walk failed")
			http.Error(w, fmt.Sprintf("GitHub walk failed: %v", err), status)
			return
		}
		if items == nil {
			items = []any{}
		}

		logger.Debug().
			Str("target", target).
			Int("items", len(items)).
			Dur("duration", time.Since(start)).
			Msg("Walk served")

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("X-Total-Count", strconv.Itoa(len(items)))
		if err := renderJSON(w, items); err != nil {
			logger.Error().Err(err).Msg("Failed to write response")
		}
	}
}

// walkErrorStatus maps a failed walk to the status returned to the caller.
func walkErrorStatus(err error) int {
	var httpErr *client.HTTPError
	switch {
	case errors.Is(err, client.ErrRateLimited), errors.Is(err, client.ErrAbuseLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500:
		return httpErr.StatusCode
	default:
		return http.StatusBadGateway
	}
}
