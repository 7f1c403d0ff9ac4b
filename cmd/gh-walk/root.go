package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitwiseman/github-api/pkg/cache"
	"github.com/bitwiseman/github-api/pkg/client"
	"github.com/bitwiseman/github-api/pkg/connector"
	"github.com/bitwiseman/github-api/pkg/logging"
	"github.com/bitwiseman/github-api/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the configuration shared by every subcommand.
type app struct {
	v      *viper.Viper
	logger zerolog.Logger
}

// NewRootCommand builds the gh-walk command tree with its own viper
// instance.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New(), logger: logging.Nop()}

	rootCmd := &cobra.Command{
		Use:   "gh-walk",
		Short: "Walk paginated GitHub REST endpoints",
		Long: `gh-walk follows GitHub's Link pagination for any list or search endpoint,
keeping track of the rate limit buckets and waiting out primary and
secondary rate limits.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.gh-walk/config.yml)")
	flags.String("api-url", client.DefaultAPIURL, "GitHub API root")
	flags.StringP("token", "t", "", "personal access token (also GH_WALK_TOKEN or GITHUB_TOKEN)")
	flags.String("user-agent", "gh-walk/"+version, "User-Agent header")
	flags.StringP("output", "o", outputJSON, "output format (json, yaml, table)")
	flags.String("log-level", string(logging.LevelWarn), "log level (trace, debug, info, warn, error)")
	flags.Bool("log-pretty", false, "human readable logs")
	flags.Int("per-page", 100, "page size sent as per_page (0 for the server default)")
	flags.Int("threshold", 0, "wait for the reset once a bucket's remaining count drops to this value")
	flags.Bool("fail-on-limit", false, "fail instead of waiting when a rate limit is hit")
	flags.Int("max-retries", client.DefaultRetryConfig().MaxRetries, "retries after connection errors")
	flags.Float64("rps", 0, "client-side request pacing in requests per second (0 disables)")
	flags.String("redis-url", "", "Redis URL for a shared ETag response cache, e.g. redis://localhost:6379/0")
	flags.Duration("cache-retention", cache.DefaultRetention, "how long cached responses are kept")

	_ = a.v.BindPFlags(flags)
	_ = a.v.BindEnv("token", "GH_WALK_TOKEN", "GITHUB_TOKEN")

	rootCmd.AddCommand(newListCommand(a))
	rootCmd.AddCommand(newSearchCommand(a))
	rootCmd.AddCommand(newRateLimitCommand(a))
	rootCmd.AddCommand(newServeCommand(a))

	return rootCmd
}

// init loads the config file and environment and sets up logging.
func (a *app) init(cmd *cobra.Command) error {
	a.v.SetEnvPrefix("GH_WALK")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if cfgFile := a.v.GetString("config"); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		a.v.AddConfigPath(filepath.Join(home, ".gh-walk"))
		a.v.SetConfigType("yml")
		a.v.SetConfigName("config")
		var notFound viper.ConfigFileNotFoundError
		if err := a.v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	level, err := logging.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		return err
	}
	logging.Setup(logging.Config{
		Level:  level,
		Pretty: a.v.GetBool("log-pretty"),
		Output: cmd.ErrOrStderr(),
	})
	a.logger = logging.NewLogger(logging.ComponentCLI)

	switch a.v.GetString("output") {
	case outputJSON, outputYAML, outputTable:
	default:
		return fmt.Errorf("invalid output format %q (want json, yaml or table)", a.v.GetString("output"))
	}
	return nil
}

// newClient builds the client described by the configuration. The
// returned cleanup closes the Redis connection, if any.
func (a *app) newClient(ctx context.Context) (*client.Client, func(), error) {
	token := a.v.GetString("token")

	httpCfg := connector.DefaultHTTPConfig()
	if token != "" {
		httpCfg.TokenSource = connector.StaticToken(token)
	}
	httpCfg.RequestsPerSecond = a.v.GetFloat64("rps")

	httpConn, err := connector.NewHTTP(httpCfg)
	if err != nil {
		return nil, nil, err
	}

	var conn connector.Connector = httpConn
	cleanup := func() {}

	if redisURL := a.v.GetString("redis-url"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		a.logger.Info().Str("addr", opts.Addr).Msg("Response cache enabled")

		cached, err := connector.NewCaching(httpConn, connector.CachingConfig{
			Store:     cache.NewManager(redisClient),
			Retention: a.v.GetDuration("cache-retention"),
			Principal: token,
		})
		if err != nil {
			redisClient.Close()
			return nil, nil, err
		}
		conn = cached
		cleanup = func() { redisClient.Close() }
	}

	cfg := client.DefaultConfig(conn, a.v.GetString("user-agent"))
	cfg.APIURL = a.v.GetString("api-url")
	cfg.Retry.MaxRetries = a.v.GetInt("max-retries")
	if threshold := a.v.GetInt("threshold"); threshold > 0 {
		cfg.RateLimitChecker = ratelimit.ThresholdChecker{Threshold: threshold, MaxWait: time.Hour}
	}
	if a.v.GetBool("fail-on-limit") {
		cfg.RateLimitHandler = client.RateLimitFail{}
		cfg.AbuseLimitHandler = client.AbuseLimitFail{}
	}

	c, err := client.New(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return c, cleanup, nil
}
