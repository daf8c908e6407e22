package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/milkflow/internal/config"
	"github.com/vnykmshr/milkflow/internal/logging"
	"github.com/vnykmshr/milkflow/internal/server"
	mfcontext "github.com/vnykmshr/milkflow/pkg/common/context"
	"github.com/vnykmshr/milkflow/pkg/metrics"
	"github.com/vnykmshr/milkflow/pkg/milk"
	"github.com/vnykmshr/milkflow/pkg/milk/distributed"
	"github.com/vnykmshr/milkflow/pkg/milk/unit"
)

const shutdownTimeout = 10 * time.Second

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "TOML or YAML configuration file", Sources: cli.EnvVars("MILKFLOW_CONFIG")},
		&cli.StringFlag{Name: "listen", Usage: "HTTP listen address", Sources: cli.EnvVars("MILKFLOW_LISTEN")},

		&cli.FloatFlag{Name: "capacity", Usage: "bucket capacity in liters", Sources: cli.EnvVars("MILKFLOW_CAPACITY")},
		&cli.FloatFlag{Name: "initial", Usage: "initial level in liters", Sources: cli.EnvVars("MILKFLOW_INITIAL")},
		&cli.FloatFlag{Name: "withdraw-unit", Usage: "liters withdrawn per request", Sources: cli.EnvVars("MILKFLOW_WITHDRAW_UNIT")},
		&cli.BoolFlag{Name: "strict", Usage: "refuse requests whose withdrawal comes back empty", Sources: cli.EnvVars("MILKFLOW_STRICT")},

		&cli.BoolFlag{Name: "refill", Usage: "run the refill task; disable on all but one instance sharing a Redis bucket", Value: true, Sources: cli.EnvVars("MILKFLOW_REFILL")},
		&cli.FloatFlag{Name: "refill-amount", Usage: "liters added per refill tick", Sources: cli.EnvVars("MILKFLOW_REFILL_AMOUNT")},
		&cli.DurationFlag{Name: "refill-period", Usage: "time between refill ticks", Sources: cli.EnvVars("MILKFLOW_REFILL_PERIOD")},
		&cli.StringFlag{Name: "refill-cron", Usage: "cron schedule for refill ticks, replaces --refill-period", Sources: cli.EnvVars("MILKFLOW_REFILL_CRON")},

		&cli.StringFlag{Name: "redis-addr", Usage: "share the bucket through this Redis server", Sources: cli.EnvVars("MILKFLOW_REDIS_ADDR")},
		&cli.StringFlag{Name: "redis-password", Usage: "Redis password", Sources: cli.EnvVars("MILKFLOW_REDIS_PASSWORD")},
		&cli.IntFlag{Name: "redis-db", Usage: "Redis database", Sources: cli.EnvVars("MILKFLOW_REDIS_DB")},
		&cli.StringFlag{Name: "redis-key", Usage: "Redis key prefix of the shared bucket", Sources: cli.EnvVars("MILKFLOW_REDIS_KEY")},

		&cli.BoolFlag{Name: "metrics", Usage: "expose Prometheus metrics", Sources: cli.EnvVars("MILKFLOW_METRICS")},
		&cli.StringFlag{Name: "metrics-path", Usage: "path of the metrics endpoint", Sources: cli.EnvVars("MILKFLOW_METRICS_PATH")},

		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", Sources: cli.EnvVars("MILKFLOW_LOG_LEVEL")},
		&cli.StringFlag{Name: "log-format", Usage: "text or json", Sources: cli.EnvVars("MILKFLOW_LOG_FORMAT")},
		&cli.StringFlag{Name: "log-file", Usage: "also write logs to this rotated file", Sources: cli.EnvVars("MILKFLOW_LOG_FILE")},
	}
}

func serveCommand(action cli.ActionFunc) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "run the HTTP server and the refill task",
		Flags:  serveFlags(),
		Action: action,
	}
}

// loadConfig layers the config file, environment and flags over the defaults.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	applyFlags(cmd, &cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cli.Command, cfg *config.Config) {
	if cmd.IsSet("listen") {
		cfg.Listen = cmd.String("listen")
	}
	if cmd.IsSet("capacity") {
		cfg.Milk.Capacity = unit.Liters(cmd.Float("capacity"))
	}
	if cmd.IsSet("initial") {
		cfg.Milk.Initial = unit.Liters(cmd.Float("initial"))
	}
	if cmd.IsSet("withdraw-unit") {
		cfg.Milk.WithdrawUnit = unit.Liters(cmd.Float("withdraw-unit"))
	}
	if cmd.IsSet("strict") {
		cfg.Milk.Strict = cmd.Bool("strict")
	}
	if cmd.IsSet("refill") {
		cfg.Milk.Refill.Enabled = cmd.Bool("refill")
	}
	if cmd.IsSet("refill-amount") {
		cfg.Milk.Refill.Amount = unit.Liters(cmd.Float("refill-amount"))
	}
	if cmd.IsSet("refill-period") {
		cfg.Milk.Refill.Period = cmd.Duration("refill-period")
	}
	if cmd.IsSet("refill-cron") {
		cfg.Milk.Refill.Cron = cmd.String("refill-cron")
	}
	if cmd.IsSet("redis-addr") {
		cfg.Redis.Addr = cmd.String("redis-addr")
	}
	if cmd.IsSet("redis-password") {
		cfg.Redis.Password = cmd.String("redis-password")
	}
	if cmd.IsSet("redis-db") {
		cfg.Redis.DB = cmd.Int("redis-db")
	}
	if cmd.IsSet("redis-key") {
		cfg.Redis.Key = cmd.String("redis-key")
	}
	if cmd.IsSet("metrics") {
		cfg.Metrics.Enabled = cmd.Bool("metrics")
	}
	if cmd.IsSet("metrics-path") {
		cfg.Metrics.Path = cmd.String("metrics-path")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.LevelName = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	if cmd.IsSet("log-file") {
		cfg.Log.File = cmd.String("log-file")
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cfg.Log.SetAsDefault = true
	logger, closer := logging.New(cfg.Log)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// daemon is the assembled server, bucket and optional refiller.
type daemon struct {
	cfg      config.Config
	logger   *slog.Logger
	bucket   milk.Bucket
	refiller *milk.Refiller
	srv      *server.Server
	release  func()
}

// serve runs the server and, unless disabled, the refiller until ctx is
// cancelled or either fails.
func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	d, err := newDaemon(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.release()
	return d.run(ctx)
}

// newDaemon opens the bucket and builds the server and refiller without
// starting them.
func newDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger) (*daemon, error) {
	var (
		gatherer prometheus.Gatherer
		registry *metrics.Registry
	)
	if cfg.Metrics.Enabled {
		promRegistry := prometheus.NewRegistry()
		promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		gatherer = promRegistry
		registry = metrics.NewRegistry(promRegistry)
	}

	bucket, release, err := openBucket(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	described := fmt.Sprint(bucket)

	if registry != nil {
		bucket = milk.NewWithMetrics(bucket, "milk", registry)
	}

	d := &daemon{cfg: cfg, logger: logger, bucket: bucket, release: release}

	if cfg.Milk.Refill.Enabled {
		d.refiller, err = milk.NewRefiller(bucket, milk.RefillConfig{
			Rate:    cfg.RefillRate(),
			Cron:    cfg.Milk.Refill.Cron,
			Name:    "milk",
			Logger:  logger,
			Metrics: registry,
		})
		if err != nil {
			release()
			return nil, err
		}
	}

	d.srv, err = server.New(server.Config{
		Bucket:       bucket,
		WithdrawUnit: cfg.Milk.WithdrawUnit,
		Strict:       cfg.Milk.Strict,
		Logger:       logger,
		Metrics:      registry,
		Gatherer:     gatherer,
		MetricsPath:  cfg.Metrics.Path,
	})
	if err != nil {
		release()
		return nil, err
	}

	logger.Info("milkflowd starting",
		"version", version,
		"listen", cfg.Listen,
		"bucket", described,
		"refill", cfg.Milk.Refill.Enabled,
		"rate", cfg.RefillRate().String(),
		"cron", cfg.Milk.Refill.Cron,
	)
	return d, nil
}

func (d *daemon) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if d.refiller != nil {
		g.Go(func() error {
			if err := d.refiller.Run(gctx); err != nil && !mfcontext.IsCancellation(err) {
				return err
			}
			return nil
		})
	} else {
		d.logger.Info("refill task disabled")
	}
	g.Go(func() error {
		return d.srv.Start(gctx, d.cfg.Listen, shutdownTimeout)
	})

	err := g.Wait()
	d.logger.Info("milkflowd stopped", "error", err)
	return err
}

// openBucket returns the in-process bucket, or the shared Redis bucket when
// an address is configured. release frees whatever openBucket acquired.
func openBucket(ctx context.Context, cfg config.Config, logger *slog.Logger) (milk.Bucket, func(), error) {
	if cfg.Redis.Addr == "" {
		bucketCfg := cfg.BucketConfig()
		bucketCfg.Logger = logger
		b, err := milk.NewWithConfig(bucketCfg)
		if err != nil {
			return nil, nil, err
		}
		return b, func() {}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	rcfg := distributed.DefaultConfig()
	rcfg.Redis = client
	rcfg.Key = cfg.Redis.Key
	rcfg.Capacity = cfg.Milk.Capacity
	rcfg.Initial = cfg.Milk.Initial
	rcfg.Timeout = cfg.Redis.Timeout
	rcfg.KeyTTL = cfg.Redis.KeyTTL
	rcfg.Logger = logger

	b, err := distributed.New(ctx, rcfg)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	release := func() {
		if err := b.Close(); err != nil {
			logger.Warn("closing redis bucket", "error", err)
		}
		client.Close()
	}
	return b, release, nil
}
