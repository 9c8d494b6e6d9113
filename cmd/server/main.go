package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"replkv/internal/config"
	"replkv/internal/engine"
	"replkv/internal/logging"
	"replkv/internal/metrics"
	"replkv/internal/replication"
	"replkv/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flagValues struct {
	configPath   string
	addr         string
	port         int
	role         server.Role
	followerAddr string
	leaderAddr   string
	data         string
	metricsAddr  string
	logLevel     string
	logFormat    string
}

func newRootCmd() *cobra.Command {
	var fv flagValues

	cmd := &cobra.Command{
		Use:          "replkv-server",
		Short:        "Run a replicated key-value server",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(fv.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, fv, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&fv.configPath, "config", "", "path to a .toml or .yaml config file")
	f.StringVar(&fv.addr, "addr", "127.0.0.1", "address to bind")
	f.IntVar(&fv.port, "port", 4000, "port to bind")
	f.Var(&fv.role, "role", "leader or follower")
	f.StringVar(&fv.followerAddr, "follower-addr", "", "follower to replicate writes to (leader only)")
	f.StringVar(&fv.leaderAddr, "leader-addr", "", "address of the leader (follower only)")
	f.StringVar(&fv.data, "data", "", "log file path (default kv_<port>.db)")
	f.StringVar(&fv.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.StringVar(&fv.logLevel, "log-level", "info", "debug, info, warn or error")
	f.StringVar(&fv.logFormat, "log-format", "text", "text or json")
	return cmd
}

// applyFlags overrides cfg with every flag set explicitly on the command line.
func applyFlags(cmd *cobra.Command, fv flagValues, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.Server.Addr = fv.addr
	}
	if changed("port") {
		cfg.Server.Port = fv.port
	}
	if changed("role") {
		cfg.Server.Role = fv.role.String()
	}
	if changed("follower-addr") {
		cfg.Server.FollowerAddr = fv.followerAddr
	}
	if changed("leader-addr") {
		cfg.Server.LeaderAddr = fv.leaderAddr
	}
	if changed("data") {
		cfg.Server.Data = fv.data
	}
	if changed("metrics-addr") {
		cfg.Server.MetricsAddr = fv.metricsAddr
	}
	if changed("log-level") {
		cfg.Log.Level = fv.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = fv.logFormat
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	role, err := server.ParseRole(cfg.Server.Role)
	if err != nil {
		return err
	}

	store, err := engine.Open(cfg.DataPath(), engine.WithLogger(logger))
	if err != nil {
		logger.WithError(err).Error("failed to open store")
		return err
	}
	shared := engine.NewShared(store)
	defer shared.Close()

	m := metrics.New()
	m.SetStoreSize(store.Len(), store.Size())

	srv, err := server.New(server.Config{
		Addr:         cfg.ListenAddr(),
		Role:         role,
		FollowerAddr: cfg.Server.FollowerAddr,
		LeaderAddr:   cfg.Server.LeaderAddr,
		Replication: replication.Config{
			DialTimeout:  cfg.Replication.DialTimeout,
			WriteTimeout: cfg.Replication.WriteTimeout,
		},
	}, shared, server.WithLogger(logger), server.WithMetrics(m))
	if err != nil {
		return err
	}

	if cfg.Server.MetricsAddr != "" {
		metricsSrv := startMetrics(cfg.Server.MetricsAddr, m, logger)
		defer metricsSrv.Close()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		_ = srv.Close()
	}()

	logger.Infof("starting %s on %s with log %s", role, cfg.ListenAddr(), cfg.DataPath())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, server.ErrServerClosed) {
		logger.WithError(err).Error("server failed")
		return err
	}
	return nil
}

func startMetrics(addr string, m *metrics.Metrics, logger logrus.FieldLogger) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("metrics server failed")
		}
	}()
	return srv
}
