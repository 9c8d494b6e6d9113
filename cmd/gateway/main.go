package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"replkv/internal/api"
	"replkv/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		listen    string
		upstream  string
		poolSize  int
		timeout   time.Duration
		logLevel  string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:          "replkv-gateway",
		Short:        "Serve an HTTP front end for a key-value server",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Options{Level: logLevel, Format: logFormat})
			if err != nil {
				return err
			}

			pool, err := api.NewPool(upstream, poolSize, timeout)
			if err != nil {
				return err
			}
			defer pool.Close()

			srv := &http.Server{
				Addr:              listen,
				Handler:           api.NewServer(pool, logger),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			logger.Infof("HTTP gateway listening on %s, upstream %s", listen, pool.Addr())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("gateway failed")
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&listen, "listen", envOrDefault("REPLKV_GATEWAY_ADDR", "0.0.0.0:8080"), "HTTP listen address")
	f.StringVar(&upstream, "upstream", envOrDefault("REPLKV_UPSTREAM", "127.0.0.1:4000"), "key-value server address")
	f.IntVar(&poolSize, "pool-size", api.DefaultPoolSize, "maximum pooled upstream connections")
	f.DurationVar(&timeout, "timeout", 5*time.Second, "upstream dial and request timeout")
	f.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	f.StringVar(&logFormat, "log-format", "text", "text or json")
	return cmd
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
