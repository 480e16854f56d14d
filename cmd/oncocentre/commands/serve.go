package commands

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"oncocentre/internal/platform/config"
	"oncocentre/internal/platform/httpserver"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the health, readiness and metrics endpoints",
		Long: `Run the operational HTTP endpoints until interrupted. The configuration
file is watched: whitelist fallback users and the log level are applied
without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			cfg := s.Config

			var gatherer prometheus.Gatherer
			if cfg.Metrics.Enabled {
				gatherer = s.Metrics.Registry
			}
			srv := httpserver.New(cfg.Metrics.Addr, httpserver.NewOpsRouter(gatherer, s.ReadinessChecks(), s.Logger))

			if err := config.Watch(opts.configFile, s.Logger, func(next *config.Config) {
				s.ApplyConfig(next)
				s.log.SetLevel(next.Logging.Level)
			}); err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				s.Logger.Info("ops server listening", "addr", srv.Addr, "metrics", cfg.Metrics.Enabled)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				s.Logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}
