package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/liquidator/cmd/bot"
	"github.com/michaelpento.lv/liquidator/utils"
)

var (
	readOnly     bool
	delaySeconds int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the liquidation bot",
	Long: `Run every configured protocol once, or forever with --delay seconds
between runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		defer utils.CleanupLogger()

		cfg, err := loadConfig(log)
		if err != nil {
			return err
		}
		if readOnly {
			cfg.ReadOnly = true
		}
		if cmd.Flags().Changed("delay") {
			cfg.DelaySeconds = delaySeconds
		}

		ctx := cmd.Context()
		s, err := buildStack(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer s.Close()

		if cfg.MetricsAddr != "" {
			stop := serveMetrics(cfg.MetricsAddr, s.registry, log)
			defer stop()
		}

		log.Info("Starting liquidator",
			zap.Strings("protocols", cfg.Protocols),
			zap.Bool("read_only", cfg.ReadOnly),
			zap.Duration("delay", cfg.Delay()))

		err = bot.NewRunner(log, s.bots...).Loop(ctx, cfg.Delay())
		if errors.Is(err, context.Canceled) {
			log.Info("Shutting down gracefully...")
			return nil
		}
		return err
	},
}

// serveMetrics exposes the registry until the returned stop is called
func serveMetrics(addr string, registry *prometheus.Registry, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Serving metrics", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&readOnly, "read-only", false, "never send a transaction")
	runCmd.Flags().IntVar(&delaySeconds, "delay", 0, "seconds between runs; 0 runs once")
}
