package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/staffhive/ms-go-payouts/app/service"
	"github.com/staffhive/ms-go-payouts/config"
)

var (
	workerMode bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Release every payment whose funds were received and never distributed",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"sweep",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.SweepInterval },
			func(s *service.PayoutService, ctx context.Context) error {
				report, err := s.RunSweepBatch(ctx)
				if err != nil {
					return err
				}
				logrus.WithFields(logrus.Fields{
					"processed":  report.Processed,
					"successful": report.Successful,
					"failed":     report.Failed,
					"skipped":    report.Skipped,
				}).Info("sweep_report")
				for _, message := range report.Errors {
					logrus.WithField("job", "sweep").Warn(message)
				}
				return nil
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.PayoutService, ctx context.Context) error,
) {
	cfg, payoutService, cleanup := mustCreatePayoutService()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), payoutService, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(payoutService, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	payoutService *service.PayoutService,
	fn func(s *service.PayoutService, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(payoutService, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(payoutService, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
