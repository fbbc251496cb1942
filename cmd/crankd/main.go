package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"wagermirror/internal/api"
	"wagermirror/internal/config"
	"wagermirror/internal/crank"
	"wagermirror/internal/health"
	"wagermirror/internal/ingest"
	"wagermirror/internal/ledger"
	"wagermirror/internal/mirror"
	"wagermirror/internal/model"
	"wagermirror/internal/reconcile"
	"wagermirror/internal/retention"
)

func main() {
	root := &cobra.Command{
		Use:          "crankd",
		Short:        "Wagering round mirror and crank daemon",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the mirror and crank loops",
		RunE:  runDaemon,
	}

	runCmd.Flags().String("rpc", "", "ledger RPC endpoint")
	runCmd.Flags().String("program", "", "wagering program id")
	runCmd.Flags().String("signer-keypair", "", "crank signer keypair file")
	runCmd.Flags().String("database-dsn", "", "Postgres DSN")
	runCmd.Flags().Duration("poll-interval", 5*time.Second, "fast crank poll cadence")
	runCmd.Flags().Duration("fallback-interval", 15*time.Second, "fallback scan cadence")
	runCmd.Flags().Duration("ingest-interval", 5*time.Second, "event ingestion cadence")
	runCmd.Flags().Duration("reconcile-interval", time.Minute, "payout reconciliation cadence")
	runCmd.Flags().Duration("escalate-after", time.Hour, "unclaimed payout escalation window")
	runCmd.Flags().Int("retention-days", 30, "days to keep finished rounds and events")
	runCmd.Flags().Int("batch-limit", 200, "signatures per ingestion batch")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("api-listen", ":8080", "read API listen address")
	runCmd.Flags().StringSlice("roster", nil, "round display names (comma-separated)")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := mirror.NewPostgresStore(ctx, cfg.DatabaseDSN, cfg.Roster)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	client, err := ledger.NewRPCClient(cfg.RPCURL, cfg.ProgramID, cfg.SignerKeyPath, 30*time.Second)
	if err != nil {
		return fmt.Errorf("connect ledger rpc: %w", err)
	}

	monitor := health.NewMonitor(store, logger)

	pipeline := ingest.New(ingest.Config{
		BatchLimit:   cfg.BatchLimit,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, client, store, monitor, logger)

	scheduler := crank.NewScheduler(crank.Config{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, client, store, monitor, logger)

	feeBps, err := fetchFeeBps(ctx, client)
	if err != nil {
		return fmt.Errorf("fetch program config: %w", err)
	}
	reconciler := reconcile.New(reconcile.Config{
		FeeBasisPoints: feeBps,
		EscalateAfter:  cfg.EscalateAfter,
	}, store, monitor, logger)

	sweeper := retention.New(retention.Config{
		RetentionDays: cfg.RetentionDays,
	}, store, monitor, logger)

	apiServer := api.NewServer(cfg.APIListen, store, monitor, logger)

	logger.Info("crankd start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("program", cfg.ProgramID),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Duration("fallback_interval", cfg.FallbackInterval),
		zap.Uint16("fee_bps", feeBps),
		zap.String("api_listen", cfg.APIListen),
	)

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { monitor.WatchLedger(ctx, client, cfg.FallbackInterval) })
	run(func() { pipeline.Run(ctx, cfg.IngestInterval) })
	run(func() { scheduler.Run(ctx, model.ComponentCrank, cfg.PollInterval) })
	run(func() { scheduler.Run(ctx, model.ComponentFallback, cfg.FallbackInterval) })
	run(func() { reconciler.Run(ctx, cfg.ReconcileInterval) })
	run(func() { sweeper.Run(ctx) })
	run(func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("api server failed", zap.Error(err))
			stop()
		}
	})

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("api shutdown failed", zap.Error(err))
	}

	wg.Wait()
	return nil
}

// fetchFeeBps reads the fee share from the program config account. The
// value is set once at initialization, so reading it at startup is enough.
func fetchFeeBps(ctx context.Context, client ledger.Client) (uint16, error) {
	cfg, err := client.FetchConfig(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.HouseFeeBasisPoints, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
