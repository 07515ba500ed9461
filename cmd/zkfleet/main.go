package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zkfleet/zkfleet/pkg/api"
	"github.com/zkfleet/zkfleet/pkg/config"
	"github.com/zkfleet/zkfleet/pkg/driver"
	"github.com/zkfleet/zkfleet/pkg/events"
	"github.com/zkfleet/zkfleet/pkg/log"
	"github.com/zkfleet/zkfleet/pkg/metrics"
	"github.com/zkfleet/zkfleet/pkg/reconciler"
	"github.com/zkfleet/zkfleet/pkg/scheduler"
	"github.com/zkfleet/zkfleet/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "zkfleet",
	Short: "zkfleet - ZooKeeper ensemble scheduler",
	Long: `zkfleet keeps a fleet of ZooKeeper servers running on a cluster by
matching resource offers against per-server requirements, with
exponential failover backoff and host stickiness across restarts.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"zkfleet version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(schedulerCmd)
	rootCmd.AddCommand(serverCmd)
}

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the scheduler daemon",
	Long: `Run the scheduler daemon: restore the cluster snapshot from storage,
serve the admin API and the resource-manager callbacks, and sweep
tasks stuck in staging.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if master, _ := cmd.Flags().GetString("master"); master != "" {
			cfg.Master = master
		}
		if addr, _ := cmd.Flags().GetString("api"); addr != "" {
			cfg.APIAddr = addr
		}
		if spec, _ := cmd.Flags().GetString("storage"); spec != "" {
			cfg.Storage = spec
		}
		if cfg.Master == "" {
			return fmt.Errorf("master endpoint must be set via --master or the config file")
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.LogLevel),
			JSONOutput: true,
		})
		logger := log.WithComponent("main")

		store, err := storage.New(cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()

		broker := events.NewBroker()
		broker.Start()
		drv := driver.NewHTTPDriver(cfg.Master)

		engine, err := scheduler.NewEngine(store, drv, broker, scheduler.Config{
			FailoverDelay:    cfg.Failover.Delay.Std(),
			FailoverMaxDelay: cfg.Failover.MaxDelay.Std(),
			FailoverMaxTries: cfg.Failover.MaxTries,
			StickinessPeriod: cfg.Stickiness.Period.Std(),
		})
		if err != nil {
			return err
		}

		recon := reconciler.New(engine, cfg.Reconcile.Interval.Std(), cfg.Reconcile.StagingTimeout.Std())
		recon.Start()

		collector := metrics.NewCollector(engine)
		collector.Start()

		apiServer := api.NewServer(engine, broker, api.Defaults{
			CPUs: cfg.Defaults.CPUs,
			Mem:  cfg.Defaults.Mem,
		})
		errCh := make(chan error, 1)
		go func() {
			if err := apiServer.Start(cfg.APIAddr); err != nil {
				errCh <- fmt.Errorf("API server error: %w", err)
			}
		}()

		logger.Info().
			Str("master", cfg.Master).
			Str("storage", cfg.Storage).
			Msg("scheduler running")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
		case err := <-errCh:
			logger.Error().Err(err).Msg("shutting down")
		}

		recon.Stop()
		collector.Stop()
		broker.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop API server: %w", err)
		}
		return nil
	},
}

func init() {
	schedulerCmd.Flags().String("config", "", "Path to the YAML config file")
	schedulerCmd.Flags().String("master", "", "Resource manager endpoint, e.g. http://master:5050")
	schedulerCmd.Flags().String("api", "", "Admin API listen address (overrides config)")
	schedulerCmd.Flags().String("storage", "", "Snapshot storage, file:PATH, zk:CONNECT or bolt:PATH (overrides config)")
}
