package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/kvstore/pkg/config"
	"github.com/cuemby/kvstore/pkg/log"
	"github.com/cuemby/kvstore/pkg/manager"
	"github.com/cuemby/kvstore/pkg/metrics"
	"github.com/cuemby/kvstore/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the key-value server",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		readTimeout, _ := cmd.Flags().GetDuration("read-timeout")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		mgr, err := manager.New(cfg)
		if err != nil {
			return fmt.Errorf("start manager: %w", err)
		}
		mgr.StartSweeper()

		collector := metrics.NewCollector(mgr)
		collector.Start()
		defer collector.Stop()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("wal", true, "recovered")
		metrics.RegisterComponent("store", true, "loaded")
		metrics.RegisterComponent("server", false, "starting")

		startMetricsServer(metricsAddr)
		log.WithComponent("cli").Info().Str("addr", metricsAddr).Msg("metrics endpoint ready")

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := server.New(server.Config{Addr: addr, ReadTimeout: readTimeout}, mgr)
		if err := srv.Listen(); err != nil {
			return fmt.Errorf("listen: %w", err)
		}

		errCh := make(chan error, 1)
		go func() {
			if err := srv.Serve(); err != nil {
				errCh <- err
			}
		}()

		log.WithComponent("cli").Info().Str("addr", srv.Addr().String()).Msg("kvstore serving")

		done := make(chan struct{})
		go func() {
			waitForShutdownSignal()
			close(done)
		}()

		select {
		case <-done:
			log.WithComponent("cli").Info().Msg("shutting down")
		case err := <-errCh:
			log.WithComponent("cli").Error().Err(err).Msg("server error")
		}

		srv.Stop()
		log.WithComponent("cli").Info().Msg("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("config", "", "path to the YAML configuration file")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "address for /metrics, /health, /ready, /live")
	serveCmd.Flags().Duration("read-timeout", 30*time.Second, "per-connection idle read timeout")
}
