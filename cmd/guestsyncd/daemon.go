package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sio/guestsyncd/internal/bridge"
	"github.com/sio/guestsyncd/internal/config"
	"github.com/sio/guestsyncd/internal/domainstore"
	"github.com/sio/guestsyncd/internal/httpstatus"
	"github.com/sio/guestsyncd/internal/ledger"
	"github.com/sio/guestsyncd/internal/logging"
	"github.com/sio/guestsyncd/internal/loophost"
	"github.com/sio/guestsyncd/internal/metrics"
	"github.com/sio/guestsyncd/internal/observability"
	"github.com/sio/guestsyncd/internal/reconcile"
	"github.com/sio/guestsyncd/internal/unitctl"
	"github.com/sio/guestsyncd/internal/vmctl"
)

func daemonCmd() *cobra.Command {
	var (
		logLevel string
		httpAddr string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the guest sync daemon",
		Long:  "Run the bootstrap reconciliation pass, then bridge libvirt and systemd events until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("log-level") {
				cfg.Daemon.LogLevel = logLevel
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.Daemon.HTTPAddr = httpAddr
			}

			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)
			logging.SetLevelFromString(cfg.Daemon.LogLevel)

			if err := observability.Init(context.Background(), observability.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			if cfg.Observability.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Observability.Metrics.Namespace, cfg.Observability.Metrics.HistogramBuckets)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			domainActuator, err := vmctl.Dial(ctx, cfg.Virt.SocketPath, vmctl.Config{
				CheckDelay: cfg.Actuator.CheckDelay,
				Timeout:    cfg.Actuator.Timeout,
			})
			if err != nil {
				return fmt.Errorf("dial virtualization host: %w", err)
			}
			defer domainActuator.Close()

			unitActuator, err := unitctl.New(ctx)
			if err != nil {
				return fmt.Errorf("connect to service manager bus: %w", err)
			}
			defer unitActuator.Close()

			watcher, err := unitctl.NewWatcher(ctx)
			if err != nil {
				return fmt.Errorf("subscribe to unit property changes: %w", err)
			}
			defer watcher.Close()

			store := domainstore.New()
			actionLedger := ledger.New(cfg.Ledger.Window)

			domainQueue := vmctl.NewQueue(domainActuator, actionLedger, cfg.Actuator.Workers, cfg.Ledger.CoalesceThreshold)
			domainQueue.Start()
			defer domainQueue.Stop()

			b := bridge.New(store, actionLedger, unitActuator, domainQueue, cfg.Unit.TemplatePrefix, cfg.Unit.TemplateSuffix)

			logging.Op().Info("starting bootstrap reconciliation")
			if err := reconcile.Run(ctx, store, domainActuator.Enumerate, unitActuator, cfg.Unit.TemplatePrefix, cfg.Unit.TemplateSuffix); err != nil {
				return fmt.Errorf("bootstrap reconciliation: %w", err)
			}

			lifecycle, err := domainActuator.SubscribeLifecycle(ctx)
			if err != nil {
				return fmt.Errorf("subscribe domain lifecycle events: %w", err)
			}
			reboot, err := domainActuator.SubscribeReboot(ctx)
			if err != nil {
				return fmt.Errorf("subscribe domain reboot events: %w", err)
			}

			statusServer, err := httpstatus.Start(cfg.Daemon.HTTPAddr, func() error { return nil })
			if err != nil {
				return fmt.Errorf("start status endpoint: %w", err)
			}

			host := loophost.New(b, domainActuator, watcher, lifecycle, reboot)
			go host.Run(ctx)

			logging.Op().Info("guestsyncd started",
				"unit_prefix", cfg.Unit.TemplatePrefix,
				"unit_suffix", cfg.Unit.TemplateSuffix,
				"workers", cfg.Actuator.Workers,
			)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logging.Op().Info("shutdown signal received")

			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if statusServer != nil {
				_ = statusServer.Stop(shutdownCtx)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "Address for the /metrics and /healthz endpoints")

	return cmd
}
