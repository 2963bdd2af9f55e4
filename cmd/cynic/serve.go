package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cynic/internal/config"
	"cynic/internal/logging"
	"cynic/internal/server"
	"cynic/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(flags *rootFlags) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP judging service",
		Long: `Starts the judging core as an HTTP service: the judge, health,
feedback, and introspection endpoints, plus the Prometheus scrape
server when metrics are enabled. The Q-table is warm-started from the
last snapshot and flushed periodically until shutdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return runServe(cfg, flags.verbose)
		},
	}

	cmd.Flags().StringVar(&host, "host", "localhost", "Bind address")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Listen port")

	return cmd
}

func runServe(cfg config.Config, verbose bool) error {
	log := logging.NewComponentLogger("Serve")
	log.Info("starting cynic %s", Version)

	c, err := buildCore(cfg, log)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		if err := c.metrics.StartPrometheusServer(cfg.Metrics.PrometheusPort); err != nil {
			return fmt.Errorf("prometheus server: %w", err)
		}
		log.Info("metrics on :%d/metrics", cfg.Metrics.PrometheusPort)
	}

	store := storage.NewSnapshotStore(cfg.Policy.SnapshotPath, log)
	flusher := storage.NewFlusher(c.table, store, cfg.Policy.FlushInterval, log)
	if cfg.Policy.WarmStart {
		n, err := flusher.WarmStart()
		if err != nil {
			log.Warn("warm start failed, starting cold: %v", err)
		} else if n > 0 {
			log.Info("warm start: %d policy entries from %s", n, store.Path())
		}
	}

	var audit *storage.AuditLog
	if cfg.Policy.AuditPath != "" {
		audit, err = storage.OpenAuditLog(cfg.Policy.AuditPath, log)
		if err != nil {
			log.Warn("audit log unavailable: %v", err)
		}
	}

	srv, err := server.New(server.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		EnableCORS:   cfg.Server.EnableCORS,
		Debug:        cfg.Server.Debug || verbose,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, server.Deps{
		Orchestrator: c.orch,
		Registry:     c.registry,
		Engine:       c.engine,
		Monitor:      c.monitor,
		Table:        c.table,
		Audit:        audit,
		Logger:       log,
	})
	if err != nil {
		return err
	}

	flushCtx, stopFlusher := context.WithCancel(context.Background())
	flusherDone := make(chan struct{})
	go func() {
		defer close(flusherDone)
		flusher.Run(flushCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()
	fmt.Printf("%s listening on %s\n", green(bold("cynic")), bold(fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received %s, shutting down", sig)
	case err := <-serveErr:
		if err != nil {
			stopFlusher()
			<-flusherDone
			return fmt.Errorf("server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("server shutdown: %v", err)
	}

	// Run takes a final snapshot on its way out.
	stopFlusher()
	<-flusherDone

	if audit != nil {
		if err := audit.Close(); err != nil {
			log.Warn("audit close: %v", err)
		}
	}
	if err := c.metrics.Shutdown(ctx); err != nil {
		log.Warn("metrics shutdown: %v", err)
	}
	if err := c.tracer.Shutdown(ctx); err != nil {
		log.Warn("tracer shutdown: %v", err)
	}

	log.Info("shutdown complete")
	return nil
}
