// Package main is the entry point for the agenthub hub server. The hub
// accepts user task submissions, serves the dashboard feeds and owns the
// agent supervisor and the stale-task sweeper.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"agenthub/internal/config"
	"agenthub/internal/hub"
	"agenthub/internal/hub/supervisor"
	"agenthub/internal/logger"
	"agenthub/internal/observability"
	"agenthub/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	exitConfigError  = 1
	exitStorageError = 2
)

func main() {
	migrateFlag := flag.Bool("migrate", true, "Run database migrations before starting")
	manageAgents := flag.Bool("manage-agents", false, "Start and supervise worker agent processes")
	workerBin := flag.String("worker-bin", "agenthub-agent", "Worker binary launched by the supervisor")
	agentLogDir := flag.String("agent-log-dir", "agent_logs", "Directory for supervised agent logs")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(exitConfigError)
	}

	slogger := logger.New("hub")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	facade, err := storage.Open(ctx, cfg, *migrateFlag)
	if err != nil {
		slogger.Error("storage unavailable", "error", err)
		os.Exit(exitStorageError)
	}
	defer facade.Close(context.Background())

	shutdownTracer, err := observability.InitTracer(ctx, "agenthub-hub", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slogger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slogger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	// Pending queue depth as an async gauge: the store is queried only when
	// scraped.
	meter := otel.Meter("agenthub-hub")
	_, err = meter.Int64ObservableGauge("agenthub.tasks.pending",
		metric.WithDescription("Current number of pending tasks"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := facade.CountPending(ctx)
			if err != nil {
				slogger.Warn("queue depth query failed", "error", err)
				return nil
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		slogger.Warn("queue depth gauge registration failed", "error", err)
	}

	var sup *supervisor.Supervisor
	if *manageAgents {
		agentIDs := make([]string, 0, cfg.AgentCount)
		for i := 1; i <= cfg.AgentCount; i++ {
			agentIDs = append(agentIDs, "agent"+strconv.Itoa(i))
		}
		sup = supervisor.New(*workerBin, *agentLogDir, agentIDs, slogger)
		if err := sup.StartAll(); err != nil {
			slogger.Error("agent startup incomplete", "error", err)
		}
	}

	sweeper := hub.NewSweeper(facade, cfg.StaleGrace, cfg.SweepInterval, slogger)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start sweeper: %v", err)
	}
	defer sweeper.Stop()

	addr := fmt.Sprintf(":%d", cfg.HubPort)
	srv := hub.New(addr, facade, slogger, hub.Options{
		Supervisor:     sup,
		AgentCount:     cfg.AgentCount,
		MetricsHandler: metricsHandler,
	})

	go func() {
		slogger.Info("hub starting", "addr", addr)
		if err := srv.Run(ctx); err != nil {
			slogger.Error("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slogger.Info("shutting down hub")
	cancel()

	if sup != nil {
		sup.StopAll(10 * time.Second)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slogger.Error("forced shutdown", "error", err)
	}
}
