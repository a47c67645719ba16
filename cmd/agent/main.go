// Package main is the entry point for an agenthub worker agent. The worker
// claims tasks assigned to its agent id, runs the computer-use driver and
// streams progress and screenshots back through the storage façade.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"agenthub/internal/config"
	"agenthub/internal/logger"
	"agenthub/internal/observability"
	"agenthub/internal/storage"
	"agenthub/internal/worker"
	"agenthub/internal/worker/driver"
)

const (
	exitConfigError  = 1
	exitStorageError = 2
	exitInterrupted  = 130
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(exitConfigError)
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.Printf("Invalid worker config: %v", err)
		os.Exit(exitConfigError)
	}

	slogger := logger.New("worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	facade, err := storage.Open(ctx, cfg, false)
	if err != nil {
		slogger.Error("storage unavailable", "error", err)
		os.Exit(exitStorageError)
	}
	defer facade.Close(context.Background())

	shutdownTracer, err := observability.InitTracer(ctx, "agenthub-worker", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slogger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	var drv driver.Driver
	switch cfg.DriverRuntime {
	case "docker":
		drv, err = driver.NewDockerDriver(cfg.DriverImage)
		if err != nil {
			log.Fatalf("Failed to create docker driver: %v", err)
		}
		slogger.Info("using docker driver", "image", cfg.DriverImage)
	default:
		drv, err = driver.NewExecDriver(cfg.DriverCmd)
		if err != nil {
			log.Fatalf("Failed to create exec driver: %v", err)
		}
		slogger.Info("using exec driver", "command", cfg.DriverCmd)
	}

	agent := worker.New(facade, drv, worker.Config{
		AgentID:      cfg.AgentID,
		PollInterval: cfg.PollInterval,
		TaskTimeout:  cfg.TaskTimeout,
		StaleGrace:   cfg.StaleGrace,
		WorkdirRoot:  cfg.WorkdirRoot,
	}, slogger)

	runErr := make(chan error, 1)
	go func() {
		runErr <- agent.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slogger.Info("shutting down worker")
		cancel()
		<-agent.Done()
		os.Exit(exitInterrupted)
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			slogger.Error("worker stopped", "error", err)
			os.Exit(exitStorageError)
		}
	}
}
