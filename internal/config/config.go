// Package config handles environment variable loading for ports, store
// connection strings and worker tuning.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the application.
type Config struct {
	// Relational store DSN
	PostgresURL string

	// Log store URI
	MongoURL string

	// Object store connection
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioSecure    bool

	// Raw identifier of this worker; normalized at every ingress
	AgentID string

	// Number of worker agents for round-robin nominal assignment
	AgentCount int

	// HTTP port for the hub API
	HubPort int

	// Base URL of the hub (used by the CLI and supervisor-spawned workers)
	HubURL string

	// Worker tuning
	PollInterval time.Duration
	TaskTimeout  time.Duration
	StaleGrace   time.Duration
	WorkdirRoot  string

	// Driver selection for the task executor adapter
	DriverRuntime string // "exec" or "docker"
	DriverCmd     string
	DriverImage   string

	// Periodic stale-task sweep in the hub
	SweepInterval time.Duration

	// OTLP collector address; empty disables tracing
	OTELEndpoint string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	pgURL := os.Getenv("POSTGRES_URL")
	if pgURL == "" {
		pgURL = os.Getenv("POSTGRES_DSN")
	}
	if pgURL == "" {
		return nil, fmt.Errorf("POSTGRES_URL is required")
	}

	mongoURL := os.Getenv("MONGODB_URL")
	if mongoURL == "" {
		return nil, fmt.Errorf("MONGODB_URL is required")
	}

	minioEndpoint := os.Getenv("MINIO_ENDPOINT")
	if minioEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT is required")
	}
	minioAccessKey := os.Getenv("MINIO_ACCESS_KEY")
	minioSecretKey := os.Getenv("MINIO_SECRET_KEY")
	if minioAccessKey == "" || minioSecretKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required")
	}

	minioSecure, err := envBool("MINIO_SECURE", false)
	if err != nil {
		return nil, err
	}

	port, err := envInt("HUB_PORT", 8000)
	if err != nil {
		return nil, err
	}

	agentCount, err := envInt("AGENT_COUNT", 3)
	if err != nil {
		return nil, err
	}

	pollInterval, err := envSeconds("POLL_INTERVAL_SECONDS", 5*time.Second)
	if err != nil {
		return nil, err
	}
	taskTimeout, err := envSeconds("RUN_TASK_TIMEOUT_SECONDS", 300*time.Second)
	if err != nil {
		return nil, err
	}
	staleGrace, err := envSeconds("STALE_TASK_GRACE_SECONDS", 600*time.Second)
	if err != nil {
		return nil, err
	}
	sweepInterval, err := envSeconds("SWEEP_INTERVAL_SECONDS", 60*time.Second)
	if err != nil {
		return nil, err
	}

	workdirRoot := os.Getenv("WORKDIR_ROOT")
	if workdirRoot == "" {
		workdirRoot = os.TempDir()
	}

	hubURL := os.Getenv("HUB_URL")
	if hubURL == "" {
		hubURL = fmt.Sprintf("http://localhost:%d", port)
	}

	driverRuntime := os.Getenv("DRIVER_RUNTIME")
	if driverRuntime == "" {
		driverRuntime = "exec"
	}

	return &Config{
		PostgresURL:    pgURL,
		MongoURL:       mongoURL,
		MinioEndpoint:  minioEndpoint,
		MinioAccessKey: minioAccessKey,
		MinioSecretKey: minioSecretKey,
		MinioSecure:    minioSecure,
		AgentID:        os.Getenv("AGENT_ID"),
		AgentCount:     agentCount,
		HubPort:        port,
		HubURL:         hubURL,
		PollInterval:   pollInterval,
		TaskTimeout:    taskTimeout,
		StaleGrace:     staleGrace,
		WorkdirRoot:    workdirRoot,
		DriverRuntime:  driverRuntime,
		DriverCmd:      os.Getenv("DRIVER_CMD"),
		DriverImage:    os.Getenv("DRIVER_IMAGE"),
		SweepInterval:  sweepInterval,
		OTELEndpoint:   os.Getenv("OTEL_EXPORTER_ENDPOINT"),
	}, nil
}

// ValidateWorker checks the fields a worker process cannot run without.
func (c *Config) ValidateWorker() error {
	if c.AgentID == "" {
		return fmt.Errorf("AGENT_ID is required for workers")
	}
	if c.DriverRuntime == "exec" && c.DriverCmd == "" {
		return fmt.Errorf("DRIVER_CMD is required for the exec runtime")
	}
	if c.DriverRuntime == "docker" && c.DriverImage == "" {
		return fmt.Errorf("DRIVER_IMAGE is required for the docker runtime")
	}
	return nil
}

func envInt(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func envSeconds(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return time.Duration(v) * time.Second, nil
}

func envBool(name string, fallback bool) (bool, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}
