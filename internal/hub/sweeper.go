package hub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"agenthub/internal/store"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically resets tasks abandoned by crashed workers back to
// pending. Workers also sweep once at startup; the hub schedule covers the
// window where no worker restarts.
type Sweeper struct {
	storage  store.Storage
	grace    time.Duration
	interval time.Duration
	log      *slog.Logger
	cron     *cron.Cron
}

// NewSweeper creates a sweeper with the given grace window and run interval.
func NewSweeper(storage store.Storage, grace, interval time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		storage:  storage,
		grace:    grace,
		interval: interval,
		log:      log,
		cron:     cron.New(),
	}
}

// Start schedules the sweep and runs it until Stop.
func (s *Sweeper) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}
	s.cron.Start()
	s.log.Info("sweeper started", "grace", s.grace, "interval", s.interval)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("sweeper stopped")
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	recovered, err := s.storage.RecoverStalled(ctx, s.grace)
	if err != nil {
		s.log.Error("sweep failed", "error", err)
		return
	}
	if len(recovered) > 0 {
		s.log.Info("sweep recovered stalled tasks", "task_ids", recovered)
	}
}
