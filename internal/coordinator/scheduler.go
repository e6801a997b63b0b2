package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs periodic refreshes for every registered connection.
type Scheduler struct {
	cron    *cron.Cron
	manager *Manager
	log     *slog.Logger
}

// NewScheduler creates a Scheduler that refreshes all connections every
// interval.
func NewScheduler(m *Manager, interval time.Duration, log *slog.Logger) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:    c,
		manager: m,
		log:     log,
	}

	if _, err := c.AddFunc("@every "+interval.String(), s.runRefresh); err != nil {
		return nil, err
	}

	return s, nil
}

// Start begins running scheduled refreshes.
func (s *Scheduler) Start() {
	s.log.Info("scheduler started")
	s.cron.Start()
}

// Stop gracefully stops the scheduler, waiting for running jobs to finish.
func (s *Scheduler) Stop() context.Context {
	s.log.Info("scheduler stopping")
	return s.cron.Stop()
}

// Entries returns the registered cron entries for inspection.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

func (s *Scheduler) runRefresh() {
	ctx := context.Background()
	s.log.Info("scheduled refresh starting")
	for id, err := range s.manager.RefreshAll(ctx) {
		s.log.Error("scheduled refresh failed",
			"connection_id", id,
			"error", err,
		)
	}
}
