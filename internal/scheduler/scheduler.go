package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marunose/internal/logger"

	"github.com/robfig/cron/v3"
)

// UsageResetter is satisfied by db.Service.
type UsageResetter interface {
	ResetAllUsage(ctx context.Context) (int64, error)
}

// Scheduler resets every key's monthly usage on a cron schedule.
type Scheduler struct {
	db   UsageResetter
	spec string
	log  *slog.Logger
	c    *cron.Cron
}

func NewScheduler(db UsageResetter, spec string, log *slog.Logger) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	if spec == "" {
		spec = "@monthly"
	}
	return &Scheduler{
		db:   db,
		spec: spec,
		log:  log,
		c:    cron.New(),
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.c.AddFunc(s.spec, s.runUsageReset); err != nil {
		return fmt.Errorf("error scheduling usage reset %q: %w", s.spec, err)
	}
	s.c.Start()
	s.log.Info("Scheduler started", "usage_reset_spec", s.spec)
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

func (s *Scheduler) runUsageReset() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	s.RunUsageReset(ctx)
}

// RunUsageReset performs one reset immediately.
func (s *Scheduler) RunUsageReset(ctx context.Context) {
	s.log.Info("Running scheduled job: resetting all API key usage counts")
	n, err := s.db.ResetAllUsage(ctx)
	if err != nil {
		s.log.Error("Error resetting API key usage", "error", err)
		return
	}
	s.log.Info("API key usage reset", "keys", n)
}
