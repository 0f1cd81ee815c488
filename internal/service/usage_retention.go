package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/neilnvaidya/owlby-api/internal/config"
)

const retentionPurgeTimeout = time.Minute

// UsageRetentionService purges daily usage rows past the retention horizon.
// The counters roll over naturally at the UTC day boundary; this only keeps
// the table from growing without bound.
type UsageRetentionService struct {
	usage    UsageRepository
	enabled  bool
	days     int
	schedule string

	cron      *cron.Cron
	startOnce sync.Once
	stopOnce  sync.Once
	now       func() time.Time
}

func NewUsageRetentionService(usage UsageRepository, cfg *config.Config) *UsageRetentionService {
	return &UsageRetentionService{
		usage:    usage,
		enabled:  cfg.Retention.Enabled,
		days:     cfg.Retention.Days,
		schedule: cfg.Retention.Schedule,
		now:      time.Now,
	}
}

func (s *UsageRetentionService) Start() {
	if s == nil || !s.enabled || s.days <= 0 || s.usage == nil {
		slog.Info("usage_retention_disabled")
		return
	}
	s.startOnce.Do(func() {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(s.schedule, s.runOnce); err != nil {
			slog.Error("usage_retention_schedule_invalid", "schedule", s.schedule, "error", err.Error())
			s.cron = nil
			return
		}
		s.cron.Start()
		slog.Info("usage_retention_started", "schedule", s.schedule, "days", s.days)
	})
}

func (s *UsageRetentionService) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), retentionPurgeTimeout)
	defer cancel()

	cutoff := s.now().UTC().AddDate(0, 0, -s.days).Format(usageDateLayout)
	rows, err := s.usage.PurgeUsageBefore(ctx, cutoff)
	if err != nil {
		slog.Warn("usage_retention_purge_failed", "cutoff", cutoff, "error", err.Error())
		return
	}
	if rows > 0 {
		slog.Info("usage_retention_purged", "rows", rows, "cutoff", cutoff)
	}
}

// Stop halts the schedule and waits for a running purge to finish.
func (s *UsageRetentionService) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
	})
}
