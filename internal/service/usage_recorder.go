package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const usageIncrementTimeout = 5 * time.Second

type usageTask struct {
	userID string
	day    string
	route  string
}

// UsageRecorderService increments daily usage counters off the request path.
// Enqueueing never blocks and failures are logged, not surfaced: undercounting
// is an acceptable degradation, delaying the user's response is not.
type UsageRecorderService struct {
	usage UsageRepository
	tasks chan usageTask

	wg       sync.WaitGroup
	stopOnce sync.Once
	dropped  atomic.Int64
	now      func() time.Time
}

// NewUsageRecorderService starts the worker pool immediately.
func NewUsageRecorderService(usage UsageRepository, workers, queueSize int) *UsageRecorderService {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	s := &UsageRecorderService{
		usage: usage,
		tasks: make(chan usageTask, queueSize),
		now:   time.Now,
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// RecordGeneration enqueues an increment for (userID, today, route). The UTC
// day is captured at enqueue time so a task drained after midnight still
// lands on the day the request was served.
func (s *UsageRecorderService) RecordGeneration(userID, route string) {
	task := usageTask{
		userID: userID,
		day:    s.now().UTC().Format(usageDateLayout),
		route:  route,
	}
	select {
	case s.tasks <- task:
	default:
		s.dropped.Add(1)
		slog.Warn("usage_record_dropped", "user_id", userID, "route", route)
	}
}

func (s *UsageRecorderService) worker() {
	defer s.wg.Done()
	for task := range s.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), usageIncrementTimeout)
		if err := s.usage.IncrementDailyUsage(ctx, task.userID, task.day, task.route); err != nil {
			slog.Warn("usage_increment_failed",
				"user_id", task.userID, "route", task.route, "day", task.day, "error", err.Error())
		}
		cancel()
	}
}

// Stop drains the queue and waits for in-flight increments. Tests use this to
// await the otherwise fire-and-forget writes.
func (s *UsageRecorderService) Stop() {
	s.stopOnce.Do(func() {
		close(s.tasks)
		s.wg.Wait()
	})
}

// Dropped reports how many increments were discarded due to a full queue.
func (s *UsageRecorderService) Dropped() int64 {
	return s.dropped.Load()
}
