package meeting

import (
	"context"

	"go.uber.org/zap"

	"counselmeet-backend/pkg/constants"
	"counselmeet-backend/pkg/logger"
	"counselmeet-backend/pkg/metrics"
)

// job is a collaborator call made off the room lock
type job struct {
	name string
	fn   func(ctx context.Context) error
}

// enqueue never blocks; a full queue drops the job
func (s *Service) enqueue(name string, fn func(ctx context.Context) error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	if s.jobsClosed {
		return
	}
	select {
	case s.jobs <- job{name: name, fn: fn}:
	default:
		metrics.MeetingDispatchDroppedTotal.WithLabelValues(name).Inc()
		logger.Warn("Background queue full, dropping job", zap.String("job", name))
	}
}

func (s *Service) closeJobs() {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if !s.jobsClosed {
		s.jobsClosed = true
		close(s.jobs)
	}
}

func (s *Service) dispatchWorker() {
	defer s.workers.Done()
	for j := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
		err := j.fn(ctx)
		cancel()
		if err != nil {
			metrics.MeetingDispatchFailedTotal.WithLabelValues(j.name).Inc()
			logger.Warn("Background job failed", zap.String("job", j.name), zap.Error(err))
		}
	}
}
