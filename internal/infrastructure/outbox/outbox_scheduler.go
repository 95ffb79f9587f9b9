package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs the dispatcher on a fixed interval.
type Scheduler struct {
	dispatcher *Dispatcher
	interval   time.Duration
	logger     *zap.Logger
}

func NewScheduler(d *Dispatcher, intervalSec int, logger *zap.Logger) *Scheduler {
	if intervalSec <= 0 {
		intervalSec = 1
	}
	return &Scheduler{
		dispatcher: d,
		interval:   time.Duration(intervalSec) * time.Second,
		logger:     logger,
	}
}

// Start drains the outbox on every tick until ctx is done. The returned
// channel closes once the loop has exited.
func (s *Scheduler) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("outbox scheduler stopped")
				return
			case <-ticker.C:
				s.drain(ctx)
			}
		}
	}()
	return done
}

// drain keeps dispatching while full batches come back, so a backlog left by
// a broker outage clears without waiting one tick per batch.
func (s *Scheduler) drain(ctx context.Context) {
	total := 0
	for ctx.Err() == nil {
		n, err := s.dispatcher.DispatchOnce(ctx)
		if err != nil {
			s.logger.Error("outbox dispatch failed", zap.Error(err))
			break
		}
		total += n
		if n == 0 || n < s.dispatcher.batchSize {
			break
		}
	}
	if total > 0 {
		s.logger.Debug("outbox messages published", zap.Int("count", total))
	}
}
