package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/service"
)

// Sweeper drives the SLA supervisor on a fixed cadence.
type Sweeper struct {
	sla      *service.SLAService
	interval time.Duration
	logger   *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewSweeper instantiates the sweeper.
func NewSweeper(sla *service.SLAService, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Sweeper{
		sla:      sla,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. The first sweep runs after one full
// interval, not at startup, so a restarting service does not hammer
// the database while it is still warming up.
func (s *Sweeper) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.loop(ctx)
	})
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			started := time.Now()
			if err := s.sla.Sweep(ctx); err != nil {
				s.logger.Error("sla sweep failed", zap.Error(err))
				continue
			}
			s.logger.Debug("sla sweep completed",
				zap.Duration("took", time.Since(started)))
		}
	}
}
