// internal/monitoring/scheduler.go - Fixed-interval sweep loop
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler runs the evaluation sweep on a fixed interval in its own
// goroutine, decoupled from request handling. It supports a manual trigger
// (used by the API and tests) and drains the in-flight sweep on shutdown.
type Scheduler struct {
	engine   *Engine
	interval time.Duration

	trigger chan chan triggerResult
	done    chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

type triggerResult struct {
	stats *SweepStats
	err   error
}

func NewScheduler(engine *Engine, interval time.Duration) *Scheduler {
	return &Scheduler{
		engine:   engine,
		interval: interval,
		trigger:  make(chan chan triggerResult),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	logrus.WithField("interval", s.interval).Info("Starting sweep scheduler")
	go s.run(ctx)

	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish, so no
// alert write is abandoned halfway.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	logrus.Info("Stopping sweep scheduler")
	cancel()
	<-done
}

// RunNow executes one sweep out of band and returns its stats. The sweep
// still runs on the scheduler goroutine, serialized with scheduled sweeps.
func (s *Scheduler) RunNow(ctx context.Context) (*SweepStats, error) {
	reply := make(chan triggerResult, 1)

	select {
	case s.trigger <- reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.stats, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.engine.Sweep(ctx); err != nil && ctx.Err() == nil {
				logrus.WithError(err).Error("Scheduled sweep failed")
			}
		case reply := <-s.trigger:
			stats, err := s.engine.Sweep(ctx)
			reply <- triggerResult{stats: stats, err: err}
		}
	}
}
