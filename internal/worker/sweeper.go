// Package worker runs background jobs.  None of them is needed for
// correctness; they keep storage small.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweepable deletes expired holds and reports how many rows it removed.
type Sweepable interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Sweeper periodically removes expired HOLDING rows.
type Sweeper struct {
	target   Sweepable
	interval time.Duration
	log      *zap.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	totalRemoved int64
	runs         int64
	failures     int64
	lastRun      time.Time
}

// Stats is a snapshot of sweeper counters.
type Stats struct {
	Running      bool      `json:"running"`
	Runs         int64     `json:"runs"`
	Failures     int64     `json:"failures"`
	TotalRemoved int64     `json:"total_removed"`
	LastRun      time.Time `json:"last_run"`
}

// NewSweeper returns a sweeper calling target every interval.
func NewSweeper(target Sweepable, interval time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{target: target, interval: interval, log: log}
}

// Start launches the sweep loop.  It runs one pass immediately.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("sweeper already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.log.Info("starting sweeper", zap.Duration("interval", s.interval))
	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop ends the loop and waits for an in-flight pass.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	_, _ = s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			_, _ = s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep pass.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	n, err := s.target.SweepExpired(ctx)

	s.mu.Lock()
	s.runs++
	s.lastRun = time.Now().UTC()
	if err != nil {
		s.failures++
	} else {
		s.totalRemoved += int64(n)
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("sweep failed", zap.Error(err))
		return n, err
	}
	if n > 0 {
		s.log.Info("swept expired holds", zap.Int("removed", n))
	}
	return n, nil
}

// Stats returns the current counters.
func (s *Sweeper) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Running:      s.running,
		Runs:         s.runs,
		Failures:     s.failures,
		TotalRemoved: s.totalRemoved,
		LastRun:      s.lastRun,
	}
}
