package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/lgfreitas/eproc-monitor/internal/config"
	"github.com/lgfreitas/eproc-monitor/pkg/logger"
)

const (
	ModeActive  = "active"
	ModeDormant = "dormant"
)

// CycleRunner is the one-cycle entry point the scheduler drives
type CycleRunner interface {
	RunCycle(ctx context.Context) CycleResult
}

// Scheduler drives cycles on an adaptive cadence. While the backlog is being
// worked off it ticks at the active interval; once a cycle reports the
// backlog drained it arms a single dormant timer instead. At most one cycle
// runs at a time; a trigger that lands while a cycle is in flight is skipped,
// never queued.
type Scheduler struct {
	cfg    *config.Config
	runner CycleRunner
	logger *logger.Logger

	mu           sync.Mutex
	mode         string
	ticker       *time.Ticker
	tickerStop   chan struct{}
	dormantTimer *time.Timer
	inProgress   bool
	shuttingDown bool

	wg sync.WaitGroup
}

func NewScheduler(cfg *config.Config, runner CycleRunner, log *logger.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, runner: runner, logger: log}
}

// Start runs the first cycle immediately and enters active cadence
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.enterActiveLocked(ctx)
	s.mu.Unlock()

	s.logger.Info("Scheduler started",
		"activeInterval", s.cfg.ActiveInterval, "dormantInterval", s.cfg.DormantInterval)
	s.RunNow(ctx)
}

// RunNow requests a cycle outside the normal cadence. A cycle already in
// flight makes this a no-op.
func (s *Scheduler) RunNow(ctx context.Context) {
	go s.trigger(ctx)
}

// Mode reports the current cadence, for the status endpoints
func (s *Scheduler) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// trigger runs one cycle if none is in flight, then reschedules based on the
// cycle's drained report
func (s *Scheduler) trigger(ctx context.Context) {
	s.mu.Lock()
	if s.inProgress || s.shuttingDown {
		if s.inProgress {
			s.logger.Debug("Cycle already in progress, trigger skipped")
		}
		s.mu.Unlock()
		return
	}
	s.inProgress = true
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProgress = false
		s.mu.Unlock()
		s.wg.Done()
	}()

	result := s.runner.RunCycle(ctx)
	s.OnCycleComplete(ctx, result)
}

// OnCycleComplete moves the cadence between active and dormant
func (s *Scheduler) OnCycleComplete(ctx context.Context, result CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return
	}

	if result.Drained {
		if s.mode != ModeDormant {
			s.logger.Info("Backlog drained, entering dormant cadence",
				"next", s.cfg.DormantInterval)
		}
		s.enterDormantLocked(ctx)
		return
	}
	if s.mode != ModeActive {
		s.logger.Info("Backlog remains, entering active cadence",
			"next", s.cfg.ActiveInterval)
	}
	s.enterActiveLocked(ctx)
}

func (s *Scheduler) enterActiveLocked(ctx context.Context) {
	if s.dormantTimer != nil {
		s.dormantTimer.Stop()
		s.dormantTimer = nil
	}
	if s.mode == ModeActive && s.ticker != nil {
		return
	}
	s.stopTickerLocked()

	s.mode = ModeActive
	s.ticker = time.NewTicker(s.cfg.ActiveInterval)
	s.tickerStop = make(chan struct{})
	go func(ticker *time.Ticker, stop chan struct{}) {
		for {
			select {
			case <-ticker.C:
				go s.trigger(ctx)
			case <-stop:
				return
			}
		}
	}(s.ticker, s.tickerStop)
}

func (s *Scheduler) enterDormantLocked(ctx context.Context) {
	s.stopTickerLocked()
	if s.dormantTimer != nil {
		s.dormantTimer.Stop()
	}
	s.mode = ModeDormant
	// One-shot: the dormant cycle itself decides the next cadence when it
	// reports back
	s.dormantTimer = time.AfterFunc(s.cfg.DormantInterval, func() {
		s.trigger(ctx)
	})
}

func (s *Scheduler) stopTickerLocked() {
	if s.ticker != nil {
		s.ticker.Stop()
		close(s.tickerStop)
		s.ticker = nil
		s.tickerStop = nil
	}
}

// Shutdown stops all timers and waits for an in-flight cycle to finish, up to
// the context's deadline
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shuttingDown = true
	s.stopTickerLocked()
	if s.dormantTimer != nil {
		s.dormantTimer.Stop()
		s.dormantTimer = nil
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Shutdown deadline reached with a cycle still in flight")
		return ctx.Err()
	}
}
