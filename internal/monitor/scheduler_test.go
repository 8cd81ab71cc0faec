package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lgfreitas/eproc-monitor/internal/config"
	"github.com/lgfreitas/eproc-monitor/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner counts cycles and returns a scripted result. With a block
// channel set, RunCycle stalls until the channel is closed.
type fakeRunner struct {
	mu     sync.Mutex
	calls  int
	result CycleResult
	block  chan struct{}
}

func (f *fakeRunner) RunCycle(ctx context.Context) CycleResult {
	f.mu.Lock()
	f.calls++
	block := f.block
	result := f.result
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return result
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testSchedulerLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger("error", "console")
	require.NoError(t, err)
	return log
}

func TestSchedulerSwitchesToDormantWhenDrained(t *testing.T) {
	cfg := &config.Config{ActiveInterval: time.Hour, DormantInterval: time.Hour}
	s := NewScheduler(cfg, &fakeRunner{}, testSchedulerLogger(t))
	ctx := context.Background()

	s.OnCycleComplete(ctx, CycleResult{Drained: false})
	assert.Equal(t, ModeActive, s.Mode())

	s.OnCycleComplete(ctx, CycleResult{Drained: true})
	assert.Equal(t, ModeDormant, s.Mode())

	s.OnCycleComplete(ctx, CycleResult{Drained: false})
	assert.Equal(t, ModeActive, s.Mode())

	require.NoError(t, s.Shutdown(ctx))
}

func TestSchedulerActiveCadenceRecurs(t *testing.T) {
	cfg := &config.Config{ActiveInterval: 20 * time.Millisecond, DormantInterval: time.Hour}
	runner := &fakeRunner{result: CycleResult{Drained: false}}
	s := NewScheduler(cfg, runner, testSchedulerLogger(t))
	ctx := context.Background()

	s.OnCycleComplete(ctx, CycleResult{Drained: false})

	assert.Eventually(t, func() bool {
		return runner.callCount() >= 3
	}, time.Second, 10*time.Millisecond, "active cadence should keep triggering cycles")

	require.NoError(t, s.Shutdown(ctx))
}

func TestSchedulerDormantTimerFires(t *testing.T) {
	cfg := &config.Config{ActiveInterval: time.Hour, DormantInterval: 30 * time.Millisecond}
	runner := &fakeRunner{result: CycleResult{Drained: true}}
	s := NewScheduler(cfg, runner, testSchedulerLogger(t))
	ctx := context.Background()

	s.OnCycleComplete(ctx, CycleResult{Drained: true})
	assert.Equal(t, ModeDormant, s.Mode())

	assert.Eventually(t, func() bool {
		return runner.callCount() >= 1
	}, time.Second, 10*time.Millisecond, "dormant timer should wake a cycle")

	// The drained cycle re-arms the dormant timer rather than entering
	// active cadence
	assert.Eventually(t, func() bool {
		return s.Mode() == ModeDormant
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Shutdown(ctx))
}

func TestSchedulerSkipsOverlappingCycles(t *testing.T) {
	cfg := &config.Config{ActiveInterval: time.Hour, DormantInterval: time.Hour}
	runner := &fakeRunner{block: make(chan struct{})}
	s := NewScheduler(cfg, runner, testSchedulerLogger(t))
	ctx := context.Background()

	s.RunNow(ctx)
	assert.Eventually(t, func() bool {
		return runner.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	// Triggers landing while a cycle is in flight are skipped, not queued
	s.RunNow(ctx)
	s.RunNow(ctx)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, runner.callCount())

	close(runner.block)
	require.NoError(t, s.Shutdown(ctx))
	assert.Equal(t, 1, runner.callCount())
}

func TestSchedulerShutdownWaitsForInflightCycle(t *testing.T) {
	cfg := &config.Config{ActiveInterval: time.Hour, DormantInterval: time.Hour}
	runner := &fakeRunner{block: make(chan struct{})}
	s := NewScheduler(cfg, runner, testSchedulerLogger(t))
	ctx := context.Background()

	s.RunNow(ctx)
	assert.Eventually(t, func() bool {
		return runner.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	// Deadline expires while the cycle is still blocked
	shortCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Shutdown(shortCtx))

	// Once the cycle finishes the wait completes cleanly
	close(runner.block)
	assert.NoError(t, s.Shutdown(ctx))
}

func TestSchedulerNoNewCyclesAfterShutdown(t *testing.T) {
	cfg := &config.Config{ActiveInterval: time.Hour, DormantInterval: time.Hour}
	runner := &fakeRunner{}
	s := NewScheduler(cfg, runner, testSchedulerLogger(t))
	ctx := context.Background()

	require.NoError(t, s.Shutdown(ctx))

	s.RunNow(ctx)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, runner.callCount())
}
