// Package scheduler registers named periodic tasks and runs them on
// independent tickers. Each task's ticks never overlap with themselves: a
// tick that arrives while the previous run of the same task is still in
// flight is skipped, not queued.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task is one named periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type runningTask struct {
	task    Task
	ticker  *time.Ticker
	running atomic.Bool
}

// Scheduler runs a fixed set of named tasks, each on its own ticker.
type Scheduler struct {
	logger *slog.Logger
	tasks  []*runningTask

	mu      sync.Mutex
	stopped chan struct{}
	wg      sync.WaitGroup
}

// New builds a Scheduler with no tasks registered yet.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger, stopped: make(chan struct{})}
}

// Register adds a task. Call before Start; tasks added after Start do not
// run.
func (s *Scheduler) Register(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, &runningTask{task: t})
}

// Start launches every registered task's ticker loop in its own goroutine.
// It returns immediately; call Stop (or cancel ctx) to wind down.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rt := range s.tasks {
		rt.ticker = time.NewTicker(rt.task.Interval)
		s.wg.Add(1)
		go s.loop(ctx, rt)
	}
}

// Stop halts every task's ticker and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	close(s.stopped)
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, rt *runningTask) {
	defer s.wg.Done()
	defer rt.ticker.Stop()

	log := s.logger.With(slog.String("task", rt.task.Name))
	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler task stopped", slog.String("reason", "context_cancel"))
			return
		case <-s.stopped:
			log.Info("scheduler task stopped", slog.String("reason", "stop_signal"))
			return
		case <-rt.ticker.C:
			s.fire(ctx, rt, log)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, rt *runningTask, log *slog.Logger) {
	if !rt.running.CompareAndSwap(false, true) {
		log.Warn("tick skipped, previous run still in flight")
		return
	}
	defer rt.running.Store(false)

	start := time.Now()
	if err := rt.task.Run(ctx); err != nil {
		log.Error("task run failed", slog.Any("error", err))
		return
	}
	log.Info("task run complete", slog.Duration("elapsed", time.Since(start)))
}
