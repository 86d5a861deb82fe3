// Package scheduler runs each polling source on its own fixed interval.
//
// A per-job running guard enforces the cycle model: one cycle of a source
// runs to completion before the next tick of the same source may start.
// Different sources interleave freely.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"dealsbot/pkg/logx"
)

type Service struct {
	cron *cron.Cron
	log  logx.Logger

	mu      sync.Mutex
	ctx     context.Context
	started bool
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cron: cron.New(), log: log}
}

type job struct {
	name    string
	fn      func(context.Context)
	log     logx.Logger
	svc     *Service
	running atomic.Bool
}

// Add schedules fn to run every interval. Ticks that land while a previous
// run of the same job is still in flight are skipped, not queued.
func (s *Service) Add(name string, every time.Duration, fn func(context.Context)) error {
	if every <= 0 {
		return fmt.Errorf("scheduler: job %q: interval must be positive", name)
	}
	j := &job{name: name, fn: fn, log: s.log, svc: s}
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", every), j.tick)
	if err != nil {
		return fmt.Errorf("scheduler: job %q: %w", name, err)
	}
	s.log.Info("job scheduled", logx.String("job", name), logx.Duration("every", every))
	return nil
}

func (j *job) tick() {
	j.svc.mu.Lock()
	ctx := j.svc.ctx
	j.svc.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if !j.running.CompareAndSwap(false, true) {
		j.log.Warn("cycle still running; skipping tick", logx.String("job", j.name))
		return
	}
	defer j.running.Store(false)

	start := time.Now()
	j.fn(ctx)
	j.log.Debug("cycle finished", logx.String("job", j.name), logx.Duration("dur", time.Since(start)))
}

// Start begins ticking. The scheduler stops when ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	go func() {
		<-ctx.Done()
		stopCtx := s.cron.Stop()
		// Let in-flight cycles observe cancellation via ctx; just wait for
		// cron's own bookkeeping here.
		<-stopCtx.Done()
	}()
	s.log.Info("scheduler started")
}
