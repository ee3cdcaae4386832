package runtime

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

type worker struct {
	name   string
	run    func(context.Context) error
	closeF func() error
}

// Supervisor runs a fixed set of workers sharing one context. The first
// worker to fail cancels that context, so a fatal start-up error (such as a
// failed change subscription) stops the whole process.
type Supervisor struct {
	mu      sync.Mutex
	workers []worker
	wg      sync.WaitGroup
	errOnce sync.Once
	err     error

	ctx    context.Context
	cancel context.CancelFunc
}

func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

func (s *Supervisor) Add(name string, run func(context.Context) error, closeF func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker{name: name, run: run, closeF: closeF})
}

func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, w := range s.workers {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			log.WithField("worker", w.name).Debug("Starting worker")
			if err := w.run(s.ctx); err != nil {
				log.WithField("worker", w.name).WithError(err).Error("Worker failed")
				s.errOnce.Do(func() { s.err = err })
				s.cancel()
			}
		}()
	}
	return nil
}

// Wait blocks until ctx is cancelled or a worker fails, closes the workers in
// reverse order and returns the first worker error.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	groupCtx, cancel := s.ctx, s.cancel
	s.mu.Unlock()
	if groupCtx == nil {
		groupCtx, cancel = context.WithCancel(ctx)
	}

	select {
	case <-ctx.Done():
	case <-groupCtx.Done():
	}
	cancel()

	for i := len(s.workers) - 1; i >= 0; i-- {
		if s.workers[i].closeF != nil {
			if err := s.workers[i].closeF(); err != nil {
				log.WithField("worker", s.workers[i].name).WithError(err).Warn("Failed to close worker")
			}
		}
	}
	s.wg.Wait()
	return s.err
}
