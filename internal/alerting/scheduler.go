package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultStopTimeout bounds how long Stop waits for the loop to exit.
	DefaultStopTimeout = 5 * time.Second
	// DefaultPanicBackoff is the pause after a sweep that panicked.
	DefaultPanicBackoff = 5 * time.Second
)

// ErrStopTimeout is returned when the loop did not exit in time. The loop
// is cancelled and exits after its current alert.
var ErrStopTimeout = errors.New("scheduler: loop did not stop in time")

// Scheduler runs sweep in a single cancellable loop: sweep, then sleep for
// interval(), until stopped.
type Scheduler struct {
	sweep    func(ctx context.Context)
	interval func() time.Duration
	rec      Recorder
	log      *logrus.Entry

	StopTimeout  time.Duration
	PanicBackoff time.Duration

	ctl      sync.Mutex // serializes Start, Stop and Restart
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	draining chan struct{} // closed once every stopped loop has exited
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(sweep func(ctx context.Context), interval func() time.Duration, rec Recorder, log *logrus.Entry) *Scheduler {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Scheduler{
		sweep:        sweep,
		interval:     interval,
		rec:          rec,
		log:          log.WithField("component", "scheduler"),
		StopTimeout:  DefaultStopTimeout,
		PanicBackoff: DefaultPanicBackoff,
	}
}

// Start launches the loop. It reports false if the loop is already running.
func (s *Scheduler) Start() bool {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	return s.start()
}

func (s *Scheduler) start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	prev := s.draining
	s.cancel, s.done, s.draining = cancel, done, nil

	go s.run(ctx, done, prev)
	s.rec.SetSchedulerRunning(true)
	s.log.Info("scheduler started")
	return true
}

// Stop cancels the loop and waits for it to exit. Stopping a stopped
// scheduler is a no-op.
func (s *Scheduler) Stop() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	return s.stop()
}

func (s *Scheduler) stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	done := s.done
	s.cancel, s.done = nil, nil
	// A Start racing with this wait must not sweep before the old loop exits.
	s.draining = done
	s.mu.Unlock()
	s.rec.SetSchedulerRunning(false)

	timer := time.NewTimer(s.StopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-timer.C:
		s.log.Warn("scheduler loop still running after stop timeout")
		return ErrStopTimeout
	}
}

// Restart stops and starts the loop if it is running, so a new interval
// takes effect immediately.
func (s *Scheduler) Restart() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	if !s.Running() {
		return nil
	}
	if err := s.stop(); err != nil && !errors.Is(err, ErrStopTimeout) {
		return err
	}
	s.start()
	return nil
}

// Running reports whether the loop is running.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}, prev chan struct{}) {
	defer close(done)

	// A loop that overran its stop deadline finishes before this one sweeps.
	// done is closed only after prev, so later loops wait for all earlier ones.
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			<-prev
			return
		}
	}

	for {
		wait := s.interval()
		if err := s.safeSweep(ctx); err != nil {
			s.rec.SweepPanicked()
			s.log.WithError(err).Error("sweep panicked")
			wait = s.PanicBackoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) safeSweep(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	s.sweep(ctx)
	return nil
}
