// Package publish runs pushes off the mutation critical path. A single
// background worker consumes "push by time T" requests, coalescing
// duplicates: every new request within the quiet period cancels and
// reschedules the pending push, so a burst of mutations shares one eventual
// publish. Failures are logged and retried on the next request, never
// surfaced to the mutation that triggered them.
package publish

import (
	"context"
	"log/slog"
	"time"

	"github.com/smallfab/smallfab/core/gitstore"
)

// pushTimeout bounds one background push attempt.
const pushTimeout = 30 * time.Second

// Scheduler owns the background push worker for one store/remote pair.
type Scheduler struct {
	git    *gitstore.Store
	remote string
	logger *slog.Logger

	requests chan time.Time
	flushes  chan chan struct{}
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler creates and starts a scheduler. logger may be nil.
func NewScheduler(git *gitstore.Store, remote string, logger *slog.Logger) *Scheduler {
	if remote == "" {
		remote = gitstore.DefaultRemote
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		git:      git,
		remote:   remote,
		logger:   logger,
		requests: make(chan time.Time, 16),
		flushes:  make(chan chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Enqueue schedules a push after delay, replacing any pending schedule.
// Never blocks; a full queue means a reschedule is already in flight.
func (s *Scheduler) Enqueue(delay time.Duration) {
	select {
	case <-s.stop:
		return
	default:
	}
	select {
	case s.requests <- time.Now().Add(delay):
	default:
	}
}

// Flush synchronously pushes any pending work. Best effort: push errors are
// logged, not returned. Safe to call from shutdown paths.
func (s *Scheduler) Flush() {
	ack := make(chan struct{})
	select {
	case s.flushes <- ack:
		<-ack
	case <-s.done:
	}
}

// Close flushes pending work and stops the worker.
func (s *Scheduler) Close() {
	s.Flush()
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	pending := false

	for {
		select {
		case due := <-s.requests:
			// Cancel-and-reschedule: the newest request wins.
			stopTimer(timer)
			timer.Reset(time.Until(due))
			pending = true

		case <-timer.C:
			if pending {
				pending = false
				s.push()
			}

		case ack := <-s.flushes:
			stopTimer(timer)
			if s.drainQueued() || pending {
				pending = false
				s.push()
			}
			close(ack)

		case <-s.stop:
			stopTimer(timer)
			if s.drainQueued() || pending {
				s.push()
			}
			return
		}
	}
}

// drainQueued absorbs requests that raced ahead of a flush or shutdown so
// their work is not stranded behind a stale timer.
func (s *Scheduler) drainQueued() bool {
	drained := false
	for {
		select {
		case <-s.requests:
			drained = true
		default:
			return drained
		}
	}
}

func (s *Scheduler) push() {
	if !s.git.HasRemote(s.remote) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := s.git.Push(ctx, s.remote); err != nil {
		s.logger.Warn("background push failed; will retry on next schedule",
			"remote", s.remote, "error", err)
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
