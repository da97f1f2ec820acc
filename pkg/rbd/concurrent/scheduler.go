package concurrent

import (
	"context"
	"sync"
)

// An issued job to be executed.
type Job func(ctx context.Context)

// Executes jobs one after the other, in submission order. The
// creation pipeline relies on this to keep a single operation
// outstanding per request and to trampoline blocking calls off
// the completion callback routine.
type Scheduler interface {
	// Schedule a job for execution.
	Schedule(Job)

	// How many jobs are pending.
	Pending() int

	// Stop the scheduler, waiting for the running job. Pending
	// jobs that never started are dropped.
	Stop()
}

type fifo struct {
	mutex sync.Mutex

	ch      chan struct{}
	pending []Job

	ctx         context.Context
	cancellable context.CancelFunc

	done chan struct{}
}

func NewScheduler() Scheduler {
	s := &fifo{
		ch:   make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.ctx, s.cancellable = context.WithCancel(context.Background())
	go s.forever()
	return s
}

// Schedule the job to be executed sometime in the future.
func (s *fifo) Schedule(j Job) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cancellable == nil {
		panic("scheduler is already stopped")
	}

	if len(s.pending) == 0 {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
	s.pending = append(s.pending, j)
}

// How many jobs are still pending.
func (s *fifo) Pending() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.pending)
}

func (s *fifo) Stop() {
	s.mutex.Lock()
	if s.cancellable == nil {
		s.mutex.Unlock()
		return
	}
	cancel := s.cancellable
	s.cancellable = nil
	s.mutex.Unlock()

	cancel()
	<-s.done
}

// Takes the next job, if any.
func (s *fifo) next() (Job, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.pending) == 0 {
		return nil, false
	}
	j := s.pending[0]
	s.pending = s.pending[1:]
	return j, true
}

// Consume jobs until stopped. Between jobs the routine parks on
// the wakeup channel, so an idle scheduler costs nothing.
func (s *fifo) forever() {
	defer close(s.done)
	for {
		j, ok := s.next()
		if !ok {
			select {
			case <-s.ch:
				continue
			case <-s.ctx.Done():
				return
			}
		}

		select {
		case <-s.ctx.Done():
			return
		default:
		}
		j(s.ctx)
	}
}
