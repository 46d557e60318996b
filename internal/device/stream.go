package device

import (
	"errors"
	"sync"
)

var ErrStreamClosed = errors.New("device: stream closed")

// Stream is an in-order asynchronous work queue bound to one backend kind and
// ordinal. Work submitted through the same stream executes in submission
// order; streams have no ordering relationship with each other.
type Stream struct {
	kind         Kind
	ordinal      int
	highPriority bool

	mu     sync.RWMutex
	closed bool
	tasks  chan func()
	done   sync.WaitGroup
}

// OpenStream starts the stream's executor. High-priority streams get a deeper
// backlog so transfer work is not throttled behind compute submission.
func OpenStream(kind Kind, ordinal int, highPriority bool) *Stream {
	backlog := defaultStreamBacklog
	if highPriority {
		backlog = priorityStreamBacklog
	}
	s := &Stream{
		kind:         kind,
		ordinal:      ordinal,
		highPriority: highPriority,
		tasks:        make(chan func(), backlog),
	}
	s.done.Add(1)
	go s.run()
	return s
}

func (s *Stream) run() {
	defer s.done.Done()
	for fn := range s.tasks {
		fn()
	}
}

func (s *Stream) Kind() Kind     { return s.kind }
func (s *Stream) Ordinal() int   { return s.ordinal }
func (s *Stream) Priority() bool { return s.highPriority }

// Submit enqueues fn. It returns once the work is queued, not once it has
// executed.
func (s *Stream) Submit(fn func()) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.tasks <- fn
	return nil
}

// Synchronize blocks until every previously submitted task has executed.
func (s *Stream) Synchronize() error {
	fence := make(chan struct{})
	if err := s.Submit(func() { close(fence) }); err != nil {
		return err
	}
	<-fence
	return nil
}

// Close drains pending work and stops the executor. Further submissions fail
// with ErrStreamClosed.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.tasks)
	s.mu.Unlock()
	s.done.Wait()
}
