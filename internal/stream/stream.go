package stream

import (
	"context"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Stream adapts a sequence of pushed chunks into a single ordered, blocking
// io.Reader. There is exactly one reader; any number of goroutines may push,
// although ordering is only defined for pushes issued from one goroutine.
type Stream struct {
	ctx   context.Context
	queue chan *Chunk
	done  chan struct{}

	mu       sync.Mutex
	state    State
	err      error
	consumed int64
	digest   *xxhash.Digest

	// owned by the reader
	cur *Chunk
	off int
}

// New returns an open stream. Cancelling ctx terminates the stream at the
// reader's next blocking point.
func New(ctx context.Context) *Stream {
	return &Stream{
		ctx:    ctx,
		queue:  make(chan *Chunk, 1),
		done:   make(chan struct{}),
		digest: xxhash.New(),
	}
}

// Push hands data to the reader. It blocks only while a previously pushed
// chunk still occupies the queue. The returned chunk can be waited on to
// learn when the reader has consumed it.
func (s *Stream) Push(ctx context.Context, data []byte) (*Chunk, error) {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return nil, ErrClosedStream
	}
	s.mu.Unlock()

	c := newChunk(s, data)
	select {
	case s.queue <- c:
		return c, nil
	case <-s.done:
		return nil, ErrClosedStream
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close queues the end-of-stream sentinel. Calling it again, or after the
// stream was released or terminated, is a no-op.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosing
	s.mu.Unlock()

	select {
	case s.queue <- endOfStream:
	case <-s.done:
	}
	return nil
}

// Release shuts the stream down from the consumer side. Pending waiters and
// later pushes observe ErrClosedStream. It never blocks.
func (s *Stream) Release() {
	s.shutdown(nil)
}

// Terminate aborts the stream. Readers and pending waiters observe
// ErrTerminated.
func (s *Stream) Terminate() {
	s.shutdown(ErrTerminated)
}

func (s *Stream) shutdown(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.err = err
	close(s.done)
}

func (s *Stream) closeErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Read implements io.Reader for the single consumer. The current chunk is
// acknowledged when Read is called again after it has been drained.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if s.cur != nil {
			if s.off < len(s.cur.data) {
				n := copy(p, s.cur.data[s.off:])
				s.off += n
				s.account(p[:n])
				return n, nil
			}
			s.cur.resolve()
			s.cur = nil
		}

		select {
		case <-s.done:
			return 0, s.readErr()
		default:
		}

		select {
		case c := <-s.queue:
			if c.end {
				s.shutdown(nil)
				return 0, io.EOF
			}
			s.cur, s.off = c, 0
		case <-s.done:
			return 0, s.readErr()
		case <-s.ctx.Done():
			s.Terminate()
			return 0, ErrTerminated
		}
	}
}

func (s *Stream) readErr() error {
	if err := s.closeErr(); err != nil {
		return err
	}
	return io.EOF
}

func (s *Stream) account(p []byte) {
	s.mu.Lock()
	s.consumed += int64(len(p))
	_, _ = s.digest.Write(p)
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Consumed returns the number of bytes handed to the reader so far.
func (s *Stream) Consumed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumed
}

// Sum64 returns the xxhash digest of every byte handed to the reader.
func (s *Stream) Sum64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digest.Sum64()
}
