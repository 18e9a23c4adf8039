package stream

import (
	"context"
	"errors"
)

var (
	// ErrClosedStream is returned by Push once the stream stopped accepting chunks.
	ErrClosedStream = errors.New("stream: closed stream")
	// ErrTerminated is returned to readers and waiters after Terminate or
	// cancellation of the stream context. It is distinct from io.EOF.
	ErrTerminated = errors.New("stream: terminated")
)

// State indicates the lifecycle stage of a Stream.
type State int

const (
	StateOpen    State = iota // Accepting pushes.
	StateClosing              // Sentinel queued, pushes rejected.
	StateClosed               // Sentinel consumed, released or terminated.
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Chunk represents one pushed piece of input together with its
// acknowledgement. The acknowledgement fires once the reader has drained
// every byte of the chunk and asked for more.
type Chunk struct {
	data   []byte
	ack    chan struct{}
	end    bool
	stream *Stream
}

// endOfStream is the sentinel. It carries no data and is never acknowledged.
var endOfStream = &Chunk{end: true}

func newChunk(s *Stream, data []byte) *Chunk {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Chunk{
		data:   buf,
		ack:    make(chan struct{}),
		stream: s,
	}
}

// Len returns the number of bytes carried by the chunk.
func (c *Chunk) Len() int {
	return len(c.data)
}

// Done is closed once the chunk has been consumed.
func (c *Chunk) Done() <-chan struct{} {
	return c.ack
}

func (c *Chunk) resolve() {
	close(c.ack)
}

// Wait blocks until the chunk is consumed. If the stream shuts down first it
// returns ErrClosedStream (consumer finished early) or ErrTerminated.
func (c *Chunk) Wait(ctx context.Context) error {
	select {
	case <-c.ack:
		return nil
	case <-c.stream.done:
		select {
		case <-c.ack:
			return nil
		default:
		}
		if err := c.stream.closeErr(); err != nil {
			return err
		}
		return ErrClosedStream
	case <-ctx.Done():
		return ctx.Err()
	}
}
