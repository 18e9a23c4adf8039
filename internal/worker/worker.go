// Package worker runs one parse pass on a dedicated goroutine, reading from a
// chunk stream and dispatching parser callbacks to a translator.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/markis/saxpush/internal/parser"
	"github.com/markis/saxpush/internal/sax"
	"github.com/markis/saxpush/internal/stream"
)

var log = commonlog.GetLogger("saxpush.worker")

// Worker owns the stream, the cancellation context and the goroutine of one
// parse session.
type Worker struct {
	ctx    context.Context
	cancel context.CancelFunc

	stream *stream.Stream
	parser parser.Parser
	tr     *sax.Translator
	errs   *sax.ErrorLog

	start sync.Once
	done  chan struct{}

	mu  sync.Mutex
	err error
}

// New prepares a worker. Cancelling parent cancels the parse.
func New(parent context.Context, p parser.Parser, tr *sax.Translator, errs *sax.ErrorLog) *Worker {
	ctx, cancel := context.WithCancel(parent)
	return &Worker{
		ctx:    ctx,
		cancel: cancel,
		stream: stream.New(ctx),
		parser: p,
		tr:     tr,
		errs:   errs,
		done:   make(chan struct{}),
	}
}

// Start launches the parse goroutine. Calls after the first are no-ops.
func (w *Worker) Start() {
	w.start.Do(func() {
		go w.run()
	})
}

func (w *Worker) run() {
	defer close(w.done)
	// Producers blocked on a chunk must never outlive the consumer.
	defer w.stream.Release()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("parse panicked: %v\n%s", r, debug.Stack())
			w.setErr(fmt.Errorf("parse panicked: %v", r))
		}
	}()

	log.Debug("parse started")
	err := w.parser.Parse(w.stream, w.tr)
	if err != nil {
		w.setErr(err)
		log.Debugf("parse stopped: %s", err)
		return
	}
	log.Debugf("parse finished after %d bytes (xxhash %016x), %d errors", w.Consumed(), w.Digest(), w.errs.Count())
}

func (w *Worker) setErr(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
}

// Stream returns the stream the parser reads from.
func (w *Worker) Stream() *stream.Stream {
	return w.stream
}

// Err returns the failure that ended the parse pass: a read error, a sink
// error or a recovered panic. Syntax errors are not failures.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Done is closed once the parse goroutine has exited and the stream has
// been released.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the parse goroutine exits and returns Err.
func (w *Worker) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel asks the parse to stop at its next read. It does not wait.
func (w *Worker) Cancel() {
	w.cancel()
	w.stream.Terminate()
}

// Consumed returns the number of bytes the parser has read so far.
func (w *Worker) Consumed() int64 {
	return w.stream.Consumed()
}

// Digest returns the xxhash of the bytes the parser has read so far.
func (w *Worker) Digest() uint64 {
	return w.stream.Sum64()
}

// ErrorCount returns the number of syntax errors recorded so far.
func (w *Worker) ErrorCount() int {
	return w.errs.Count()
}

// LastError returns the most recent syntax error, or nil.
func (w *Worker) LastError() *sax.SyntaxError {
	return w.errs.Last()
}
