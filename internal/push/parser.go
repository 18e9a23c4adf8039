// Package push lets a caller feed a document to a SAX parser in chunks of
// any size. Each push blocks until the parser has consumed the chunk.
package push

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/markis/saxpush/internal/sax"
	"github.com/markis/saxpush/internal/stream"
)

var log = commonlog.GetLogger("saxpush.push")

// Parser is a push parser delivering events to one sink. Pushes must come
// from one goroutine at a time; Terminate and the accessors may be called
// from anywhere.
type Parser struct {
	sink    sax.Sink
	opts    Options
	writeMu sync.Mutex
	st      *state
}

// New returns a Parser delivering to sink. No goroutine is started until
// the first push.
func New(sink sax.Sink, opts Options) *Parser {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	p := &Parser{
		sink: sink,
		opts: opts,
		st:   &state{observer: opts.Observer},
	}
	// An abandoned parser must not leak its worker goroutine.
	runtime.AddCleanup(p, func(st *state) { st.terminate() }, p.st)
	return p
}

// Push feeds chunk to the parser and waits until it has been consumed. With
// last set the document is finished: the parser drains, the sink receives
// the end of the document and the session is torn down.
//
// With recovery disabled, a push that records a new syntax error tears the
// session down and returns that *sax.SyntaxError; later pushes fail with
// ErrAborted.
func (p *Parser) Push(ctx context.Context, chunk []byte, last bool) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	sess, err := p.st.session(ctx, p.sink, p.opts)
	if err != nil {
		return err
	}
	before := sess.errs.Count()

	if len(chunk) > 0 {
		if err := p.deliver(ctx, sess, chunk); err != nil {
			return err
		}
	}
	if err := p.failure(sess); err != nil {
		return err
	}

	if last {
		if err := sess.worker.Stream().Close(); err != nil {
			return fmt.Errorf("failed to close stream: %w", err)
		}
		select {
		case <-sess.worker.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := p.failure(sess); err != nil {
			return err
		}
	}

	if !p.opts.Recover && sess.errs.Count() > before {
		return p.st.abort(sess)
	}

	if last {
		err := sess.tr.EndDocument()
		p.st.end(sess, OutcomeCompleted)
		if err != nil {
			return fmt.Errorf("failed to end document: %w", err)
		}
	}
	return nil
}

// deliver hands chunk to the worker and waits for it to be consumed. A
// chunk the parser never read because the parse already ended is dropped
// and counted.
func (p *Parser) deliver(ctx context.Context, sess *session, chunk []byte) error {
	before := sess.worker.Consumed()
	c, err := sess.worker.Stream().Push(ctx, chunk)
	if err == nil {
		err = c.Wait(ctx)
	}

	switch {
	case err == nil:
		p.st.delivered(len(chunk))
		return nil
	case errors.Is(err, stream.ErrClosedStream):
		// The worker released the stream on its way out.
		select {
		case <-sess.worker.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		// Earlier chunks were drained before their push returned, so
		// anything read since belongs to this one.
		if n := sess.worker.Consumed() - before; n > 0 {
			log.Debugf("parse ended after reading %d of %d bytes of the chunk", n, len(chunk))
			p.st.delivered(int(n))
			return nil
		}
		log.Debugf("ignoring chunk of %d bytes: parse already ended", len(chunk))
		p.st.ignored(len(chunk))
		return nil
	case errors.Is(err, stream.ErrTerminated):
		return ErrTerminated
	}
	return err
}

// failure re-raises the error a finished worker stopped with.
func (p *Parser) failure(sess *session) error {
	select {
	case <-sess.worker.Done():
	default:
		return nil
	}

	err := sess.worker.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stream.ErrTerminated):
		p.st.end(sess, OutcomeTerminated)
		return ErrTerminated
	}
	p.st.end(sess, OutcomeFailed)
	return fmt.Errorf("failed to parse: %w", err)
}

// Write implements io.Writer. Each call is one chunk.
func (p *Parser) Write(b []byte) (int, error) {
	if err := p.Push(context.Background(), b, false); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close finishes the document if one is in progress.
func (p *Parser) Close() error {
	if !p.st.active() {
		return nil
	}
	return p.Push(context.Background(), nil, true)
}

// Terminate aborts the current session, if any. A push blocked on the
// session fails with ErrTerminated. It is safe to call repeatedly and
// concurrently; the next push starts a new session.
func (p *Parser) Terminate() {
	p.st.terminate()
}

// ErrorCount returns the number of syntax errors of the current or most
// recent session.
func (p *Parser) ErrorCount() int {
	if errs := p.st.errorLog(); errs != nil {
		return errs.Count()
	}
	return 0
}

// LastError returns the most recent syntax error, or nil.
func (p *Parser) LastError() *sax.SyntaxError {
	if errs := p.st.errorLog(); errs != nil {
		return errs.Last()
	}
	return nil
}

// Errors returns the syntax errors of the current or most recent session in
// detection order.
func (p *Parser) Errors() []*sax.SyntaxError {
	if errs := p.st.errorLog(); errs != nil {
		return errs.All()
	}
	return nil
}

// Stats returns a snapshot of the parser counters.
func (p *Parser) Stats() Stats {
	p.st.mu.Lock()
	stats, last := p.st.stats, p.st.last
	p.st.mu.Unlock()

	if last != nil {
		stats.Consumed = last.worker.Consumed()
		stats.Digest = last.worker.Digest()
	}
	return stats
}
