package push

import (
	"context"
	"fmt"
	"sync"

	"github.com/markis/saxpush/internal/parser"
	"github.com/markis/saxpush/internal/sax"
	"github.com/markis/saxpush/internal/worker"
)

// session is one streaming parse: a worker with its stream, the translator
// and the error log.
type session struct {
	worker   *worker.Worker
	tr       *sax.Translator
	errs     *sax.ErrorLog
	observer Observer
	once     sync.Once
}

// teardown stops the worker and waits for it to exit. Only the first call
// does anything; its outcome is the one reported.
func (s *session) teardown(outcome Outcome) {
	s.once.Do(func() {
		s.worker.Cancel()
		<-s.worker.Done()
		log.Debugf("session %s with %d errors", outcome, s.errs.Count())
		s.observer.SessionFinished(outcome, s.errs.All())
	})
}

// state is everything of a Parser shared with Terminate and the runtime
// cleanup. It never points back to the Parser.
type state struct {
	mu       sync.Mutex
	sess     *session
	last     *session // most recently started, possibly still exiting
	errs     *sax.ErrorLog
	aborted  error
	stats    Stats
	observer Observer
}

// session returns the active session, starting one if needed. A new
// session only starts once the worker of the previous one has exited, so
// the sink never sees two workers.
func (st *state) session(ctx context.Context, sink sax.Sink, opts Options) (*session, error) {
	st.mu.Lock()
	if st.sess == nil && st.last != nil && st.aborted == nil {
		prev := st.last
		st.mu.Unlock()
		select {
		case <-prev.worker.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		st.mu.Lock()
	}
	defer st.mu.Unlock()

	if st.aborted != nil {
		return nil, fmt.Errorf("%w: %w", ErrAborted, st.aborted)
	}
	if st.sess != nil {
		return st.sess, nil
	}

	errs := &sax.ErrorLog{}
	tr := sax.NewTranslator(sink, errs, opts.HTML)
	w := worker.New(context.WithoutCancel(ctx), parser.New(opts.HTML), tr, errs)
	st.sess = &session{worker: w, tr: tr, errs: errs, observer: st.observer}
	st.last = st.sess
	st.errs = errs
	st.stats.Sessions++
	w.Start()

	log.Debugf("session started (html=%t recover=%t)", opts.HTML, opts.Recover)
	st.observer.SessionStarted()
	return st.sess, nil
}

func (st *state) active() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sess != nil
}

func (st *state) errorLog() *sax.ErrorLog {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.errs
}

func (st *state) delivered(n int) {
	st.mu.Lock()
	st.stats.Chunks++
	st.stats.Bytes += int64(n)
	st.mu.Unlock()
	st.observer.ChunkDelivered(n)
}

func (st *state) ignored(n int) {
	st.mu.Lock()
	st.stats.Ignored++
	st.mu.Unlock()
	st.observer.ChunkIgnored(n)
}

// end detaches sess if it is still the active session and tears it down.
func (st *state) end(sess *session, outcome Outcome) {
	st.mu.Lock()
	if st.sess == sess {
		st.sess = nil
	}
	st.mu.Unlock()
	sess.teardown(outcome)
}

// abort ends sess after an unrecovered syntax error and refuses every later
// push.
func (st *state) abort(sess *session) error {
	last := sess.errs.Last()
	st.mu.Lock()
	st.aborted = last
	st.mu.Unlock()
	st.end(sess, OutcomeAborted)
	return last
}

func (st *state) terminate() {
	st.mu.Lock()
	sess := st.sess
	st.sess = nil
	st.mu.Unlock()
	if sess != nil {
		sess.teardown(OutcomeTerminated)
	}
}
