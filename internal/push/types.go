package push

import (
	"errors"

	"github.com/markis/saxpush/internal/sax"
)

var (
	// ErrTerminated is returned by a push interrupted by Terminate.
	ErrTerminated = errors.New("push: parse terminated")
	// ErrAborted is returned by every push after a syntax error ended the
	// parse with recovery disabled. It wraps that error.
	ErrAborted = errors.New("push: parser aborted")
)

// Options configure a Parser. They are read once per session.
type Options struct {
	Recover  bool // keep parsing after syntax errors
	HTML     bool
	Observer Observer
}

// Outcome says how a session ended.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeAborted    Outcome = "aborted"
	OutcomeFailed     Outcome = "failed"
	OutcomeTerminated Outcome = "terminated"
)

// Observer is told about chunk delivery and session ends. Methods are
// called from the pushing goroutine or from Terminate.
type Observer interface {
	ChunkDelivered(n int)
	ChunkIgnored(n int)
	SessionStarted()
	SessionFinished(outcome Outcome, errs []*sax.SyntaxError)
}

type nopObserver struct{}

func (nopObserver) ChunkDelivered(int)                          {}
func (nopObserver) ChunkIgnored(int)                            {}
func (nopObserver) SessionStarted()                             {}
func (nopObserver) SessionFinished(Outcome, []*sax.SyntaxError) {}

// Stats counts what a Parser has done over its lifetime.
type Stats struct {
	Chunks   int   // chunks read by the parser, fully or in part
	Bytes    int64 // bytes of those chunks the parser read
	Ignored  int   // chunks the parser never read because the parse had ended
	Sessions int

	Consumed int64  // bytes read by the parser in the latest session
	Digest   uint64 // xxhash of those bytes
}
