package sax

import (
	"fmt"
	"sync"
)

// Level is the severity of a recorded parse error.
type Level int

const (
	LevelError Level = iota + 1 // Recoverable, parsing continues.
	LevelFatal                  // The parser stopped.
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "unknown"
}

// SyntaxError records one malformed construct. Line is 1-based and Column
// 0-based; either is -1 when the parser could not tell.
type SyntaxError struct {
	Level   Level
	Message string
	Line    int
	Column  int
}

func (e *SyntaxError) Error() string {
	if e.Line < 0 {
		return fmt.Sprintf("%s: %s", e.Level, e.Message)
	}
	if e.Column < 0 {
		return fmt.Sprintf("%d: %s: %s", e.Line, e.Level, e.Message)
	}
	return fmt.Sprintf("%d:%d: %s: %s", e.Line, e.Column, e.Level, e.Message)
}

// Fatal reports whether the error stopped the parser.
func (e *SyntaxError) Fatal() bool {
	return e.Level == LevelFatal
}

// ErrorLog is the ordered record of errors of one parse session. It is
// written by the parse worker and may be read concurrently.
type ErrorLog struct {
	mu   sync.Mutex
	errs []*SyntaxError
}

// Append records err.
func (l *ErrorLog) Append(err *SyntaxError) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

// Count returns the number of recorded errors.
func (l *ErrorLog) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errs)
}

// Last returns the most recent error, or nil.
func (l *ErrorLog) Last() *SyntaxError {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.errs) == 0 {
		return nil
	}
	return l.errs[len(l.errs)-1]
}

// All returns a copy of the recorded errors in detection order.
func (l *ErrorLog) All() []*SyntaxError {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*SyntaxError, len(l.errs))
	copy(out, l.errs)
	return out
}
