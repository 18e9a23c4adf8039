package push_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markis/saxpush/internal/push"
	"github.com/markis/saxpush/internal/sax"
)

const document = `<?xml version="1.0" encoding="UTF-8"?>
<catalog xmlns="urn:catalog" xmlns:x="urn:extra">
  <!-- items -->
  <item id="1" x:tag="new">Widget &amp; gadget</item>
  <item id="2"><![CDATA[<raw> & ready]]></item>
  <?render fast?>
  <x:note>multi
line</x:note>
</catalog>`

func timeout(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// pushAll feeds doc split at the given offsets.
func pushAll(ctx context.Context, p *push.Parser, doc string, splits ...int) error {
	prev := 0
	for _, at := range splits {
		if err := p.Push(ctx, []byte(doc[prev:at]), false); err != nil {
			return err
		}
		prev = at
	}
	return p.Push(ctx, []byte(doc[prev:]), true)
}

func events(t *testing.T, opts push.Options, doc string, splits ...int) []string {
	t.Helper()

	rec := sax.NewRecorder()
	p := push.New(rec, opts)
	require.NoError(t, pushAll(timeout(t), p, doc, splits...))
	return rec.Strings()
}

func TestParser_SingleChunk(t *testing.T) {
	t.Parallel()

	got := events(t, push.Options{}, document)
	assert.Equal(t, []string{
		"start-document",
		"xml-decl 1.0 UTF-8 ",
		`start catalog xmlns="urn:catalog" xmlns:x="urn:extra"`,
		`characters "\n  "`,
		`comment " items "`,
		`characters "\n  "`,
		`start item id="1" x:tag="new"`,
		`characters "Widget & gadget"`,
		"end item",
		`characters "\n  "`,
		`start item id="2"`,
		`cdata "<raw> & ready"`,
		"end item",
		`characters "\n  "`,
		`pi render "fast"`,
		`characters "\n  "`,
		"start x:note",
		`characters "multi\nline"`,
		"end x:note",
		`characters "\n"`,
		"end catalog",
		"end-document",
	}, got)
}

func TestParser_ChunkingIsTransparent(t *testing.T) {
	t.Parallel()

	for _, html := range []bool{false, true} {
		opts := push.Options{HTML: html, Recover: true}
		whole := events(t, opts, document)

		for at := 1; at < len(document); at++ {
			require.Equal(t, whole, events(t, opts, document, at), "html=%t split at %d", html, at)
		}
		for size := 1; size <= 7; size++ {
			var splits []int
			for at := size; at < len(document); at += size {
				splits = append(splits, at)
			}
			require.Equal(t, whole, events(t, opts, document, splits...), "html=%t chunk size %d", html, size)
		}
	}
}

func TestParser_TextCoalescing(t *testing.T) {
	t.Parallel()

	const doc = `<a>foo<!--c-->bar</a>`
	want := []string{"start-document", "start a", `characters "foo"`, `comment "c"`, `characters "bar"`, "end a", "end-document"}
	assert.Equal(t, want, events(t, push.Options{}, doc, 1, 4, 5, 9, 15, 17))
}

func TestParser_HTMLBooleanAttributes(t *testing.T) {
	t.Parallel()

	rec := sax.NewRecorder()
	p := push.New(rec, push.Options{HTML: true, Recover: true})
	require.NoError(t, pushAll(timeout(t), p, `<input type="checkbox" checked>`, 12, 26))

	evs := rec.Events()
	require.Len(t, evs, 4)
	require.Len(t, evs[1].Attrs, 2)
	assert.Equal(t, []string{"type", "", "", "checkbox"}, evs[1].Attrs[0].Fields())
	assert.Equal(t, []string{"checked", "", ""}, evs[1].Attrs[1].Fields())
}

func TestParser_RecoveryOffAborts(t *testing.T) {
	t.Parallel()

	ctx := timeout(t)
	rec := sax.NewRecorder()
	p := push.New(rec, push.Options{})

	require.NoError(t, p.Push(ctx, []byte("<a><b>"), false))

	err := p.Push(ctx, []byte("</a>"), false)
	var se *sax.SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Opening and ending tag mismatch: b and a", se.Message)
	assert.Equal(t, 1, p.ErrorCount())
	assert.Equal(t, se, p.LastError())

	err = p.Push(ctx, []byte("<c/>"), true)
	assert.ErrorIs(t, err, push.ErrAborted)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Opening and ending tag mismatch: b and a", se.Message)

	assert.NotContains(t, rec.Strings(), "end-document")
	assert.Equal(t, 1, p.Stats().Sessions)
}

func TestParser_RecoveryOnCountsEveryError(t *testing.T) {
	t.Parallel()

	ctx := timeout(t)
	rec := sax.NewRecorder()
	p := push.New(rec, push.Options{Recover: true})

	require.NoError(t, p.Push(ctx, []byte("<a><b>"), false))
	require.NoError(t, p.Push(ctx, []byte("</a>"), false))
	require.NoError(t, p.Push(ctx, []byte("<c/>"), true))

	require.Equal(t, 2, p.ErrorCount())
	msgs := make([]string, 0, 2)
	for _, e := range p.Errors() {
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{
		"Opening and ending tag mismatch: b and a",
		"Extra content at the end of the document",
	}, msgs)
	assert.Equal(t, p.Errors(), rec.Errors())
	assert.Contains(t, rec.Strings(), "end-document")
}

func TestParser_ChunksAfterFatalErrorAreIgnored(t *testing.T) {
	t.Parallel()

	ctx := timeout(t)
	p := push.New(sax.NewRecorder(), push.Options{Recover: true})

	const broken = "<a><b</a>"
	require.NoError(t, p.Push(ctx, []byte(broken), false))
	require.NoError(t, p.Push(ctx, []byte("<c/>"), false))
	require.NoError(t, p.Push(ctx, []byte("</a>"), true))

	assert.Equal(t, 1, p.ErrorCount())
	assert.True(t, p.LastError().Fatal())

	// The chunk holding the fatal error was read; the later ones were not.
	stats := p.Stats()
	assert.Equal(t, 1, stats.Chunks)
	assert.EqualValues(t, len(broken), stats.Bytes)
	assert.Equal(t, 2, stats.Ignored)
	assert.EqualValues(t, len(broken), stats.Consumed)
	assert.Equal(t, xxhash.Sum64String(broken), stats.Digest)
}

func TestParser_StatsDigestMatchesInput(t *testing.T) {
	t.Parallel()

	p := push.New(sax.NewRecorder(), push.Options{Recover: true})
	require.NoError(t, pushAll(timeout(t), p, document, 5, 40, 41, 90))

	stats := p.Stats()
	assert.Equal(t, 5, stats.Chunks)
	assert.EqualValues(t, len(document), stats.Consumed)
	assert.Equal(t, xxhash.Sum64String(document), stats.Digest)
}

func TestParser_SinkFailureIsReraised(t *testing.T) {
	t.Parallel()

	refused := errors.New("refused")
	sink := sax.NewEventSink(func(ev sax.Event) error {
		if ev.Kind == sax.EventComment {
			return refused
		}
		return nil
	})
	p := push.New(sink, push.Options{Recover: true})

	err := p.Push(timeout(t), []byte("<a><!--c-->"), false)
	assert.ErrorIs(t, err, refused)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestParser_TerminateIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := timeout(t)
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	sink := sax.NewEventSink(func(ev sax.Event) error {
		if ev.Kind == sax.EventStartElement {
			entered <- struct{}{}
			<-gate
		}
		return nil
	})
	p := push.New(sink, push.Options{Recover: true})

	errc := make(chan error, 1)
	go func() { errc <- p.Push(ctx, []byte("<a>"), false) }()
	<-entered

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Terminate()
		}()
	}

	assert.ErrorIs(t, <-errc, push.ErrTerminated)
	close(gate)
	wg.Wait()
	p.Terminate()

	// A terminated parser starts over on the next push.
	require.NoError(t, p.Push(ctx, []byte("<b/>"), true))
	assert.Equal(t, 2, p.Stats().Sessions)
}

func TestParser_NewSessionWaitsForTerminatedWorker(t *testing.T) {
	t.Parallel()

	ctx := timeout(t)
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	var inside, most atomic.Int32
	sink := sax.NewEventSink(func(ev sax.Event) error {
		n := inside.Add(1)
		defer inside.Add(-1)
		for {
			m := most.Load()
			if n <= m || most.CompareAndSwap(m, n) {
				break
			}
		}
		if ev.Kind == sax.EventStartElement && ev.Name == "a" {
			entered <- struct{}{}
			<-gate
		}
		return nil
	})
	p := push.New(sink, push.Options{Recover: true})

	errc := make(chan error, 1)
	go func() { errc <- p.Push(ctx, []byte("<a>"), false) }()
	<-entered
	go p.Terminate()
	require.ErrorIs(t, <-errc, push.ErrTerminated)

	next := make(chan error, 1)
	go func() { next <- p.Push(ctx, []byte("<b/>"), true) }()

	select {
	case err := <-next:
		t.Fatalf("push finished while the old worker was still in the sink: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	require.NoError(t, <-next)
	assert.Equal(t, int32(1), most.Load())
	assert.Equal(t, 2, p.Stats().Sessions)
}

func TestParser_TerminateWithoutSession(t *testing.T) {
	t.Parallel()

	p := push.New(sax.NewRecorder(), push.Options{})
	p.Terminate()
	p.Terminate()
	assert.NoError(t, p.Close())
	assert.Equal(t, 0, p.Stats().Sessions)
}

func TestParser_WriterAndCloser(t *testing.T) {
	t.Parallel()

	rec := sax.NewRecorder()
	p := push.New(rec, push.Options{Recover: true})

	n, err := io.Copy(p, iotest.OneByteReader(strings.NewReader(document)))
	require.NoError(t, err)
	assert.EqualValues(t, len(document), n)
	require.NoError(t, p.Close())

	assert.Equal(t, events(t, push.Options{Recover: true}, document), rec.Strings())
	stats := p.Stats()
	assert.EqualValues(t, len(document), stats.Bytes)
	assert.Greater(t, stats.Chunks, 1)
}

func TestParser_WriteReportsAbort(t *testing.T) {
	t.Parallel()

	p := push.New(sax.NewRecorder(), push.Options{})
	n, err := p.Write([]byte("<a></b>"))
	assert.Zero(t, n)
	var se *sax.SyntaxError
	assert.ErrorAs(t, err, &se)
}

type countingObserver struct {
	mu        sync.Mutex
	delivered int
	ignored   int
	started   int
	outcomes  []push.Outcome
}

func (o *countingObserver) ChunkDelivered(int) {
	o.mu.Lock()
	o.delivered++
	o.mu.Unlock()
}

func (o *countingObserver) ChunkIgnored(int) {
	o.mu.Lock()
	o.ignored++
	o.mu.Unlock()
}

func (o *countingObserver) SessionStarted() {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *countingObserver) SessionFinished(outcome push.Outcome, _ []*sax.SyntaxError) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

func TestParser_Observer(t *testing.T) {
	t.Parallel()

	ctx := timeout(t)
	obs := &countingObserver{}
	p := push.New(sax.NewRecorder(), push.Options{Observer: obs})

	require.NoError(t, pushAll(ctx, p, "<a>text</a>", 3))
	require.Error(t, pushAll(ctx, p, "<a></b>"))

	assert.Equal(t, 3, obs.delivered)
	assert.Equal(t, 2, obs.started)
	assert.Equal(t, []push.Outcome{push.OutcomeCompleted, push.OutcomeAborted}, obs.outcomes)
}
