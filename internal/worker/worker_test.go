package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markis/saxpush/internal/parser"
	"github.com/markis/saxpush/internal/sax"
	"github.com/markis/saxpush/internal/stream"
	"github.com/markis/saxpush/internal/worker"
)

func newWorker(t *testing.T, sink sax.Sink) (*worker.Worker, *sax.ErrorLog) {
	t.Helper()

	errs := &sax.ErrorLog{}
	w := worker.New(context.Background(), parser.XML{}, sax.NewTranslator(sink, errs, false), errs)
	t.Cleanup(w.Cancel)
	return w, errs
}

func timeout(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func feed(ctx context.Context, t *testing.T, w *worker.Worker, parts ...string) {
	t.Helper()

	for _, p := range parts {
		c, err := w.Stream().Push(ctx, []byte(p))
		require.NoError(t, err)
		require.NoError(t, c.Wait(ctx))
	}
}

func TestWorker_ParsesPushedChunks(t *testing.T) {
	t.Parallel()

	ctx := timeout(t)
	rec := sax.NewRecorder()
	w, _ := newWorker(t, rec)
	w.Start()
	w.Start()

	feed(ctx, t, w, "<a>he", "llo<b/", "></a>")
	require.NoError(t, w.Stream().Close())
	require.NoError(t, w.Wait(ctx))

	assert.Equal(t, []string{"start-document", "start a", `characters "hello"`, "start b", "end b", "end a"}, rec.Strings())
	assert.Equal(t, 0, w.ErrorCount())
	assert.Nil(t, w.LastError())
	assert.Equal(t, stream.StateClosed, w.Stream().State())
	assert.EqualValues(t, len("<a>hello<b/></a>"), w.Consumed())
	assert.Equal(t, xxhash.Sum64String("<a>hello<b/></a>"), w.Digest())
}

func TestWorker_CountsSyntaxErrors(t *testing.T) {
	t.Parallel()

	ctx := timeout(t)
	w, _ := newWorker(t, sax.NewRecorder())
	w.Start()

	feed(ctx, t, w, "<a><b>", "</a>", "<c/>")
	require.NoError(t, w.Stream().Close())
	require.NoError(t, w.Wait(ctx))

	assert.Equal(t, 2, w.ErrorCount())
	require.NotNil(t, w.LastError())
	assert.Equal(t, "Extra content at the end of the document", w.LastError().Message)
}

func TestWorker_FatalErrorReleasesStream(t *testing.T) {
	t.Parallel()

	ctx := timeout(t)
	w, _ := newWorker(t, sax.NewRecorder())
	w.Start()

	c, err := w.Stream().Push(ctx, []byte("<a><b</a>"))
	require.NoError(t, err)
	assert.ErrorIs(t, c.Wait(ctx), stream.ErrClosedStream)

	require.NoError(t, w.Wait(ctx))
	assert.Equal(t, 1, w.ErrorCount())
	assert.True(t, w.LastError().Fatal())

	_, err = w.Stream().Push(ctx, []byte("</a>"))
	assert.ErrorIs(t, err, stream.ErrClosedStream)
}

func TestWorker_CancelStopsBlockedRead(t *testing.T) {
	t.Parallel()

	ctx := timeout(t)
	w, _ := newWorker(t, sax.NewRecorder())
	w.Start()
	feed(ctx, t, w, "<a>")

	w.Cancel()
	w.Cancel()
	assert.ErrorIs(t, w.Wait(ctx), stream.ErrTerminated)

	_, err := w.Stream().Push(ctx, []byte("</a>"))
	assert.ErrorIs(t, err, stream.ErrClosedStream)
}

func TestWorker_ParentCancellation(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	errs := &sax.ErrorLog{}
	w := worker.New(parent, parser.HTML{}, sax.NewTranslator(sax.NewRecorder(), errs, true), errs)
	w.Start()

	cancel()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.ErrorIs(t, w.Err(), stream.ErrTerminated)
}

func TestWorker_PanicIsCaptured(t *testing.T) {
	t.Parallel()

	ctx := timeout(t)
	sink := sax.NewEventSink(func(ev sax.Event) error {
		if ev.Kind == sax.EventStartElement {
			panic("boom")
		}
		return nil
	})
	w, _ := newWorker(t, sink)
	w.Start()

	c, err := w.Stream().Push(ctx, []byte("<a>"))
	require.NoError(t, err)
	assert.ErrorIs(t, c.Wait(ctx), stream.ErrClosedStream)

	err = w.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestWorker_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	w, _ := newWorker(t, sax.NewRecorder())
	w.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Wait(ctx), context.DeadlineExceeded)
}
