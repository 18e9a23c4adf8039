package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/markis/saxpush/internal/args"
	"github.com/markis/saxpush/internal/client"
	"github.com/markis/saxpush/internal/config"
	"github.com/markis/saxpush/internal/metrics"
	"github.com/markis/saxpush/internal/push"
	"github.com/markis/saxpush/internal/render"
	"github.com/markis/saxpush/internal/sax"
)

var log = commonlog.GetLogger("saxpush")

// main function to parse arguments and stream the document through the parser.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx)
	stop()
	os.Exit(code)
}

func run(ctx context.Context) int {
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	a, err := args.ParseArgs(ctx, *cfg, os.Args[1:])
	if errors.Is(err, args.ErrNoRun) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	commonlog.Configure(a.Verbosity, nil)

	errs, err := parse(ctx, a)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "%s: %s\n", a.Source, e)
		}
		return 1
	}
	return 0
}

// parse feeds the source to a push parser and writes its events to stdout.
// It returns the syntax errors of the parse.
func parse(ctx context.Context, a args.Arguments) ([]*sax.SyntaxError, error) {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	src, err := client.Open(ctx, a.Source)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warningf("failed to close %s: %s", src.Name, err)
		}
	}()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	w, err := render.New(out, render.Options{Format: a.Format, Color: a.Color, Wrap: a.Wrap})
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	sink := sax.NewEventSink(func(ev sax.Event) error {
		m.Event(ev)
		return w.Emit(ev)
	})
	p := push.New(sink, push.Options{Recover: a.Recover, HTML: a.HTML, Observer: m})

	start := time.Now()
	n, err := client.Feed(ctx, src, p, a.ChunkSize)
	if err != nil {
		p.Terminate()
		var syntaxErr *sax.SyntaxError
		if !errors.As(err, &syntaxErr) && !errors.Is(err, push.ErrAborted) {
			return nil, err
		}
		log.Debugf("parse of %s aborted: %s", src.Name, err)
	}

	stats := p.Stats()
	log.Infof("pushed %d bytes of %s in %d chunks, parser read %d (xxhash %016x)",
		n, src.Name, stats.Chunks, stats.Consumed, stats.Digest)

	info := render.Info{
		Source:  src.Name,
		Bytes:   n,
		Chunks:  stats.Chunks,
		Ignored: stats.Ignored,
		Elapsed: time.Since(start),
		Digest:  stats.Digest,
		Errors:  p.Errors(),
	}
	if err := w.Close(info); err != nil {
		return nil, fmt.Errorf("failed to write summary: %w", err)
	}

	if a.MetricsFile != "" {
		if err := m.WriteTextfile(a.MetricsFile); err != nil {
			return nil, err
		}
	}
	return info.Errors, nil
}
