package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cli/go-gh/v2/pkg/jsonpretty"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/markis/saxpush/internal/sax"
)

// Output formats.
const (
	FormatPlain    = "plain"
	FormatJSON     = "json"
	FormatBSON     = "bson"
	FormatMarkdown = "markdown"
)

// Options controls how events are written.
type Options struct {
	Format string
	Color  bool
	Wrap   int
}

// Info describes a finished run for the summary.
type Info struct {
	Source  string
	Bytes   int64
	Chunks  int
	Ignored int
	Elapsed time.Duration
	Digest  uint64 // xxhash of the bytes the parser read
	Errors  []*sax.SyntaxError
}

// Writer writes events to an output as they are produced and keeps the
// counts shown in the summary.
type Writer struct {
	out      io.Writer
	opts     Options
	renderer *TerminalRenderer
	colors   map[sax.EventKind]*color.Color

	events   int
	kinds    map[sax.EventKind]int
	elements map[string]int
	depth    int
	maxDepth int
}

// New returns a Writer for out.
func New(out io.Writer, opts Options) (*Writer, error) {
	switch opts.Format {
	case FormatPlain, FormatJSON, FormatBSON, FormatMarkdown:
	default:
		return nil, fmt.Errorf("unknown output format %q", opts.Format)
	}

	renderer, err := NewTerminalRenderer(!opts.Color, opts.Wrap)
	if err != nil {
		return nil, err
	}

	return &Writer{
		out:      out,
		opts:     opts,
		renderer: renderer,
		colors:   kindColors(opts.Color),
		kinds:    make(map[sax.EventKind]int),
		elements: make(map[string]int),
	}, nil
}

func kindColors(enabled bool) map[sax.EventKind]*color.Color {
	colors := map[sax.EventKind]*color.Color{
		sax.EventStartDocument:         color.New(color.Faint),
		sax.EventEndDocument:           color.New(color.Faint),
		sax.EventXMLDecl:               color.New(color.FgMagenta),
		sax.EventStartElement:          color.New(color.FgCyan, color.Bold),
		sax.EventEndElement:            color.New(color.FgCyan),
		sax.EventComment:               color.New(color.FgHiBlack),
		sax.EventCDATA:                 color.New(color.FgBlue),
		sax.EventProcessingInstruction: color.New(color.FgMagenta),
		sax.EventWarning:               color.New(color.FgYellow),
		sax.EventError:                 color.New(color.FgRed, color.Bold),
	}
	for _, c := range colors {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return colors
}

// Emit writes ev in the configured format. It is used as the emit function
// of a sax.EventSink.
func (w *Writer) Emit(ev sax.Event) error {
	w.count(ev)

	switch w.opts.Format {
	case FormatPlain:
		return w.writePlain(ev)
	case FormatJSON:
		return w.writeJSON(ev)
	case FormatBSON:
		data, err := bson.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		_, err = w.out.Write(data)
		return err
	}
	return nil
}

func (w *Writer) count(ev sax.Event) {
	w.events++
	w.kinds[ev.Kind]++

	switch ev.Kind {
	case sax.EventStartElement:
		w.elements[ev.QName()]++
		w.depth++
		w.maxDepth = max(w.maxDepth, w.depth)
	case sax.EventEndElement:
		w.depth--
	}
}

func (w *Writer) writePlain(ev sax.Event) error {
	pos := "-"
	if ev.Line >= 0 {
		pos = fmt.Sprintf("%d:%d", ev.Line, max(ev.Column, 0))
	}

	line := ev.String()
	if c, ok := w.colors[ev.Kind]; ok {
		line = c.Sprint(line)
	}
	_, err := fmt.Fprintf(w.out, "%-8s %s\n", pos, line)
	return err
}

func (w *Writer) writeJSON(ev sax.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if w.opts.Color {
		return jsonpretty.Format(w.out, bytes.NewReader(data), "  ", true)
	}
	data = append(data, '\n')
	_, err = w.out.Write(data)
	return err
}

// Events returns the number of events written so far.
func (w *Writer) Events() int {
	return w.events
}

// Close finishes the output. The markdown format prints its summary here; the
// other formats have already written everything.
func (w *Writer) Close(info Info) error {
	if w.opts.Format != FormatMarkdown {
		return nil
	}
	return w.renderer.Render(w.out, w.Summary(info))
}

// Summary returns the markdown report of a run.
func (w *Writer) Summary(info Info) string {
	var b strings.Builder

	source := info.Source
	if source == "" || source == "-" {
		source = "stdin"
	}
	fmt.Fprintf(&b, "# %s\n\n", source)
	fmt.Fprintf(&b, "- **Input:** %s in %d chunks", humanize.Bytes(uint64(max(info.Bytes, 0))), info.Chunks)
	if info.Ignored > 0 {
		fmt.Fprintf(&b, " (%d ignored)", info.Ignored)
	}
	b.WriteString("\n")
	if info.Digest != 0 {
		fmt.Fprintf(&b, "- **Digest:** xxhash64 `%016x`\n", info.Digest)
	}
	fmt.Fprintf(&b, "- **Events:** %s\n", humanize.Comma(int64(w.events)))
	fmt.Fprintf(&b, "- **Max depth:** %d\n", w.maxDepth)
	if info.Elapsed > 0 {
		fmt.Fprintf(&b, "- **Elapsed:** %s\n", info.Elapsed.Round(time.Millisecond))
	}

	if len(w.kinds) > 0 {
		b.WriteString("\n## Events\n\n| Kind | Count |\n|---|---|\n")
		for _, kind := range sortedKeys(w.kinds) {
			fmt.Fprintf(&b, "| %s | %d |\n", kind, w.kinds[kind])
		}
	}

	if len(w.elements) > 0 {
		b.WriteString("\n## Elements\n\n| Element | Count |\n|---|---|\n")
		for _, name := range sortedKeys(w.elements) {
			fmt.Fprintf(&b, "| `%s` | %d |\n", name, w.elements[name])
		}
	}

	if len(info.Errors) > 0 {
		fmt.Fprintf(&b, "\n## Errors (%d)\n\n", len(info.Errors))
		for _, err := range info.Errors {
			fmt.Fprintf(&b, "- `%s`\n", err.Error())
		}
	}
	return b.String()
}

// sortedKeys orders keys by descending count, then by name.
func sortedKeys[K ~string](m map[K]int) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
