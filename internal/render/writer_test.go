package render_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/markis/saxpush/internal/render"
	"github.com/markis/saxpush/internal/sax"
)

var events = []sax.Event{
	{Kind: sax.EventStartDocument, Line: 1, Column: 0},
	{Kind: sax.EventStartElement, Name: "feed", Line: 1, Column: 0},
	{Kind: sax.EventStartElement, Name: "entry", Attrs: []sax.Attribute{{Localname: "id", Value: "1"}}, Line: 2, Column: 2},
	{Kind: sax.EventCharacters, Text: "one", Line: 2, Column: 13},
	{Kind: sax.EventEndElement, Name: "entry", Line: 2, Column: 16},
	{Kind: sax.EventError, Text: "boom", Line: -1, Column: -1},
	{Kind: sax.EventEndElement, Name: "feed", Line: 3, Column: 0},
	{Kind: sax.EventEndDocument, Line: 3, Column: 7},
}

func emitAll(t *testing.T, w *render.Writer) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, w.Emit(ev))
	}
}

func TestWriter_Plain(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	w, err := render.New(&out, render.Options{Format: render.FormatPlain})
	require.NoError(t, err)
	emitAll(t, w)
	require.NoError(t, w.Close(render.Info{}))

	want := "1:0      start-document\n" +
		"1:0      start feed\n" +
		"2:2      start entry id=\"1\"\n" +
		"2:13     characters \"one\"\n" +
		"2:16     end entry\n" +
		"-        error \"boom\"\n" +
		"3:0      end feed\n" +
		"3:7      end-document\n"
	assert.Equal(t, want, out.String())
	assert.Equal(t, len(events), w.Events())
}

func TestWriter_PlainColor(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	w, err := render.New(&out, render.Options{Format: render.FormatPlain, Color: true})
	require.NoError(t, err)
	require.NoError(t, w.Emit(events[1]))

	assert.Contains(t, out.String(), "\x1b[")
	assert.Contains(t, out.String(), "start feed")
}

func TestWriter_JSON(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	w, err := render.New(&out, render.Options{Format: render.FormatJSON})
	require.NoError(t, err)
	require.NoError(t, w.Emit(events[2]))
	require.NoError(t, w.Emit(events[5]))

	want := `{"kind":"start-element","name":"entry","attrs":[{"name":"id","value":"1"}],"line":2,"column":2}` + "\n" +
		`{"kind":"error","text":"boom","line":-1,"column":-1}` + "\n"
	assert.Equal(t, want, out.String())
}

func TestWriter_JSONPretty(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	w, err := render.New(&out, render.Options{Format: render.FormatJSON, Color: true})
	require.NoError(t, err)
	require.NoError(t, w.Emit(events[1]))

	assert.Contains(t, out.String(), "start-element")
	assert.Contains(t, out.String(), "\n  ")
}

func TestWriter_BSON(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	w, err := render.New(&out, render.Options{Format: render.FormatBSON})
	require.NoError(t, err)
	emitAll(t, w)

	data := out.Bytes()
	var got []sax.Event
	for len(data) > 0 {
		raw, rest, ok := bsoncoreNext(data)
		require.True(t, ok)
		var ev sax.Event
		require.NoError(t, bson.Unmarshal(raw, &ev))
		got = append(got, ev)
		data = rest
	}
	require.Len(t, got, len(events))
	assert.Equal(t, "entry", got[2].Name)
	assert.Equal(t, "1", got[2].Attrs[0].Value)
	assert.Equal(t, -1, got[5].Line)
}

// bsoncoreNext splits the first document off data using its length prefix.
func bsoncoreNext(data []byte) ([]byte, []byte, bool) {
	if len(data) < 4 {
		return nil, nil, false
	}
	n := int(uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24)
	if n < 5 || n > len(data) {
		return nil, nil, false
	}
	return data[:n], data[n:], true
}

func TestWriter_Markdown(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	w, err := render.New(&out, render.Options{Format: render.FormatMarkdown})
	require.NoError(t, err)
	emitAll(t, w)
	assert.Empty(t, out.String())

	info := render.Info{
		Source:  "feed.xml",
		Bytes:   2000,
		Chunks:  3,
		Ignored: 1,
		Digest:  0xbeef,
		Errors:  []*sax.SyntaxError{{Level: sax.LevelError, Message: "boom", Line: 1, Column: 2}},
	}
	require.NoError(t, w.Close(info))

	got := out.String()
	assert.Contains(t, got, "# feed.xml")
	assert.Contains(t, got, "2.0 kB in 3 chunks (1 ignored)")
	assert.Contains(t, got, "**Digest:** xxhash64 `000000000000beef`")
	assert.Contains(t, got, "**Events:** 8")
	assert.Contains(t, got, "**Max depth:** 2")
	assert.Contains(t, got, "| start-element | 2 |")
	assert.Contains(t, got, "| `entry` | 1 |")
	assert.Contains(t, got, "- `1:2: error: boom`")
}

func TestWriter_SummaryStdin(t *testing.T) {
	t.Parallel()

	w, err := render.New(&bytes.Buffer{}, render.Options{Format: render.FormatMarkdown})
	require.NoError(t, err)
	got := w.Summary(render.Info{Source: "-"})

	assert.Contains(t, got, "# stdin")
	assert.NotContains(t, got, "## Events")
	assert.NotContains(t, got, "Digest")
	assert.NotContains(t, got, "## Errors")
}

func TestWriter_UnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := render.New(&bytes.Buffer{}, render.Options{Format: "yaml"})
	assert.Error(t, err)
}

func TestTerminalRenderer(t *testing.T) {
	t.Parallel()

	r, err := render.NewTerminalRenderer(true, 80)
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, r.Render(&out, "# title\n"))
	assert.Equal(t, "# title\n", out.String())

	r, err = render.NewTerminalRenderer(false, 80)
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, r.Render(&out, "# title\n\nbody text"))
	assert.Contains(t, out.String(), "body text")
}
