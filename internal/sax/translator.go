package sax

import (
	"strings"

	"github.com/markis/saxpush/internal/parser"
)

const xmlnsNamespace = "http://www.w3.org/2000/xmlns/"

// scope buffers the text of one open element or CDATA section.
type scope struct {
	buf   *strings.Builder
	cdata bool
}

// Translator receives parser callbacks and forwards normalized events to a
// Sink. It is driven by a single goroutine; EndDocument may be called from
// another goroutine once the parse pass has returned.
type Translator struct {
	sink   Sink
	log    *ErrorLog
	html   bool
	loc    parser.Locator
	scopes []scope
	ended  bool
}

var (
	_ parser.Handler = (*Translator)(nil)
	_ Position       = (*Translator)(nil)
)

// NewTranslator returns a Translator delivering to sink and recording errors
// in log. html enables the bare boolean attribute shape and disables
// namespace resolution of names.
func NewTranslator(sink Sink, log *ErrorLog, html bool) *Translator {
	return &Translator{sink: sink, log: log, html: html}
}

// SetDocumentLocator implements parser.Handler.
func (t *Translator) SetDocumentLocator(loc parser.Locator) {
	t.loc = loc
}

// StartDocument implements parser.Handler.
func (t *Translator) StartDocument() error {
	if ps, ok := t.sink.(PositionSetter); ok {
		ps.SetPosition(t)
	}
	return t.sink.StartDocument()
}

// XMLDecl implements parser.Handler.
func (t *Translator) XMLDecl(version, encoding, standalone string) error {
	return t.sink.XMLDecl(version, encoding, standalone)
}

// StartElement implements parser.Handler.
func (t *Translator) StartElement(name parser.Name, attrs []parser.Attr) error {
	if err := t.flush(); err != nil {
		return err
	}

	var (
		ordinary []Attribute
		ns       []Namespace
	)
	for _, a := range attrs {
		if prefix, ok := namespaceDecl(a.Name); ok {
			ns = append(ns, Namespace{Prefix: prefix, URI: a.Value})
			continue
		}
		ordinary = append(ordinary, t.attribute(a))
	}

	t.push(false)
	local, prefix, uri := t.split(name)
	return t.sink.StartElementNamespace(local, ordinary, prefix, uri, ns)
}

// EndElement implements parser.Handler.
func (t *Translator) EndElement(name parser.Name) error {
	if err := t.flush(); err != nil {
		return err
	}
	t.pop()
	local, prefix, uri := t.split(name)
	return t.sink.EndElementNamespace(local, prefix, uri)
}

// Characters implements parser.Handler. Text outside any element is
// dropped.
func (t *Translator) Characters(data []byte) error {
	if n := len(t.scopes); n > 0 {
		t.scopes[n-1].buf.Write(data)
	}
	return nil
}

// Comment implements parser.Handler.
func (t *Translator) Comment(data []byte) error {
	if err := t.flush(); err != nil {
		return err
	}
	return t.sink.Comment(string(data))
}

// StartCDATA implements parser.Handler.
func (t *Translator) StartCDATA() error {
	if err := t.flush(); err != nil {
		return err
	}
	t.push(true)
	return nil
}

// EndCDATA implements parser.Handler. A CDATA section always produces one
// block, even when empty.
func (t *Translator) EndCDATA() error {
	n := len(t.scopes)
	if n == 0 || !t.scopes[n-1].cdata {
		return t.sink.CDATABlock("")
	}
	sc := t.pop()
	return t.sink.CDATABlock(sc.buf.String())
}

// ProcessingInstruction implements parser.Handler.
func (t *Translator) ProcessingInstruction(target, data string) error {
	if err := t.flush(); err != nil {
		return err
	}
	return t.sink.ProcessingInstruction(target, data)
}

// Warning implements parser.Handler. Warnings are never recorded.
func (t *Translator) Warning(msg string) error {
	return t.sink.Warning(msg)
}

// Error implements parser.Handler.
func (t *Translator) Error(msg string) error {
	return t.record(LevelError, msg)
}

// FatalError implements parser.Handler.
func (t *Translator) FatalError(msg string) error {
	return t.record(LevelFatal, msg)
}

// EndDocument flushes buffered text, outermost first, and ends the
// document. Calls after the first are no-ops.
func (t *Translator) EndDocument() error {
	if t.ended {
		return nil
	}
	t.ended = true

	scopes := t.scopes
	t.scopes = nil
	for _, sc := range scopes {
		if sc.cdata {
			if err := t.sink.CDATABlock(sc.buf.String()); err != nil {
				return err
			}
			continue
		}
		if sc.buf.Len() == 0 {
			continue
		}
		if err := t.sink.Characters(sc.buf.String()); err != nil {
			return err
		}
	}
	return t.sink.EndDocument()
}

// Line returns the 1-based line of the current event.
func (t *Translator) Line() (int, bool) {
	if t.loc == nil {
		return -1, false
	}
	if line := t.loc.Line(); line > 0 {
		return line, true
	}
	return -1, false
}

// Column returns the 0-based column of the current event.
func (t *Translator) Column() (int, bool) {
	if t.loc == nil {
		return -1, false
	}
	if col := t.loc.Column(); col > 0 {
		return col - 1, true
	}
	return -1, false
}

// record logs an error without touching buffered text, so a text run
// interrupted by an error is still delivered as one event.
func (t *Translator) record(level Level, msg string) error {
	e := &SyntaxError{Level: level, Message: msg, Line: -1, Column: -1}
	if line, ok := t.Line(); ok {
		e.Line = line
	}
	if col, ok := t.Column(); ok {
		e.Column = col
	}
	t.log.Append(e)
	if c, ok := t.sink.(ErrorCollector); ok {
		c.AppendError(e)
	}
	return t.sink.Error(msg)
}

// flush emits the text buffered at the current depth. CDATA scopes are only
// emitted when they end.
func (t *Translator) flush() error {
	n := len(t.scopes)
	if n == 0 {
		return nil
	}
	sc := t.scopes[n-1]
	if sc.cdata || sc.buf.Len() == 0 {
		return nil
	}
	text := sc.buf.String()
	sc.buf.Reset()
	return t.sink.Characters(text)
}

func (t *Translator) push(cdata bool) {
	t.scopes = append(t.scopes, scope{buf: new(strings.Builder), cdata: cdata})
}

func (t *Translator) pop() scope {
	n := len(t.scopes)
	if n == 0 {
		return scope{buf: new(strings.Builder)}
	}
	sc := t.scopes[n-1]
	t.scopes = t.scopes[:n-1]
	return sc
}

// split returns the local name, prefix and namespace URI reported for name.
// HTML names are reported whole.
func (t *Translator) split(name parser.Name) (string, string, string) {
	if t.html {
		return name.QName(), "", ""
	}
	return name.Local, name.Prefix, name.Space
}

func (t *Translator) attribute(a parser.Attr) Attribute {
	local, prefix, uri := t.split(a.Name)
	attr := Attribute{Localname: local, Prefix: prefix, URI: uri, Value: a.Value}
	if t.html && !a.HasValue && IsBooleanAttribute(local) {
		attr.Value = ""
		attr.Bare = true
	}
	return attr
}

// namespaceDecl reports whether n declares a namespace and the prefix it
// binds; the default namespace binds the empty prefix.
func namespaceDecl(n parser.Name) (string, bool) {
	switch {
	case n.Space == xmlnsNamespace && n.Prefix == "":
		return "", true
	case n.Space == xmlnsNamespace:
		return n.Local, true
	case n.Space == "" && n.Prefix == "xmlns":
		return n.Local, true
	case n.Space == "" && n.Prefix == "" && n.Local == "xmlns":
		return "", true
	}
	return "", false
}
