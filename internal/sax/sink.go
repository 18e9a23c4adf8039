// Package sax turns low-level parser callbacks into the normalized event
// sequence delivered to a Sink: coalesced text, separate CDATA blocks,
// namespace declarations split from ordinary attributes and recorded errors.
package sax

// Sink receives translated events. Callbacks run on the parse worker's
// goroutine, one at a time. A non-nil error aborts the parse.
type Sink interface {
	StartDocument() error
	EndDocument() error
	XMLDecl(version, encoding, standalone string) error
	StartElementNamespace(name string, attrs []Attribute, prefix, uri string, ns []Namespace) error
	EndElementNamespace(name, prefix, uri string) error
	Characters(text string) error
	Comment(text string) error
	CDATABlock(text string) error
	ProcessingInstruction(target, data string) error
	Warning(msg string) error
	Error(msg string) error
}

// ErrorCollector is implemented by sinks that keep their own copy of
// recorded errors beyond the lifetime of a parse session.
type ErrorCollector interface {
	AppendError(err *SyntaxError)
}

// Position reports where the current event was found. Line is 1-based and
// column 0-based; ok is false when the parser cannot tell.
type Position interface {
	Line() (int, bool)
	Column() (int, bool)
}

// PositionSetter is implemented by sinks that want to query the position of
// events. The Position is only meaningful during a callback.
type PositionSetter interface {
	SetPosition(pos Position)
}

// Document is a Sink that ignores every event and collects errors. Embed it
// to handle only the events you care about.
type Document struct {
	Errors []*SyntaxError
}

var (
	_ Sink           = (*Document)(nil)
	_ ErrorCollector = (*Document)(nil)
)

func (d *Document) StartDocument() error                     { return nil }
func (d *Document) EndDocument() error                       { return nil }
func (d *Document) XMLDecl(_, _, _ string) error             { return nil }
func (d *Document) EndElementNamespace(_, _, _ string) error { return nil }
func (d *Document) Characters(string) error                  { return nil }
func (d *Document) Comment(string) error                     { return nil }
func (d *Document) CDATABlock(string) error                  { return nil }
func (d *Document) ProcessingInstruction(_, _ string) error  { return nil }
func (d *Document) Warning(string) error                     { return nil }
func (d *Document) Error(string) error                       { return nil }

func (d *Document) StartElementNamespace(string, []Attribute, string, string, []Namespace) error {
	return nil
}

// AppendError implements ErrorCollector.
func (d *Document) AppendError(err *SyntaxError) {
	d.Errors = append(d.Errors, err)
}
