// Package parser drives single-pass XML and HTML tokenizers over a blocking
// io.Reader and reports what they see through low-level SAX callbacks.
package parser

import (
	"io"
	"strings"
)

// Name is a qualified name as seen by the parser.
type Name struct {
	Space  string // resolved namespace URI, empty when unbound
	Prefix string
	Local  string
}

// QName returns the prefixed form of the name.
func (n Name) QName() string {
	if n.Prefix == "" {
		return n.Local
	}
	return n.Prefix + ":" + n.Local
}

func splitQName(s string) Name {
	if i := strings.IndexByte(s, ':'); i > 0 && i < len(s)-1 {
		return Name{Prefix: s[:i], Local: s[i+1:]}
	}
	return Name{Local: s}
}

// Attr is one attribute of a start tag. HasValue is false when the attribute
// was written without "=value".
type Attr struct {
	Name     Name
	Value    string
	HasValue bool
}

// Locator reports the position of the construct being reported. Values are
// -1 when unknown; columns are 1-based.
type Locator interface {
	Line() int
	Column() int
}

// Handler receives the callbacks of one parse pass. A non-nil error from any
// callback aborts the pass and is returned from Parse.
type Handler interface {
	SetDocumentLocator(loc Locator)
	StartDocument() error
	XMLDecl(version, encoding, standalone string) error
	StartElement(name Name, attrs []Attr) error
	EndElement(name Name) error
	Characters(data []byte) error
	Comment(data []byte) error
	StartCDATA() error
	EndCDATA() error
	ProcessingInstruction(target, data string) error
	Warning(msg string) error
	Error(msg string) error
	FatalError(msg string) error
}

// Parser runs one pass over r. Syntax problems are reported to h; the
// returned error is reserved for read failures and handler errors.
type Parser interface {
	Parse(r io.Reader, h Handler) error
}

// New returns the HTML parser when html is set and the XML parser otherwise.
func New(html bool) Parser {
	if html {
		return HTML{}
	}
	return XML{}
}
