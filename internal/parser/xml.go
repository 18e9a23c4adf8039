package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html/charset"
)

const (
	xmlNamespace   = "http://www.w3.org/XML/1998/namespace"
	xmlnsNamespace = "http://www.w3.org/2000/xmlns/"
)

var (
	cdataStart = []byte("<![CDATA[")
	utf8BOM    = []byte("\xef\xbb\xbf")
)

// XML parses XML 1.0 from raw encoding/xml tokens. Namespace resolution and
// tag matching are done here so that mismatches can be reported and
// recovered from instead of ending the parse.
type XML struct{}

// Parse implements Parser.
func (XML) Parse(r io.Reader, h Handler) error {
	d := &xmlDriver{h: h, rec: newRecorder(r, 0)}
	d.dec = xml.NewDecoder(d.rec)
	d.dec.Strict = true
	d.dec.CharsetReader = d.charsetReader
	return d.run()
}

type xmlDriver struct {
	h   Handler
	dec *xml.Decoder
	rec *recorder

	open     []Name
	scopes   []map[string]string
	tokens   int
	rootSeen bool
	rootDone bool
}

func (d *xmlDriver) charsetReader(label string, input io.Reader) (io.Reader, error) {
	r, err := charset.NewReaderLabel(label, input)
	if err != nil {
		return nil, err
	}
	d.rec = newRecorder(r, -1)
	return d.rec, nil
}

func (d *xmlDriver) run() error {
	d.h.SetDocumentLocator(xmlLocator{d.dec})
	if err := d.h.StartDocument(); err != nil {
		return err
	}

	for {
		start := d.dec.InputOffset()
		tok, err := d.dec.RawToken()
		if err != nil {
			if err == io.EOF {
				return d.finish()
			}
			return d.fail(err)
		}
		end := d.dec.InputOffset()

		if err := d.token(tok, d.rec.slice(start, end)); err != nil {
			return err
		}
		d.rec.discard(end)
		d.tokens++
	}
}

// fail reports decoder errors as fatal parse errors and passes read errors
// through untouched.
func (d *xmlDriver) fail(err error) error {
	if d.rec.err != nil && errors.Is(err, d.rec.err) {
		return err
	}
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return d.h.FatalError(se.Msg)
	}
	return d.h.FatalError(err.Error())
}

func (d *xmlDriver) finish() error {
	if n := len(d.open); n > 0 {
		return d.h.FatalError(fmt.Sprintf("Premature end of data in tag %s", d.open[n-1].QName()))
	}
	return nil
}

func (d *xmlDriver) token(tok xml.Token, raw []byte) error {
	switch t := tok.(type) {
	case xml.ProcInst:
		if t.Target == "xml" {
			return d.decl(t)
		}
		return d.h.ProcessingInstruction(t.Target, string(t.Inst))
	case xml.StartElement:
		return d.start(t)
	case xml.EndElement:
		return d.end(t)
	case xml.CharData:
		return d.text(t, bytes.HasPrefix(raw, cdataStart))
	case xml.Comment:
		return d.h.Comment(t)
	case xml.Directive:
		// DOCTYPE and declarations belong to the DTD layer.
		return nil
	}
	return nil
}

func (d *xmlDriver) decl(pi xml.ProcInst) error {
	if d.tokens > 0 {
		return d.h.Error("XML declaration allowed only at the start of the document")
	}
	return d.h.XMLDecl(
		procInstParam("version", pi.Inst),
		procInstParam("encoding", pi.Inst),
		procInstParam("standalone", pi.Inst),
	)
}

func (d *xmlDriver) text(data []byte, cdata bool) error {
	if len(d.open) == 0 {
		if len(bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))) == 0 {
			return nil
		}
		if d.rootDone {
			return d.h.Error("Extra content at the end of the document")
		}
		return d.h.Error("Start tag expected, '<' not found")
	}
	if !cdata {
		return d.h.Characters(data)
	}
	if err := d.h.StartCDATA(); err != nil {
		return err
	}
	if err := d.h.Characters(data); err != nil {
		return err
	}
	return d.h.EndCDATA()
}

func (d *xmlDriver) start(t xml.StartElement) error {
	if d.rootDone {
		if err := d.h.Error("Extra content at the end of the document"); err != nil {
			return err
		}
	}
	d.rootSeen = true

	var scope map[string]string
	for _, a := range t.Attr {
		prefix, ok := nsDecl(a.Name)
		if !ok {
			continue
		}
		if scope == nil {
			scope = make(map[string]string)
		}
		scope[prefix] = a.Value
		if u, err := url.Parse(a.Value); a.Value != "" && (err != nil || !u.IsAbs()) {
			if err := d.h.Warning(fmt.Sprintf("xmlns: URI %s is not absolute", a.Value)); err != nil {
				return err
			}
		}
	}
	d.scopes = append(d.scopes, scope)

	name, err := d.resolve(t.Name, true)
	if err != nil {
		return err
	}

	attrs := make([]Attr, 0, len(t.Attr))
	seen := make(map[xml.Name]bool, len(t.Attr))
	for _, a := range t.Attr {
		if seen[a.Name] {
			if err := d.h.Error(fmt.Sprintf("Attribute %s redefined", rawQName(a.Name))); err != nil {
				return err
			}
			continue
		}
		seen[a.Name] = true

		var an Name
		if _, ok := nsDecl(a.Name); ok {
			an = Name{Space: xmlnsNamespace, Prefix: a.Name.Space, Local: a.Name.Local}
		} else if an, err = d.resolve(a.Name, false); err != nil {
			return err
		}
		attrs = append(attrs, Attr{Name: an, Value: a.Value, HasValue: true})
	}

	d.open = append(d.open, name)
	return d.h.StartElement(name, attrs)
}

func (d *xmlDriver) end(t xml.EndElement) error {
	q := rawQName(t.Name)
	top := len(d.open) - 1

	i := top
	for i >= 0 && d.open[i].QName() != q {
		i--
	}

	switch {
	case i == top && i >= 0:
		return d.pop()
	case top < 0:
		return d.h.Error(fmt.Sprintf("Unexpected end tag : %s", q))
	}

	if err := d.h.Error(fmt.Sprintf("Opening and ending tag mismatch: %s and %s", d.open[top].QName(), q)); err != nil {
		return err
	}
	if i < 0 {
		return nil
	}
	for len(d.open) > i {
		if err := d.pop(); err != nil {
			return err
		}
	}
	return nil
}

func (d *xmlDriver) pop() error {
	n := len(d.open) - 1
	name := d.open[n]
	d.open = d.open[:n]
	d.scopes = d.scopes[:n]
	if n == 0 {
		d.rootDone = true
	}
	return d.h.EndElement(name)
}

// resolve binds the prefix of n. Unprefixed attributes never take the
// default namespace.
func (d *xmlDriver) resolve(n xml.Name, element bool) (Name, error) {
	name := Name{Prefix: n.Space, Local: n.Local}
	if name.Prefix == "xml" {
		name.Space = xmlNamespace
		return name, nil
	}
	if name.Prefix == "" && !element {
		return name, nil
	}
	for i := len(d.scopes) - 1; i >= 0; i-- {
		if uri, ok := d.scopes[i][name.Prefix]; ok {
			name.Space = uri
			return name, nil
		}
	}
	if name.Prefix != "" {
		msg := fmt.Sprintf("Namespace prefix %s on %s is not defined", name.Prefix, name.Local)
		if err := d.h.Error(msg); err != nil {
			return name, err
		}
	}
	return name, nil
}

// nsDecl reports whether n is a namespace declaration and the prefix it binds.
func nsDecl(n xml.Name) (string, bool) {
	switch {
	case n.Space == "xmlns":
		return n.Local, true
	case n.Space == "" && n.Local == "xmlns":
		return "", true
	}
	return "", false
}

func rawQName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// procInstParam extracts a pseudo-attribute such as version="1.0" from the
// body of a processing instruction.
func procInstParam(param string, inst []byte) string {
	s := string(inst)
	for {
		i := strings.Index(s, param)
		if i < 0 {
			return ""
		}
		s = s[i+len(param):]
		rest := strings.TrimLeft(s, " \t\r\n")
		if !strings.HasPrefix(rest, "=") {
			continue
		}
		rest = strings.TrimLeft(rest[1:], " \t\r\n")
		if rest == "" || (rest[0] != '"' && rest[0] != '\'') {
			return ""
		}
		j := strings.IndexByte(rest[1:], rest[0])
		if j < 0 {
			return ""
		}
		return rest[1 : j+1]
	}
}

type xmlLocator struct {
	dec *xml.Decoder
}

func (l xmlLocator) Line() int {
	line, _ := l.dec.InputPos()
	return line
}

func (l xmlLocator) Column() int {
	_, col := l.dec.InputPos()
	return col
}
