package parser

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "keygen": true, "link": true,
	"meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

// HTML tokenizes HTML with golang.org/x/net/html. Names are lower-cased,
// void and self-closing elements end immediately and elements still open at
// end of input are closed, so start and end callbacks always balance.
type HTML struct{}

// Parse implements Parser.
func (HTML) Parse(r io.Reader, h Handler) error {
	d := &htmlDriver{
		h:    h,
		z:    html.NewTokenizer(r),
		next: position{line: 1, col: 1},
	}
	return d.run()
}

type htmlDriver struct {
	h    Handler
	z    *html.Tokenizer
	loc  position
	next position
	open []Name
}

func (d *htmlDriver) run() error {
	d.h.SetDocumentLocator(&d.loc)
	if err := d.h.StartDocument(); err != nil {
		return err
	}

	for {
		tt := d.z.Next()
		raw := d.z.Raw()
		d.loc = d.next
		d.next = d.next.advance(raw)

		switch tt {
		case html.ErrorToken:
			if err := d.z.Err(); err != io.EOF {
				return err
			}
			return d.finish()
		case html.TextToken:
			if err := d.h.Characters(d.z.Text()); err != nil {
				return err
			}
		case html.CommentToken:
			if err := d.h.Comment(d.z.Text()); err != nil {
				return err
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			if err := d.start(raw, tt == html.SelfClosingTagToken); err != nil {
				return err
			}
		case html.EndTagToken:
			if err := d.end(); err != nil {
				return err
			}
		case html.DoctypeToken:
		}
	}
}

func (d *htmlDriver) start(raw []byte, selfClosing bool) error {
	// TagAttr unescapes in place, so the raw tag has to be read first.
	explicit := explicitAttrs(raw)

	tag, more := d.z.TagName()
	name := splitQName(string(tag))

	var attrs []Attr
	for more {
		var k, v []byte
		k, v, more = d.z.TagAttr()
		key := string(k)
		attrs = append(attrs, Attr{
			Name:     splitQName(key),
			Value:    string(v),
			HasValue: explicit[key],
		})
	}

	if err := d.h.StartElement(name, attrs); err != nil {
		return err
	}
	if selfClosing || voidElements[name.QName()] {
		return d.h.EndElement(name)
	}
	d.open = append(d.open, name)
	return nil
}

func (d *htmlDriver) end() error {
	tag, _ := d.z.TagName()
	q := string(tag)
	if voidElements[q] {
		return nil
	}

	i := len(d.open) - 1
	for i >= 0 && d.open[i].QName() != q {
		i--
	}
	if i < 0 {
		return d.h.Error("Unexpected end tag : " + q)
	}
	return d.closeTo(i)
}

func (d *htmlDriver) finish() error {
	return d.closeTo(0)
}

func (d *htmlDriver) closeTo(depth int) error {
	for len(d.open) > depth {
		n := len(d.open) - 1
		name := d.open[n]
		d.open = d.open[:n]
		if err := d.h.EndElement(name); err != nil {
			return err
		}
	}
	return nil
}

// explicitAttrs scans a raw start tag and reports, per lower-cased attribute
// name, whether the attribute was followed by "=". The first occurrence of a
// name wins.
func explicitAttrs(raw []byte) map[string]bool {
	out := make(map[string]bool)
	i := 1
	for i < len(raw) && !isTagSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' {
		i++
	}
	for i < len(raw) {
		for i < len(raw) && (isTagSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= len(raw) || raw[i] == '>' {
			break
		}

		start := i
		i++
		for i < len(raw) && !isTagSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' && raw[i] != '=' {
			i++
		}
		name := strings.ToLower(string(raw[start:i]))
		for i < len(raw) && isTagSpace(raw[i]) {
			i++
		}

		hasValue := i < len(raw) && raw[i] == '='
		if hasValue {
			i++
			for i < len(raw) && isTagSpace(raw[i]) {
				i++
			}
			if i < len(raw) && (raw[i] == '"' || raw[i] == '\'') {
				q := raw[i]
				i++
				for i < len(raw) && raw[i] != q {
					i++
				}
				i++
			} else {
				for i < len(raw) && !isTagSpace(raw[i]) && raw[i] != '>' {
					i++
				}
			}
		}
		if _, dup := out[name]; !dup {
			out[name] = hasValue
		}
	}
	return out
}

func isTagSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f'
}

// position is a byte-counting Locator for tokenizers that do not track
// lines themselves.
type position struct {
	line, col int
}

func (p *position) Line() int   { return p.line }
func (p *position) Column() int { return p.col }

func (p position) advance(raw []byte) position {
	for _, b := range raw {
		if b == '\n' {
			p.line++
			p.col = 1
			continue
		}
		p.col++
	}
	return p
}
