package sax

import (
	"fmt"
	"strings"
	"sync"
)

// EventKind names the sink callback an Event was produced by.
type EventKind string

const (
	EventStartDocument         EventKind = "start-document"
	EventEndDocument           EventKind = "end-document"
	EventXMLDecl               EventKind = "xml-decl"
	EventStartElement          EventKind = "start-element"
	EventEndElement            EventKind = "end-element"
	EventCharacters            EventKind = "characters"
	EventComment               EventKind = "comment"
	EventCDATA                 EventKind = "cdata"
	EventProcessingInstruction EventKind = "processing-instruction"
	EventWarning               EventKind = "warning"
	EventError                 EventKind = "error"
)

// Event is one sink callback as a value. Text holds character data, comment
// and CDATA content, instruction data and diagnostic messages. Line and
// Column are -1 when unknown.
type Event struct {
	Kind       EventKind   `json:"kind" bson:"kind"`
	Name       string      `json:"name,omitempty" bson:"name,omitempty"`
	Prefix     string      `json:"prefix,omitempty" bson:"prefix,omitempty"`
	URI        string      `json:"uri,omitempty" bson:"uri,omitempty"`
	Attrs      []Attribute `json:"attrs,omitempty" bson:"attrs,omitempty"`
	Namespaces []Namespace `json:"namespaces,omitempty" bson:"namespaces,omitempty"`
	Target     string      `json:"target,omitempty" bson:"target,omitempty"`
	Text       string      `json:"text,omitempty" bson:"text,omitempty"`
	Version    string      `json:"version,omitempty" bson:"version,omitempty"`
	Encoding   string      `json:"encoding,omitempty" bson:"encoding,omitempty"`
	Standalone string      `json:"standalone,omitempty" bson:"standalone,omitempty"`
	Line       int         `json:"line" bson:"line"`
	Column     int         `json:"column" bson:"column"`
}

// QName returns the prefixed element name.
func (e Event) QName() string {
	if e.Prefix == "" {
		return e.Name
	}
	return e.Prefix + ":" + e.Name
}

// String returns a compact one-line form of the event without position.
func (e Event) String() string {
	switch e.Kind {
	case EventStartElement:
		var b strings.Builder
		b.WriteString("start ")
		b.WriteString(e.QName())
		for _, ns := range e.Namespaces {
			if ns.Prefix == "" {
				fmt.Fprintf(&b, " xmlns=%q", ns.URI)
			} else {
				fmt.Fprintf(&b, " xmlns:%s=%q", ns.Prefix, ns.URI)
			}
		}
		for _, a := range e.Attrs {
			b.WriteByte(' ')
			if a.Prefix != "" {
				b.WriteString(a.Prefix + ":")
			}
			b.WriteString(a.Localname)
			if !a.Bare {
				fmt.Fprintf(&b, "=%q", a.Value)
			}
		}
		return b.String()
	case EventEndElement:
		return "end " + e.QName()
	case EventXMLDecl:
		return fmt.Sprintf("xml-decl %s %s %s", e.Version, e.Encoding, e.Standalone)
	case EventProcessingInstruction:
		return fmt.Sprintf("pi %s %q", e.Target, e.Text)
	case EventStartDocument, EventEndDocument:
		return string(e.Kind)
	}
	return fmt.Sprintf("%s %q", e.Kind, e.Text)
}

// EventSink adapts sink callbacks into Event values passed to a function.
type EventSink struct {
	emit func(Event) error
	pos  Position
}

var (
	_ Sink           = (*EventSink)(nil)
	_ PositionSetter = (*EventSink)(nil)
)

// NewEventSink returns a Sink calling emit for every event.
func NewEventSink(emit func(Event) error) *EventSink {
	return &EventSink{emit: emit}
}

// SetPosition implements PositionSetter.
func (s *EventSink) SetPosition(pos Position) {
	s.pos = pos
}

func (s *EventSink) send(ev Event) error {
	ev.Line, ev.Column = -1, -1
	if s.pos != nil {
		if line, ok := s.pos.Line(); ok {
			ev.Line = line
		}
		if col, ok := s.pos.Column(); ok {
			ev.Column = col
		}
	}
	return s.emit(ev)
}

func (s *EventSink) StartDocument() error {
	return s.send(Event{Kind: EventStartDocument})
}

func (s *EventSink) EndDocument() error {
	return s.send(Event{Kind: EventEndDocument})
}

func (s *EventSink) XMLDecl(version, encoding, standalone string) error {
	return s.send(Event{Kind: EventXMLDecl, Version: version, Encoding: encoding, Standalone: standalone})
}

func (s *EventSink) StartElementNamespace(name string, attrs []Attribute, prefix, uri string, ns []Namespace) error {
	return s.send(Event{Kind: EventStartElement, Name: name, Prefix: prefix, URI: uri, Attrs: attrs, Namespaces: ns})
}

func (s *EventSink) EndElementNamespace(name, prefix, uri string) error {
	return s.send(Event{Kind: EventEndElement, Name: name, Prefix: prefix, URI: uri})
}

func (s *EventSink) Characters(text string) error {
	return s.send(Event{Kind: EventCharacters, Text: text})
}

func (s *EventSink) Comment(text string) error {
	return s.send(Event{Kind: EventComment, Text: text})
}

func (s *EventSink) CDATABlock(text string) error {
	return s.send(Event{Kind: EventCDATA, Text: text})
}

func (s *EventSink) ProcessingInstruction(target, data string) error {
	return s.send(Event{Kind: EventProcessingInstruction, Target: target, Text: data})
}

func (s *EventSink) Warning(msg string) error {
	return s.send(Event{Kind: EventWarning, Text: msg})
}

func (s *EventSink) Error(msg string) error {
	return s.send(Event{Kind: EventError, Text: msg})
}

// Recorder is a Sink that keeps every event and error in memory. It is safe
// to read while a parse is running.
type Recorder struct {
	*EventSink

	mu     sync.Mutex
	events []Event
	errs   []*SyntaxError
}

var _ ErrorCollector = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	r := &Recorder{}
	r.EventSink = NewEventSink(r.add)
	return r
}

func (r *Recorder) add(ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// AppendError implements ErrorCollector.
func (r *Recorder) AppendError(err *SyntaxError) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Strings returns the recorded events in their compact form.
func (r *Recorder) Strings() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.String()
	}
	return out
}

// Errors returns a copy of the collected errors.
func (r *Recorder) Errors() []*SyntaxError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*SyntaxError, len(r.errs))
	copy(out, r.errs)
	return out
}
