package sax

// Attribute is an ordinary (non namespace-declaring) attribute of a start
// tag. Bare is set in HTML mode for boolean attributes written without a
// value; such attributes carry no Value.
type Attribute struct {
	Localname string `json:"name" bson:"name"`
	Prefix    string `json:"prefix,omitempty" bson:"prefix,omitempty"`
	URI       string `json:"uri,omitempty" bson:"uri,omitempty"`
	Value     string `json:"value,omitempty" bson:"value,omitempty"`
	Bare      bool   `json:"bare,omitempty" bson:"bare,omitempty"`
}

// Fields returns the attribute in its positional shape: name, prefix, uri
// and value, or only the first three for a bare boolean attribute.
func (a Attribute) Fields() []string {
	if a.Bare {
		return []string{a.Localname, a.Prefix, a.URI}
	}
	return []string{a.Localname, a.Prefix, a.URI, a.Value}
}

// Namespace is a prefix binding declared on a start tag. The default
// namespace has an empty Prefix.
type Namespace struct {
	Prefix string `json:"prefix" bson:"prefix"`
	URI    string `json:"uri" bson:"uri"`
}

// booleanAttributes are the HTML attributes reported bare when written
// without a value.
var booleanAttributes = map[string]bool{
	"checked":  true,
	"compact":  true,
	"declare":  true,
	"defer":    true,
	"disabled": true,
	"ismap":    true,
	"multiple": true,
	"noresize": true,
	"nohref":   true,
	"noshade":  true,
	"nowrap":   true,
	"readonly": true,
	"selected": true,
}

// IsBooleanAttribute reports whether name is on the HTML boolean allow-list.
func IsBooleanAttribute(name string) bool {
	return booleanAttributes[name]
}
