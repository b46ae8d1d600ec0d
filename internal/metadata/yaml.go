package metadata

import (
	"regexp"
	"strconv"
	"strings"
)

// ValueKind is the coerced type of a config value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindBool
	KindInt
	KindFloat
)

// Value is a single scalar read from a config file. Raw always holds the text as
// written (quotes stripped), so "1.0" keeps its trailing zero.
type Value struct {
	Raw   string
	Kind  ValueKind
	Bool  bool
	Int   int64
	Float float64
}

// Document is the result of parsing a flat "key: value" config file.
// Keys keep the order of their first appearance; a repeated key overwrites the
// earlier value.
type Document struct {
	keys   []string
	values map[string]Value
}

var numericPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// ParseSimpleYAML reads the flat subset of YAML used by item config files:
// one "key: value" pair per line, "#" comment lines and blank lines ignored,
// surrounding quotes stripped, true/false and numbers coerced. Nested structures
// are not supported; indented lines are read as if they were top level.
func ParseSimpleYAML(content string) *Document {
	doc := &Document{values: make(map[string]Value)}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, raw, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		raw = strings.Trim(raw, ` "'`)

		if _, seen := doc.values[key]; !seen {
			doc.keys = append(doc.keys, key)
		}
		doc.values[key] = coerce(raw)
	}

	return doc
}

func coerce(raw string) Value {
	v := Value{Raw: raw}
	switch {
	case raw == "true":
		v.Kind, v.Bool = KindBool, true
	case raw == "false":
		v.Kind = KindBool
	case numericPattern.MatchString(raw):
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			v.Kind, v.Int = KindInt, i
		} else if f, err := strconv.ParseFloat(raw, 64); err == nil {
			v.Kind, v.Float = KindFloat, f
		}
	}
	return v
}

// Keys returns the parsed keys in file order.
func (d *Document) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Len returns the number of distinct keys.
func (d *Document) Len() int {
	return len(d.keys)
}

// Get returns the value for key.
func (d *Document) Get(key string) (Value, bool) {
	v, ok := d.values[key]
	return v, ok
}

// String returns the raw text for key, or "" when absent.
func (d *Document) String(key string) string {
	return d.values[key].Raw
}

// Bool returns the boolean value for key. Non-boolean values report false.
func (d *Document) Bool(key string) bool {
	v := d.values[key]
	return v.Kind == KindBool && v.Bool
}
