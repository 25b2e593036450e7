package directive

import "strings"

// Value is a directive value: either a single scalar or an ordered sequence
// of scalars produced by a repeated key or a multi-part token.
type Value struct {
	items    []string
	sequence bool
}

// Scalar creates a single-valued Value.
func Scalar(s string) Value {
	return Value{items: []string{s}}
}

// Sequence creates an ordered multi-valued Value.
func Sequence(items ...string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{items: cp, sequence: true}
}

// IsSequence reports whether the value holds an ordered sequence.
func (v Value) IsSequence() bool {
	return v.sequence
}

// Scalar returns the scalar value. For a sequence it returns the empty string
// and false.
func (v Value) Scalar() (string, bool) {
	if v.sequence || len(v.items) == 0 {
		return "", false
	}
	return v.items[0], true
}

// Items returns a copy of the values in order.
func (v Value) Items() []string {
	cp := make([]string, len(v.items))
	copy(cp, v.items)
	return cp
}

// String renders the value for logs: scalars as-is, sequences as [a b c].
func (v Value) String() string {
	if !v.sequence {
		s, _ := v.Scalar()
		return s
	}
	return "[" + strings.Join(v.items, " ") + "]"
}

// merge accumulates next onto v. A scalar becomes a sequence holding both
// values; sequences are flattened in order.
func (v Value) merge(next Value) Value {
	items := make([]string, 0, len(v.items)+len(next.items))
	items = append(items, v.items...)
	items = append(items, next.items...)
	return Value{items: items, sequence: true}
}

// Directives is the raw, ordered result of parsing a directive string.
type Directives struct {
	keys   []string
	values map[string]Value
}

// Len returns the number of distinct keys.
func (d Directives) Len() int {
	return len(d.keys)
}

// Keys returns the keys in first-seen order.
func (d Directives) Keys() []string {
	cp := make([]string, len(d.keys))
	copy(cp, d.keys)
	return cp
}

// Get returns the value stored for key.
func (d Directives) Get(key string) (Value, bool) {
	v, ok := d.values[key]
	return v, ok
}

// String renders the directives as key=value pairs in first-seen order.
func (d Directives) String() string {
	parts := make([]string, 0, len(d.keys))
	for _, k := range d.keys {
		parts = append(parts, k+"="+d.values[k].String())
	}
	return strings.Join(parts, ",")
}

func (d *Directives) add(key string, v Value) {
	if d.values == nil {
		d.values = make(map[string]Value)
	}
	if existing, ok := d.values[key]; ok {
		d.values[key] = existing.merge(v)
		return
	}
	d.keys = append(d.keys, key)
	d.values[key] = v
}
