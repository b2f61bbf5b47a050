package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/care-pathway-engine/pkg/fieldpath"
)

// ValueKind tags the scalar held by a context Value.
type ValueKind string

const (
	VALUE_ABSENT ValueKind = "absent"
	VALUE_TEXT   ValueKind = "text"
	VALUE_NUMBER ValueKind = "number"
	VALUE_BOOL   ValueKind = "bool"
	VALUE_DATE   ValueKind = "date"
)

// DateLayout is the calendar-date layout used in contexts and forms.
const DateLayout = "2006-01-02"

// Value is one derived context parameter. An absent value is distinct from
// zero, false and the empty string.
type Value struct {
	Kind   ValueKind
	Text   string
	Number int
	Bool   bool
}

// AbsentValue returns the explicit "no qualifying report" value.
func AbsentValue() Value { return Value{Kind: VALUE_ABSENT} }

// TextValue wraps a string parameter.
func TextValue(s string) Value { return Value{Kind: VALUE_TEXT, Text: s} }

// NumberValue wraps an integer parameter.
func NumberValue(n int) Value { return Value{Kind: VALUE_NUMBER, Number: n} }

// BoolValue wraps a boolean parameter.
func BoolValue(b bool) Value { return Value{Kind: VALUE_BOOL, Bool: b} }

// DateValue wraps a calendar date.
func DateValue(t time.Time) Value { return Value{Kind: VALUE_DATE, Text: t.Format(DateLayout)} }

// FromField converts a field read, keeping absence.
func FromField(v fieldpath.Value) Value {
	text, ok := v.Text()
	if !ok {
		return AbsentValue()
	}
	return TextValue(text)
}

// IsAbsent reports whether the parameter had no qualifying report.
func (v Value) IsAbsent() bool {
	return v.Kind == VALUE_ABSENT || v.Kind == ""
}

// String renders the value for tables and logs.
func (v Value) String() string {
	switch v.Kind {
	case VALUE_TEXT, VALUE_DATE:
		return v.Text
	case VALUE_NUMBER:
		return strconv.Itoa(v.Number)
	case VALUE_BOOL:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// MarshalJSON encodes absent as null and the other kinds natively.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case VALUE_TEXT, VALUE_DATE:
		return json.Marshal(v.Text)
	case VALUE_NUMBER:
		return json.Marshal(v.Number)
	case VALUE_BOOL:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON restores a value; dates come back as text.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = AbsentValue()
	case string:
		*v = TextValue(t)
	case float64:
		*v = NumberValue(int(t))
	case bool:
		*v = BoolValue(t)
	default:
		return fmt.Errorf("unsupported context value %s", string(data))
	}
	return nil
}

// Context is the flat parameter mapping derived for one person. It is
// rebuilt from scratch on every evaluation and never authoritative.
type Context map[string]Value

// NewContext returns an empty context.
func NewContext() Context {
	return Context{}
}

// Set stores a parameter.
func (c Context) Set(name string, v Value) {
	c[name] = v
}

// SetField stores a field read, keeping absence.
func (c Context) SetField(name string, v fieldpath.Value) {
	c[name] = FromField(v)
}

// SetText stores a string parameter.
func (c Context) SetText(name, s string) {
	c[name] = TextValue(s)
}

// SetNumber stores an integer parameter.
func (c Context) SetNumber(name string, n int) {
	c[name] = NumberValue(n)
}

// SetBool stores a boolean parameter.
func (c Context) SetBool(name string, b bool) {
	c[name] = BoolValue(b)
}

// SetDate stores a calendar date, or absent when t is nil.
func (c Context) SetDate(name string, t *time.Time) {
	if t == nil {
		c[name] = AbsentValue()
		return
	}
	c[name] = DateValue(*t)
}

// Merge copies entries of other into c. Later keys overwrite earlier ones.
func (c Context) Merge(other map[string]fieldpath.Value) {
	for k, v := range other {
		c[k] = FromField(v)
	}
}

// Get returns a parameter, or absent when never set.
func (c Context) Get(name string) Value {
	if v, ok := c[name]; ok {
		return v
	}
	return AbsentValue()
}

// Has reports whether a parameter is set and not absent.
func (c Context) Has(name string) bool {
	v, ok := c[name]
	return ok && !v.IsAbsent()
}

// Keys returns the parameter names in sorted order.
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
