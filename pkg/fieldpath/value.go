package fieldpath

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Value is the result of reading a leaf. It is either absent or holds text,
// which may be the empty string.
type Value struct {
	text    string
	present bool
}

// Absent returns the explicit "no value" marker.
func Absent() Value {
	return Value{}
}

// Present wraps a text value.
func Present(text string) Value {
	return Value{text: text, present: true}
}

// IsAbsent reports whether the path did not resolve to a leaf.
func (v Value) IsAbsent() bool {
	return !v.present
}

// IsEmpty reports whether the value is absent or the empty string.
func (v Value) IsEmpty() bool {
	return !v.present || v.text == ""
}

// Text returns the leaf text and whether it was present.
func (v Value) Text() (string, bool) {
	return v.text, v.present
}

// String returns the leaf text, or "" when absent.
func (v Value) String() string {
	return v.text
}

// Equals reports whether the value is present and equal to want.
func (v Value) Equals(want string) bool {
	return v.present && v.text == want
}

// In reports whether the value is present and one of options.
func (v Value) In(options ...string) bool {
	if !v.present {
		return false
	}
	for _, o := range options {
		if v.text == o {
			return true
		}
	}
	return false
}

// Int parses the leaf as a base-10 integer. The empty string reads as zero.
// Decimal text truncates toward zero, so "12.7" reads as 12 and "-4.7" as
// -4. An absent leaf, text that is not a number, NaN, or a value outside the
// int range reads as not ok.
func (v Value) Int() (int, bool) {
	if !v.present {
		return 0, false
	}
	s := strings.TrimSpace(v.text)
	if s == "" {
		return 0, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int(f), true
}

// IntOr returns Int or def when not ok.
func (v Value) IntOr(def int) int {
	if n, ok := v.Int(); ok {
		return n
	}
	return def
}

// MarshalJSON encodes absent as null and present values as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.present {
		return []byte("null"), nil
	}
	return json.Marshal(v.text)
}

// UnmarshalJSON decodes null as absent and any scalar as its text.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Absent()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Present(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = Present(n.String())
	return nil
}

// Get reads the leaf at path expr under root. It never fails: a malformed
// expression, a missing segment or a non-leaf target all yield Absent.
func Get(root *Node, expr string) Value {
	p, err := defaultCompiler.Compile(expr)
	if err != nil {
		return Absent()
	}
	return GetPath(root, p)
}

// GetPath reads the leaf designated by a compiled path.
func GetPath(root *Node, p Path) Value {
	text, ok := p.Resolve(root).Text()
	if !ok {
		return Absent()
	}
	return Present(text)
}

// Lookup returns the node at expr, which may be a group or repeated group.
func Lookup(root *Node, expr string) *Node {
	p, err := defaultCompiler.Compile(expr)
	if err != nil {
		return nil
	}
	return p.Resolve(root)
}

// Integer reads the leaf at expr as an integer with the semantics of
// Value.Int.
func Integer(root *Node, expr string) (int, bool) {
	return Get(root, expr).Int()
}
