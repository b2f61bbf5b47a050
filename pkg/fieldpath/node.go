// Package fieldpath models the answer tree of a submitted form and provides
// safe, path-based reads over it.
//
// A tree is a tagged union: every Node is either a leaf scalar, a named group
// of child nodes, or a repeated group (an ordered list of nodes). Reads never
// fail; a path that does not resolve yields an absent Value.
package fieldpath

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind identifies the variant held by a Node.
type Kind uint8

const (
	KindLeaf Kind = iota + 1
	KindGroup
	KindRepeated
)

// String returns the kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindGroup:
		return "group"
	case KindRepeated:
		return "repeated"
	default:
		return "unknown"
	}
}

// Node is one element of a form answer tree. The zero value is not a valid
// node; use Leaf, Group or Repeated.
type Node struct {
	kind     Kind
	text     string
	children map[string]*Node
	items    []*Node
}

// Leaf returns a scalar node holding text.
func Leaf(text string) *Node {
	return &Node{kind: KindLeaf, text: text}
}

// Group returns a named group. Nil children are dropped.
func Group(children map[string]*Node) *Node {
	g := &Node{kind: KindGroup, children: make(map[string]*Node, len(children))}
	for name, child := range children {
		if child != nil {
			g.children[name] = child
		}
	}
	return g
}

// Repeated returns a repeated group holding items in order.
func Repeated(items ...*Node) *Node {
	return &Node{kind: KindRepeated, items: append([]*Node(nil), items...)}
}

// FromMap builds a tree from decoded JSON/YAML style values. Strings, numbers
// and booleans become leaves; maps become groups; slices become repeated
// groups. Nil values are treated as missing.
func FromMap(m map[string]any) *Node {
	n, _ := fromAny(m)
	if n == nil {
		return Group(nil)
	}
	return n
}

func fromAny(v any) (*Node, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *Node:
		return t, nil
	case string:
		return Leaf(t), nil
	case bool:
		return Leaf(strconv.FormatBool(t)), nil
	case int:
		return Leaf(strconv.Itoa(t)), nil
	case int64:
		return Leaf(strconv.FormatInt(t, 10)), nil
	case float64:
		return Leaf(strconv.FormatFloat(t, 'f', -1, 64)), nil
	case json.Number:
		return Leaf(t.String()), nil
	case map[string]any:
		children := make(map[string]*Node, len(t))
		for k, child := range t {
			n, err := fromAny(child)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			if n != nil {
				children[k] = n
			}
		}
		return Group(children), nil
	case []any:
		items := make([]*Node, 0, len(t))
		for i, child := range t {
			n, err := fromAny(child)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			if n == nil {
				n = Leaf("")
			}
			items = append(items, n)
		}
		return Repeated(items...), nil
	default:
		return nil, fmt.Errorf("unsupported field value type %T", v)
	}
}

// Kind reports the variant of n. A nil node reports 0.
func (n *Node) Kind() Kind {
	if n == nil {
		return 0
	}
	return n.kind
}

// Text returns the scalar of a leaf node.
func (n *Node) Text() (string, bool) {
	if n == nil || n.kind != KindLeaf {
		return "", false
	}
	return n.text, true
}

// Child returns the named child of a group node.
func (n *Node) Child(name string) *Node {
	if n == nil || n.kind != KindGroup {
		return nil
	}
	return n.children[name]
}

// Item returns the i-th element of a repeated node.
func (n *Node) Item(i int) *Node {
	if n == nil || n.kind != KindRepeated || i < 0 || i >= len(n.items) {
		return nil
	}
	return n.items[i]
}

// Len returns the number of children (group) or items (repeated).
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	switch n.kind {
	case KindGroup:
		return len(n.children)
	case KindRepeated:
		return len(n.items)
	default:
		return 0
	}
}

// Names returns the child names of a group in sorted order.
func (n *Node) Names() []string {
	if n == nil || n.kind != KindGroup {
		return nil
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Leaves returns the scalar children of a group keyed by name. Nested groups
// and repeated groups are skipped.
func (n *Node) Leaves() map[string]string {
	out := map[string]string{}
	if n == nil || n.kind != KindGroup {
		return out
	}
	for name, child := range n.children {
		if text, ok := child.Text(); ok {
			out[name] = text
		}
	}
	return out
}

// UnmarshalJSON decodes any JSON value into a node. A null root decodes to an
// empty group; nested nulls are dropped.
func (n *Node) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decoding field tree: %w", err)
	}
	if raw == nil {
		*n = *Group(nil)
		return nil
	}
	built, err := fromAny(raw)
	if err != nil {
		return fmt.Errorf("decoding field tree: %w", err)
	}
	*n = *built
	return nil
}

// MarshalJSON encodes leaves as strings, groups as objects and repeated
// groups as arrays.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.toAny())
}

// UnmarshalYAML decodes a YAML document node into a field tree.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decoding field tree: %w", err)
	}
	if raw == nil {
		*n = *Group(nil)
		return nil
	}
	built, err := fromAny(normalizeYAML(raw))
	if err != nil {
		return fmt.Errorf("decoding field tree: %w", err)
	}
	*n = *built
	return nil
}

// normalizeYAML converts yaml.v3 decoded values into the JSON-like shapes
// fromAny accepts.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = normalizeYAML(child)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = normalizeYAML(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = normalizeYAML(child)
		}
		return out
	case float32:
		return float64(t)
	case uint64:
		return strconv.FormatUint(t, 10)
	case time.Time:
		if t.Equal(t.Truncate(24 * time.Hour)) {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	default:
		if s, ok := v.(fmt.Stringer); ok {
			return s.String()
		}
		return v
	}
}

func (n *Node) toAny() any {
	if n == nil {
		return nil
	}
	switch n.kind {
	case KindLeaf:
		return n.text
	case KindGroup:
		out := make(map[string]any, len(n.children))
		for name, child := range n.children {
			out[name] = child.toAny()
		}
		return out
	case KindRepeated:
		out := make([]any, len(n.items))
		for i, item := range n.items {
			out[i] = item.toAny()
		}
		return out
	default:
		return nil
	}
}
