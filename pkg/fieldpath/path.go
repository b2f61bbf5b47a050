package fieldpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrInvalidPath is returned when a path expression cannot be compiled.
var ErrInvalidPath = errors.New("invalid field path")

// DefaultCacheSize bounds the number of compiled paths kept by the default
// compiler.
const DefaultCacheSize = 2048

type segment struct {
	name  string
	index int
	isIdx bool
}

// Path is a compiled dot-delimited field path. Repeated groups are indexed
// either with brackets (a.b[0].c) or with a numeric segment (a.b.0.c).
type Path struct {
	raw      string
	segments []segment
}

// String returns the source expression.
func (p Path) String() string {
	return p.raw
}

// Depth returns the number of segments.
func (p Path) Depth() int {
	return len(p.segments)
}

// Join appends a child name to the path.
func (p Path) Join(name string) Path {
	segs := make([]segment, len(p.segments), len(p.segments)+1)
	copy(segs, p.segments)
	raw := name
	if p.raw != "" {
		raw = p.raw + "." + name
	}
	return Path{raw: raw, segments: append(segs, parseSegment(name))}
}

// Compile parses a path expression.
func Compile(expr string) (Path, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Path{}, fmt.Errorf("%w: empty expression", ErrInvalidPath)
	}

	var segs []segment
	for _, part := range strings.Split(expr, ".") {
		if part == "" {
			return Path{}, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, expr)
		}

		name := part
		var indexes []int
		for {
			open := strings.IndexByte(name, '[')
			if open < 0 {
				break
			}
			closing := strings.IndexByte(name[open:], ']')
			if closing < 0 {
				return Path{}, fmt.Errorf("%w: unterminated index in %q", ErrInvalidPath, expr)
			}
			idx, err := strconv.Atoi(name[open+1 : open+closing])
			if err != nil || idx < 0 {
				return Path{}, fmt.Errorf("%w: bad index in %q", ErrInvalidPath, expr)
			}
			indexes = append(indexes, idx)
			name = name[:open] + name[open+closing+1:]
		}

		if name != "" {
			segs = append(segs, parseSegment(name))
		}
		for _, idx := range indexes {
			segs = append(segs, segment{index: idx, isIdx: true})
		}
	}

	return Path{raw: expr, segments: segs}, nil
}

// MustCompile is like Compile but panics on error. Intended for path
// constants.
func MustCompile(expr string) Path {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func parseSegment(name string) segment {
	if idx, err := strconv.Atoi(name); err == nil && idx >= 0 {
		return segment{name: name, index: idx, isIdx: true}
	}
	return segment{name: name}
}

// Resolve walks the path from root and returns the node it designates, or
// nil when any segment is missing.
func (p Path) Resolve(root *Node) *Node {
	cur := root
	for _, seg := range p.segments {
		if cur == nil {
			return nil
		}
		switch {
		case cur.kind == KindRepeated && seg.isIdx:
			cur = cur.Item(seg.index)
		case cur.kind == KindGroup:
			cur = cur.Child(seg.name)
		default:
			return nil
		}
	}
	return cur
}

// Compiler memoises compiled paths. It is safe for concurrent use.
type Compiler struct {
	cache *lru.Cache[string, Path]
}

// NewCompiler creates a compiler keeping up to size compiled paths.
func NewCompiler(size int) (*Compiler, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, Path](size)
	if err != nil {
		return nil, fmt.Errorf("creating path cache: %w", err)
	}
	return &Compiler{cache: cache}, nil
}

// Compile returns the cached compilation of expr, compiling it on a miss.
func (c *Compiler) Compile(expr string) (Path, error) {
	if p, ok := c.cache.Get(expr); ok {
		return p, nil
	}
	p, err := Compile(expr)
	if err != nil {
		return Path{}, err
	}
	c.cache.Add(expr, p)
	return p, nil
}

// Len returns the number of cached paths.
func (c *Compiler) Len() int {
	return c.cache.Len()
}

var defaultCompiler = func() *Compiler {
	c, err := NewCompiler(DefaultCacheSize)
	if err != nil {
		panic(err)
	}
	return c
}()
