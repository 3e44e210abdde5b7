// Package uri parses and matches the path patterns used throughout a
// HyperSwitch specification: literal segments, named parameters with an
// optional regexp constraint ({name} / {name:pattern}), a terminal greedy
// capture ({+name}), and an optional leading-slash segment ({/name}).
//
// The tokeniser and specificity ranking are grounded on the way
// pathmux/tree.go orders static, wildcard and catch-all children, but the
// segment model is richer here because a HyperSwitch path pattern encodes
// modifiers a plain radix trie doesn't need to distinguish.
package uri

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Kind identifies the shape of a path segment.
type Kind int

const (
	Literal Kind = iota
	Param
	Greedy
	Optional
	Meta
)

func (k Kind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Param:
		return "param"
	case Greedy:
		return "greedy"
	case Optional:
		return "optional"
	case Meta:
		return "meta"
	default:
		return "unknown"
	}
}

// Segment is one path component of a parsed pattern.
type Segment struct {
	Kind    Kind
	Literal string
	Name    string
	Pattern *regexp.Regexp

	// MetaType distinguishes meta-segments used internally for API roots,
	// e.g. "apiRoot".
	MetaType string
}

// Key is the string used as a route-tree map key for this segment. Two
// segments with the same Key are the "same" tree edge; segments that
// differ only in modifier (e.g. "{id}" vs "{/id}") are intentionally
// distinct keys so that they may coexist as siblings, per the route tree
// invariant that "children with distinct modifiers may coexist".
func (s Segment) Key() string {
	switch s.Kind {
	case Literal:
		return s.Literal
	case Param:
		if s.Pattern != nil {
			return "{" + s.Name + ":" + s.Pattern.String() + "}"
		}
		return "{" + s.Name + "}"
	case Greedy:
		return "{+" + s.Name + "}"
	case Optional:
		return "{/" + s.Name + "}"
	case Meta:
		return "{type:meta,name:" + s.MetaType + "}"
	default:
		return ""
	}
}

// rank orders sibling segments by matching specificity: literal is most
// specific, then a parameter constrained by a pattern, then an
// unconstrained parameter, then the greedy catch-all. Higher wins ties
// during lookup.
func (s Segment) rank() int {
	switch s.Kind {
	case Literal:
		return 3
	case Param:
		if s.Pattern != nil {
			return 2
		}
		return 1
	case Greedy:
		return 0
	default:
		return -1
	}
}

// Less reports whether a should be tried before b when both match at the
// same tree position.
func Less(a, b Segment) bool { return a.rank() > b.rank() }

// URI is an ordered list of path segments, optionally scoped to a host.
type URI struct {
	Host     string
	Segments []Segment
}

func (u *URI) String() string {
	var b strings.Builder
	for _, s := range u.Segments {
		b.WriteByte('/')
		b.WriteString(s.Key())
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// Terminal reports whether s must be the last segment of a pattern; a '+'
// segment is terminal by invariant.
func (s Segment) Terminal() bool { return s.Kind == Greedy }

func parseBraceToken(token string) (Segment, error) {
	if token == "" {
		return Segment{}, fmt.Errorf("empty path parameter")
	}
	switch token[0] {
	case '+':
		name := token[1:]
		if name == "" {
			return Segment{}, fmt.Errorf("greedy parameter has no name")
		}
		return Segment{Kind: Greedy, Name: name}, nil
	case '/':
		name := token[1:]
		if name == "" {
			return Segment{}, fmt.Errorf("optional parameter has no name")
		}
		return Segment{Kind: Optional, Name: name}, nil
	default:
		name := token
		var pat *regexp.Regexp
		if idx := strings.IndexByte(token, ':'); idx >= 0 {
			name = token[:idx]
			expr := token[idx+1:]
			if strings.HasPrefix(name, "type") && name == "type" {
				// {type:meta,name:apiRoot} — internal meta-segment form.
				return parseMetaToken(token)
			}
			compiled, err := regexp.Compile("^" + expr + "$")
			if err != nil {
				return Segment{}, fmt.Errorf("invalid pattern for %q: %w", name, err)
			}
			pat = compiled
		}
		if name == "" {
			return Segment{}, fmt.Errorf("parameter has no name")
		}
		return Segment{Kind: Param, Name: name, Pattern: pat}, nil
	}
}

func parseMetaToken(token string) (Segment, error) {
	seg := Segment{Kind: Meta}
	for _, part := range strings.Split(token, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.TrimSpace(kv[0]) {
		case "name":
			seg.MetaType = strings.TrimSpace(kv[1])
		}
	}
	if seg.MetaType == "" {
		return Segment{}, fmt.Errorf("meta segment missing name: %q", token)
	}
	return seg, nil
}

// Parse tokenises a path pattern into its segments. Patterns must be
// absolute (start with '/').
func Parse(pattern string) (*URI, error) {
	if pattern == "" || pattern[0] != '/' {
		return nil, fmt.Errorf("path pattern must be absolute: %q", pattern)
	}

	rest := pattern[1:]
	var segs []Segment
	for len(rest) > 0 {
		if rest[0] == '{' {
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated parameter in %q", pattern)
			}
			seg, err := parseBraceToken(rest[1:end])
			if err != nil {
				return nil, fmt.Errorf("%q: %w", pattern, err)
			}
			if len(segs) > 0 && segs[len(segs)-1].Terminal() {
				return nil, fmt.Errorf("%q: no segment may follow a greedy parameter", pattern)
			}
			segs = append(segs, seg)
			rest = rest[end+1:]
			if len(rest) > 0 && rest[0] == '/' {
				rest = rest[1:]
			}
			continue
		}

		i := 0
		for i < len(rest) && rest[i] != '/' && rest[i] != '{' {
			i++
		}
		lit := rest[:i]
		rest = rest[i:]
		if lit != "" {
			if len(segs) > 0 && segs[len(segs)-1].Terminal() {
				return nil, fmt.Errorf("%q: no segment may follow a greedy parameter", pattern)
			}
			segs = append(segs, Segment{Kind: Literal, Literal: lit})
		}
		if len(rest) > 0 && rest[0] == '/' {
			rest = rest[1:]
		}
	}

	return &URI{Segments: segs}, nil
}

// MustParse is Parse but panics on error; used for constant patterns.
func MustParse(pattern string) *URI {
	u, err := Parse(pattern)
	if err != nil {
		panic(err)
	}
	return u
}

// Match attempts to resolve a concrete request path against this
// pattern, returning the captured path parameters. Optional segments
// that are absent from path are simply omitted from params, per the
// "params.rest absent" edge case.
func (u *URI) Match(path string) (params map[string]string, ok bool) {
	path = strings.TrimPrefix(path, "/")
	var tokens []string
	if path != "" {
		tokens = strings.Split(path, "/")
	}

	params = map[string]string{}
	ti := 0
	for si, seg := range u.Segments {
		switch seg.Kind {
		case Literal:
			if ti >= len(tokens) || tokens[ti] != seg.Literal {
				return nil, false
			}
			ti++
		case Param:
			if ti >= len(tokens) {
				return nil, false
			}
			val, err := url.PathUnescape(tokens[ti])
			if err != nil {
				val = tokens[ti]
			}
			if seg.Pattern != nil && !seg.Pattern.MatchString(val) {
				return nil, false
			}
			params[seg.Name] = val
			ti++
		case Optional:
			if ti < len(tokens) && (si == len(u.Segments)-1) {
				val, err := url.PathUnescape(tokens[ti])
				if err != nil {
					val = tokens[ti]
				}
				params[seg.Name] = val
				ti++
			}
		case Greedy:
			if ti >= len(tokens) {
				return nil, false
			}
			rest := strings.Join(tokens[ti:], "/")
			val, err := url.PathUnescape(rest)
			if err != nil {
				val = rest
			}
			params[seg.Name] = val
			ti = len(tokens)
		}
	}

	if ti != len(tokens) {
		return nil, false
	}
	return params, true
}
