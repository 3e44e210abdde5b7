// Package routetree implements the prefix tree of path segments the
// spec loader builds and the dispatcher walks: a Node per segment,
// carrying its Value (methods, filters, resources, specRoot) once a
// path pattern is fully registered.
//
// The child-lookup and specificity-ordering concepts are grounded on
// pathmux/tree.go's static/wildcard/catch-all child dispatch, but the
// node shape here is segment-level (keyed by uri.Segment.Key(), one
// edge per HyperSwitch path token including its modifier) rather than
// pathmux's byte-level radix split, because a HyperSwitch pattern
// distinguishes constrained/unconstrained/greedy/optional segments
// that a plain string trie has no notion of.
package routetree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/openapi"
	"github.com/wikimedia/hyperswitch/uri"
)

// MethodEntry is one verb's compiled handler and its method-scoped
// filter stack, attached to a Value.
type MethodEntry struct {
	Handler   filter.Func
	Filters   []filter.Entry
	Operation *openapi.Operation
	// Security is the path-level and operation-level security
	// requirements accumulated along the mount path and tagged onto
	// this method, per §4.3.
	Security []map[string][]string
}

// Value is what a fully-registered path pattern attaches to its final
// node (or, for an optional-segment pattern, to both the final node
// and its parent — the mirroring rule of §3).
type Value struct {
	Path      string
	Methods   map[string]*MethodEntry
	Filters   []filter.Entry
	Resources []openapi.ResourceSpec
	SpecRoot  *openapi.Document
	Globals   map[string]any
}

// NewValue returns an empty Value rooted at path.
func NewValue(path string) *Value {
	return &Value{Path: path, Methods: map[string]*MethodEntry{}}
}

// Node is one edge target in the tree.
type Node struct {
	seg      uri.Segment
	hasSeg   bool
	Hidden   bool
	children map[string]*Node
	Value    *Value
}

// NewRoot returns an empty root node.
func NewRoot() *Node { return &Node{children: map[string]*Node{}} }

// Segment reports the segment this node was reached by (zero Segment
// for the root).
func (n *Node) Segment() uri.Segment { return n.seg }

// Child returns the direct child reached by segment key, if any.
func (n *Node) Child(key string) (*Node, bool) {
	c, ok := n.children[key]
	return c, ok
}

// Children returns every direct child, for listing/introspection.
func (n *Node) Children() map[string]*Node { return n.children }

// getOrCreateChild returns the child edge for seg, creating it (and, for
// a greedy segment, its self-child) if absent.
func (n *Node) getOrCreateChild(seg uri.Segment) *Node {
	key := seg.Key()
	if c, ok := n.children[key]; ok {
		return c
	}
	c := &Node{seg: seg, hasSeg: true, children: map[string]*Node{}}
	if n.children == nil {
		n.children = map[string]*Node{}
	}
	n.children[key] = c
	if seg.Kind == uri.Greedy {
		// A '+' segment matches its own continuation; the invariant is
		// satisfied structurally by making the node its own child, even
		// though Lookup below short-circuits without walking it.
		c.children[key] = c
	}
	return c
}

// Insert walks/creates nodes for every segment of pattern and returns
// the node the pattern's Value belongs on. For a pattern whose last
// segment is optional ({/name}), the returned node's Value is the one
// mirrored onto the parent per the "optional segment value mirroring"
// rule; callers that need the leaf specifically for method
// registration should still use the returned node — mirroring is
// handled internally.
func Insert(root *Node, segs []uri.Segment) (*Node, error) {
	n := root
	for i, seg := range segs {
		last := i == len(segs)-1
		child := n.getOrCreateChild(seg)
		if last && seg.Kind == uri.Optional {
			if err := mirror(n, child); err != nil {
				return nil, err
			}
			return child, nil
		}
		n = child
	}
	return n, nil
}

// mirror implements the parent/child value-sharing rule for an
// optional trailing segment: parent and child end up pointing at the
// same *Value object. A parent that already carries a distinct Value
// is a hard collision, per the Open Question decision in §9 ("treat
// any such collision as an error, matching the general re-definition
// rule").
func mirror(parent, child *Node) error {
	switch {
	case child.Value == nil && parent.Value == nil:
		v := NewValue("")
		parent.Value = v
		child.Value = v
	case child.Value != nil && parent.Value == nil:
		parent.Value = child.Value
	case child.Value == nil && parent.Value != nil:
		return fmt.Errorf("Trying to re-define existing method: optional-segment value collides with parent value at %q", parent.Value.Path)
	default:
		if parent.Value != child.Value {
			return fmt.Errorf("Trying to re-define existing method: optional-segment value collides with parent value at %q", parent.Value.Path)
		}
	}
	return nil
}

// ShareUnder mounts an already-built subtree under parent at key,
// exactly as-is (true pointer sharing, "clone-on-share" with identical
// globals never needing a clone at all).
func ShareUnder(parent *Node, key string, existing *Node) {
	if parent.children == nil {
		parent.children = map[string]*Node{}
	}
	parent.children[key] = existing
}

// Clone returns a shallow copy of n suitable for mounting under a
// different prefix with different globals: children are shared
// (aliased, not deep-copied) but the top Value is copied so its
// Globals can differ from the original mount's.
func (n *Node) Clone(globals map[string]any) *Node {
	c := &Node{seg: n.seg, hasSeg: n.hasSeg, Hidden: n.Hidden, children: n.children}
	if n.Value != nil {
		v := *n.Value
		v.Globals = globals
		c.Value = &v
	}
	return c
}

// sortedChildren returns n's children ordered most-specific-first,
// per uri.Less, skipping a greedy node's self-reference so the
// recursive search behind Lookup and Locate can't loop.
func (n *Node) sortedChildren() []*Node {
	seen := map[*Node]bool{}
	var out []*Node
	for _, c := range n.children {
		if c == n || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return uri.Less(out[i].seg, out[j].seg) })
	return out
}

// Lookup resolves path against the tree, requiring the found node to
// carry a Value (a direct handler). Params are populated from every
// matched parameter/greedy/optional segment along the way.
func Lookup(root *Node, path string) (*Node, map[string]string, bool) {
	tokens := tokenize(path)
	params := map[string]string{}
	n, ok := search(root, tokens, params)
	if !ok || n.Value == nil {
		return nil, nil, false
	}
	return n, params, true
}

// Locate resolves path to whatever node it reaches, Value or not,
// used by the listing protocol to find the node whose children should
// be enumerated when there is no direct handler.
func Locate(root *Node, path string) (*Node, map[string]string, bool) {
	tokens := tokenize(path)
	params := map[string]string{}
	n, ok := search(root, tokens, params)
	return n, params, ok
}

func tokenize(path string) []string {
	trimmed := strings.TrimPrefix(path, "/")
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func search(n *Node, tokens []string, params map[string]string) (*Node, bool) {
	if len(tokens) == 0 {
		return n, true
	}
	tok, rest := tokens[0], tokens[1:]
	for _, c := range n.sortedChildren() {
		switch c.seg.Kind {
		case uri.Literal:
			if c.seg.Literal != tok {
				continue
			}
			if found, ok := search(c, rest, params); ok {
				return found, true
			}
		case uri.Param:
			if c.seg.Pattern != nil && !c.seg.Pattern.MatchString(tok) {
				continue
			}
			old, had := params[c.seg.Name]
			params[c.seg.Name] = tok
			if found, ok := search(c, rest, params); ok {
				return found, true
			}
			if had {
				params[c.seg.Name] = old
			} else {
				delete(params, c.seg.Name)
			}
		case uri.Optional:
			old, had := params[c.seg.Name]
			params[c.seg.Name] = tok
			if found, ok := search(c, rest, params); ok {
				return found, true
			}
			if had {
				params[c.seg.Name] = old
			} else {
				delete(params, c.seg.Name)
			}
		case uri.Greedy:
			params[c.seg.Name] = strings.Join(tokens, "/")
			if c.Value != nil {
				return c, true
			}
			delete(params, c.seg.Name)
		}
	}
	return nil, false
}

// ChildNames returns the segment names of n's non-hidden literal
// children, excluding "sys", for the default listing handler's
// {items:[...]} body and HTML index (§4.5).
func ChildNames(n *Node) []string {
	var names []string
	for key, c := range n.children {
		if c == n || c.Hidden {
			continue
		}
		if c.seg.Kind != uri.Literal {
			continue
		}
		if c.seg.Literal == "sys" {
			continue
		}
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}
