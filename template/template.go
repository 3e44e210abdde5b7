// Package template compiles declarative objects (request URIs, bodies,
// headers) that reference a runtime model through "{$.dotted.path}"
// placeholders, and expands them against a concrete model at request
// time.
//
// Compilation happens once, at spec-load time: Compile walks the input
// value and builds a small placeholder AST, mirroring the parse-once
// shape of eskip/template.go rather than re-scanning strings on every
// expansion.
package template

import (
	"fmt"
	"strings"
)

// ProtectedKey is the options field name that is never recursively
// expanded, so modules may carry raw templates as data.
const ProtectedKey = "templates"

// Undefined is returned in place of a placeholder whose dotted path did
// not resolve against the model.
type Undefined struct{ Path string }

func (u Undefined) String() string { return "undefined" }

type kind int

const (
	kindLiteral kind = iota
	kindRef
	kindConcat
	kindObject
	kindArray
)

type node struct {
	kind    kind
	literal any
	ref     string
	parts   []node
	keys    []string
	fields  map[string]node
	items   []node
}

// Template is a parsed, reusable placeholder tree.
type Template struct {
	root node
}

// Compile parses v into a Template with no protected keys.
func Compile(v any) (*Template, error) {
	return CompileExempt(v, nil)
}

// CompileExempt parses v, treating any object field whose name is in
// exempt (such as ProtectedKey) as opaque data that is never expanded.
func CompileExempt(v any, exempt map[string]bool) (*Template, error) {
	n, err := compileValue(v, exempt)
	if err != nil {
		return nil, err
	}
	return &Template{root: n}, nil
}

func compileValue(v any, exempt map[string]bool) (node, error) {
	switch t := v.(type) {
	case string:
		return compileString(t)
	case map[string]any:
		fields := make(map[string]node, len(t))
		keys := make([]string, 0, len(t))
		for k, fv := range t {
			keys = append(keys, k)
			if exempt[k] {
				fields[k] = node{kind: kindLiteral, literal: fv}
				continue
			}
			cn, err := compileValue(fv, exempt)
			if err != nil {
				return node{}, err
			}
			fields[k] = cn
		}
		return node{kind: kindObject, fields: fields, keys: keys}, nil
	case []any:
		items := make([]node, 0, len(t))
		for _, iv := range t {
			cn, err := compileValue(iv, exempt)
			if err != nil {
				return node{}, err
			}
			items = append(items, cn)
		}
		return node{kind: kindArray, items: items}, nil
	default:
		return node{kind: kindLiteral, literal: v}, nil
	}
}

// compileString scans s for "{...}" placeholders. A string that is
// exactly one placeholder compiles to a bare reference, preserving the
// resolved value's original type; a string with embedded placeholders
// compiles to a concatenation, coercing each reference to text.
func compileString(s string) (node, error) {
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") && strings.Count(s, "{") == 1 {
		return node{kind: kindRef, ref: normalizeRef(s[1 : len(s)-1])}, nil
	}

	var parts []node
	i := 0
	for i < len(s) {
		open := strings.IndexByte(s[i:], '{')
		if open < 0 {
			parts = append(parts, node{kind: kindLiteral, literal: s[i:]})
			break
		}
		open += i
		if open > i {
			parts = append(parts, node{kind: kindLiteral, literal: s[i:open]})
		}
		closeIdx := strings.IndexByte(s[open:], '}')
		if closeIdx < 0 {
			return node{}, fmt.Errorf("unterminated placeholder in %q", s)
		}
		closeIdx += open
		parts = append(parts, node{kind: kindRef, ref: normalizeRef(s[open+1 : closeIdx])})
		i = closeIdx + 1
	}

	if len(parts) == 1 && parts[0].kind == kindLiteral {
		return parts[0], nil
	}
	return node{kind: kindConcat, parts: parts}, nil
}

func normalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "$.")
	ref = strings.TrimPrefix(ref, "$")
	return ref
}

// Expand resolves the compiled template against model, returning the
// expanded value and any diagnostics for unresolved placeholders. Errors
// are informational: expansion always produces a value (missing paths
// become Undefined), matching "expansion errors are attached ... not
// swallowed".
func (t *Template) Expand(model map[string]any) (any, []error) {
	var errs []error
	v := expandNode(t.root, model, &errs)
	return v, errs
}

func expandNode(n node, model map[string]any, errs *[]error) any {
	switch n.kind {
	case kindLiteral:
		return n.literal
	case kindRef:
		v, ok := lookup(model, n.ref)
		if !ok {
			*errs = append(*errs, fmt.Errorf("undefined reference: %s", n.ref))
			return Undefined{Path: n.ref}
		}
		return v
	case kindConcat:
		var b strings.Builder
		for _, p := range n.parts {
			v := expandNode(p, model, errs)
			b.WriteString(stringify(v))
		}
		return b.String()
	case kindObject:
		out := make(map[string]any, len(n.fields))
		for _, k := range n.keys {
			out[k] = expandNode(n.fields[k], model, errs)
		}
		return out
	case kindArray:
		out := make([]any, len(n.items))
		for i, item := range n.items {
			out[i] = expandNode(item, model, errs)
		}
		return out
	default:
		return nil
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case Undefined:
		return "undefined"
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func lookup(model map[string]any, path string) (any, bool) {
	if path == "" {
		return model, true
	}
	var cur any = model
	for _, p := range strings.Split(path, ".") {
		if p == "" {
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
