package handlerchain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/wikimedia/hyperswitch/internal/herr"
	"github.com/wikimedia/hyperswitch/message"
)

// predicate is a compiled `catch`/`return_if` mapping: a conjunction of
// field comparisons, each a disjunction over its value list. This is
// the "small interpreter over the predicate AST" the design notes call
// for in place of the source's generated-code predicates.
type predicate struct {
	fields []fieldPredicate
}

type fieldPredicate struct {
	field       string
	statusExact []int
	statusRegex []*regexp.Regexp
	values      []string // stable-stringified JSON, for non-status fields
}

var statusPattern = regexp.MustCompile(`^[0-9x]{3}$`)

// compilePredicate parses a `{field: value}` mapping (value or
// []value) into a predicate, per §4.6.
func compilePredicate(raw map[string]any) (*predicate, error) {
	p := &predicate{}
	for field, v := range raw {
		var values []any
		if arr, ok := v.([]any); ok {
			values = arr
		} else {
			values = []any{v}
		}
		fp := fieldPredicate{field: field}
		for _, item := range values {
			if field == "status" {
				switch t := item.(type) {
				case int:
					fp.statusExact = append(fp.statusExact, t)
				case float64:
					fp.statusExact = append(fp.statusExact, int(t))
				case string:
					if !statusPattern.MatchString(t) {
						return nil, fmt.Errorf("invalid status pattern %q", t)
					}
					expr := "^"
					for _, ch := range t {
						if ch == 'x' {
							expr += "[0-9]"
						} else {
							expr += string(ch)
						}
					}
					re := regexp.MustCompile(expr + "$")
					fp.statusRegex = append(fp.statusRegex, re)
				default:
					return nil, fmt.Errorf("invalid status predicate value %#v", item)
				}
				continue
			}
			fp.values = append(fp.values, stableJSON(item))
		}
		p.fields = append(p.fields, fp)
	}
	return p, nil
}

// Match reports whether resp satisfies every field predicate (AND of
// per-field ORs).
func (p *predicate) Match(resp *message.Response, err error) bool {
	if p == nil {
		return false
	}
	for _, fp := range p.fields {
		if !fp.match(resp, err) {
			return false
		}
	}
	return true
}

func (fp fieldPredicate) match(resp *message.Response, err error) bool {
	if fp.field == "status" {
		status := 0
		if resp != nil {
			status = resp.Status
		} else if he, ok := herr.AsError(err); ok {
			status = he.Status
		} else if err != nil {
			status = 500
		}
		for _, s := range fp.statusExact {
			if s == status {
				return true
			}
		}
		label := fmt.Sprintf("%dxx", status/100)
		for _, re := range fp.statusRegex {
			if re.MatchString(fmt.Sprintf("%03d", status)) || re.MatchString(label) {
				return true
			}
		}
		return false
	}

	actual := fieldValue(resp, fp.field)
	stable := stableJSON(actual)
	for _, v := range fp.values {
		if v == stable {
			return true
		}
	}
	return false
}

func fieldValue(resp *message.Response, field string) any {
	if resp == nil {
		return nil
	}
	switch field {
	case "status":
		return resp.Status
	default:
		obj, err := message.AsObject(resp.Body)
		if err != nil {
			return nil
		}
		if m, ok := obj.(map[string]any); ok {
			return m[field]
		}
		return nil
	}
}

// stableJSON renders v as canonical JSON (sorted object keys) so
// comparisons are shape-independent, per "compare by stable-stringified
// JSON".
func stableJSON(v any) string {
	b, err := json.Marshal(canonicalize(v))
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys)*2)
		for _, k := range keys {
			out = append(out, k, canonicalize(t[k]))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return t
	}
}
