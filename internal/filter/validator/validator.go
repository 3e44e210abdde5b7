// Package validator implements the "validator" stock filter: a
// JSON-Schema check over {params, query, headers, body} plus the
// non-string parameter coercion routine described in §4.7, compiled
// once per operation and cached for the life of the process. Grounded
// on skipper's filters/registry.go Spec/CreateFilter vocabulary; the
// JSON-Schema engine itself, github.com/xeipuuv/gojsonschema, is
// promoted here from an indirect dependency of the teacher repo (it
// arrives transitively through its OPA integration) to a direct one,
// since no example repo imports a JSON-Schema library any more
// prominently and none of them has a competing choice.
package validator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/internal/herr"
	"github.com/wikimedia/hyperswitch/message"
	"github.com/wikimedia/hyperswitch/openapi"
)

const Name = "validator"

// spec is the filter.Spec registered under Name.
type spec struct {
	mu    sync.Mutex
	cache map[*openapi.Operation]*compiled
}

// New returns the validator filter.Spec, ready to add to a
// filter.Registry.
func New() filter.Spec { return &spec{cache: map[*openapi.Operation]*compiled{}} }

func (s *spec) Name() string { return Name }

// CreateFilter binds the validator to one operation's parameter list
// and body schema, passed in options["operation"] by the spec loader
// when it mounts the stock filter head-of-chain.
func (s *spec) CreateFilter(options map[string]any) (filter.Func, error) {
	op, _ := options["operation"].(*openapi.Operation)
	if op == nil {
		return passthrough, nil
	}
	c, err := s.compileFor(op)
	if err != nil {
		return nil, err
	}
	return c.filter, nil
}

func passthrough(ctx filter.Context, req *message.Request, next filter.Next, _ map[string]any, info *filter.SpecInfo) (*message.Response, error) {
	return next(req)
}

func (s *spec) compileFor(op *openapi.Operation) (*compiled, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cache[op]; ok {
		return c, nil
	}
	c, err := compile(op)
	if err != nil {
		return nil, err
	}
	s.cache[op] = c
	return c, nil
}

type paramSpec struct {
	name     string
	in       string
	required bool
	typ      string
	schema   *gojsonschema.Schema
	rawSchema map[string]any
}

type compiled struct {
	params      []paramSpec
	bodySchema  *gojsonschema.Schema
	requiresJSONBody bool
}

func compile(op *openapi.Operation) (*compiled, error) {
	c := &compiled{}
	for _, p := range op.Parameters {
		ps := paramSpec{name: p.Name, in: strings.ToLower(p.In), required: p.Required, rawSchema: p.Schema}
		if t, ok := p.Schema["type"].(string); ok {
			ps.typ = t
		}
		if len(p.Schema) > 0 {
			loader := gojsonschema.NewGoLoader(p.Schema)
			sch, err := gojsonschema.NewSchema(loader)
			if err != nil {
				return nil, fmt.Errorf("compiling schema for parameter %q: %w", p.Name, err)
			}
			ps.schema = sch
		}
		c.params = append(c.params, ps)
	}
	if op.RequestBody != nil {
		content, _ := op.RequestBody["content"].(map[string]any)
		if js, ok := content["application/json"].(map[string]any); ok {
			c.requiresJSONBody = true
			if sm, ok := js["schema"].(map[string]any); ok {
				loader := gojsonschema.NewGoLoader(sm)
				sch, err := gojsonschema.NewSchema(loader)
				if err != nil {
					return nil, fmt.Errorf("compiling request body schema: %w", err)
				}
				c.bodySchema = sch
			}
		}
	}
	return c, nil
}

func (c *compiled) filter(ctx filter.Context, req *message.Request, next filter.Next, _ map[string]any, info *filter.SpecInfo) (*message.Response, error) {
	for _, p := range c.params {
		if err := c.validateParam(req, p, info); err != nil {
			return nil, err
		}
	}
	if c.bodySchema != nil {
		if err := c.validateBody(req); err != nil {
			return nil, err
		}
	}
	return next(req)
}

func (c *compiled) validateParam(req *message.Request, p paramSpec, info *filter.SpecInfo) error {
	raw, present := rawValue(req, p)
	if !present {
		if p.required {
			return herr.BadRequest(fmt.Sprintf("data.%s.%s is required", locationKey(p.in), p.name))
		}
		return nil
	}

	// A body parameter is left uncoerced under a JSON content type. Note
	// that rawValue reads only query, path and header values, so a
	// parameter declared in "body" never gets this far: body fields are
	// not coerced for any content type.
	if p.in == "body" && req.Header("Content-Type") != "" && strings.Contains(strings.ToLower(req.Header("Content-Type")), "json") {
		return nil
	}

	value, err := coerce(raw, p.typ)
	if err != nil {
		return herr.BadRequest(fmt.Sprintf("data.%s.%s %s", locationKey(p.in), p.name, err.Error()))
	}
	writeBack(req, p, value, info)

	if p.schema != nil {
		result, err := p.schema.Validate(gojsonschema.NewGoLoader(value))
		if err != nil {
			return herr.Internal(err)
		}
		if !result.Valid() {
			return herr.BadRequest(describeSchemaFailure(locationKey(p.in), p.name, p.rawSchema, result))
		}
	}
	return nil
}

func (c *compiled) validateBody(req *message.Request) error {
	obj, err := message.AsObject(req.Body)
	if err != nil {
		return herr.InvalidRequest("request body is not valid JSON", err)
	}
	result, err := c.bodySchema.Validate(gojsonschema.NewGoLoader(obj))
	if err != nil {
		return herr.Internal(err)
	}
	if !result.Valid() {
		return herr.BadRequest(describeSchemaFailure("body", "", nil, result))
	}
	return nil
}

func locationKey(in string) string {
	switch in {
	case "query":
		return "query"
	case "path":
		return "params"
	case "header":
		return "headers"
	default:
		return in
	}
}

func rawValue(req *message.Request, p paramSpec) (string, bool) {
	switch p.in {
	case "query":
		if _, ok := req.Query[p.name]; !ok {
			return "", false
		}
		return req.QueryValue(p.name), true
	case "path":
		v, ok := req.Params[p.name]
		return v, ok
	case "header":
		v := req.Header(p.name)
		return v, v != ""
	}
	return "", false
}

// writeBack keeps path/query values as strings at the Request level,
// re-stringifying a coerced non-string value (e.g. "True" -> "true")
// to its canonical form, and for a query or path parameter also
// stashes the typed coercion result on info.Params so
// handlerchain.requestModel can overlay it onto request.params/
// request.query with the actual in-memory boolean/number a template
// placeholder resolves to, rather than the re-stringified form.
func writeBack(req *message.Request, p paramSpec, value any, info *filter.SpecInfo) {
	s, isString := value.(string)
	if !isString {
		if raw, err := json.Marshal(value); err == nil {
			s = string(raw)
		} else {
			s = fmt.Sprint(value)
		}
	}
	switch p.in {
	case "query":
		req.Query.Set(p.name, s)
	case "path":
		req.Params[p.name] = s
	}

	loc := locationKey(p.in)
	if info == nil || (loc != "query" && loc != "params") {
		return
	}
	if info.Params == nil {
		info.Params = map[string]any{}
	}
	bucket, _ := info.Params[loc].(map[string]any)
	if bucket == nil {
		bucket = map[string]any{}
		info.Params[loc] = bucket
	}
	bucket[p.name] = value
}

var boolTrue = regexp.MustCompile(`(?i)^(true|1|yes)$`)
var boolFalse = regexp.MustCompile(`(?i)^(false|0|no)$`)

// coerce converts a string parameter value into the declared JSON type.
// It returns the coerced Go value (bool/float64/map/slice/string) and,
// for a failing numeric/boolean coercion, an error whose text matches
// the "should be a <type>" detail format used throughout the spec.
func coerce(raw, typ string) (any, error) {
	switch typ {
	case "integer":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("should be an integer")
		}
		return float64(n), nil
	case "number":
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("should be a number")
		}
		return n, nil
	case "boolean":
		switch {
		case boolTrue.MatchString(raw):
			return true, nil
		case boolFalse.MatchString(raw):
			return false, nil
		default:
			return nil, fmt.Errorf("should be a boolean")
		}
	case "object", "array":
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("should be valid JSON")
		}
		return v, nil
	default:
		return raw, nil
	}
}

// describeSchemaFailure formats the first validation error in the
// "data.<location>.<name> should be ..." shape §8's testable properties
// pin down exactly, including the enum-values-listed variant.
func describeSchemaFailure(location, name string, rawSchema map[string]any, result *gojsonschema.Result) string {
	prefix := "data." + location
	if name != "" {
		prefix += "." + name
	}
	errs := result.Errors()
	if len(errs) == 0 {
		return prefix + " is invalid"
	}
	first := errs[0]
	if first.Type() == "enum" {
		var allowed []string
		if enum, ok := rawSchema["enum"].([]any); ok {
			for _, e := range enum {
				allowed = append(allowed, fmt.Sprint(e))
			}
		} else if enum, ok := first.Details()["allowed"].([]any); ok {
			for _, e := range enum {
				allowed = append(allowed, fmt.Sprint(e))
			}
		}
		return fmt.Sprintf("%s should be equal to one of the allowed values: [%s]", prefix, strings.Join(allowed, ", "))
	}
	return prefix + " " + first.Description()
}
