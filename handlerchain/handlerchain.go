// Package handlerchain compiles the declarative x-request-handler
// chains of §4.6 into a filter.Func: an ordered list of steps, each a
// mapping of request-name to a stanza that may issue a sub-request,
// unconditionally or conditionally return it, or catch its failure.
//
// Grounded on skipper's filters/registry.go Spec vocabulary for the
// compiled-handler shape, and on the design-note decision to interpret
// predicates rather than string-concatenate host code.
package handlerchain

import (
	"fmt"
	"sync"

	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/internal/herr"
	"github.com/wikimedia/hyperswitch/message"
	"github.com/wikimedia/hyperswitch/openapi"
	"github.com/wikimedia/hyperswitch/template"
)

// stanza is one compiled request-name entry within a step.
type stanza struct {
	name        string
	requestTpl  *template.Template // nil if this stanza has no `request`
	returnFlag  bool               // literal `return: true`
	returnTpl   *template.Template // `return: <template>` form
	returnIf    *predicate
	catch       *predicate
}

type step struct {
	stanzas []stanza
}

// Chain is a compiled handler-chain, ready to run as a filter.Func via
// AsFilter.
type Chain struct {
	steps []step
}

// Compile validates and compiles rawSteps into a Chain, applying every
// hard-error rule of §4.6.
func Compile(rawSteps []openapi.Step) (*Chain, error) {
	if len(rawSteps) == 0 {
		return nil, fmt.Errorf("Invalid spec. x-request-handler must be a non-empty list.")
	}

	c := &Chain{}
	for i, raw := range rawSteps {
		st, err := compileStep(raw)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		c.steps = append(c.steps, st)
	}

	if err := validateReturnPlacement(c, rawSteps); err != nil {
		return nil, err
	}
	return c, nil
}

func compileStep(raw openapi.Step) (step, error) {
	var st step
	returningCount := 0
	for _, name := range raw.Names {
		body := raw.Stanzas[name]
		s := stanza{name: name}

		_, hasRequest := body["request"]
		returnVal, hasReturn := body["return"]
		_, hasReturnIf := body["return_if"]
		_, hasCatch := body["catch"]

		if hasReturnIf || hasCatch {
			if !hasRequest {
				return step{}, fmt.Errorf("Invalid spec. return_if and catch require a request.")
			}
		}
		if !hasRequest && !hasReturn {
			return step{}, fmt.Errorf("Invalid spec. Every stanza must have a request or a return.")
		}
		if hasReturn || hasReturnIf {
			returningCount++
		}

		if hasRequest {
			tpl, err := template.Compile(body["request"])
			if err != nil {
				return step{}, fmt.Errorf("compiling request template for %q: %w", name, err)
			}
			s.requestTpl = tpl
		}
		if hasReturn {
			if b, ok := returnVal.(bool); ok {
				s.returnFlag = b
			} else {
				tpl, err := template.Compile(returnVal)
				if err != nil {
					return step{}, fmt.Errorf("compiling return template for %q: %w", name, err)
				}
				s.returnTpl = tpl
			}
		}
		if hasReturnIf {
			m, _ := body["return_if"].(map[string]any)
			p, err := compilePredicate(m)
			if err != nil {
				return step{}, fmt.Errorf("compiling return_if for %q: %w", name, err)
			}
			s.returnIf = p
		}
		if hasCatch {
			m, _ := body["catch"].(map[string]any)
			p, err := compilePredicate(m)
			if err != nil {
				return step{}, fmt.Errorf("compiling catch for %q: %w", name, err)
			}
			s.catch = p
		}
		st.stanzas = append(st.stanzas, s)
	}

	if returningCount > 1 {
		return step{}, fmt.Errorf("Invalid spec. Returning requests cannot be parallel.")
	}
	return st, nil
}

// validateReturnPlacement enforces "if the final step is parallel, it
// must have an explicit return; if a single stanza without one,
// return is implied".
func validateReturnPlacement(c *Chain, raw []openapi.Step) error {
	last := c.steps[len(c.steps)-1]
	hasReturn := false
	for i, s := range last.stanzas {
		if s.returnFlag || s.returnTpl != nil || s.returnIf != nil {
			hasReturn = true
		}
		_ = i
	}
	if len(last.stanzas) > 1 && !hasReturn {
		return fmt.Errorf("Invalid spec. The final parallel step must have an explicit return.")
	}
	if len(last.stanzas) == 1 && !hasReturn {
		// return is implied for a single trailing stanza.
		last.stanzas[0].returnFlag = true
		c.steps[len(c.steps)-1] = last
	}
	return nil
}

// execContext is the per-invocation scratch state threaded through
// step execution: the template model and the first-wins return marker.
type execContext struct {
	model     map[string]any
	doReturn  string
	returnMu  sync.Mutex
}

func (e *execContext) setReturn(name string) {
	e.returnMu.Lock()
	defer e.returnMu.Unlock()
	if e.doReturn == "" {
		e.doReturn = name
	}
}

// AsFilter adapts the compiled Chain into the filter.Func contract so
// it can sit at the head of a route-tree method entry exactly like a
// host-language operationId handler.
func (c *Chain) AsFilter() filter.Func {
	return func(ctx filter.Context, req *message.Request, next filter.Next, _ map[string]any, info *filter.SpecInfo) (*message.Response, error) {
		return c.Run(ctx, req, info)
	}
}

// Run executes the chain against req, returning the final response
// selected by whichever stanza first set _doReturn. info, when supplied
// by the validator's head-of-chain coercion pass, overlays the typed
// (bool/number/object) parameter values onto the string-keyed
// request.params/request.query model a template placeholder like
// "{$.request.query.flag}" resolves against.
func (c *Chain) Run(ctx filter.Context, req *message.Request, info *filter.SpecInfo) (*message.Response, error) {
	ec := &execContext{model: ctx.Model()}
	if ec.model == nil {
		ec.model = map[string]any{}
	}
	ec.model["request"] = requestModel(req, info)

	for _, st := range c.steps {
		if err := runStep(ctx, ec, st); err != nil {
			return nil, err
		}
		if ec.doReturn != "" {
			break
		}
	}

	if ec.doReturn == "" {
		return nil, herr.ServerErrorEmptyResponse()
	}
	result := ec.model[ec.doReturn]
	if resp, ok := result.(*message.Response); ok {
		return resp, nil
	}
	if e, ok := result.(error); ok {
		return nil, e
	}
	return nil, herr.ServerErrorEmptyResponse()
}

func requestModel(req *message.Request, info *filter.SpecInfo) map[string]any {
	q := map[string]any{}
	for k, v := range req.Query {
		if len(v) == 1 {
			q[k] = v[0]
		} else {
			q[k] = v
		}
	}
	p := map[string]any{}
	for k, v := range req.Params {
		p[k] = v
	}
	if info != nil {
		if typed, ok := info.Params["query"].(map[string]any); ok {
			for k, v := range typed {
				q[k] = v
			}
		}
		if typed, ok := info.Params["params"].(map[string]any); ok {
			for k, v := range typed {
				p[k] = v
			}
		}
	}
	return map[string]any{
		"method": req.Method,
		"params": p,
		"query":  q,
	}
}

// runStep launches every stanza's request concurrently, waits for all
// to settle, then runs response-massaging in declaration order.
func runStep(ctx filter.Context, ec *execContext, st step) error {
	results := make([]stepResult, len(st.stanzas))
	var wg sync.WaitGroup
	for i, s := range st.stanzas {
		if s.requestTpl == nil {
			continue
		}
		wg.Add(1)
		go func(i int, s stanza) {
			defer wg.Done()
			results[i] = launch(ctx, ec, s)
		}(i, s)
	}
	wg.Wait()

	for i, s := range st.stanzas {
		if err := massage(ec, s, results[i]); err != nil {
			return err
		}
	}
	return nil
}

type stepResult struct {
	resp *message.Response
	err  error
}

func launch(ctx filter.Context, ec *execContext, s stanza) stepResult {
	v, _ := s.requestTpl.Expand(ec.model)
	reqMap, _ := v.(map[string]any)
	req := buildRequest(reqMap, ec.model)
	resp, err := ctx.Dispatch(req)
	return stepResult{resp: resp, err: err}
}

func buildRequest(reqMap map[string]any, model map[string]any) *message.Request {
	path, _ := reqMap["uri"].(string)
	req := message.NewRequest(path)
	if m, ok := reqMap["method"].(string); ok && m != "" {
		req.Method = m
	} else if rm, ok := model["request"].(map[string]any); ok {
		if m, ok := rm["method"].(string); ok && m != "" {
			req.Method = m
		}
	}
	if body, ok := reqMap["body"]; ok {
		req.Body = message.ObjectBody{Value: body}
	}
	if headers, ok := reqMap["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Headers.Set(k, fmt.Sprint(v))
		}
	}
	return req
}

// massage stores the settled result in the model (or swallows it via
// catch) and evaluates return/return_if, in stanza declaration order.
func massage(ec *execContext, s stanza, result stepResult) error {
	ec.returnMu.Lock()
	ec.model[s.name] = valueOrError(result)
	ec.returnMu.Unlock()

	if result.err != nil {
		if s.catch != nil && s.catch.Match(result.resp, result.err) {
			return nil
		}
		if he, ok := herr.AsError(result.err); ok {
			return &wrappedError{cause: he, requestName: s.name}
		}
		return &wrappedError{cause: herr.Internal(result.err), requestName: s.name}
	}

	if s.returnIf != nil {
		if s.returnIf.Match(result.resp, result.err) {
			ec.setReturn(s.name)
		}
		return nil
	}
	if s.returnTpl != nil {
		v, _ := s.returnTpl.Expand(ec.model)
		ec.returnMu.Lock()
		ec.model[s.name] = message.NewResponse(200, message.ObjectBody{Value: v})
		ec.returnMu.Unlock()
		ec.setReturn(s.name)
		return nil
	}
	if s.returnFlag {
		ec.setReturn(s.name)
	}
	return nil
}

func valueOrError(r stepResult) any {
	if r.err != nil {
		return r.err
	}
	return r.resp
}

// wrappedError tags a propagated sub-request failure with the stanza
// name that produced it, per §7's "re-thrown with requestName attached".
type wrappedError struct {
	cause       *herr.Error
	requestName string
}

func (w *wrappedError) Error() string { return w.cause.Error() }
func (w *wrappedError) Unwrap() error { return w.cause }
