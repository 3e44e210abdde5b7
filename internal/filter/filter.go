// Package filter defines the wrapping-middleware contract every stock
// and user filter is built against, plus the outer-to-inner chain
// builder the route tree's compiled method entries use at dispatch
// time. It intentionally knows nothing about the dispatcher itself
// (only the narrow Context interface a dispatcher-side type
// implements), so the dependency runs one way and there is no import
// cycle: dispatch imports filter, filter never imports dispatch.
package filter

import (
	"github.com/wikimedia/hyperswitch/internal/log"
	"github.com/wikimedia/hyperswitch/internal/metrics"
	"github.com/wikimedia/hyperswitch/internal/ratelimit"
	"github.com/wikimedia/hyperswitch/message"
)

// Context is the slice of a per-request dispatcher context that filter
// and handler code is allowed to see. dispatch.Context implements it.
type Context interface {
	RequestID() string
	Depth() int
	Class() message.Class
	Model() map[string]any
	Logger() log.Logger
	Metrics() metrics.Recorder
	RateLimiter() ratelimit.Limiter
	Globals() map[string]any

	// Dispatch issues req as a child request, incrementing depth and
	// inheriting requestId/class rules the way §4.5's child-context
	// paragraph describes.
	Dispatch(req *message.Request) (*message.Response, error)
}

// SpecInfo is the read-only operation metadata passed to every filter
// invocation, letting a filter log or label metrics without reaching
// back into the route tree.
type SpecInfo struct {
	OperationID string
	Path        string
	Method      string
	// Params carries the validator's typed coercion results, keyed by
	// location ("query", "params") then parameter name, so a
	// terminal handler further down the same chain (e.g.
	// handlerchain.Chain) can read back the in-memory bool/number a
	// raw string param coerced to instead of its re-stringified form.
	Params map[string]any
}

// Next invokes the remainder of the chain (the next filter, or the
// terminal handler once every filter has run).
type Next func(req *message.Request) (*message.Response, error)

// Func is the filter contract itself: fn(ctx, req, next, options, info).
type Func func(ctx Context, req *message.Request, next Next, options map[string]any, info *SpecInfo) (*message.Response, error)

// Spec is a named filter factory, registered once and instantiated per
// mount point with that mount's options.
type Spec interface {
	Name() string
	CreateFilter(options map[string]any) (Func, error)
}

// Registry resolves filter names declared in x-route-filters (and
// friends) to a Spec.
type Registry interface {
	Add(specs ...Spec)
	Get(name string) (Spec, bool)
}

type registry struct {
	specs map[string]Spec
}

// NewRegistry returns an empty, mutable filter Registry.
func NewRegistry() Registry {
	return &registry{specs: map[string]Spec{}}
}

func (r *registry) Add(specs ...Spec) {
	for _, s := range specs {
		r.specs[s.Name()] = s
	}
}

func (r *registry) Get(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Entry is one compiled filter mounted on a route-tree node: the
// instantiated Func plus the method it is scoped to, if any.
type Entry struct {
	Fn      Func
	Name    string
	Options map[string]any
	Method  string // "" means unscoped: applies to every method
}

// Applies reports whether e participates for a request using reqMethod,
// applying the "get-scoped filters also serve head" aliasing rule.
func (e Entry) Applies(reqMethod string) bool {
	if e.Method == "" {
		return true
	}
	if e.Method == reqMethod {
		return true
	}
	return e.Method == "get" && reqMethod == "head"
}

// Chain composes entries outer-to-inner around terminal and returns a
// Next bound to req's method, ready to invoke. Entries scoped to a
// method that doesn't apply are skipped transparently, per §4.4.
func Chain(ctx Context, entries []Entry, reqMethod string, info *SpecInfo, terminal Func) Next {
	return build(ctx, entries, 0, reqMethod, info, terminal)
}

func build(ctx Context, entries []Entry, idx int, reqMethod string, info *SpecInfo, terminal Func) Next {
	if idx >= len(entries) {
		return func(req *message.Request) (*message.Response, error) {
			return terminal(ctx, req, nil, nil, info)
		}
	}
	e := entries[idx]
	rest := build(ctx, entries, idx+1, reqMethod, info, terminal)
	if !e.Applies(reqMethod) {
		return rest
	}
	return func(req *message.Request) (*message.Response, error) {
		return e.Fn(ctx, req, rest, e.Options, info)
	}
}
