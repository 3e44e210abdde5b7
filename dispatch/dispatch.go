// Package dispatch implements the request dispatcher of §4.5: routing
// a request against the sealed route tree, enforcing the recursion cap
// and the direct-/sys protection, wrapping the resolved handler in its
// filter stack, and normalising whatever the handler produces into a
// response or a typed error.
//
// Grounded on proxy/proxy.go's request lifecycle (route lookup, filter
// wrapping, response normalisation) and proxy/context.go's per-request
// state, reshaped around the spec's in-process Context/Dispatch
// contract instead of an http.ResponseWriter-bound proxy loop.
package dispatch

import (
	"strings"

	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/internal/herr"
	"github.com/wikimedia/hyperswitch/internal/log"
	"github.com/wikimedia/hyperswitch/internal/metrics"
	"github.com/wikimedia/hyperswitch/internal/ratelimit"
	"github.com/wikimedia/hyperswitch/message"
	"github.com/wikimedia/hyperswitch/routetree"
)

// Options configures a Dispatcher.
type Options struct {
	MaxDepth          int // default 10, per §6
	Logger            log.Logger
	Metrics           metrics.Recorder
	RateLimiter       ratelimit.Limiter
	RequestFilters    []filter.Entry // x-request-filters: depth 0 only
	SubRequestFilters []filter.Entry // x-sub-request-filters: depth > 0
	DefaultErrorURI   string
	Docs              Docs
}

const defaultMaxDepth = 10

// Docs is the external documentation collaborator §4.5 delegates to
// for the HTML/`?path=` listing behaviours; out of scope for the core
// engine (§1), so it is an interface a host application supplies.
type Docs interface {
	Serve(ctx *Context, req *message.Request) (*message.Response, error)
}

// Dispatcher is the sealed, immutable engine: a route tree plus the
// collaborators every request needs. Safe for concurrent use.
type Dispatcher struct {
	root              *routetree.Node
	maxDepth          int
	logger            log.Logger
	metricsRec        metrics.Recorder
	rateLimiter       ratelimit.Limiter
	requestFilters    []filter.Entry
	subRequestFilters []filter.Entry
	errorBaseURI      string
	docs              Docs
}

// New returns a Dispatcher serving root.
func New(root *routetree.Node, opts Options) *Dispatcher {
	d := &Dispatcher{
		root:              root,
		maxDepth:          opts.MaxDepth,
		logger:            opts.Logger,
		metricsRec:        opts.Metrics,
		rateLimiter:       opts.RateLimiter,
		requestFilters:    opts.RequestFilters,
		subRequestFilters: opts.SubRequestFilters,
		errorBaseURI:      opts.DefaultErrorURI,
		docs:              opts.Docs,
	}
	if d.maxDepth <= 0 {
		d.maxDepth = defaultMaxDepth
	}
	if d.logger == nil {
		d.logger = log.Noop()
	}
	if d.metricsRec == nil {
		d.metricsRec = metrics.Noop()
	}
	if d.rateLimiter == nil {
		d.rateLimiter = ratelimit.Noop()
	}
	return d
}

// Request is the public entry for an externally originated request:
// method is lower-cased, a request id is assigned if absent, and the
// call proceeds as depth-0, class=external.
func (d *Dispatcher) Request(req *message.Request) (*message.Response, error) {
	return d.enter(req, message.ClassExternal)
}

// RequestStartup issues req as the privileged resource-phase entry
// point of §5: depth 0, class=internal_startup, bypassing the direct
// -/sys protection that an ordinary external depth-0 request hits.
func (d *Dispatcher) RequestStartup(req *message.Request) (*message.Response, error) {
	return d.enter(req, message.ClassInternalStartup)
}

func (d *Dispatcher) enter(req *message.Request, class message.Class) (*message.Response, error) {
	req.Method = strings.ToLower(req.Method)
	ctx := &Context{
		id:          newRequestID(req),
		depth:       0,
		class:       class,
		model:       map[string]any{},
		logger:      d.logger,
		metrics:     d.metricsRec,
		rateLimiter: d.rateLimiter,
		rootRequest: req,
		dispatcher:  d,
	}
	return d.filteredRequest(ctx, req)
}

// filteredRequest enforces the recursion cap, clones req shallowly,
// and wraps routeAndInvoke in the request- or sub-request-level filter
// stack depending on ctx's depth, per §4.5.
func (d *Dispatcher) filteredRequest(ctx *Context, req *message.Request) (*message.Response, error) {
	entryNumber := ctx.depth + 1
	if entryNumber > d.maxDepth {
		return nil, herr.RecursionDepthExceeded(entryNumber, d.maxDepth)
	}

	clone := message.Clone(req)

	entries := d.subRequestFilters
	if ctx.depth == 0 {
		entries = d.requestFilters
	}

	terminal := func(fc filter.Context, r *message.Request, _ filter.Next, _ map[string]any, _ *filter.SpecInfo) (*message.Response, error) {
		return d.routeAndInvoke(ctx, r)
	}
	next := filter.Chain(ctx, entries, clone.Method, nil, terminal)
	resp, err := next(clone)
	return normalizeResponse(resp, err, clone, d.errorBaseURI)
}

// routeAndInvoke resolves clone against the tree and, on a match, runs
// the resolved method's filter-wrapped handler.
func (d *Dispatcher) routeAndInvoke(ctx *Context, req *message.Request) (*message.Response, error) {
	node, params, ok := routetree.Lookup(d.root, req.Path)
	if !ok {
		if strings.HasSuffix(req.Path, "/") {
			return d.listing(ctx, req)
		}
		return nil, herr.NotFoundRoute()
	}

	for k, v := range params {
		req.Params[k] = v
	}

	if ctx.depth == 0 && ctx.class != message.ClassInternalStartup && isSysPath(req.Path) {
		return nil, herr.ForbiddenSys()
	}

	verb := req.Method
	entry, ok := node.Value.Methods[verb]
	headFallback := false
	if !ok && verb == "head" {
		entry, ok = node.Value.Methods["get"]
		headFallback = true
	}
	if !ok {
		if strings.HasSuffix(req.Path, "/") {
			return d.listing(ctx, req)
		}
		return nil, herr.NotFoundRoute()
	}

	info := &filter.SpecInfo{Path: node.Value.Path, Method: verb}
	if entry.Operation != nil {
		info.OperationID = entry.Operation.OperationID
	}

	entries := append(append([]filter.Entry{}, node.Value.Filters...), entry.Filters...)
	next := filter.Chain(ctx, entries, verb, info, entry.Handler)
	resp, err := next(req)
	if err != nil {
		return nil, err
	}
	if headFallback && resp != nil {
		resp = &message.Response{Status: resp.Status, Headers: resp.Headers}
	}
	return resp, nil
}

// isSysPath reports whether path's second segment is the reserved
// "sys" name, the boundary §6 places off-limits to depth-0 requests.
func isSysPath(path string) bool {
	trimmed := strings.TrimPrefix(path, "/")
	segs := strings.SplitN(trimmed, "/", 3)
	return len(segs) >= 2 && segs[1] == "sys"
}

// normalizeResponse implements §4.5's response-normalisation rule: no
// response is a 500, an unwrapped error-shaped status is wrapped with
// a compact capture of the request that produced it, everything else
// passes through unchanged.
func normalizeResponse(resp *message.Response, err error, req *message.Request, errorBaseURI string) (*message.Response, error) {
	if err != nil {
		if he, ok := herr.AsError(err); ok {
			return nil, he.WithRequest(req.Method, req.Path).WithTypeBaseURI(errorBaseURI)
		}
		return nil, herr.Internal(err).WithRequest(req.Method, req.Path).WithTypeBaseURI(errorBaseURI)
	}
	if resp == nil {
		return nil, herr.ServerErrorEmptyResponse().WithRequest(req.Method, req.Path).WithTypeBaseURI(errorBaseURI)
	}
	if !resp.IsError() {
		return resp, nil
	}
	if alreadyErrorShaped(resp) {
		return resp, nil
	}
	return nil, herr.FromStatus(resp.Status, "the handler responded with an error status").WithRequest(req.Method, req.Path).WithTypeBaseURI(errorBaseURI)
}

func alreadyErrorShaped(resp *message.Response) bool {
	obj, err := message.AsObject(resp.Body)
	if err != nil {
		return false
	}
	m, ok := obj.(map[string]any)
	if !ok {
		return false
	}
	_, hasType := m["type"]
	return hasType
}
