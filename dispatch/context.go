package dispatch

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/wikimedia/hyperswitch/internal/log"
	"github.com/wikimedia/hyperswitch/internal/metrics"
	"github.com/wikimedia/hyperswitch/internal/ratelimit"
	"github.com/wikimedia/hyperswitch/message"
)

// forwardedHeaders are the root-request headers §4.5's "child context"
// paragraph requires every sub-request to inherit, e.g. so
// ratelimitfilter's per-client keying still sees the real client
// instead of falling back to its "unknown" bucket for recursive calls.
var forwardedHeaders = []string{"user-agent", "x-client-ip"}

// Context is the per-request child-dispatcher instance of §3: it
// carries the request id, recursion depth, request class, the
// observability collaborators, and a scratch model for template
// expansion, plus a weak (non-owning) back-reference to its parent for
// diagnostics only. Grounded on proxy/context.go's per-request state
// bag, reshaped around the spec's Context interface instead of an
// http.Request/http.ResponseWriter pair since the engine has no socket
// of its own.
type Context struct {
	id          string
	depth       int
	class       message.Class
	model       map[string]any
	logger      log.Logger
	metrics     metrics.Recorder
	rateLimiter ratelimit.Limiter
	globals     map[string]any
	rootRequest *message.Request
	parent      *Context
	dispatcher  *Dispatcher
}

func (c *Context) RequestID() string             { return c.id }
func (c *Context) Depth() int                    { return c.depth }
func (c *Context) Class() message.Class          { return c.class }
func (c *Context) Model() map[string]any         { return c.model }
func (c *Context) Logger() log.Logger            { return c.logger }
func (c *Context) Metrics() metrics.Recorder     { return c.metrics }
func (c *Context) RateLimiter() ratelimit.Limiter { return c.rateLimiter }
func (c *Context) Globals() map[string]any       { return c.globals }

// RootRequest returns the original externally-issued request that
// started this call chain, for diagnostics.
func (c *Context) RootRequest() *message.Request { return c.rootRequest }

// Parent returns the context that issued this one as a sub-request, or
// nil for the root of a chain. Non-owning: callers must not retain it
// beyond the lifetime of the request it was obtained from.
func (c *Context) Parent() *Context { return c.parent }

// Dispatch issues req as a child request: same request id, incremented
// depth, class demoted to "internal" unless the caller is itself the
// privileged startup context, and every observability collaborator
// inherited unchanged, per §4.5's "child context" paragraph.
func (c *Context) Dispatch(req *message.Request) (*message.Response, error) {
	forwardHeaders(c.rootRequest, req)
	child := &Context{
		id:          c.id,
		depth:       c.depth + 1,
		class:       childClass(c.class),
		model:       map[string]any{},
		logger:      c.logger,
		metrics:     c.metrics,
		rateLimiter: c.rateLimiter,
		globals:     c.globals,
		rootRequest: c.rootRequest,
		parent:      c,
		dispatcher:  c.dispatcher,
	}
	return c.dispatcher.filteredRequest(child, req)
}

// forwardHeaders copies forwardedHeaders from root onto child wherever
// child doesn't already carry its own value, so a recursively-issued
// sub-request still looks like it came from the same caller.
func forwardHeaders(root, child *message.Request) {
	if root == nil || child == nil {
		return
	}
	for _, name := range forwardedHeaders {
		if v := root.Header(name); v != "" && child.Header(name) == "" {
			if child.Headers == nil {
				child.Headers = http.Header{}
			}
			child.Headers.Set(name, v)
		}
	}
}

func childClass(parent message.Class) message.Class {
	if parent == message.ClassInternalStartup {
		return message.ClassInternalStartup
	}
	return message.ClassInternal
}

func newRequestID(req *message.Request) string {
	if id := req.Header("x-request-id"); id != "" {
		return id
	}
	return uuid.NewString()
}
