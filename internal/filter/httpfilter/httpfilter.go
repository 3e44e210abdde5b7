// Package httpfilter implements the "http" stock filter: outbound
// forwarding for requests whose URI is already absolute, bypassing
// local routing entirely, with per-host header allow-listing and
// request-id propagation (§4.7). The outbound transport itself is an
// injected collaborator (out of scope per §1); this package only wires
// the filter contract around it, grounded on proxy/proxy.go's
// backend-call shape.
package httpfilter

import (
	"context"
	"net/http"

	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/internal/herr"
	"github.com/wikimedia/hyperswitch/message"
)

const Name = "http"

// Client is the outbound HTTP collaborator injected by the host
// application; it is explicitly out of scope for this engine (§1).
type Client interface {
	Do(ctx context.Context, req *message.Request) (*message.Response, error)
}

type spec struct {
	client Client
}

// New returns the http filter.Spec bound to client.
func New(client Client) filter.Spec { return &spec{client: client} }

func (*spec) Name() string { return Name }

func (s *spec) CreateFilter(raw map[string]any) (filter.Func, error) {
	var allowHeaders map[string][]string
	if m, ok := raw["forward_headers"].(map[string][]string); ok {
		allowHeaders = m
	}
	return func(ctx filter.Context, req *message.Request, next filter.Next, _ map[string]any, info *filter.SpecInfo) (*message.Response, error) {
		if !req.IsAbsoluteURI() {
			return next(req)
		}
		if s.client == nil {
			return nil, herr.Internal(nil)
		}
		outbound := filterHeaders(req, allowHeaders)
		outbound.Headers.Set("x-request-id", ctx.RequestID())
		return s.client.Do(context.Background(), outbound)
	}, nil
}

func filterHeaders(req *message.Request, allow map[string][]string) *message.Request {
	out := message.Clone(req)
	if allow == nil {
		return out
	}
	host := req.Host
	permitted := allow[host]
	if permitted == nil {
		permitted = allow["*"]
	}
	kept := out.Headers.Clone()
	out.Headers = http.Header{}
	for _, h := range permitted {
		if v := kept.Values(h); len(v) > 0 {
			out.Headers[http.CanonicalHeaderKey(h)] = v
		}
	}
	return out
}
