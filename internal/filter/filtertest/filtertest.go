// Package filtertest provides a minimal filter.Context implementation
// for stock-filter unit tests, grounded on skipper's own
// filters/filtertest fake-context idiom.
package filtertest

import (
	"github.com/wikimedia/hyperswitch/internal/log"
	"github.com/wikimedia/hyperswitch/internal/metrics"
	"github.com/wikimedia/hyperswitch/internal/ratelimit"
	"github.com/wikimedia/hyperswitch/message"
)

// Context is a fake filter.Context that records nothing beyond a
// scratch model, suitable for exercising a single filter in isolation.
type Context struct {
	ID     string
	D      int
	Cls    message.Class
	M      map[string]any
	Global map[string]any
	Log    log.Logger
	Metric metrics.Recorder
	RL     ratelimit.Limiter

	DispatchFunc func(*message.Request) (*message.Response, error)
}

// NewContext returns a Context with sane defaults (noop logger/metrics/
// rate-limiter, empty model) for tests that don't care about them.
func NewContext() *Context {
	return &Context{
		ID:     "test-request-id",
		Cls:    message.ClassExternal,
		M:      map[string]any{},
		Global: map[string]any{},
		Log:    log.Noop(),
		Metric: metrics.Noop(),
		RL:     ratelimit.Noop(),
	}
}

func (c *Context) RequestID() string             { return c.ID }
func (c *Context) Depth() int                    { return c.D }
func (c *Context) Class() message.Class          { return c.Cls }
func (c *Context) Model() map[string]any         { return c.M }
func (c *Context) Logger() log.Logger            { return c.Log }
func (c *Context) Metrics() metrics.Recorder     { return c.Metric }
func (c *Context) RateLimiter() ratelimit.Limiter { return c.RL }
func (c *Context) Globals() map[string]any       { return c.Global }

func (c *Context) Dispatch(req *message.Request) (*message.Response, error) {
	if c.DispatchFunc != nil {
		return c.DispatchFunc(req)
	}
	return message.NewResponse(200, nil), nil
}
