// Package ratelimitfilter implements the "ratelimit_route" stock
// filter: a per-(service,path,method)-or-client-IP throttle, grounded
// on ratelimit/registry.go's keyed-limiter-lookup shape (§4.7).
package ratelimitfilter

import (
	"fmt"

	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/internal/herr"
	"github.com/wikimedia/hyperswitch/internal/ratelimit"
	"github.com/wikimedia/hyperswitch/message"
)

const Name = "ratelimit_route"

type spec struct{}

func New() filter.Spec { return spec{} }

func (spec) Name() string { return Name }

type options struct {
	serviceName   string
	ratePerSecond float64
	burst         int
	perClient     bool
	logOnly       bool
}

func (spec) CreateFilter(raw map[string]any) (filter.Func, error) {
	o := options{ratePerSecond: 10, burst: 10}
	if v, ok := raw["service_name"].(string); ok {
		o.serviceName = v
	}
	if v, ok := raw["rate"].(float64); ok {
		o.ratePerSecond = v
	}
	if v, ok := raw["burst"].(int); ok {
		o.burst = v
	}
	if v, ok := raw["per_client"].(bool); ok {
		o.perClient = v
	}
	if v, ok := raw["log_only"].(bool); ok {
		o.logOnly = v
	}
	return func(ctx filter.Context, req *message.Request, next filter.Next, _ map[string]any, info *filter.SpecInfo) (*message.Response, error) {
		key := ratelimit.Key(o.serviceName, info.Path, req.Method)
		if o.perClient {
			key = req.Header("x-client-ip")
			if key == "" {
				key = "unknown"
			}
		}
		if !ctx.RateLimiter().Allow(key, o.ratePerSecond, o.burst) {
			ctx.Logger().Warnf("rate limit exceeded for %s", key)
			if !o.logOnly {
				return nil, herr.RateExceeded(fmt.Sprintf("rate limit exceeded for %s", key))
			}
		}
		return next(req)
	}, nil
}
