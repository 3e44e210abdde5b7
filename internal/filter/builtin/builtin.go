// Package builtin wires the stock filters into one filter.Registry and
// exposes the fixed head-of-chain pair every spec gets for free, in the
// exact order the spec pins down: metrics, then validator (§4.4).
package builtin

import (
	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/internal/filter/headermatch"
	"github.com/wikimedia/hyperswitch/internal/filter/httpfilter"
	"github.com/wikimedia/hyperswitch/internal/filter/metricsfilter"
	"github.com/wikimedia/hyperswitch/internal/filter/ratelimitfilter"
	"github.com/wikimedia/hyperswitch/internal/filter/validator"
)

// HeadOfChain returns the names, in order, of the stock filters every
// mounted method carries ahead of its own x-route-filters. Path-level
// x-route-filters are applied outside the method's chain, so they run
// before these.
func HeadOfChain() []string { return []string{metricsfilter.Name, validator.Name} }

// NewRegistry returns a filter.Registry pre-populated with every stock
// filter: metrics, validator, ratelimit_route, header-match, and http
// bound to client (nil is accepted; the http filter then only serves
// requests that never resolve to an absolute URI).
func NewRegistry(client httpfilter.Client) filter.Registry {
	r := filter.NewRegistry()
	r.Add(
		metricsfilter.New(),
		validator.New(),
		ratelimitfilter.New(),
		headermatch.New(),
		httpfilter.New(client),
	)
	return r
}
