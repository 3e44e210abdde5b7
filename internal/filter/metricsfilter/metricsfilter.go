// Package metricsfilter implements the "metrics" stock filter mounted
// at the head of every chain (§4.4), recording request latency on both
// success and failure, grounded on the observation shape of
// metrics/prometheus.go's MeasureResponse.
package metricsfilter

import (
	"strconv"
	"strings"
	"time"

	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/internal/herr"
	"github.com/wikimedia/hyperswitch/message"
)

const Name = "metrics"

type spec struct{}

func New() filter.Spec { return spec{} }

func (spec) Name() string { return Name }

func (spec) CreateFilter(map[string]any) (filter.Func, error) { return run, nil }

func run(ctx filter.Context, req *message.Request, next filter.Next, _ map[string]any, info *filter.SpecInfo) (*message.Response, error) {
	start := time.Now()
	resp, err := next(req)
	status := 0
	if resp != nil {
		status = resp.Status
	} else if err != nil {
		status = 500
		if he, ok := herr.AsError(err); ok {
			status = he.Status
		}
	}
	ctx.Metrics().ObserveRequest(string(ctx.Class()), strippedPath(info.Path), req.Method, strconv.Itoa(status), time.Since(start))
	return resp, err
}

// strippedPath removes the first path segment (typically /{domain}/),
// per §4.7's "path (with the first path segment stripped)" label rule.
func strippedPath(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	idx := strings.IndexByte(trimmed, '/')
	if idx < 0 {
		return "/"
	}
	return trimmed[idx:]
}
