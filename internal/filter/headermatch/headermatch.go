// Package headermatch implements the "header-match" stock filter: on
// the root request only, verifies configured headers against an
// allow-list regex, denying with 403 otherwise (§4.7).
package headermatch

import (
	"fmt"
	"regexp"

	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/internal/herr"
	"github.com/wikimedia/hyperswitch/message"
)

const Name = "header-match"

type spec struct{}

func New() filter.Spec { return spec{} }

func (spec) Name() string { return Name }

func (spec) CreateFilter(raw map[string]any) (filter.Func, error) {
	rules := map[string]*regexp.Regexp{}
	patterns, _ := raw["headers"].(map[string]any)
	for header, pattern := range patterns {
		p, ok := pattern.(string)
		if !ok {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("header-match: invalid pattern for %q: %w", header, err)
		}
		rules[header] = re
	}
	return func(ctx filter.Context, req *message.Request, next filter.Next, _ map[string]any, info *filter.SpecInfo) (*message.Response, error) {
		if ctx.Depth() != 0 {
			return next(req)
		}
		for header, re := range rules {
			if !re.MatchString(req.Header(header)) {
				return nil, herr.Forbidden(fmt.Sprintf("header %q does not match the required pattern", header))
			}
		}
		return next(req)
	}, nil
}
