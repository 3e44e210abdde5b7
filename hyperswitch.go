package hyperswitch

import (
	"fmt"

	"github.com/wikimedia/hyperswitch/dispatch"
	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/internal/filter/builtin"
	"github.com/wikimedia/hyperswitch/internal/filter/httpfilter"
	"github.com/wikimedia/hyperswitch/internal/log"
	"github.com/wikimedia/hyperswitch/internal/metrics"
	"github.com/wikimedia/hyperswitch/internal/ratelimit"
	"github.com/wikimedia/hyperswitch/message"
	"github.com/wikimedia/hyperswitch/openapi"
	"github.com/wikimedia/hyperswitch/spec"
)

// Request, Response and Body are re-exported so a host application need
// not import the message package directly for the common path.
type (
	Request  = message.Request
	Response = message.Response
	Body     = message.Body
)

// Closer is the lifecycle hook §9's "close" design note describes: a
// single notification, closed by Engine.Close when it is called.
type Closer <-chan struct{}

// Engine is the sealed, running instance of a loaded spec: a route
// tree, its dispatcher, and the collaborators wired at New.
type Engine struct {
	dispatcher *dispatch.Dispatcher
	logger     log.Logger
	closed     chan struct{}
}

// New loads cfg.Spec, wires the stock filter registry and observability
// collaborators, builds the dispatcher, and runs the resource phase
// (unless cfg.SkipResources), matching the startup ordering of §5: spec
// load, tree construction, resources traversal, then ready to accept
// connections.
//
// operations supplies the host-language operationId bindings the
// loaded spec's operations resolve against; httpClient is the outbound
// collaborator the "http" stock filter delegates to (nil is accepted,
// see httpfilter.New); docs is the optional external documentation
// collaborator the default listing handler defers to for `?path=` and
// `Accept: text/html` requests (nil disables that fallback, per §1's
// "documentation UI is out of scope for the core engine").
func New(cfg *Config, operations map[string]filter.Func, httpClient httpfilter.Client, docs dispatch.Docs) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("hyperswitch: nil config")
	}
	if cfg.Spec == nil {
		return nil, fmt.Errorf("hyperswitch: config has no spec")
	}

	logger := log.Default()
	metricsRec := metrics.NewPrometheus()
	rateLimiter := ratelimit.NewRegistry()
	registry := builtin.NewRegistry(httpClient)

	result, err := spec.Load(cfg.Spec, spec.Options{
		DisableHandlers: cfg.DisableHandlers,
		SkipResources:   cfg.SkipResources,
		Registry:        registry,
		Operations:      operations,
	})
	if err != nil {
		return nil, fmt.Errorf("hyperswitch: loading spec: %w", err)
	}

	requestFilters, err := compileEngineFilters(registry, cfg.Spec.Extra, "x-request-filters")
	if err != nil {
		return nil, err
	}
	subRequestFilters, err := compileEngineFilters(registry, cfg.Spec.Extra, "x-sub-request-filters")
	if err != nil {
		return nil, err
	}

	d := dispatch.New(result.Root, dispatch.Options{
		MaxDepth:          cfg.MaxDepth,
		Logger:            logger,
		Metrics:           metricsRec,
		RateLimiter:       rateLimiter,
		RequestFilters:    requestFilters,
		SubRequestFilters: subRequestFilters,
		DefaultErrorURI:   cfg.DefaultErrorURI,
		Docs:              docs,
	})

	e := &Engine{dispatcher: d, logger: logger, closed: make(chan struct{})}

	if !cfg.SkipResources && len(result.Resources) > 0 {
		if err := spec.RunResources(result.Resources, cfg.Host, d.RequestStartup); err != nil {
			return nil, fmt.Errorf("hyperswitch: resource phase: %w", err)
		}
	}

	return e, nil
}

// Request dispatches req as an externally originated call, depth 0.
func (e *Engine) Request(req *message.Request) (*message.Response, error) {
	return e.dispatcher.Request(req)
}

// Close signals shutdown and returns a channel that closes once, the
// single "server stopped" notification of §9's close design note.
func (e *Engine) Close() Closer {
	e.logger.Info("hyperswitch: server stopped")
	close(e.closed)
	return e.closed
}

// compileEngineFilters reads a top-level x-request-filters or
// x-sub-request-filters list out of the spec's captured extension map
// (openapi.Document.Extra), since those two keys apply to the whole
// engine rather than to any one path or operation and so have no
// dedicated struct field.
func compileEngineFilters(registry filter.Registry, extra map[string]any, key string) ([]filter.Entry, error) {
	raw, ok := extra[key]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("hyperswitch: %s must be a list", key)
	}
	var refs []openapi.FilterRef
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("hyperswitch: %s entry must be a mapping", key)
		}
		var ref openapi.FilterRef
		if name, ok := m["name"].(string); ok {
			ref.Name = name
		}
		if opts, ok := m["options"].(map[string]any); ok {
			ref.Options = opts
		}
		refs = append(refs, ref)
	}

	var entries []filter.Entry
	for _, ref := range refs {
		specVal, ok := registry.Get(ref.Name)
		if !ok {
			return nil, fmt.Errorf("hyperswitch: unknown filter %q in %s", ref.Name, key)
		}
		fn, err := specVal.CreateFilter(ref.Options)
		if err != nil {
			return nil, fmt.Errorf("hyperswitch: configuring filter %q: %w", ref.Name, err)
		}
		entries = append(entries, filter.Entry{Fn: fn, Name: ref.Name, Options: ref.Options})
	}
	return entries, nil
}
