// Package spec implements the §4.3 load algorithm: turning one or more
// merged OpenAPI-style documents into a routetree.Node ready for the
// dispatcher, plus the ordered list of startup resource requests a
// caller should issue once the tree is sealed.
//
// Grounded on skipper's routing/routing.go DataClient-to-Matcher build
// step for the "read a data source, produce an immutable lookup
// structure" shape, and on eskipfile/file.go for the plain "read a
// file, parse its DSL" module-loading pattern.
package spec

import (
	"fmt"
	"sort"

	"github.com/wikimedia/hyperswitch/handlerchain"
	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/internal/filter/builtin"
	"github.com/wikimedia/hyperswitch/internal/filter/validator"
	"github.com/wikimedia/hyperswitch/message"
	"github.com/wikimedia/hyperswitch/openapi"
	"github.com/wikimedia/hyperswitch/routetree"
	"github.com/wikimedia/hyperswitch/template"
	"github.com/wikimedia/hyperswitch/uri"
)

// Options configures a Load call.
type Options struct {
	AppBasePath     string
	DisableHandlers bool
	SkipResources   bool
	Globals         map[string]any
	Registry        filter.Registry
	// Operations supplies host-language operationId bindings for the
	// root document; modules loaded via x-modules contribute their own
	// via ModuleResult.Operations.
	Operations map[string]filter.Func
}

// Result is the sealed tree plus the startup resources collected while
// building it.
type Result struct {
	Root      *routetree.Node
	Resources []ResourceEntry
}

// ResourceEntry pairs one x-setup-handler entry with the node it was
// declared under, so the caller can run it after the tree is sealed
// (§5's "resource-phase requests").
type ResourceEntry struct {
	NodePath string
	Spec     openapi.ResourceSpec
}

// apiScope is the per-API-root bookkeeping threaded through the
// recursive tree build: the merged spec document, the operation
// bindings in scope, and the prefix path used for diagnostics.
type apiScope struct {
	specRoot   *openapi.Document
	operations map[string]filter.Func
	globals    map[string]any
	prefixPath string
	// security accumulates along the mount path: a childScope built by
	// mountModules inherits its parent's accumulated security, and
	// buildPath adds each pathItem's own security on top before tagging
	// it onto the methods declared there.
	security []map[string][]string
}

// subtree cache: pathPattern + pathSpec hash + globals hash ->
// already-built node, for
// the "identical subtree mounted twice shares structure" rule.
type subtreeCache struct {
	byKey map[string]*routetree.Node
}

// Load builds a routetree from doc, applying opts.
func Load(doc *openapi.Document, opts Options) (*Result, error) {
	root := routetree.NewRoot()
	cache := newModuleCache()
	subtrees := &subtreeCache{byKey: map[string]*routetree.Node{}}

	scope := &apiScope{
		specRoot:   doc,
		operations: opts.Operations,
		globals:    opts.Globals,
		prefixPath: "",
	}

	l := &loader{opts: opts, cache: cache, subtrees: subtrees}
	if err := l.installAPIRoot(root, scope); err != nil {
		return nil, err
	}
	if err := l.processDocument(root, doc, scope); err != nil {
		return nil, err
	}
	cache.clear()

	if opts.SkipResources {
		return &Result{Root: root}, nil
	}
	return &Result{Root: root, Resources: l.resources}, nil
}

type loader struct {
	opts      Options
	cache     *moduleCache
	subtrees  *subtreeCache
	resources []ResourceEntry
}

// installAPIRoot mounts the {type:meta,name:apiRoot} marker child at
// this node, carrying the scope's spec root and globals under a key no
// spec path can collide with. The dispatcher's listing handler does not
// read this child: it takes SpecRoot from the Value of the node the
// request path resolves to.
func (l *loader) installAPIRoot(node *routetree.Node, scope *apiScope) error {
	metaSeg := uri.Segment{Kind: uri.Meta, MetaType: "apiRoot"}
	child, err := routetree.Insert(node, []uri.Segment{metaSeg})
	if err != nil {
		return err
	}
	if child.Value == nil {
		child.Value = routetree.NewValue(scope.prefixPath)
	}
	child.Value.SpecRoot = scope.specRoot
	child.Value.Globals = scope.globals
	return nil
}

// processDocument merges doc's components/tags into scope, then walks
// its paths in a fixed order (deterministic despite Go's randomised
// map iteration) so that two loads of the same spec always produce the
// same subtree-sharing decisions.
func (l *loader) processDocument(node *routetree.Node, doc *openapi.Document, scope *apiScope) error {
	if err := mergeComponents(scope.specRoot, doc.Components); err != nil {
		return err
	}
	if err := mergeTags(scope.specRoot, doc.Tags); err != nil {
		return err
	}

	patterns := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	for _, pattern := range patterns {
		item := doc.Paths[pattern]
		if err := l.buildPath(node, pattern, item, scope); err != nil {
			return fmt.Errorf("path %q: %w", pattern, err)
		}
	}
	return nil
}

// buildPath inserts pattern's segments into the tree under node,
// applying subtree sharing when an identical (pattern, pathSpec,
// globals) triple was already built once during this load, then
// registers the path item's methods, filters and resources on the
// resulting node.
func (l *loader) buildPath(node *routetree.Node, pattern string, item *openapi.PathItem, scope *apiScope) error {
	parsed, err := uri.Parse(pattern)
	if err != nil {
		return err
	}

	// The cache key must distinguish the actual pathSpec content, not
	// just its pattern text: two different x-modules entries can
	// legitimately declare the same path string. Keying on pattern
	// alone would let the second one silently ShareUnder the first
	// module's already-built node instead of running through Insert
	// and registerMethods's re-definition check, masking a genuine
	// method collision between distinct modules.
	key := pattern + ":" + canonicalHash(item) + ":" + canonicalHash(scope.globals)
	if shared, ok := l.subtrees.byKey[key]; ok {
		parent, lastSeg := node, parsed.Segments[len(parsed.Segments)-1]
		for _, seg := range parsed.Segments[:len(parsed.Segments)-1] {
			parent = mustChild(parent, seg)
		}
		if scope.globals == nil {
			routetree.ShareUnder(parent, lastSeg.Key(), shared)
		} else {
			routetree.ShareUnder(parent, lastSeg.Key(), shared.Clone(scope.globals))
		}
		return nil
	}

	leaf, err := routetree.Insert(node, parsed.Segments)
	if err != nil {
		return err
	}
	if leaf.Value == nil {
		leaf.Value = routetree.NewValue(scope.prefixPath + pattern)
	}
	leaf.Value.SpecRoot = scope.specRoot
	leaf.Value.Globals = scope.globals

	pathSecurity := accumulateSecurity(scope.security, item.Security)

	if err := l.registerPathFilters(leaf, item); err != nil {
		return err
	}
	if err := l.registerMethods(leaf, pattern, item, scope, pathSecurity); err != nil {
		return err
	}
	if err := l.mountModules(leaf, pattern, item, scope, pathSecurity); err != nil {
		return err
	}

	l.subtrees.byKey[key] = leaf
	return nil
}

func mustChild(n *routetree.Node, seg uri.Segment) *routetree.Node {
	c, ok := n.Child(seg.Key())
	if !ok {
		// Ancestor segments are shared structure inserted by the first
		// visit to this pathPattern; a lookup miss here means the
		// caller built the tree out of the order buildPath assumes.
		panic(fmt.Sprintf("routetree: missing ancestor segment %q", seg.Key()))
	}
	return c
}

func (l *loader) registerPathFilters(node *routetree.Node, item *openapi.PathItem) error {
	entries, err := l.compileFilterRefs(item.XRouteFilters, "")
	if err != nil {
		return err
	}
	node.Value.Filters = append(node.Value.Filters, entries...)
	return nil
}

// registerMethods installs one MethodEntry per verb declared on item,
// enforcing the hard "re-defining an existing method is an error" rule
// and binding each operation's handler: a compiled x-request-handler
// chain takes priority, otherwise the operationId is looked up among
// the operations currently in scope.
func (l *loader) registerMethods(node *routetree.Node, pattern string, item *openapi.PathItem, scope *apiScope, pathSecurity []map[string][]string) error {
	verbs := make([]string, 0, len(item.Operations))
	for v := range item.Operations {
		verbs = append(verbs, v)
	}
	sort.Strings(verbs)

	for _, verb := range verbs {
		op := item.Operations[verb]
		if op.XHidden {
			continue
		}
		if _, exists := node.Value.Methods[verb]; exists {
			return fmt.Errorf("Trying to re-define existing method: %s %s", verb, pattern)
		}

		handler, err := l.bindHandler(op, scope, pattern, verb)
		if err != nil {
			return err
		}

		head, err := l.headOfChainEntries(op)
		if err != nil {
			return err
		}
		filters, err := l.compileFilterRefs(op.XRouteFilters, verb)
		if err != nil {
			return err
		}

		node.Value.Methods[verb] = &routetree.MethodEntry{
			Handler:   handler,
			Filters:   append(head, filters...),
			Operation: op,
			Security:  accumulateSecurity(pathSecurity, op.Security),
		}

		for _, rs := range op.XSetupHandler {
			if resourceURIMissing(rs) {
				return fmt.Errorf("x-setup-handler at %s %s: resource lacking uri is fatal", verb, pattern)
			}
			if rs.Method == "" {
				rs.Method = verb
			}
			l.resources = append(l.resources, ResourceEntry{NodePath: pattern, Spec: rs})
		}
	}
	return nil
}

// headOfChainEntries builds the fixed metrics-then-validator pair every
// mounted method carries ahead of its own x-route-filters, per §4.4.
// Compiling them once at load time (rather than per-dispatch) lets the
// validator's per-operation schema cache key off op's own pointer.
func (l *loader) headOfChainEntries(op *openapi.Operation) ([]filter.Entry, error) {
	if l.opts.Registry == nil {
		return nil, nil
	}
	var out []filter.Entry
	for _, name := range builtin.HeadOfChain() {
		specVal, ok := l.opts.Registry.Get(name)
		if !ok {
			continue
		}
		var opts map[string]any
		if name == validator.Name {
			opts = map[string]any{"operation": op}
		}
		fn, err := specVal.CreateFilter(opts)
		if err != nil {
			return nil, fmt.Errorf("configuring stock filter %q: %w", name, err)
		}
		out = append(out, filter.Entry{Fn: fn, Name: name, Options: opts})
	}
	return out, nil
}

func (l *loader) bindHandler(op *openapi.Operation, scope *apiScope, pattern, verb string) (filter.Func, error) {
	if len(op.XRequestHandler) > 0 {
		chain, err := handlerchain.Compile(op.XRequestHandler)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", verb, pattern, err)
		}
		return chain.AsFilter(), nil
	}
	if op.OperationID == "" {
		if l.opts.DisableHandlers {
			return passthroughHandler, nil
		}
		return nil, fmt.Errorf("%s %s: operation has neither x-request-handler nor operationId", verb, pattern)
	}
	fn, ok := scope.operations[op.OperationID]
	if !ok {
		if l.opts.DisableHandlers {
			return passthroughHandler, nil
		}
		return nil, fmt.Errorf("%s %s: unbound operationId %q", verb, pattern, op.OperationID)
	}
	return fn, nil
}

// passthroughHandler is bound as the terminal handler for an operation
// left unbound under DisableHandlers; it stands in for the real
// host-language handler so the tree can still be built and dispatched
// against for structural validation, without ever reaching an actual
// backend. A terminal handler always runs with a nil next (see
// filter.Chain's build()), so it must answer directly rather than
// delegate.
func passthroughHandler(ctx filter.Context, req *message.Request, next filter.Next, options map[string]any, info *filter.SpecInfo) (*message.Response, error) {
	detail := map[string]any{"note": "handler disabled", "method": req.Method, "path": req.Path}
	if info != nil {
		detail["operationId"] = info.OperationID
	}
	return message.NewResponse(200, message.ObjectBody{Value: detail}), nil
}

func (l *loader) compileFilterRefs(refs []openapi.FilterRef, method string) ([]filter.Entry, error) {
	if l.opts.Registry == nil {
		if len(refs) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("no filter registry configured but filters were declared")
	}
	var entries []filter.Entry
	for _, ref := range refs {
		specVal, ok := l.opts.Registry.Get(ref.Name)
		if !ok {
			return nil, fmt.Errorf("unknown filter %q", ref.Name)
		}
		fn, err := specVal.CreateFilter(ref.Options)
		if err != nil {
			return nil, fmt.Errorf("configuring filter %q: %w", ref.Name, err)
		}
		m := method
		if ref.Method != "" {
			m = ref.Method
		}
		entries = append(entries, filter.Entry{Fn: fn, Name: ref.Name, Options: ref.Options, Method: m})
	}
	return entries, nil
}

// mountModules resolves item's x-modules and recursively processes
// each module's document under the same node, treating its paths as an
// extension of the current API tree — the recursive half of §4.3 step 5.
func (l *loader) mountModules(node *routetree.Node, pattern string, item *openapi.PathItem, scope *apiScope, pathSecurity []map[string][]string) error {
	for _, ref := range item.XModules {
		res, err := l.cache.resolve(ref, scope.globals, l.opts.AppBasePath)
		if err != nil {
			return fmt.Errorf("loading module for %q: %w", pattern, err)
		}
		if res.Spec == nil {
			continue
		}

		childOps := scope.operations
		if len(res.Operations) > 0 {
			childOps = mergeOperations(scope.operations, res.Operations)
		}
		childGlobals := scope.globals
		if len(res.Globals) > 0 {
			childGlobals = mergeGlobals(scope.globals, res.Globals)
		}

		childScope := &apiScope{
			specRoot:   scope.specRoot,
			operations: childOps,
			globals:    childGlobals,
			prefixPath: scope.prefixPath + pattern,
			security:   pathSecurity,
		}
		if err := l.installAPIRoot(node, childScope); err != nil {
			return err
		}
		if err := l.processDocument(node, res.Spec, childScope); err != nil {
			return err
		}
		for _, rs := range res.Resources {
			if resourceURIMissing(rs) {
				return fmt.Errorf("module resource at %s: resource lacking uri is fatal", pattern)
			}
			l.resources = append(l.resources, ResourceEntry{NodePath: pattern, Spec: rs})
		}
	}
	return nil
}

func mergeOperations(base, extra map[string]filter.Func) map[string]filter.Func {
	out := make(map[string]filter.Func, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func mergeGlobals(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// mergeComponents implements the union-merge invariant: components
// merge by name, last-write-wins across mounted modules since (unlike
// tags) two schemas of the same name are not required to be identical.
func mergeComponents(root *openapi.Document, extra openapi.Components) error {
	if len(extra.Schemas) > 0 {
		if root.Components.Schemas == nil {
			root.Components.Schemas = map[string]any{}
		}
		for k, v := range extra.Schemas {
			root.Components.Schemas[k] = v
		}
	}
	if len(extra.Parameters) > 0 {
		if root.Components.Parameters == nil {
			root.Components.Parameters = map[string]any{}
		}
		for k, v := range extra.Parameters {
			root.Components.Parameters[k] = v
		}
	}
	if len(extra.Responses) > 0 {
		if root.Components.Responses == nil {
			root.Components.Responses = map[string]any{}
		}
		for k, v := range extra.Responses {
			root.Components.Responses[k] = v
		}
	}
	return nil
}

// mergeTags implements the "two tags with the same name must carry the
// same description" hard-error rule.
func mergeTags(root *openapi.Document, extra []openapi.Tag) error {
	byName := map[string]string{}
	for _, t := range root.Tags {
		byName[t.Name] = t.Description
	}
	for _, t := range extra {
		if existing, ok := byName[t.Name]; ok {
			if existing != t.Description {
				return fmt.Errorf("tag %q declared with conflicting descriptions: %q vs %q", t.Name, existing, t.Description)
			}
			continue
		}
		byName[t.Name] = t.Description
		root.Tags = append(root.Tags, t)
	}
	return nil
}

// accumulateSecurity concatenates base (already accumulated along the
// path so far) with extra (this path item's or operation's own
// declaration), the same way registerPathFilters/registerMethods
// accumulate filters. Neither slice is mutated.
func accumulateSecurity(base, extra []map[string][]string) []map[string][]string {
	if len(extra) == 0 {
		return base
	}
	out := make([]map[string][]string, 0, len(base)+len(extra))
	out = append(out, base...)
	out = append(out, extra...)
	return out
}

// resourceURIMissing reports whether rs has no usable uri. URI is
// typed any (not string) because a uri can itself be a placeholder
// template like "{$.request.params.domain}"; an omitted yaml key
// decodes to a nil interface, not an empty string, so both must be
// checked.
func resourceURIMissing(rs openapi.ResourceSpec) bool {
	return rs.URI == nil || rs.URI == ""
}

// Templates compiles every collected resource's uri/body/headers into
// request templates ready to expand against the startup model of §5
// ({request:{params:{domain:...}}}).
func Templates(entries []ResourceEntry) ([]*template.Template, error) {
	out := make([]*template.Template, 0, len(entries))
	for _, e := range entries {
		if resourceURIMissing(e.Spec) {
			return nil, fmt.Errorf("resource at %q: x-setup-handler entry has no uri", e.NodePath)
		}
		v := map[string]any{"uri": e.Spec.URI, "method": e.Spec.Method}
		if e.Spec.Body != nil {
			v["body"] = e.Spec.Body
		}
		if e.Spec.Headers != nil {
			v["headers"] = e.Spec.Headers
		}
		tpl, err := template.Compile(v)
		if err != nil {
			return nil, fmt.Errorf("compiling resource template for %q: %w", e.NodePath, err)
		}
		out = append(out, tpl)
	}
	return out, nil
}
