package dispatch

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/wikimedia/hyperswitch/internal/herr"
	"github.com/wikimedia/hyperswitch/message"
	"github.com/wikimedia/hyperswitch/routetree"
)

// listing implements the default listing handler of §4.5: a lookup on
// a path with no direct handler that ends in "/" falls through here
// instead of a bare 404.
func (d *Dispatcher) listing(ctx *Context, req *message.Request) (*message.Response, error) {
	node, _, ok := routetree.Locate(d.root, req.Path)
	if !ok {
		return nil, herr.NotFoundRoute()
	}

	if _, wantsSpec := req.Query["spec"]; wantsSpec {
		return d.mergedSpecResponse(node)
	}

	_, hasPath := req.Query["path"]
	if !hasPath && len(req.Query) > 0 {
		return redirectToBasePath(req.Path), nil
	}

	names := routetree.ChildNames(node)

	if hasPath {
		if d.docs != nil {
			return d.docs.Serve(ctx, req)
		}
	} else if wantsHTML(req) {
		if isListingAPIRoot(node) {
			return htmlIndexResponse(req.Path, names), nil
		}
		if d.docs != nil {
			return d.docs.Serve(ctx, req)
		}
	}

	items := make([]any, len(names))
	for i, n := range names {
		items[i] = n
	}
	return message.NewResponse(200, message.ObjectBody{Value: map[string]any{"items": items}}), nil
}

// redirectToBasePath implements §4.5's "queries other than path on the
// docs route yield a 301 to the base path": any query string that
// isn't a recognized spec/path directive redirects to the bare path.
func redirectToBasePath(basePath string) *message.Response {
	resp := message.NewResponse(http.StatusMovedPermanently, nil)
	resp.Headers.Set("location", basePath)
	return resp
}

func wantsHTML(req *message.Request) bool {
	return strings.Contains(strings.ToLower(req.Header("accept")), "text/html")
}

// isListingAPIRoot reports whether node's apiRoot was declared with
// x-listing: the marker that a bare Accept: text/html on this node
// should get its own generated index instead of falling through to
// the docs collaborator.
func isListingAPIRoot(node *routetree.Node) bool {
	return node.Value != nil && node.Value.SpecRoot != nil && node.Value.SpecRoot.XListing
}

// htmlIndexResponse renders the "listing" apiRoot's own minimal HTML
// index of base's children, per §4.5. Plain string assembly rather
// than html/template: the shape is a fixed unordered list of already-
// validated segment names, nothing user-supplied is interpolated
// unescaped, so a templating engine buys nothing a single
// html.EscapeString pass over each name doesn't already cover.
func htmlIndexResponse(base string, names []string) *message.Response {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><title>")
	b.WriteString(html.EscapeString(base))
	b.WriteString("</title></head><body><ul>\n")
	trimmed := strings.TrimSuffix(base, "/")
	for _, n := range names {
		fmt.Fprintf(&b, "<li><a href=%q>%s</a></li>\n", trimmed+"/"+n, html.EscapeString(n))
	}
	b.WriteString("</ul></body></html>\n")

	resp := message.NewResponse(200, message.TextBody(b.String()))
	resp.Headers.Set("content-type", "text/html; charset=utf-8")
	return resp
}

// mergedSpecResponse serves ?spec: the merged specRoot for this API
// root, with servers[0].url rewritten to the node's computed base path.
func (d *Dispatcher) mergedSpecResponse(node *routetree.Node) (*message.Response, error) {
	if node.Value == nil || node.Value.SpecRoot == nil {
		return nil, herr.NotFoundRoute()
	}
	raw, err := json.Marshal(node.Value.SpecRoot)
	if err != nil {
		return nil, herr.Internal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, herr.Internal(err)
	}
	basePath := node.Value.Path
	if basePath == "" {
		basePath = "/"
	}
	m["servers"] = []map[string]any{{"url": basePath}}
	return message.NewResponse(200, message.ObjectBody{Value: m}), nil
}
