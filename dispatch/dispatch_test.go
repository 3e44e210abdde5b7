package dispatch

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/internal/herr"
	"github.com/wikimedia/hyperswitch/message"
	"github.com/wikimedia/hyperswitch/openapi"
	"github.com/wikimedia/hyperswitch/routetree"
	"github.com/wikimedia/hyperswitch/uri"
)

// docsFunc adapts a plain function to the Docs collaborator interface,
// for tests that just need to observe whether it was invoked.
type docsFunc func(ctx *Context, req *message.Request) (*message.Response, error)

func (f docsFunc) Serve(ctx *Context, req *message.Request) (*message.Response, error) {
	return f(ctx, req)
}

func mustSegs(t *testing.T, pattern string) []uri.Segment {
	t.Helper()
	u, err := uri.Parse(pattern)
	if err != nil {
		t.Fatalf("uri.Parse(%q): %v", pattern, err)
	}
	return u.Segments
}

func mount(t *testing.T, root *routetree.Node, pattern, verb string, handler filter.Func) *routetree.Node {
	t.Helper()
	n, err := routetree.Insert(root, mustSegs(t, pattern))
	if err != nil {
		t.Fatalf("Insert(%q): %v", pattern, err)
	}
	if n.Value == nil {
		n.Value = routetree.NewValue(pattern)
	}
	n.Value.Methods[verb] = &routetree.MethodEntry{Handler: handler}
	return n
}

func ok(body string) filter.Func {
	return func(_ filter.Context, _ *message.Request, _ filter.Next, _ map[string]any, _ *filter.SpecInfo) (*message.Response, error) {
		return message.NewResponse(200, message.TextBody(body)), nil
	}
}

func TestRouteIsolationRequestNotMutatedByHandling(t *testing.T) {
	root := routetree.NewRoot()
	mount(t, root, "/widgets/{id}", "get", func(_ filter.Context, req *message.Request, _ filter.Next, _ map[string]any, _ *filter.SpecInfo) (*message.Response, error) {
		req.Params["id"] = "tampered"
		req.Headers.Set("x-injected", "1")
		return message.NewResponse(200, message.TextBody("ok")), nil
	})
	d := New(root, Options{})

	orig := message.NewRequest("/widgets/42")
	origHeaderCount := len(orig.Headers)

	resp, err := d.Request(orig)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if _, present := orig.Params["id"]; present {
		t.Fatalf("caller's Params was mutated by handling: %v", orig.Params)
	}
	if len(orig.Headers) != origHeaderCount {
		t.Fatalf("caller's Headers was mutated by handling: %v", orig.Headers)
	}
}

func TestRecursionCapTerminatesAfterNPlusOneEntries(t *testing.T) {
	root := routetree.NewRoot()
	var recurse filter.Func
	recurse = func(ctx filter.Context, req *message.Request, _ filter.Next, _ map[string]any, _ *filter.SpecInfo) (*message.Response, error) {
		return ctx.Dispatch(message.NewRequest("/loop"))
	}
	mount(t, root, "/loop", "get", recurse)

	d := New(root, Options{MaxDepth: 3})
	_, err := d.Request(message.NewRequest("/loop"))
	if err == nil {
		t.Fatalf("expected recursion-depth error, got nil")
	}
	he, ok := herr.AsError(err)
	if !ok {
		t.Fatalf("expected *herr.Error, got %T (%v)", err, err)
	}
	if he.Type != herr.TypeRecursionDepthExceeded {
		t.Fatalf("Type = %q, want %q", he.Type, herr.TypeRecursionDepthExceeded)
	}
	if he.Extra["depth"] != 4 {
		t.Fatalf("Extra[depth] = %v, want 4", he.Extra["depth"])
	}
}

func TestDirectSysPathForbiddenAtDepthZero(t *testing.T) {
	root := routetree.NewRoot()
	mount(t, root, "/v1/sys/health", "get", ok("healthy"))

	d := New(root, Options{})
	_, err := d.Request(message.NewRequest("/v1/sys/health"))
	if err == nil {
		t.Fatalf("expected forbidden#sys error, got nil")
	}
	he, ok := herr.AsError(err)
	if !ok || he.Type != herr.TypeForbiddenSys {
		t.Fatalf("err = %v, want forbidden#sys", err)
	}
}

func TestRecursiveSysPathSucceeds(t *testing.T) {
	root := routetree.NewRoot()
	mount(t, root, "/v1/sys/health", "get", ok("healthy"))
	mount(t, root, "/front", "get", func(ctx filter.Context, _ *message.Request, _ filter.Next, _ map[string]any, _ *filter.SpecInfo) (*message.Response, error) {
		return ctx.Dispatch(message.NewRequest("/v1/sys/health"))
	})

	d := New(root, Options{})
	resp, err := d.Request(message.NewRequest("/front"))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
}

func TestStartupBypassesSysProtectionAtDepthZero(t *testing.T) {
	root := routetree.NewRoot()
	mount(t, root, "/v1/sys/init", "put", ok("done"))

	d := New(root, Options{})
	resp, err := d.RequestStartup(&message.Request{Path: "/v1/sys/init", Method: "put"})
	if err != nil {
		t.Fatalf("RequestStartup: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
}

func TestHeadFallsBackToGetWithEmptyBody(t *testing.T) {
	root := routetree.NewRoot()
	mount(t, root, "/widgets", "get", func(_ filter.Context, _ *message.Request, _ filter.Next, _ map[string]any, _ *filter.SpecInfo) (*message.Response, error) {
		resp := message.NewResponse(200, message.TextBody("full body"))
		resp.Headers.Set("x-total", "3")
		return resp, nil
	})

	d := New(root, Options{})
	resp, err := d.Request(&message.Request{Path: "/widgets", Method: "head"})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if resp.Headers.Get("x-total") != "3" {
		t.Fatalf("headers not preserved on head fallback: %v", resp.Headers)
	}
	if resp.Body != nil {
		t.Fatalf("head fallback response should have no body, got %v", resp.Body)
	}
}

func TestListingReturnsItemsExcludingSys(t *testing.T) {
	root := routetree.NewRoot()
	mount(t, root, "/api/alpha", "get", ok("a"))
	mount(t, root, "/api/beta", "get", ok("b"))
	mount(t, root, "/api/sys/hidden", "get", ok("h"))

	d := New(root, Options{})
	resp, err := d.Request(message.NewRequest("/api/"))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	obj, err := message.AsObject(resp.Body)
	if err != nil {
		t.Fatalf("AsObject: %v", err)
	}
	m := obj.(map[string]any)
	items := m["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("items = %v, want exactly [alpha beta]", items)
	}
	for _, it := range items {
		if it == "sys" {
			t.Fatalf("listing must exclude sys, got %v", items)
		}
	}
}

func TestListingAPIRootRendersHTMLIndex(t *testing.T) {
	root := routetree.NewRoot()
	mount(t, root, "/api/alpha", "get", ok("a"))
	mount(t, root, "/api/beta", "get", ok("b"))
	mount(t, root, "/api/sys/hidden", "get", ok("h"))

	apiNode, _, ok := routetree.Locate(root, "/api/")
	if !ok {
		t.Fatalf("Locate(/api/) failed")
	}
	if apiNode.Value == nil {
		apiNode.Value = routetree.NewValue("/api")
	}
	apiNode.Value.SpecRoot = &openapi.Document{XListing: true}

	d := New(root, Options{})
	req := message.NewRequest("/api/")
	req.Headers.Set("accept", "text/html")
	resp, err := d.Request(req)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Headers.Get("content-type") != "text/html; charset=utf-8" {
		t.Fatalf("content-type = %q, want text/html", resp.Headers.Get("content-type"))
	}
	body, ok := resp.Body.(message.TextBody)
	if !ok {
		t.Fatalf("Body = %T, want message.TextBody", resp.Body)
	}
	if !strings.Contains(string(body), "alpha") || !strings.Contains(string(body), "beta") {
		t.Fatalf("HTML index missing children: %s", body)
	}
	if strings.Contains(string(body), "sys") {
		t.Fatalf("HTML index must exclude sys: %s", body)
	}
}

func TestListingUnknownQueryRedirectsToBasePath(t *testing.T) {
	root := routetree.NewRoot()
	mount(t, root, "/api/alpha", "get", ok("a"))

	d := New(root, Options{})
	req := &message.Request{Path: "/api/", Method: "get", Headers: http.Header{}, Query: url.Values{"foo": []string{"bar"}}, Params: map[string]string{}}
	resp, err := d.Request(req)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Status != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", resp.Status)
	}
	if resp.Headers.Get("location") != "/api/" {
		t.Fatalf("location = %q, want %q", resp.Headers.Get("location"), "/api/")
	}
}

func TestNonListingAPIRootDelegatesHTMLToDocs(t *testing.T) {
	root := routetree.NewRoot()
	mount(t, root, "/api/alpha", "get", ok("a"))

	apiNode, _, ok := routetree.Locate(root, "/api/")
	if !ok {
		t.Fatalf("Locate(/api/) failed")
	}
	if apiNode.Value == nil {
		apiNode.Value = routetree.NewValue("/api")
	}
	apiNode.Value.SpecRoot = &openapi.Document{}

	var served bool
	d := New(root, Options{Docs: docsFunc(func(_ *Context, _ *message.Request) (*message.Response, error) {
		served = true
		return message.NewResponse(200, message.TextBody("docs")), nil
	})})
	req := message.NewRequest("/api/")
	req.Headers.Set("accept", "text/html")
	if _, err := d.Request(req); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !served {
		t.Fatalf("expected docs collaborator to serve non-listing apiRoot HTML request")
	}
}

func TestNoResponseNormalizesToServerError(t *testing.T) {
	root := routetree.NewRoot()
	mount(t, root, "/empty", "get", func(_ filter.Context, _ *message.Request, _ filter.Next, _ map[string]any, _ *filter.SpecInfo) (*message.Response, error) {
		return nil, nil
	})

	d := New(root, Options{})
	_, err := d.Request(message.NewRequest("/empty"))
	if err == nil {
		t.Fatalf("expected server_error#empty_response, got nil")
	}
	he, ok := herr.AsError(err)
	if !ok || he.Type != herr.TypeServerErrorEmptyResponse {
		t.Fatalf("err = %v, want server_error#empty_response", err)
	}
}

func TestErrorTypePrefixedWithConfiguredBaseURI(t *testing.T) {
	root := routetree.NewRoot()
	d := New(root, Options{DefaultErrorURI: "https://example.org/errors/"})
	_, err := d.Request(message.NewRequest("/nope"))
	he, ok := herr.AsError(err)
	if !ok {
		t.Fatalf("expected *herr.Error, got %T (%v)", err, err)
	}
	want := "https://example.org/errors/" + herr.TypeNotFoundRoute
	if he.Type != want {
		t.Fatalf("Type = %q, want %q", he.Type, want)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	root := routetree.NewRoot()
	d := New(root, Options{})
	_, err := d.Request(message.NewRequest("/nope"))
	he, ok := herr.AsError(err)
	if !ok || he.Type != herr.TypeNotFoundRoute {
		t.Fatalf("err = %v, want not_found#route", err)
	}
	if he.Status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", he.Status)
	}
}

func TestDispatchForwardsClientHeadersToSubRequests(t *testing.T) {
	root := routetree.NewRoot()
	var seenIP, seenUA string
	mount(t, root, "/inner", "get", func(_ filter.Context, req *message.Request, _ filter.Next, _ map[string]any, _ *filter.SpecInfo) (*message.Response, error) {
		seenIP = req.Header("x-client-ip")
		seenUA = req.Header("user-agent")
		return message.NewResponse(200, nil), nil
	})
	mount(t, root, "/outer", "get", func(ctx filter.Context, _ *message.Request, _ filter.Next, _ map[string]any, _ *filter.SpecInfo) (*message.Response, error) {
		return ctx.Dispatch(message.NewRequest("/inner"))
	})

	d := New(root, Options{})
	req := &message.Request{
		Path:    "/outer",
		Method:  "get",
		Headers: http.Header{"X-Client-Ip": []string{"203.0.113.7"}, "User-Agent": []string{"acme/1.0"}},
		Query:   url.Values{},
		Params:  map[string]string{},
	}
	if _, err := d.Request(req); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if seenIP != "203.0.113.7" {
		t.Fatalf("x-client-ip = %q, want forwarded %q", seenIP, "203.0.113.7")
	}
	if seenUA != "acme/1.0" {
		t.Fatalf("user-agent = %q, want forwarded %q", seenUA, "acme/1.0")
	}
}

func TestRequestIDPropagatesAcrossDispatch(t *testing.T) {
	root := routetree.NewRoot()
	var seen string
	mount(t, root, "/inner", "get", func(ctx filter.Context, _ *message.Request, _ filter.Next, _ map[string]any, _ *filter.SpecInfo) (*message.Response, error) {
		seen = ctx.RequestID()
		return message.NewResponse(200, nil), nil
	})
	mount(t, root, "/outer", "get", func(ctx filter.Context, _ *message.Request, _ filter.Next, _ map[string]any, _ *filter.SpecInfo) (*message.Response, error) {
		return ctx.Dispatch(message.NewRequest("/inner"))
	})

	d := New(root, Options{})
	req := &message.Request{Path: "/outer", Method: "get", Headers: http.Header{"X-Request-Id": []string{"abc-123"}}, Query: url.Values{}, Params: map[string]string{}}
	if _, err := d.Request(req); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if seen != "abc-123" {
		t.Fatalf("request id = %q, want propagated %q", seen, "abc-123")
	}
}
