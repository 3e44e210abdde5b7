// Package message holds the request/response/body data model shared by
// every layer of the engine: the route tree, the filter runtime, the
// handler-chain compiler and the dispatcher. It has no dependencies of
// its own so that packages on both sides of the dispatcher/filter split
// can agree on a wire shape without importing each other.
package message

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Class is the coarse classification of a request used for metrics and
// rate-limit partitioning.
type Class string

const (
	ClassExternal       Class = "external"
	ClassInternal       Class = "internal"
	ClassInternalUpdate Class = "internal_update"
	ClassInternalStartup Class = "internal_startup"
)

// Body is the tagged union a request or response payload may carry:
// raw bytes, decoded text, a decoded object, or a lazy byte stream.
// Avoiding a single Any-typed field keeps callers from having to type
// switch on interface{} at every boundary.
type Body interface {
	// Bytes materialises the body as a byte slice, decoding/encoding as
	// needed. It is safe to call more than once except for StreamBody,
	// which is consumed by the first call.
	Bytes() ([]byte, error)
}

// BytesBody is an already-materialised byte payload.
type BytesBody []byte

func (b BytesBody) Bytes() ([]byte, error) { return []byte(b), nil }

// TextBody is a decoded text payload (e.g. a non-JSON form value).
type TextBody string

func (t TextBody) Bytes() ([]byte, error) { return []byte(t), nil }

// ObjectBody is a decoded structured payload, typically the result of
// parsing a JSON request/response body.
type ObjectBody struct{ Value any }

func (o ObjectBody) Bytes() ([]byte, error) { return json.Marshal(o.Value) }

// StreamBody wraps a lazily-read payload, such as a proxied upstream
// response body. Reading it consumes and closes the underlying reader.
type StreamBody struct{ Reader io.ReadCloser }

func (s StreamBody) Bytes() ([]byte, error) {
	defer s.Reader.Close()
	return io.ReadAll(s.Reader)
}

// AsObject returns the decoded value of an ObjectBody, or unmarshals a
// byte/text body as JSON on demand. It is the accessor validators and
// declarative-chain templates use to reach into a body's fields.
func AsObject(b Body) (any, error) {
	if b == nil {
		return nil, nil
	}
	if ob, ok := b.(ObjectBody); ok {
		return ob.Value, nil
	}
	raw, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Request is a mutable per-call record. Handlers must treat a Request
// they did not construct themselves as read-only; the dispatcher is
// solely responsible for producing the fresh, defaulted copy each
// dispatch works against (via Clone in this package).
type Request struct {
	Host    string
	Path    string
	Method  string
	Headers http.Header
	Query   url.Values
	Params  map[string]string
	Body    Body
}

// NewRequest returns a Request with every field defaulted the way the
// shallow-clone rule requires: method "get", empty headers/query/params,
// nil body.
func NewRequest(path string) *Request {
	return &Request{
		Path:    path,
		Method:  "get",
		Headers: http.Header{},
		Query:   url.Values{},
		Params:  map[string]string{},
	}
}

// Header returns the first value of key, case-insensitively, or "".
func (r *Request) Header(key string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers.Get(key)
}

// QueryValue returns the first value of key, or "".
func (r *Request) QueryValue(key string) string {
	if r == nil || r.Query == nil {
		return ""
	}
	return r.Query.Get(key)
}

// IsAbsoluteURI reports whether Path is actually an absolute
// "http(s)://host/path" target, the shape the http filter uses to
// decide whether to bypass local routing entirely.
func (r *Request) IsAbsoluteURI() bool {
	p := strings.ToLower(r.Path)
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// Response is the record produced by a handler or filter.
type Response struct {
	Status  int
	Headers http.Header
	Body    Body
}

// NewResponse builds a success-shaped response with an empty header set.
func NewResponse(status int, body Body) *Response {
	return &Response{Status: status, Headers: http.Header{}, Body: body}
}

// IsError reports whether status is error-shaped, per the
// "statuses >= 400 are errors" rule.
func (r *Response) IsError() bool { return r != nil && r.Status >= 400 }

// Clone produces a request the router/handlers can freely mutate
// (Params, in particular) without affecting the caller's object. Every
// field not explicitly present on src falls back to the documented
// default.
func Clone(src *Request) *Request {
	c := &Request{
		Method:  "get",
		Headers: http.Header{},
		Query:   url.Values{},
		Params:  map[string]string{},
	}
	if src == nil {
		return c
	}
	if src.Method != "" {
		c.Method = strings.ToLower(src.Method)
	}
	c.Host = src.Host
	c.Path = src.Path
	c.Body = src.Body
	for k, v := range src.Headers {
		c.Headers[k] = append([]string(nil), v...)
	}
	for k, v := range src.Query {
		c.Query[k] = append([]string(nil), v...)
	}
	for k, v := range src.Params {
		c.Params[k] = v
	}
	return c
}
