// Package herr implements the error taxonomy shared by the dispatcher,
// filter runtime and handler-chain compiler. An Error is itself a
// response: its Status/Type/Detail become the body written back to the
// caller, and its Cause chain participates in errors.Is/errors.As like
// any other Go error.
package herr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Type values, the taxonomy fixed by the spec. A Type may carry a
// "#reason" suffix (e.g. "forbidden#sys") to disambiguate causes that
// share an HTTP status.
const (
	TypeNotFoundRoute            = "not_found#route"
	TypeNotFound                 = "not_found"
	TypeForbiddenSys             = "forbidden#sys"
	TypeForbidden                = "forbidden"
	TypeBadRequest               = "bad_request"
	TypeInvalidRequest           = "invalid_request"
	TypeServerErrorEmptyResponse = "server_error#empty_response"
	TypeRecursionDepthExceeded   = "server_error#request_recursion_depth_exceeded"
	TypeInternal                 = "internal_error"
	TypeRateExceeded             = "request_rate_exceeded"
)

// Error is a response-shaped error: {type, title, detail, method, uri, ...}.
type Error struct {
	Type   string
	Title  string
	Detail string
	Method string
	URI    string
	Status int
	Cause  error
	Extra  map[string]any
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Detail)
	}
	return e.Type
}

func (e *Error) Unwrap() error { return e.Cause }

// WithExtra attaches an additional field (e.g. "depth") to the error body.
func (e *Error) WithExtra(key string, value any) *Error {
	if e.Extra == nil {
		e.Extra = map[string]any{}
	}
	e.Extra[key] = value
	return e
}

// WithRequest fills in the method/uri fields describing the request that
// produced the error.
func (e *Error) WithRequest(method, uri string) *Error {
	e.Method = method
	e.URI = uri
	return e
}

// WithTypeBaseURI prefixes Type with baseURI, per §3/§6's "type is
// prefixed with a configurable base URL unless absolute." A no-op when
// baseURI is empty (prefixing disabled) or Type is already an absolute
// URI.
func (e *Error) WithTypeBaseURI(baseURI string) *Error {
	if baseURI == "" || isAbsoluteURI(e.Type) {
		return e
	}
	e.Type = strings.TrimSuffix(baseURI, "/") + "/" + e.Type
	return e
}

func isAbsoluteURI(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func newError(status int, typ, title, detail string, cause error) *Error {
	return &Error{Status: status, Type: typ, Title: title, Detail: detail, Cause: cause}
}

func NotFoundRoute() *Error {
	return newError(http.StatusNotFound, TypeNotFoundRoute, "Not Found", "no route matches the requested path", nil)
}

func ForbiddenSys() *Error {
	return newError(http.StatusForbidden, TypeForbiddenSys, "Forbidden",
		"direct access to /sys is not allowed", nil)
}

func Forbidden(detail string) *Error {
	return newError(http.StatusForbidden, TypeForbidden, "Forbidden", detail, nil)
}

func BadRequest(detail string) *Error {
	return newError(http.StatusBadRequest, TypeBadRequest, "Bad Request", detail, nil)
}

func InvalidRequest(detail string, cause error) *Error {
	return newError(http.StatusBadRequest, TypeInvalidRequest, "Invalid Request", detail, cause)
}

func ServerErrorEmptyResponse() *Error {
	return newError(http.StatusInternalServerError, TypeServerErrorEmptyResponse,
		"Internal Server Error", "the handler produced no response", nil)
}

func RecursionDepthExceeded(depth, max int) *Error {
	e := newError(http.StatusInternalServerError, TypeRecursionDepthExceeded,
		"Internal Server Error",
		fmt.Sprintf("recursion depth %d exceeds the configured maximum of %d", depth, max), nil)
	return e.WithExtra("depth", depth)
}

func Internal(cause error) *Error {
	detail := "internal error"
	if cause != nil {
		detail = cause.Error()
	}
	return newError(http.StatusInternalServerError, TypeInternal, "Internal Server Error", detail, cause)
}

func RateExceeded(detail string) *Error {
	return newError(http.StatusTooManyRequests, TypeRateExceeded, "Too Many Requests", detail, nil)
}

// AsError reports whether err is (or wraps) an *Error, returning it.
func AsError(err error) (*Error, bool) {
	var he *Error
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// FromStatus wraps a bare status-bearing failure that did not already
// carry a typed Error, per the dispatcher's response-normalisation rule.
func FromStatus(status int, detail string) *Error {
	typ := TypeInternal
	title := "Error"
	switch {
	case status == http.StatusNotFound:
		typ, title = TypeNotFound, "Not Found"
	case status == http.StatusForbidden:
		typ, title = TypeForbidden, "Forbidden"
	case status == http.StatusBadRequest:
		typ, title = TypeBadRequest, "Bad Request"
	case status == http.StatusTooManyRequests:
		typ, title = TypeRateExceeded, "Too Many Requests"
	}
	return newError(status, typ, title, detail, nil)
}
