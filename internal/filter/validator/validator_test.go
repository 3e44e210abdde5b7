package validator

import (
	"testing"

	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/internal/herr"
	"github.com/wikimedia/hyperswitch/internal/filter/filtertest"
	"github.com/wikimedia/hyperswitch/message"
	"github.com/wikimedia/hyperswitch/openapi"
)

func newReq() *message.Request {
	return message.NewRequest("/op")
}

func terminal(req *message.Request) (*message.Response, error) {
	return message.NewResponse(200, message.TextBody("ok")), nil
}

func TestCoerceBooleanTrue(t *testing.T) {
	op := &openapi.Operation{Parameters: []openapi.Parameter{
		{Name: "flag", In: "query", Schema: map[string]any{"type": "boolean"}},
	}}
	f, err := New().CreateFilter(map[string]any{"operation": op})
	if err != nil {
		t.Fatalf("CreateFilter: %v", err)
	}
	req := newReq()
	req.Query.Set("flag", "True")
	info := &filter.SpecInfo{}
	if _, err := f(filtertest.NewContext(), req, terminal, nil, info); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.QueryValue("flag") != "true" {
		t.Fatalf("expected coerced value true, got %q", req.QueryValue("flag"))
	}
	query, _ := info.Params["query"].(map[string]any)
	if v, ok := query["flag"].(bool); !ok || v != true {
		t.Fatalf("expected info.Params[query][flag] to be the in-memory bool true, got %#v", query["flag"])
	}
}

func TestCoerceNumberValid(t *testing.T) {
	op := &openapi.Operation{Parameters: []openapi.Parameter{
		{Name: "n", In: "query", Schema: map[string]any{"type": "number"}},
	}}
	f, _ := New().CreateFilter(map[string]any{"operation": op})
	req := newReq()
	req.Query.Set("n", "27.5")
	if _, err := f(filtertest.NewContext(), req, terminal, nil, &filter.SpecInfo{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.QueryValue("n") != "27.5" {
		t.Fatalf("got %q", req.QueryValue("n"))
	}
}

func TestCoerceNumberInvalid(t *testing.T) {
	op := &openapi.Operation{Parameters: []openapi.Parameter{
		{Name: "n", In: "query", Schema: map[string]any{"type": "number"}},
	}}
	f, _ := New().CreateFilter(map[string]any{"operation": op})
	req := newReq()
	req.Query.Set("n", "not_a_number")
	_, err := f(filtertest.NewContext(), req, terminal, nil, &filter.SpecInfo{})
	he, ok := herr.AsError(err)
	if !ok {
		t.Fatalf("expected *herr.Error, got %v", err)
	}
	if he.Status != 400 || he.Detail != "data.query.n should be a number" {
		t.Fatalf("got status=%d detail=%q", he.Status, he.Detail)
	}
}

func TestEnumMismatchListsAllowedValues(t *testing.T) {
	op := &openapi.Operation{Parameters: []openapi.Parameter{
		{Name: "q", In: "query", Schema: map[string]any{"type": "string", "enum": []any{"one", "two", "three"}}},
	}}
	f, _ := New().CreateFilter(map[string]any{"operation": op})
	req := newReq()
	req.Query.Set("q", "four")
	_, err := f(filtertest.NewContext(), req, terminal, nil, &filter.SpecInfo{})
	he, ok := herr.AsError(err)
	if !ok {
		t.Fatalf("expected *herr.Error, got %v", err)
	}
	want := "data.query.q should be equal to one of the allowed values: [one, two, three]"
	if he.Detail != want {
		t.Fatalf("got %q want %q", he.Detail, want)
	}
}
