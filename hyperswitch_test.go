package hyperswitch

import (
	"testing"

	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/message"
	"github.com/wikimedia/hyperswitch/openapi"
)

func widgetsHandler(_ filter.Context, _ *message.Request, _ filter.Next, _ map[string]any, _ *filter.SpecInfo) (*message.Response, error) {
	return message.NewResponse(200, message.ObjectBody{Value: map[string]any{"widgets": []any{"a", "b"}}}), nil
}

func TestEngineEndToEndLoadAndDispatch(t *testing.T) {
	doc := &openapi.Document{
		Paths: map[string]*openapi.PathItem{
			"/widgets": {
				Operations: map[string]*openapi.Operation{
					"get": {OperationID: "listWidgets"},
				},
			},
		},
	}

	cfg := DefaultConfig()
	cfg.Spec = doc
	cfg.SkipResources = true

	eng, err := New(cfg, map[string]filter.Func{"listWidgets": widgetsHandler}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := eng.Request(message.NewRequest("/widgets"))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	obj, err := message.AsObject(resp.Body)
	if err != nil {
		t.Fatalf("AsObject: %v", err)
	}
	m := obj.(map[string]any)
	if len(m["widgets"].([]any)) != 2 {
		t.Fatalf("widgets = %v, want 2 entries", m["widgets"])
	}
}

func TestEngineRejectsMissingSpec(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := New(cfg, nil, nil, nil); err == nil {
		t.Fatalf("expected an error for a config with no spec")
	}
}

func TestEngineRejectsUnboundOperationWithoutDisableHandlers(t *testing.T) {
	doc := &openapi.Document{
		Paths: map[string]*openapi.PathItem{
			"/widgets": {
				Operations: map[string]*openapi.Operation{
					"get": {OperationID: "listWidgets"},
				},
			},
		},
	}
	cfg := DefaultConfig()
	cfg.Spec = doc
	cfg.SkipResources = true

	if _, err := New(cfg, nil, nil, nil); err == nil {
		t.Fatalf("expected an error for an unbound operationId")
	}
}
