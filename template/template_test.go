package template

import (
	"reflect"
	"testing"
)

func TestExpandBareRefPreservesType(t *testing.T) {
	tpl, err := Compile(map[string]any{"title": "{$.request.params.title}"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	model := map[string]any{"request": map[string]any{"params": map[string]any{"title": 42}}}
	v, errs := tpl.Expand(model)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	got := v.(map[string]any)["title"]
	if got != 42 {
		t.Fatalf("expected 42, got %#v", got)
	}
}

func TestExpandConcatCoercesToString(t *testing.T) {
	tpl, err := Compile("id-{$.request.params.id}-x")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	model := map[string]any{"request": map[string]any{"params": map[string]any{"id": 7}}}
	v, errs := tpl.Expand(model)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if v != "id-7-x" {
		t.Fatalf("got %v", v)
	}
}

func TestExpandMissingPathIsUndefinedNotFatal(t *testing.T) {
	tpl, err := Compile("{$.missing.path}")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	v, errs := tpl.Expand(map[string]any{})
	if len(errs) != 1 {
		t.Fatalf("expected one diagnostic, got %v", errs)
	}
	if _, ok := v.(Undefined); !ok {
		t.Fatalf("expected Undefined, got %#v", v)
	}
}

func TestProtectedKeyNotExpanded(t *testing.T) {
	raw := map[string]any{"templates": map[string]any{"greeting": "{$.name}"}}
	tpl, err := CompileExempt(raw, map[string]bool{ProtectedKey: true})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	v, errs := tpl.Expand(map[string]any{"name": "world"})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !reflect.DeepEqual(v.(map[string]any)["templates"], raw["templates"]) {
		t.Fatalf("expected templates key untouched, got %#v", v)
	}
}
