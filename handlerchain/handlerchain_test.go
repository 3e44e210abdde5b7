package handlerchain

import (
	"strings"
	"testing"

	"github.com/wikimedia/hyperswitch/internal/filter/filtertest"
	"github.com/wikimedia/hyperswitch/internal/herr"
	"github.com/wikimedia/hyperswitch/message"
	"github.com/wikimedia/hyperswitch/openapi"
)

func herrNotFound() error { return herr.NotFoundRoute() }

func mkStep(t *testing.T, yaml map[string]map[string]any) openapi.Step {
	t.Helper()
	var s openapi.Step
	s.Stanzas = map[string]map[string]any{}
	for name, stanza := range yaml {
		s.Names = append(s.Names, name)
		s.Stanzas[name] = stanza
	}
	return s
}

func TestCompileRejectsEmptyChain(t *testing.T) {
	if _, err := Compile(nil); err == nil {
		t.Fatalf("expected error for empty chain")
	}
}

func TestCompileRejectsParallelReturns(t *testing.T) {
	s := mkStep(t, map[string]map[string]any{
		"a": {"request": map[string]any{"uri": "/x"}, "return": true},
		"b": {"request": map[string]any{"uri": "/y"}, "return": true},
	})
	_, err := Compile([]openapi.Step{s})
	if err == nil || !strings.HasPrefix(err.Error(), "step 0: Invalid spec. Returning requests cannot be parallel.") {
		t.Fatalf("got %v", err)
	}
}

func TestCompileRejectsStanzaWithoutRequestOrReturn(t *testing.T) {
	s := mkStep(t, map[string]map[string]any{"a": {}})
	_, err := Compile([]openapi.Step{s})
	if err == nil || !strings.Contains(err.Error(), "Every stanza must have a request or a return") {
		t.Fatalf("got %v", err)
	}
}

func TestCompileRejectsReturnIfWithoutRequest(t *testing.T) {
	s := mkStep(t, map[string]map[string]any{"a": {"return_if": map[string]any{"status": 200}}})
	_, err := Compile([]openapi.Step{s})
	if err == nil || !strings.Contains(err.Error(), "return_if and catch require a request") {
		t.Fatalf("got %v", err)
	}
}

func TestScenarioThreeCatchThenReturn(t *testing.T) {
	s := mkStep(t, map[string]map[string]any{
		"a": {"request": map[string]any{"uri": "/x"}, "catch": map[string]any{"status": 404}},
		"b": {"request": map[string]any{"uri": "/y"}, "return": true},
	})
	chain, err := Compile([]openapi.Step{s})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	ctx := filtertest.NewContext()
	ctx.DispatchFunc = func(req *message.Request) (*message.Response, error) {
		if req.Path == "/x" {
			return nil, herrNotFound()
		}
		return message.NewResponse(200, message.TextBody("ok")), nil
	}

	resp, err := chain.Run(ctx, message.NewRequest("/op"), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("got status %d", resp.Status)
	}
	body, _ := resp.Body.Bytes()
	if string(body) != "ok" {
		t.Fatalf("got body %q", body)
	}
}

func TestUncaughtErrorPropagates(t *testing.T) {
	s := mkStep(t, map[string]map[string]any{
		"a": {"request": map[string]any{"uri": "/x"}, "return": true},
	})
	chain, err := Compile([]openapi.Step{s})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ctx := filtertest.NewContext()
	ctx.DispatchFunc = func(req *message.Request) (*message.Response, error) {
		return nil, herrNotFound()
	}
	if _, err := chain.Run(ctx, message.NewRequest("/op"), nil); err == nil {
		t.Fatalf("expected propagated error")
	}
}
