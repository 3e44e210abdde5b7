package uri

import "testing"

func TestGreedyCapture(t *testing.T) {
	u, err := Parse("/test/{+rest}")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	params, ok := u.Match("/test/foo/bar/baz")
	if !ok {
		t.Fatalf("expected match")
	}
	if params["rest"] != "foo/bar/baz" {
		t.Fatalf("got rest=%q", params["rest"])
	}
}

func TestOptionalSegment(t *testing.T) {
	u, err := Parse("/test{/rest}")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	params, ok := u.Match("/test")
	if !ok {
		t.Fatalf("expected match for bare /test")
	}
	if _, present := params["rest"]; present {
		t.Fatalf("expected rest absent, got %q", params["rest"])
	}

	params, ok = u.Match("/test/foo")
	if !ok {
		t.Fatalf("expected match for /test/foo")
	}
	if params["rest"] != "foo" {
		t.Fatalf("got rest=%q", params["rest"])
	}
}

func TestGreedyMustBeTerminal(t *testing.T) {
	if _, err := Parse("/test/{+rest}/more"); err == nil {
		t.Fatalf("expected error for segment after greedy capture")
	}
}

func TestConstrainedParam(t *testing.T) {
	u, err := Parse("/items/{id:[0-9]+}")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := u.Match("/items/abc"); ok {
		t.Fatalf("expected no match for non-numeric id")
	}
	params, ok := u.Match("/items/42")
	if !ok || params["id"] != "42" {
		t.Fatalf("expected id=42, got %#v ok=%v", params, ok)
	}
}

func TestSpecificityRank(t *testing.T) {
	lit := Segment{Kind: Literal, Literal: "foo"}
	constrained := Segment{Kind: Param, Name: "id", Pattern: MustParse("/x/{id:[0-9]+}").Segments[1].Pattern}
	unconstrained := Segment{Kind: Param, Name: "id"}
	greedy := Segment{Kind: Greedy, Name: "rest"}

	if !Less(lit, constrained) || !Less(constrained, unconstrained) || !Less(unconstrained, greedy) {
		t.Fatalf("expected literal > constrained > unconstrained > greedy")
	}
}
