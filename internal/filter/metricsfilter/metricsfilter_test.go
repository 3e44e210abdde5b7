package metricsfilter

import (
	"errors"
	"testing"
	"time"

	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/internal/filter/filtertest"
	"github.com/wikimedia/hyperswitch/internal/herr"
	"github.com/wikimedia/hyperswitch/message"
)

var errUnwrapped = errors.New("boom")

type recordingRecorder struct {
	status string
}

func (r *recordingRecorder) ObserveRequest(class, path, method, status string, elapsed time.Duration) {
	r.status = status
}

func TestRunRecordsStatusFromResponse(t *testing.T) {
	f, _ := New().CreateFilter(nil)
	rec := &recordingRecorder{}
	ctx := filtertest.NewContext()
	ctx.Metric = rec

	next := func(*message.Request) (*message.Response, error) {
		return message.NewResponse(404, nil), nil
	}
	if _, err := f(ctx, message.NewRequest("/x"), next, nil, &filter.SpecInfo{Path: "/domain/x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.status != "404" {
		t.Fatalf("status = %q, want 404", rec.status)
	}
}

func TestRunRecordsStatusFromErrorNotHardcoded500(t *testing.T) {
	f, _ := New().CreateFilter(nil)
	rec := &recordingRecorder{}
	ctx := filtertest.NewContext()
	ctx.Metric = rec

	next := func(*message.Request) (*message.Response, error) {
		return nil, herr.NotFoundRoute()
	}
	if _, err := f(ctx, message.NewRequest("/x"), next, nil, &filter.SpecInfo{Path: "/domain/x"}); err == nil {
		t.Fatalf("expected error to propagate")
	}
	if rec.status != "404" {
		t.Fatalf("status = %q, want 404 extracted from herr.Error, not hardcoded 500", rec.status)
	}
}

func TestRunFallsBackTo500ForUnwrappedError(t *testing.T) {
	f, _ := New().CreateFilter(nil)
	rec := &recordingRecorder{}
	ctx := filtertest.NewContext()
	ctx.Metric = rec

	next := func(*message.Request) (*message.Response, error) {
		return nil, errUnwrapped
	}
	if _, err := f(ctx, message.NewRequest("/x"), next, nil, &filter.SpecInfo{Path: "/domain/x"}); err == nil {
		t.Fatalf("expected error to propagate")
	}
	if rec.status != "500" {
		t.Fatalf("status = %q, want 500 for a plain error with no herr.Error", rec.status)
	}
}
