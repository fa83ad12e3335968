package telemetry

import (
	"context"
	"errors"
	"testing"

	deskmirror "github.com/mjhale/deskmirror"

	"go.opentelemetry.io/otel/trace/noop"
)

func TestTracerStartEndSpan(t *testing.T) {
	tr := New(noop.NewTracerProvider().Tracer("test"))

	var dm deskmirror.Tracer = tr
	ctx, span := dm.Start(context.Background(), "op",
		deskmirror.StringAttr("k", "v"),
		deskmirror.IntAttr("n", 1),
		deskmirror.BoolAttr("b", true),
		deskmirror.Float64Attr("f", 1.5),
	)
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}

	span.SetAttr(deskmirror.StringAttr("extra", "x"))
	span.Event("checkpoint", deskmirror.IntAttr("step", 2))
	span.Error(errors.New("boom"))
	span.End() // must not panic
}

func TestToOTELUnsupportedType(t *testing.T) {
	attrs := toOTEL([]deskmirror.SpanAttr{{Key: "weird", Value: struct{}{}}})
	if len(attrs) != 1 {
		t.Fatalf("expected 1 attr, got %d", len(attrs))
	}
	if attrs[0].Value.AsString() != "unsupported attr type" {
		t.Fatalf("expected fallback string, got %q", attrs[0].Value.AsString())
	}
}

func TestToOTELEmpty(t *testing.T) {
	if attrs := toOTEL(nil); attrs != nil {
		t.Fatalf("expected nil, got %v", attrs)
	}
}
