package tracing

import (
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsContent(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/chat/sessions/:id/messages"),
		attribute.String("content", "my secret question"),
		attribute.String("authorization", "Bearer abc"),
	)
	if len(attrs) != 1 {
		t.Fatalf("expected 1 attribute, got %d", len(attrs))
	}
	if attrs[0].Key != "http.route" {
		t.Fatalf("unexpected attribute %q", attrs[0].Key)
	}
}

func TestSafeErrorTruncates(t *testing.T) {
	if SafeError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	long := errors.New(strings.Repeat("x", 400))
	if got := SafeError(long).Error(); len(got) != 256 {
		t.Fatalf("expected truncated message, got length %d", len(got))
	}
}
