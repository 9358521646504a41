package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("customer_id", "ada@example.com"),
		attribute.Int64("session_id", 42),
		attribute.String("sender_role", "customer"),
		attribute.String("reason", "expired"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "customer_id" || attr.Key == "session_id" {
			t.Fatalf("high-cardinality label %q retained", attr.Key)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordSessionRequested(ctx, 5)
	m.RecordSessionTransition(ctx, "pending", "active", "")
	m.RecordMessage(ctx, "customer")
	m.RecordWalletEntry(ctx, "debit", -1495)
	m.RecordInsufficientCredits(ctx)
	m.RecordRateLimitDenied(ctx, "chat_message", "bucket")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "mystictxt"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordWalletEntry(context.Background(), "credit", 2500)
}
