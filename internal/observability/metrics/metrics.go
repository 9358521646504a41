package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics holds the OTel counters for chat and wallet activity.
type Metrics struct {
	sessionsRequested   metric.Int64Counter
	sessionTransitions  metric.Int64Counter
	messagesPosted      metric.Int64Counter
	walletEntries       metric.Int64Counter
	walletEntryCents    metric.Int64Counter
	insufficientCredits metric.Int64Counter
	rateLimitDenied     metric.Int64Counter
}

// NewProvider installs the global meter provider. With metrics disabled it is a noop.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(context.Background(), cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))),
	)
	otel.SetMeterProvider(provider)
	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}
	if log != nil {
		log.Info("metrics exporter ready",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

// New creates the counters on a meter named after the service.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(labelOr(cfg.ServiceName, "mystictxt"))

	var errs []error
	counter := func(name, desc string, opts ...metric.Int64CounterOption) metric.Int64Counter {
		c, err := meter.Int64Counter(name, append(opts, metric.WithDescription(desc))...)
		errs = append(errs, err)
		return c
	}
	m := &Metrics{
		sessionsRequested:   counter("mystictxt_chat_sessions_requested_total", "Chat sessions requested, by purchased duration."),
		sessionTransitions:  counter("mystictxt_chat_session_transitions_total", "Chat session status changes."),
		messagesPosted:      counter("mystictxt_chat_messages_total", "Chat messages appended, by sender role."),
		walletEntries:       counter("mystictxt_wallet_entries_total", "Wallet ledger entries written."),
		walletEntryCents:    counter("mystictxt_wallet_entry_cents_total", "Absolute cents moved by wallet entries.", metric.WithUnit("{cent}")),
		insufficientCredits: counter("mystictxt_wallet_insufficient_credits_total", "Session requests refused for lack of credits."),
		rateLimitDenied:     counter("mystictxt_rate_limit_denied_total", "Requests refused by the chat rate limiter."),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	c.Add(ctx, n, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func (m *Metrics) RecordSessionRequested(ctx context.Context, durationMinutes int) {
	if m != nil {
		add(ctx, m.sessionsRequested, 1, attribute.Int("duration_minutes", durationMinutes))
	}
}

// RecordSessionTransition counts one status change. reason is empty unless the session ended.
func (m *Metrics) RecordSessionTransition(ctx context.Context, from, to, reason string) {
	if m != nil {
		add(ctx, m.sessionTransitions, 1,
			attribute.String("from", from),
			attribute.String("to", to),
			attribute.String("reason", reason),
		)
	}
}

func (m *Metrics) RecordMessage(ctx context.Context, senderRole string) {
	if m != nil {
		add(ctx, m.messagesPosted, 1, attribute.String("sender_role", senderRole))
	}
}

// RecordWalletEntry counts a ledger entry and the cents it moved, debits included as positive.
func (m *Metrics) RecordWalletEntry(ctx context.Context, entryType string, amountCents int64) {
	if m == nil {
		return
	}
	kind := attribute.String("entry_type", entryType)
	add(ctx, m.walletEntries, 1, kind)
	add(ctx, m.walletEntryCents, max(amountCents, -amountCents), kind)
}

func (m *Metrics) RecordInsufficientCredits(ctx context.Context) {
	if m != nil {
		add(ctx, m.insufficientCredits, 1)
	}
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m != nil {
		add(ctx, m.rateLimitDenied, 1, attribute.String("endpoint", endpoint), attribute.String("reason", reason))
	}
}

func newExporter(ctx context.Context, protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
}

// Only these label keys reach an exporter. Customer and session ids never do.
var allowedLabelKeys = map[attribute.Key]bool{
	"endpoint":         true,
	"status_code":      true,
	"duration_minutes": true,
	"sender_role":      true,
	"entry_type":       true,
	"from":             true,
	"to":               true,
	"reason":           true,
}

// FilterAttributes drops labels outside allowedLabelKeys and trims string values.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if !allowedLabelKeys[attr.Key] {
			continue
		}
		if attr.Value.Type() == attribute.STRING {
			attr = attribute.String(string(attr.Key), strings.TrimSpace(attr.Value.AsString()))
		}
		out = append(out, attr)
	}
	return out
}
