package observability

import (
	"github.com/smallbiznis/mystictxt/internal/observability/logger"
	"github.com/smallbiznis/mystictxt/internal/observability/metrics"
	"github.com/smallbiznis/mystictxt/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.QueryLogger,
		Config.Tracing,
		Config.Metrics,
	),
	fx.Provide(
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// Built eagerly so the tracer provider and the sweeper collectors exist
	// before the first request or job.
	fx.Invoke(
		func(*sdktrace.TracerProvider) {},
		func(cfg metrics.Config) { metrics.SchedulerWithConfig(cfg) },
	),
)
