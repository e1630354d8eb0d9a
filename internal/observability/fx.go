package observability

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	"github.com/smallbiznis/soarecon/internal/observability/logger"
	"github.com/smallbiznis/soarecon/internal/observability/metrics"
	"github.com/smallbiznis/soarecon/internal/observability/tracing"
)

// Module wires the logger, the tracer provider and the meters. Each takes its
// settings from Config.
var Module = fx.Module("observability",
	fx.Provide(
		ConfigFrom,
		Config.Logger,
		Config.Tracing,
		Config.Metrics,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// Nothing else asks for the tracer provider; resolve it so the global
	// tracer is installed.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
