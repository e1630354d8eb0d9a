package metrics

import (
	"context"
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

// Metrics exposes reconciliation instruments.
type Metrics struct {
	matchesProposed     metric.Int64Counter
	matchTransitions    metric.Int64Counter
	discrepancies       metric.Int64Counter
	signoffs            metric.Int64Counter
	lockContention      metric.Int64Counter
	notificationDropped metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the reconciliation instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "soarecon"
	}
	meter := provider.Meter(name)

	matchesProposed, err := meter.Int64Counter("soarecon_matches_proposed_total")
	if err != nil {
		return nil, err
	}
	matchTransitions, err := meter.Int64Counter("soarecon_match_transitions_total")
	if err != nil {
		return nil, err
	}
	discrepancies, err := meter.Int64Counter("soarecon_discrepancies_detected_total")
	if err != nil {
		return nil, err
	}
	signoffs, err := meter.Int64Counter("soarecon_signoffs_total")
	if err != nil {
		return nil, err
	}
	lockContention, err := meter.Int64Counter("soarecon_line_lock_contention_total")
	if err != nil {
		return nil, err
	}
	notificationDropped, err := meter.Int64Counter("soarecon_notifications_dropped_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		matchesProposed:     matchesProposed,
		matchTransitions:    matchTransitions,
		discrepancies:       discrepancies,
		signoffs:            signoffs,
		lockContention:      lockContention,
		notificationDropped: notificationDropped,
	}, nil
}

// RecordMatchProposed counts a created match by how it was found.
func (m *Metrics) RecordMatchProposed(ctx context.Context, matchType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("match_type", strings.TrimSpace(matchType)))
	m.matchesProposed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordMatchTransition counts confirm and reject outcomes.
func (m *Metrics) RecordMatchTransition(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.matchTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordDiscrepancy(ctx context.Context, discrepancyType, severity string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("discrepancy_type", strings.TrimSpace(discrepancyType)),
		attribute.String("severity", strings.TrimSpace(severity)),
	)
	m.discrepancies.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordSignOff(ctx context.Context, acknowledgementType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("acknowledgement_type", strings.TrimSpace(acknowledgementType)))
	m.signoffs.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordLockContention(ctx context.Context, backend string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("backend", strings.TrimSpace(backend)))
	m.lockContention.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordNotificationDropped(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.notificationDropped.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"match_type":           {},
	"status":               {},
	"discrepancy_type":     {},
	"severity":             {},
	"acknowledgement_type": {},
	"backend":              {},
	"event_type":           {},
	"endpoint":             {},
	"status_code":          {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
