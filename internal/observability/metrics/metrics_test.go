package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("match_type", "fuzzy"),
		attribute.String("case_id", "456"),
		attribute.String("severity", "high"),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("match_type"))
	assert.Contains(t, keys, attribute.Key("severity"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordMatchProposed(context.Background(), "exact")
		m.RecordNotificationDropped(context.Background(), "match_confirmed")
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordDiscrepancy(context.Background(), "missing_invoice", "high")
		m.RecordSignOff(context.Background(), "partial")
	})
}
