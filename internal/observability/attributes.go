// Package observability provides metric instruments for the protocol.
package observability

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const attrSource = "source"

func sourceAttr(source string) attribute.KeyValue {
	return attribute.String(attrSource, source)
}

// WithSource returns a metric option with the source attribute.
func WithSource(source string) metric.MeasurementOption {
	return metric.WithAttributes(sourceAttr(source))
}
