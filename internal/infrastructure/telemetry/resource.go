// Package telemetry wires the OpenTelemetry SDK into the service: traces,
// metrics, logs and continuous profiles, each behind its own config switch.
package telemetry

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const (
	// serviceVersion tags every exported signal; bumped with releases.
	serviceVersion = "1.0.0"

	// shutdownTimeout bounds how long a provider may block flushing on exit.
	shutdownTimeout = 10 * time.Second
)

// serviceResource builds the resource every signal exporter attaches: the
// SDK defaults merged with our service identity.
func serviceResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build service resource: %w", err)
	}
	return res, nil
}
