// Package telemetry sets up the OpenTelemetry meter provider.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config holds configuration for the metrics provider.
type Config struct {
	ServiceName string `yaml:"service_name"`
	// OTLPEndpoint is a host:port gRPC collector address. Empty disables
	// export; instruments still record in-process.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// Defaults returns the default metrics configuration.
func (Config) Defaults() Config {
	return Config{ServiceName: "sysclock"}
}

// MetricsProvider wraps the meter provider with shutdown.
type MetricsProvider struct {
	provider *sdkmetric.MeterProvider
}

// InitMetrics creates a meter provider, installs it as the global provider
// and returns it. Extra readers are attached alongside the exporter.
func InitMetrics(ctx context.Context, cfg Config, readers ...sdkmetric.Reader) (*MetricsProvider, error) {
	name := cfg.ServiceName
	if name == "" {
		name = Config{}.Defaults().ServiceName
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(name),
	)

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.OTLPEndpoint != "" {
		exporterOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)

	return &MetricsProvider{provider: provider}, nil
}

// Provider returns the underlying meter provider.
func (mp *MetricsProvider) Provider() *sdkmetric.MeterProvider {
	return mp.provider
}

// Shutdown flushes any remaining metrics and shuts down the provider.
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	if mp == nil || mp.provider == nil {
		return nil
	}
	return mp.provider.Shutdown(ctx)
}
