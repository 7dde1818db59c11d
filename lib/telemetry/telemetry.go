// Package telemetry sets up process wide logging, tracing and metrics.
package telemetry

import (
	"context"
	"errors"
	"os"
	"time"

	"fic-gradebot/lib/configutil"

	"go.opentelemetry.io/otel"
)

type otlpConnConfig struct {
	GrpcEndpoint string            `json:"grpc_endpoint"`
	HttpEndpoint string            `json:"http_endpoint"`
	Headers      map[string]string `json:"headers"`
}

func (c otlpConnConfig) enabled() bool {
	return c.GrpcEndpoint != "" || c.HttpEndpoint != ""
}

type otlpConfig struct {
	Traces  otlpConnConfig `json:"traces"`
	Metrics otlpConnConfig `json:"metrics"`
}

type Config struct {
	Otlp otlpConfig `json:"otlp"`
	// SampleRatio is the share of root traces kept, 0 keeps all.
	SampleRatio float64 `json:"sample_ratio"`
	// MetricIntervalSec defaults to 30.
	MetricIntervalSec int `json:"metric_interval_sec"`
}

func (c Config) sampleRatio() float64 {
	if c.SampleRatio <= 0 || c.SampleRatio > 1 {
		return 1
	}
	return c.SampleRatio
}

func (c Config) metricInterval() time.Duration {
	if c.MetricIntervalSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.MetricIntervalSec) * time.Second
}

var shutdowns []func(context.Context) error

// Setup installs the global tracer and meter providers. Signals without
// an endpoint keep otel's no-op providers.
func Setup(ctx context.Context, serviceName string, config Config) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*15)
	defer cancel()

	r, err := newResource(serviceName)
	if err != nil {
		return err
	}

	if config.Otlp.Traces.enabled() {
		tracerProvider, err := newTraceProvider(ctx, r, config)
		if err != nil {
			return err
		}
		otel.SetTracerProvider(tracerProvider)
		shutdowns = append(shutdowns, tracerProvider.Shutdown)
	}

	if config.Otlp.Metrics.enabled() {
		meterProvider, err := newMetricProvider(ctx, r, config)
		if err != nil {
			return err
		}
		otel.SetMeterProvider(meterProvider)
		shutdowns = append(shutdowns, meterProvider.Shutdown)
	}

	return nil
}

// SetupFromEnv searches up the filesystem from the cwd for telemetry.json5
// and uses it as the config. A missing file leaves otel disabled.
func SetupFromEnv(ctx context.Context, serviceName string) error {
	config, err := configutil.ReadRecursively[Config]("telemetry.json5")
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return Setup(ctx, serviceName, config)
}

// Shutdown flushes and stops every provider installed by Setup.
func Shutdown(ctx context.Context) error {
	var errlist []error
	for _, shutdown := range shutdowns {
		err := shutdown(ctx)
		if err != nil {
			errlist = append(errlist, err)
		}
	}
	shutdowns = nil
	return errors.Join(errlist...)
}
