package otel

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Exporters for the three signals. OTLP endpoints come from the standard OTEL_EXPORTER_OTLP_* variables.
type exporters struct {
	span   trace.SpanExporter
	metric metric.Exporter
	log    log.Exporter
}

func newExporters(ctx context.Context, useOTLP bool) (*exporters, error) {
	var (
		e    exporters
		errs [3]error
	)

	if useOTLP {
		e.span, errs[0] = otlptracegrpc.New(ctx)
		e.metric, errs[1] = otlpmetricgrpc.New(ctx)
		e.log, errs[2] = otlploggrpc.New(ctx)
	} else {
		e.span, errs[0] = stdouttrace.New()
		e.metric, errs[1] = stdoutmetric.New()
		e.log, errs[2] = stdoutlog.New()
	}

	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return &e, nil
}

//nolint:ireturn // no control over otel's propagator interface return.
func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// SetupOTelSDK installs global trace, metric and log providers for one process, e.g. the API
// server or a scoring worker. Unless it returns an error, call the returned shutdown before exit
// so buffered telemetry is flushed.
func SetupOTelSDK(
	ctx context.Context,
	serviceName string,
	useOTLP bool,
) (func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, err
	}

	exp, err := newExporters(ctx, useOTLP)
	if err != nil {
		return nil, err
	}

	otel.SetTextMapPropagator(newPropagator())

	// scoring requests carry the server's trace context, so the worker follows its decision
	tracerProvider := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.AlwaysSample())),
		trace.WithBatcher(exp.span),
	)
	otel.SetTracerProvider(tracerProvider)

	meterProvider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exp.metric)),
	)
	otel.SetMeterProvider(meterProvider)

	loggerProvider := log.NewLoggerProvider(
		log.WithResource(res),
		log.WithProcessor(log.NewBatchProcessor(exp.log)),
	)
	global.SetLoggerProvider(loggerProvider)

	shutdownFuncs := []func(context.Context) error{
		tracerProvider.Shutdown,
		meterProvider.Shutdown,
		loggerProvider.Shutdown,
	}

	return func(ctx context.Context) error {
		var errs error
		for _, fn := range shutdownFuncs {
			errs = errors.Join(errs, fn(ctx))
		}
		shutdownFuncs = nil
		return errs
	}, nil
}
