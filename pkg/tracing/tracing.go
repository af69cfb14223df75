package tracing

import (
	"context"

	"github.com/eahazardswatch/geoingest/configs"
	"github.com/hashicorp/go-hclog"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
	"github.com/uber/jaeger-client-go"
)

// GetTracer returns configured Jaeger reporter or null reporter, if tracer is disabled.
func GetTracer(logger hclog.Logger, config *configs.TracingConfig) (opentracing.Tracer, func(), error) {
	if config.Enable {
		transport, err := jaeger.NewUDPTransport(config.HostPort, 0)
		if err != nil {
			return nil, func() {}, errors.Wrap(err, "failed constructing jaeger UDP transport")
		}
		logAdapter := newJaegerLogger(logger)

		reporters := []jaeger.Reporter{}
		remoteReporterOptions := []jaeger.ReporterOption{}

		if config.LogEnable {
			reporters = append(reporters, jaeger.NewLoggingReporter(logAdapter))
			remoteReporterOptions = append(remoteReporterOptions, jaeger.ReporterOptions.Logger(logAdapter))
		}

		reporters = append(reporters, jaeger.NewRemoteReporter(transport, remoteReporterOptions...))

		reporter := jaeger.NewCompositeReporter(reporters...)
		tracer, closer := jaeger.NewTracer(config.ApplicationName,
			jaeger.NewConstSampler(true),
			reporter,
		)
		return tracer, func() {
			reporter.Close()
			closer.Close()
		}, nil
	}

	reporter := jaeger.NewNullReporter()
	tracer, closer := jaeger.NewTracer(config.ApplicationName,
		jaeger.NewConstSampler(true),
		reporter,
	)
	return tracer, func() {
		reporter.Close()
		closer.Close()
	}, nil
}

// StartRunSpan starts the root span of a single dataset run.
// The returned finish function marks the span as failed when err is not nil.
func StartRunSpan(ctx context.Context, tracer opentracing.Tracer, datasetID, runID string) (context.Context, func(err error)) {
	span := tracer.StartSpan("ingest."+datasetID,
		opentracing.Tag{Key: "dataset", Value: datasetID},
		opentracing.Tag{Key: "run-id", Value: runID})
	return opentracing.ContextWithSpan(ctx, span), func(err error) {
		if err != nil {
			ext.Error.Set(span, true)
			span.LogKV("event", "error", "message", err.Error())
		}
		span.Finish()
	}
}

// ChildSpan starts a span under the span carried by the context.
// Without a parent span the global tracer is used.
func ChildSpan(ctx context.Context, operationName string) (opentracing.Span, context.Context) {
	if parent := opentracing.SpanFromContext(ctx); parent != nil {
		return opentracing.StartSpanFromContextWithTracer(ctx, parent.Tracer(), operationName)
	}
	return opentracing.StartSpanFromContext(ctx, operationName)
}
