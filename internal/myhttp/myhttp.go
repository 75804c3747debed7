package myhttp

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/metric"
)

func newServerMux(logger *slog.Logger, httpRequestsDurationMicroSeconds metric.Int64Histogram) *myRouter {
	return &myRouter{
		ServeMux:                         http.NewServeMux(),
		logger:                           logger,
		httpRequestsDurationMicroSeconds: httpRequestsDurationMicroSeconds,
	}
}

var NewServerMux = newServerMux

type loggerContextKey struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// Logger returns the request scoped logger stored by the middleware, or the
// default logger.
func Logger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
