package httpmiddleware

import (
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"
	"sqidlink.local/gee"
	"sqidlink.local/internal/platform/metrics"
)

func routeLabel(ctx *gee.Context) string {
	if ctx.RoutePattern == "" {
		return "UNMATCHED"
	}
	return ctx.RoutePattern
}

// Metrics 按路由模板统计请求数与耗时
func Metrics() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		start := time.Now()
		metrics.HTTPInflightRequests.Inc()
		defer metrics.HTTPInflightRequests.Dec()

		ctx.Next()

		route := routeLabel(ctx)
		metrics.HTTPRequestsTotal.WithLabelValues(ctx.Method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		metrics.HTTPRequestDurationSeconds.WithLabelValues(ctx.Method, route).Observe(time.Since(start).Seconds())
	}
}

// TraceName 把 otelhttp 建的 span 改名为 "METHOD /route/:param"
func TraceName() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		trace.SpanFromContext(ctx.Req.Context()).SetName(ctx.Method + " " + routeLabel(ctx))
		ctx.Next()
	}
}
