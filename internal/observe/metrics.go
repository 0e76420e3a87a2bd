// Package observe provides application-wide observability primitives for
// the gateway: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all gateway metrics.
const meterName = "github.com/mcproxygw/mcgateway"

// Metrics holds all OpenTelemetry metric instruments for the gateway. All
// fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ToolCallDuration tracks the latency of a routed tools/call round-trip
	// to a child, from Pool.Call through ChildProcess.Call (spec §4.A/§4.B).
	ToolCallDuration metric.Float64Histogram

	// ChildStartDuration tracks how long a child's start protocol takes
	// from fork-exec through the initialize reply (spec §4.A).
	ChildStartDuration metric.Float64Histogram

	// SandboxExecutionDuration tracks wall-clock time of a sandbox
	// execution, mirroring the execution_time_ms the caller also sees
	// (spec §4.G "Result assembly").
	SandboxExecutionDuration metric.Float64Histogram

	// ManifestRebuildDuration tracks how long a full manifest rebuild takes
	// (spec §4.D "Building").
	ManifestRebuildDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// ToolCalls counts routed tool invocations. Use with attributes:
	//   attribute.String("server", ...), attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ChildRestarts counts bounded-restart attempts after a detected crash
	// (spec §4.A "Crash detection and restart", §5 "Restart back-off").
	ChildRestarts metric.Int64Counter

	// ChildRestartsExhausted counts children that hit the restart bound and
	// were left permanently dead (spec §3 invariant iii).
	ChildRestartsExhausted metric.Int64Counter

	// SandboxExecutions counts sandbox runs by outcome. Use with attribute:
	//   attribute.String("status", ...)
	SandboxExecutions metric.Int64Counter

	// SandboxValidationRejections counts submissions rejected by the static
	// validator before any subprocess was launched (spec §4.F).
	SandboxValidationRejections metric.Int64Counter

	// ManifestRebuilds counts manifest rebuild invocations (spec §4.D).
	ManifestRebuilds metric.Int64Counter

	// ReloadsApplied counts successful hot-reload reconciliations
	// (spec §4.E).
	ReloadsApplied metric.Int64Counter

	// ReloadsSkipped counts hot-reload requests refused because a
	// reconciliation was already in flight (spec §4.E "Concurrency guard").
	ReloadsSkipped metric.Int64Counter

	// --- Gauges ---

	// ActiveChildren tracks the number of currently alive child processes.
	ActiveChildren metric.Int64UpDownCounter

	// ActiveSSEConnections tracks the number of open SSE streams (spec §6
	// "GET /sse").
	ActiveSSEConnections metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning
// sub-second child calls up to the 350-second tool-call deadline and the
// sandbox's 30-second default timeout (spec §4.A/§4.G).
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 350,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ToolCallDuration, err = m.Float64Histogram("mcgateway.tool_call.duration",
		metric.WithDescription("Latency of a routed tools/call round-trip to a child."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChildStartDuration, err = m.Float64Histogram("mcgateway.child_start.duration",
		metric.WithDescription("Latency of a child's start protocol through the initialize reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SandboxExecutionDuration, err = m.Float64Histogram("mcgateway.sandbox_execution.duration",
		metric.WithDescription("Wall-clock duration of a sandbox execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ManifestRebuildDuration, err = m.Float64Histogram("mcgateway.manifest_rebuild.duration",
		metric.WithDescription("Latency of a full manifest rebuild across all children."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("mcgateway.http.request.duration",
		metric.WithDescription("HTTP/SSE request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.ToolCalls, err = m.Int64Counter("mcgateway.tool.calls",
		metric.WithDescription("Total routed tool invocations by server, tool, and status."),
	); err != nil {
		return nil, err
	}
	if met.ChildRestarts, err = m.Int64Counter("mcgateway.child.restarts",
		metric.WithDescription("Total bounded-restart attempts after a detected child crash."),
	); err != nil {
		return nil, err
	}
	if met.ChildRestartsExhausted, err = m.Int64Counter("mcgateway.child.restarts_exhausted",
		metric.WithDescription("Total children that exceeded the restart bound and were left dead."),
	); err != nil {
		return nil, err
	}
	if met.SandboxExecutions, err = m.Int64Counter("mcgateway.sandbox.executions",
		metric.WithDescription("Total sandbox executions by outcome status."),
	); err != nil {
		return nil, err
	}
	if met.SandboxValidationRejections, err = m.Int64Counter("mcgateway.sandbox.validation_rejections",
		metric.WithDescription("Total submissions rejected by static validation before execution."),
	); err != nil {
		return nil, err
	}
	if met.ManifestRebuilds, err = m.Int64Counter("mcgateway.manifest.rebuilds",
		metric.WithDescription("Total manifest rebuild invocations."),
	); err != nil {
		return nil, err
	}
	if met.ReloadsApplied, err = m.Int64Counter("mcgateway.reload.applied",
		metric.WithDescription("Total hot-reload reconciliations successfully applied."),
	); err != nil {
		return nil, err
	}
	if met.ReloadsSkipped, err = m.Int64Counter("mcgateway.reload.skipped",
		metric.WithDescription("Total hot-reload requests refused due to a reload already in flight."),
	); err != nil {
		return nil, err
	}

	if met.ActiveChildren, err = m.Int64UpDownCounter("mcgateway.active_children",
		metric.WithDescription("Number of currently alive child processes."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSSEConnections, err = m.Int64UpDownCounter("mcgateway.active_sse_connections",
		metric.WithDescription("Number of currently open SSE streams."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall records a tool call counter increment and its duration
// with the standard attribute set (spec §4.A/§4.B routing).
func (m *Metrics) RecordToolCall(ctx context.Context, server, tool, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolCallDuration.Record(ctx, seconds, attrs)
}

// RecordChildRestart records a restart attempt, and separately flags the
// case where the attempt was refused for exceeding the restart bound
// (spec §3 invariant iii).
func (m *Metrics) RecordChildRestart(ctx context.Context, child string, exhausted bool) {
	m.ChildRestarts.Add(ctx, 1, metric.WithAttributes(attribute.String("child", child)))
	if exhausted {
		m.ChildRestartsExhausted.Add(ctx, 1, metric.WithAttributes(attribute.String("child", child)))
	}
}

// RecordSandboxExecution records a sandbox execution's outcome and
// duration (spec §4.G "Result assembly").
func (m *Metrics) RecordSandboxExecution(ctx context.Context, status string, seconds float64) {
	m.SandboxExecutions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.SandboxExecutionDuration.Record(ctx, seconds)
}

// RecordSandboxValidationRejection records a submission rejected before
// execution (spec §4.F).
func (m *Metrics) RecordSandboxValidationRejection(ctx context.Context) {
	m.SandboxValidationRejections.Add(ctx, 1)
}

// RecordManifestRebuild records a manifest rebuild's duration (spec §4.D).
func (m *Metrics) RecordManifestRebuild(ctx context.Context, seconds float64) {
	m.ManifestRebuilds.Add(ctx, 1)
	m.ManifestRebuildDuration.Record(ctx, seconds)
}

// RecordReload records whether a hot-reload request was applied or skipped
// due to an in-flight reconciliation (spec §4.E "Concurrency guard").
func (m *Metrics) RecordReload(ctx context.Context, applied bool) {
	if applied {
		m.ReloadsApplied.Add(ctx, 1)
		return
	}
	m.ReloadsSkipped.Add(ctx, 1)
}
