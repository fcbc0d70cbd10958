package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agblogger"

// Metrics holds the AgBlogger metric instruments: render subprocess
// throughput/latency and sync-commit throughput (spec §4.6, §4.10).
type Metrics struct {
	RendersStarted     metric.Int64Counter
	RendersCompleted   metric.Int64Counter
	RendersFailed      metric.Int64Counter
	SyncCommits        metric.Int64Counter
	RenderDuration     metric.Float64Histogram
	SyncCommitDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RendersStarted, err = meter.Int64Counter("agblogger.renders.started",
		metric.WithDescription("Number of renderer subprocess calls started"))
	if err != nil {
		return nil, err
	}

	m.RendersCompleted, err = meter.Int64Counter("agblogger.renders.completed",
		metric.WithDescription("Number of renderer subprocess calls completed"))
	if err != nil {
		return nil, err
	}

	m.RendersFailed, err = meter.Int64Counter("agblogger.renders.failed",
		metric.WithDescription("Number of renderer subprocess calls failed"))
	if err != nil {
		return nil, err
	}

	m.SyncCommits, err = meter.Int64Counter("agblogger.sync.commits",
		metric.WithDescription("Number of sync COMMIT finalizations"))
	if err != nil {
		return nil, err
	}

	m.RenderDuration, err = meter.Float64Histogram("agblogger.render.duration_seconds",
		metric.WithDescription("Render subprocess call duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.SyncCommitDuration, err = meter.Float64Histogram("agblogger.sync.commit_duration_seconds",
		metric.WithDescription("Sync COMMIT finalization duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
