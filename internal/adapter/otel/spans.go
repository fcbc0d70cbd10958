package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agblogger"

// StartRenderSpan starts a span for a renderer subprocess call (spec §4.6).
func StartRenderSpan(ctx context.Context, postSlug, renderer string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "render",
		trace.WithAttributes(
			attribute.String("post.slug", postSlug),
			attribute.String("render.engine", renderer),
		),
	)
}

// StartSyncCommitSpan starts a span for a sync engine COMMIT finalization
// (spec §4.10).
func StartSyncCommitSpan(ctx context.Context, commitID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "sync_commit",
		trace.WithAttributes(
			attribute.String("sync.commit_id", commitID),
		),
	)
}

// StartGitCommitSpan starts a span for a git commit produced on behalf of a
// post mutation (spec §4.9).
func StartGitCommitSpan(ctx context.Context, relPath, action string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "git_commit",
		trace.WithAttributes(
			attribute.String("post.path", relPath),
			attribute.String("git.action", action),
		),
	)
}
