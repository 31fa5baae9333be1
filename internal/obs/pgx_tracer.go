package obs

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementLen = 300

// PGXTracer opens a client span per query, named after the sqlc query when
// the statement carries a "-- name:" header.
type PGXTracer struct{}

func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	attrs := []attribute.KeyValue{
		semconv.DBSystemPostgreSQL,
		attribute.String("db.query.text", statement(data.SQL)),
	}
	spanName := "pgx.query"
	if name := QueryName(data.SQL); name != "" {
		spanName = "pgx." + name
		attrs = append(attrs, attribute.String("db.query.name", name))
	}
	ctx, _ = otel.Tracer("db.pgx").Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx
}

func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	defer span.End()
	// no rows is a normal lookup result (unknown code, first delivery)
	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, "query failed")
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
}

// QueryName extracts X from a "-- name: X :kind" header.
func QueryName(sql string) string {
	rest, ok := strings.CutPrefix(strings.TrimSpace(sql), "-- name:")
	if !ok {
		return ""
	}
	if fields := strings.Fields(rest); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func statement(sql string) string {
	s := strings.TrimSpace(sql)
	if len(s) <= maxStatementLen {
		return s
	}
	return s[:maxStatementLen] + "..."
}
