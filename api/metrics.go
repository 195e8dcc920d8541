package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	boardSpanName    = "GET /api/board"
	boardEventName   = "board.request"
	boardEventDomain = "dataflow"
	boardRoute       = "/api/board"
)

// boardRequestMetrics collects per-request timings for the board snapshot
// endpoint and emits them both as a span and as a structured log event.
type boardRequestMetrics struct {
	logger *log.Logger
	span   trace.Span

	start         time.Time
	authDuration  time.Duration
	fetchDuration time.Duration
	encodeTime    time.Duration
	tasksReturned int
	errorStage    string
}

func newBoardRequestMetrics(ctx context.Context, logger *log.Logger) (*boardRequestMetrics, context.Context) {
	tracer := otel.Tracer("dataflow-api")
	ctx, span := tracer.Start(ctx, boardSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &boardRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, ctx
}

func (m *boardRequestMetrics) ObserveAuth(d time.Duration)   { m.authDuration = d }
func (m *boardRequestMetrics) ObserveFetch(d time.Duration)  { m.fetchDuration = d }
func (m *boardRequestMetrics) ObserveEncode(d time.Duration) { m.encodeTime = d }
func (m *boardRequestMetrics) SetTasksReturned(n int)        { m.tasksReturned = n }
func (m *boardRequestMetrics) SetErrorStage(stage string)    { m.errorStage = stage }

// Log finishes the span and emits the observability event. Call exactly once
// per request, after the response status is known.
func (m *boardRequestMetrics) Log(status int, err error) {
	total := time.Since(m.start)
	severityText, severityNumber := severityForStatus(status, err)

	attrs := map[string]any{
		"http.route":                    boardRoute,
		"http.status_code":              status,
		"dataflow.board.auth_ms":        durationMs(m.authDuration),
		"dataflow.board.fetch_ms":       durationMs(m.fetchDuration),
		"dataflow.board.encode_ms":      durationMs(m.encodeTime),
		"dataflow.board.total_ms":       durationMs(total),
		"dataflow.board.tasks_returned": m.tasksReturned,
	}
	if m.errorStage != "" {
		attrs["dataflow.board.error_stage"] = m.errorStage
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}

	spanAttrs := []attribute.KeyValue{
		attribute.String("http.route", boardRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("dataflow.board.auth_ms", durationMs(m.authDuration)),
		attribute.Float64("dataflow.board.fetch_ms", durationMs(m.fetchDuration)),
		attribute.Float64("dataflow.board.encode_ms", durationMs(m.encodeTime)),
		attribute.Float64("dataflow.board.total_ms", durationMs(total)),
		attribute.Int("dataflow.board.tasks_returned", m.tasksReturned),
	}
	if m.errorStage != "" {
		spanAttrs = append(spanAttrs, attribute.String("dataflow.board.error_stage", m.errorStage))
	}
	m.span.SetAttributes(spanAttrs...)

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", boardEventName),
		attribute.String("event.domain", boardEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, spanAttrs...)
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
	}
	m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))

	if err != nil {
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	} else if status >= http.StatusInternalServerError {
		m.span.SetStatus(codes.Error, http.StatusText(status))
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	m.span.End()

	fields := log.Fields{
		"event.name":      boardEventName,
		"event.domain":    boardEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrs,
	}
	if sc := m.span.SpanContext(); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}
	m.logger.WithFields(fields).Info("observability.event")
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
