package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "onboarding-api/api"
	requestSpanName    = "onboarding.request"
	requestEventName   = "onboarding.request"
	requestEventDomain = "onboarding"
	observabilityEvent = "observability.event"
	attrPrefix         = "onboarding."
	metricsContextKey  = "onboarding.metrics"
)

// requestMetrics collects per-request timings and attributes and reports them
// once as a structured log line and an otel span.
type requestMetrics struct {
	logger     log.FieldLogger
	span       trace.Span
	route      string
	start      time.Time
	attrs      map[string]any
	errorStage string
	err        error
}

func newRequestMetrics(ctx context.Context, logger log.FieldLogger, route string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.route", route)),
	)
	return &requestMetrics{
		logger: logger,
		span:   span,
		route:  route,
		start:  time.Now(),
		attrs:  make(map[string]any),
	}, spanCtx
}

// Observe records the duration of a request stage as <stage>_ms.
func (m *requestMetrics) Observe(stage string, d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.attrs[attrPrefix+stage+"_ms"] = durationToMillis(d)
}

func (m *requestMetrics) Set(key string, value any) {
	if m == nil {
		return
	}
	m.attrs[attrPrefix+key] = value
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

// Fail marks the request as failed at stage with err.
func (m *requestMetrics) Fail(stage string, err error) {
	if m == nil {
		return
	}
	m.SetErrorStage(stage)
	if err != nil {
		m.err = err
	}
}

func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	if err == nil {
		err = m.err
	}

	attrs := make(map[string]any, len(m.attrs)+4)
	for k, v := range m.attrs {
		attrs[k] = v
	}
	attrs["http.route"] = m.route
	attrs["http.status_code"] = status
	attrs[attrPrefix+"total_ms"] = durationToMillis(time.Since(m.start))
	if m.errorStage != "" {
		attrs[attrPrefix+"error_stage"] = m.errorStage
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}

	severityText, severityNumber := severityForStatus(status, err)

	if m.span != nil {
		m.span.SetAttributes(
			attribute.String("http.route", m.route),
			attribute.Int("http.status_code", status),
		)
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String(attrPrefix+"error_stage", m.errorStage))
		}
		eventAttrs := []attribute.KeyValue{
			attribute.String("event.name", requestEventName),
			attribute.String("event.domain", requestEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}
		for k, v := range attrs {
			eventAttrs = append(eventAttrs, toAttribute(k, v))
		}
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
		if err != nil || status >= http.StatusInternalServerError {
			msg := http.StatusText(status)
			if err != nil {
				m.span.RecordError(err)
				msg = err.Error()
			}
			m.span.SetStatus(codes.Error, msg)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrs,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	m.logger.WithFields(fields).Log(levelForSeverity(severityNumber), observabilityEvent)
}

// severityForStatus maps a response to OpenTelemetry log severity.
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

func levelForSeverity(n int) log.Level {
	switch {
	case n >= 17:
		return log.ErrorLevel
	case n >= 13:
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

func toAttribute(key string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case bool:
		return attribute.Bool(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	default:
		return attribute.String(key, fmt.Sprint(val))
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// observe wraps each request in requestMetrics. Handlers reach the collector
// through metricsFrom.
func observe(logger log.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m, ctx := newRequestMetrics(c.Request().Context(), logger, c.Path())
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(metricsContextKey, m)

			err := next(c)

			status := c.Response().Status
			logErr := err
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
				if status < http.StatusInternalServerError {
					logErr = nil
				}
			}
			m.Log(status, logErr)
			return err
		}
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsContextKey).(*requestMetrics)
	return m
}
