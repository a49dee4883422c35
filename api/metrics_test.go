package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRequestMetricsLogProducesObservabilityEvent(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetFormatter(&log.JSONFormatter{})

	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newRequestMetrics(context.Background(), logger, "/api/intake/result")
	metrics.start = metrics.start.Add(-50 * time.Millisecond)
	metrics.Observe("auth", 10*time.Millisecond)
	metrics.Observe("enqueue", 15*time.Millisecond)
	metrics.Set("estimate", 565)
	metrics.Set("duplicate", true)

	metrics.Log(http.StatusOK, nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected log entry")
	}
	if entry.Message != observabilityEvent {
		t.Fatalf("unexpected message: %s", entry.Message)
	}
	if entry.Level != log.InfoLevel {
		t.Fatalf("unexpected level: %v", entry.Level)
	}
	if got := entry.Data["event.name"]; got != requestEventName {
		t.Fatalf("unexpected event name: %v", got)
	}
	if got := entry.Data["event.domain"]; got != requestEventDomain {
		t.Fatalf("unexpected event domain: %v", got)
	}
	attrs, ok := entry.Data["attributes"].(map[string]any)
	if !ok {
		t.Fatalf("attributes not logged as map: %#v", entry.Data["attributes"])
	}
	if attrs["http.route"] != "/api/intake/result" {
		t.Fatalf("unexpected route attribute: %#v", attrs["http.route"])
	}
	if attrs["onboarding.estimate"] != 565 {
		t.Fatalf("unexpected estimate attribute: %#v", attrs["onboarding.estimate"])
	}
	if attrs["onboarding.duplicate"] != true {
		t.Fatal("expected duplicate attribute")
	}
	if attrs["onboarding.auth_ms"] != 10.0 {
		t.Fatalf("unexpected auth_ms: %#v", attrs["onboarding.auth_ms"])
	}
	if total, _ := attrs["onboarding.total_ms"].(float64); total < 50 {
		t.Fatalf("expected total duration to cover the request, got %#v", attrs["onboarding.total_ms"])
	}
	if entry.Data["severity_text"] != "INFO" {
		t.Fatalf("unexpected severity text: %v", entry.Data["severity_text"])
	}
	if entry.Data["severity_number"] != 9 {
		t.Fatalf("unexpected severity number: %v", entry.Data["severity_number"])
	}
	if traceID, ok := entry.Data["trace_id"].(string); !ok || traceID == "" {
		t.Fatalf("expected trace_id to be recorded, got %#v", entry.Data["trace_id"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != requestSpanName {
		t.Fatalf("unexpected span name: %s", span.Name)
	}
	spanAttrs := attributesToMap(span.Attributes)
	if spanAttrs["http.route"] != "/api/intake/result" {
		t.Fatalf("span route attribute mismatch: %#v", spanAttrs["http.route"])
	}
	if code, ok := spanAttrs["http.status_code"].(int64); !ok || code != int64(http.StatusOK) {
		t.Fatalf("unexpected http.status_code on span: %#v", spanAttrs["http.status_code"])
	}
	if span.Status.Code != codes.Ok {
		t.Fatalf("expected span status Ok, got %v", span.Status.Code)
	}

	event := findEvent(span.Events)
	if event.Name == "" {
		t.Fatalf("expected observability.event span event, got %#v", span.Events)
	}
	eventAttrs := attributesToMap(event.Attributes)
	if eventAttrs["event.name"] != requestEventName {
		t.Fatalf("unexpected event.name attribute: %#v", eventAttrs["event.name"])
	}
	if eventAttrs["severity_text"] != "INFO" {
		t.Fatalf("unexpected span event severity: %#v", eventAttrs["severity_text"])
	}
	if v, ok := eventAttrs["onboarding.estimate"].(int64); !ok || v != 565 {
		t.Fatalf("expected estimate on span event, got %#v", eventAttrs["onboarding.estimate"])
	}
}

func TestRequestMetricsLogWithErrorSetsSpanStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()

	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newRequestMetrics(context.Background(), logger, "/api/intake/result")
	boom := errors.New("queue failure")
	metrics.Fail("enqueue", boom)

	metrics.Log(http.StatusInternalServerError, nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	if entry := hook.LastEntry(); entry == nil || entry.Level != log.ErrorLevel {
		t.Fatalf("expected error level entry, got %#v", entry)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Fatalf("expected span status error, got %v", span.Status.Code)
	}
	if span.Status.Description != boom.Error() {
		t.Fatalf("unexpected status description %q", span.Status.Description)
	}

	attrs := attributesToMap(findEvent(span.Events).Attributes)
	if attrs["severity_text"] != "ERROR" {
		t.Fatalf("unexpected severity_text for error: %#v", attrs["severity_text"])
	}
	if attrs["onboarding.error_stage"] != "enqueue" {
		t.Fatalf("expected error stage attribute propagated, got %#v", attrs["onboarding.error_stage"])
	}
	if attrs["error.message"] != boom.Error() {
		t.Fatalf("expected error.message attribute, got %#v", attrs["error.message"])
	}
}

func TestRequestMetricsNilSafe(t *testing.T) {
	var m *requestMetrics
	m.Observe("auth", time.Second)
	m.Set("k", 1)
	m.SetErrorStage("x")
	m.Fail("x", errors.New("boom"))
	m.Log(http.StatusOK, nil)
}

func TestObserveMiddlewareUsesRoutePath(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	e := echo.New()
	e.GET("/api/things/:id", func(c echo.Context) error {
		metricsFrom(c).SetErrorStage("lookup")
		return c.String(http.StatusNotFound, "missing")
	}, observe(logger))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/things/42", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["severity_text"] != "WARN" || entry.Level != log.WarnLevel {
		t.Fatalf("expected WARN observability event, got %#v", entry)
	}
	attrs := entry.Data["attributes"].(map[string]any)
	if attrs["http.route"] != "/api/things/:id" {
		t.Fatalf("expected route template, got %#v", attrs["http.route"])
	}
	if attrs["onboarding.error_stage"] != "lookup" {
		t.Fatalf("expected error stage, got %#v", attrs["onboarding.error_stage"])
	}
	if spans := exporter.GetSpans(); len(spans) != 1 || spans[0].Status.Code != codes.Ok {
		t.Fatalf("expected one non-error span for a client error, got %#v", spans)
	}
}

func TestSeverityForStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		err        error
		wantText   string
		wantNumber int
	}{
		{name: "ok", status: http.StatusOK, wantText: "INFO", wantNumber: 9},
		{name: "warn", status: http.StatusBadRequest, wantText: "WARN", wantNumber: 13},
		{name: "error", status: http.StatusInternalServerError, wantText: "ERROR", wantNumber: 17},
		{name: "errorFromErr", status: 0, err: assertErr{}, wantText: "ERROR", wantNumber: 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotText, gotNumber := severityForStatus(tt.status, tt.err)
			if gotText != tt.wantText || gotNumber != tt.wantNumber {
				t.Fatalf("severityForStatus(%d, %v) = %s/%d, want %s/%d", tt.status, tt.err, gotText, gotNumber, tt.wantText, tt.wantNumber)
			}
		})
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "error" }

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	}
	return tp, exporter, cleanup
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func findEvent(events []sdktrace.Event) sdktrace.Event {
	for _, ev := range events {
		if ev.Name == observabilityEvent {
			return ev
		}
	}
	return sdktrace.Event{}
}
