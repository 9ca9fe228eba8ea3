package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestExporter(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
		trace.WithSampler(trace.AlwaysSample()),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func TestTracingNamesSpanByRoute(t *testing.T) {
	exporter := newTestExporter(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := Tracing(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/0193f1c2", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "GET /api/v1/jobs/{id}" {
		t.Errorf("expected span named after route, got %q", span.Name)
	}

	var foundRoute, foundStatus bool
	for _, attr := range span.Attributes {
		switch attr.Key {
		case "http.route":
			foundRoute = attr.Value.AsString() == "GET /api/v1/jobs/{id}"
		case "http.status_code":
			foundStatus = attr.Value.AsInt64() == 200
		}
	}
	if !foundRoute {
		t.Error("http.route attribute missing or wrong")
	}
	if !foundStatus {
		t.Error("http.status_code attribute missing or wrong")
	}
}

func TestTracingUnmatchedKeepsPath(t *testing.T) {
	exporter := newTestExporter(t)

	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "GET /nowhere" {
		t.Errorf("unexpected span name %q", spans[0].Name)
	}
	if spans[0].Status.Code == codes.Error {
		t.Error("4xx should not mark the span as an error")
	}
}

func TestTracingServerErrorStatus(t *testing.T) {
	exporter := newTestExporter(t)

	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("expected error status, got %+v", spans[0].Status)
	}
}

func TestTracingResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	tw := &tracingResponseWriter{
		ResponseWriter: rec,
		statusCode:     http.StatusOK,
	}

	tw.WriteHeader(http.StatusAccepted)

	if tw.statusCode != http.StatusAccepted {
		t.Errorf("expected statusCode=202, got %d", tw.statusCode)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected underlying recorder Code=202, got %d", rec.Code)
	}
}
