package problem

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWrite_DevIncludesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/import", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusBadRequest, CodeBadRequest, "invalid request body", errors.New("boom"), "development")

	if got := res.Result().Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected content type application/json, got %s", got)
	}
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}

	var body Envelope
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Success {
		t.Fatal("expected success=false")
	}
	if body.Error != "invalid request body" {
		t.Fatalf("expected error message, got %q", body.Error)
	}
	if body.Detail != "boom" {
		t.Fatalf("expected detail boom, got %q", body.Detail)
	}
}

func TestWrite_ProdHidesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/import", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusInternalServerError, CodeInternal, "import failed", errors.New("dial tcp 10.0.0.1:5432"), "production")

	var body Envelope
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Detail != "" {
		t.Fatalf("expected no detail in production, got %q", body.Detail)
	}
	if body.Error != "import failed" {
		t.Fatalf("unexpected error %q", body.Error)
	}
}

func TestWrite_WithURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusUnprocessableEntity, CodeValidation, "extraction failed", nil, "production", WithURL("https://example.com/soup"))

	var raw map[string]any
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if raw["url"] != "https://example.com/soup" {
		t.Fatalf("expected url in envelope, got %v", raw["url"])
	}
	if raw["success"] != false {
		t.Fatalf("expected success=false, got %v", raw["success"])
	}
}
