package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Togather-Foundation/recipes/internal/auth"
)

func TestRequireScope(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour, "recipes-test")
	other := auth.NewJWTManager("other-secret", time.Hour, "recipes-test")

	mustToken := func(m *auth.JWTManager, role string, scopes ...string) string {
		t.Helper()
		token, err := m.Generate("tester", role, scopes...)
		if err != nil {
			t.Fatalf("generate token: %v", err)
		}
		return token
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad signature", "Bearer " + mustToken(other, "operator", auth.ScopeIngest), http.StatusUnauthorized},
		{"no scope", "Bearer " + mustToken(manager, "viewer"), http.StatusForbidden},
		{"ingest scope", "Bearer " + mustToken(manager, "operator", auth.ScopeIngest), http.StatusOK},
		{"admin", "Bearer " + mustToken(manager, "admin"), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *auth.Claims
			handler := RequireScope(manager, auth.ScopeIngest, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = Claims(r)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/import", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d (%s)", tt.want, rec.Code, rec.Body.String())
			}
			if tt.want == http.StatusOK && (seen == nil || seen.Subject != "tester") {
				t.Fatalf("expected claims in context, got %+v", seen)
			}
		})
	}
}

func TestRequireScopeNilManager(t *testing.T) {
	handler := RequireScope(nil, auth.ScopeIngest, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/import", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
