package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandler_Info(t *testing.T) {
	h := New("zun", "1.2.3")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	h.Info(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}

	var response InfoResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Service != "zun" {
		t.Errorf("unexpected service: %s", response.Service)
	}
	if response.Version != "1.2.3" {
		t.Errorf("unexpected version: %s", response.Version)
	}
	if response.Uptime == "" {
		t.Error("expected uptime")
	}
}

func TestHandler_Fallbacks(t *testing.T) {
	h := New("zun", "dev")

	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
		code    string
	}{
		{"not found", h.NotFound, http.StatusNotFound, "NOT_FOUND"},
		{"method not allowed", h.MethodNotAllowed, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/nonexistent", nil)
			rec := httptest.NewRecorder()

			tt.handler(rec, req)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}

			var response map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response["code"] != tt.code {
				t.Errorf("unexpected code: %s", response["code"])
			}
		})
	}
}
