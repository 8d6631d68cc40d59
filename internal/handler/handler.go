// Package handler provides the ops HTTP handlers.
package handler

import (
	"encoding/json"
	"net/http"
	"time"
)

// Handler serves the service banner and fallback responses.
type Handler struct {
	service   string
	version   string
	startedAt time.Time
}

// New creates a new Handler instance.
func New(service, version string) *Handler {
	return &Handler{
		service:   service,
		version:   version,
		startedAt: time.Now(),
	}
}

// InfoResponse describes the running service.
type InfoResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// Info returns the service name, version and uptime.
// GET /
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		Service: h.service,
		Version: h.version,
		Uptime:  time.Since(h.startedAt).Truncate(time.Second).String(),
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeErrorJSON(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeErrorJSON(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeErrorJSON writes a JSON error response.
func writeErrorJSON(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
