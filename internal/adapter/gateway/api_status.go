package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatusInfo is the static part of the status response.
type StatusInfo struct {
	Version  string
	Provider string
	Model    string
	BaseURL  string
}

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service  ServiceStatus `json:"service"`
	Sessions SessionStatus `json:"sessions"`
	LLM      LLMStatus     `json:"llm"`
}

// ServiceStatus holds process overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// SessionStatus holds session counts.
type SessionStatus struct {
	Active int `json:"active"`
}

// LLMStatus describes the upstream provider.
type LLMStatus struct {
	Provider     string `json:"provider"`
	DefaultModel string `json:"default_model"`
	BaseURL      string `json:"base_url"`
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Service: ServiceStatus{
			Name:          "webchat",
			Version:       s.deps.Status.Version,
			UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		},
		Sessions: SessionStatus{Active: s.deps.Sessions.Count()},
		LLM: LLMStatus{
			Provider:     s.deps.Status.Provider,
			DefaultModel: s.deps.Status.Model,
			BaseURL:      s.deps.Status.BaseURL,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
