package degrade

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the JSON body for the detailed health endpoint.
type HealthResponse struct {
	Status    string                     `json:"status"`
	Timestamp string                     `json:"timestamp"`
	Health    SystemHealth               `json:"health"`
	Services  map[string]ServiceResponse `json:"services,omitempty"`
}

// ServiceResponse is the JSON body for a single service's status.
type ServiceResponse struct {
	Available   bool   `json:"available"`
	LastChecked string `json:"last_checked"`
	ErrorCount  int    `json:"error_count"`
	LastError   string `json:"last_error,omitempty"`
}

// HealthHandler returns an HTTP handler reporting aggregate system health
// plus every service's status.
func HealthHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := m.SystemHealth()
		degradation := m.DegradationStatus()

		response := HealthResponse{
			Status:    degradation.Severity,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Health:    health,
			Services:  make(map[string]ServiceResponse),
		}

		for name, st := range m.snapshot() {
			response.Services[name] = ServiceResponse{
				Available:   st.Available,
				LastChecked: st.LastChecked.UTC().Format(time.RFC3339),
				ErrorCount:  st.ErrorCount,
				LastError:   st.LastError,
			}
		}

		w.Header().Set("Content-Type", "application/json")

		if degradation.Severity == SeverityError {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(response)
	}
}

// DegradationHandler returns an HTTP handler with the user-facing
// degradation summary.
func DegradationHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(m.DegradationStatus())
	}
}

// RegisterHandlers registers the degradation endpoints on the given mux.
func RegisterHandlers(mux *http.ServeMux, m *Manager) {
	mux.HandleFunc("/health", HealthHandler(m))
	mux.HandleFunc("/health/degradation", DegradationHandler(m))
}
