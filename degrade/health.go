package degrade

import "sort"

// SystemHealth aggregates all registered services for operator visibility.
type SystemHealth struct {
	Total            int     `json:"total"`
	Available        int     `json:"available"`
	Unavailable      int     `json:"unavailable"`
	HealthPercentage float64 `json:"health_percentage"`
}

// Degradation severity tiers.
const (
	SeverityOK      = "ok"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// DegradationStatus is the user-facing degradation summary.
type DegradationStatus struct {
	Degraded []string `json:"degraded,omitempty"`
	Severity string   `json:"severity"`
}

// SystemHealth reports overall downstream health. An empty registry counts
// as fully healthy.
func (m *Manager) SystemHealth() SystemHealth {
	statuses := m.snapshot()

	h := SystemHealth{Total: len(statuses)}
	for _, st := range statuses {
		if st.Available {
			h.Available++
		} else {
			h.Unavailable++
		}
	}

	if h.Total == 0 {
		h.HealthPercentage = 100
	} else {
		h.HealthPercentage = float64(h.Available) / float64(h.Total) * 100
	}

	return h
}

// DegradationStatus summarizes which services are degraded and how severe
// the degradation is. Any degraded service is at least a warning; below 50%
// overall health the severity escalates to error.
func (m *Manager) DegradationStatus() DegradationStatus {
	statuses := m.snapshot()

	status := DegradationStatus{Severity: SeverityOK}
	for name, st := range statuses {
		if !st.Available {
			status.Degraded = append(status.Degraded, name)
		}
	}
	sort.Strings(status.Degraded)

	if len(status.Degraded) == 0 {
		return status
	}

	status.Severity = SeverityWarning
	if m.SystemHealth().HealthPercentage < 50 {
		status.Severity = SeverityError
	}

	return status
}

// snapshot copies every service's status under its own lock.
func (m *Manager) snapshot() map[string]ServiceStatus {
	m.mu.RLock()
	services := make([]*service, 0, len(m.services))
	for _, svc := range m.services {
		services = append(services, svc)
	}
	m.mu.RUnlock()

	statuses := make(map[string]ServiceStatus, len(services))
	for _, svc := range services {
		svc.mu.Lock()
		statuses[svc.name] = svc.status
		svc.mu.Unlock()
	}
	return statuses
}
