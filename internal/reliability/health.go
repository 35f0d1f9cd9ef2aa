package reliability

import (
	"context"
	"sort"
	"sync"
	"time"
)

// HealthStatus is the reported condition of one component.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// statusPriority orders statuses by badness for overall aggregation.
var statusPriority = map[HealthStatus]int{
	HealthHealthy:   0,
	HealthUnknown:   1,
	HealthDegraded:  2,
	HealthUnhealthy: 3,
}

// CheckFunc probes one component. A nil error means healthy; a non-nil
// error with degraded=true reports partial service.
type CheckFunc func(ctx context.Context) (degraded bool, err error)

// ComponentHealth is the last observed condition of one component.
type ComponentHealth struct {
	Name      string       `json:"name"`
	Status    HealthStatus `json:"status"`
	Detail    string       `json:"detail,omitempty"`
	CheckedAt time.Time    `json:"checked_at"`
}

// Report aggregates component health into one overall status.
type Report struct {
	Overall    HealthStatus      `json:"overall"`
	Components []ComponentHealth `json:"components"`
}

// HealthMonitor runs registered checks on demand and aggregates results.
type HealthMonitor struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	last   map[string]ComponentHealth
}

// NewHealthMonitor creates an empty monitor.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		checks: make(map[string]CheckFunc),
		last:   make(map[string]ComponentHealth),
	}
}

// Register adds or replaces a component check.
func (m *HealthMonitor) Register(name string, check CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
	if _, ok := m.last[name]; !ok {
		m.last[name] = ComponentHealth{Name: name, Status: HealthUnknown}
	}
}

// Check runs every registered probe and returns the aggregated report.
// The worst component status becomes the overall status.
func (m *HealthMonitor) Check(ctx context.Context) Report {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)

	report := Report{Overall: HealthUnknown}
	for _, name := range names {
		m.mu.RLock()
		check := m.checks[name]
		m.mu.RUnlock()

		ch := ComponentHealth{Name: name, Status: HealthHealthy, CheckedAt: time.Now()}
		degraded, err := check(ctx)
		switch {
		case err != nil && !degraded:
			ch.Status = HealthUnhealthy
			ch.Detail = err.Error()
		case err != nil:
			ch.Status = HealthDegraded
			ch.Detail = err.Error()
		}

		m.mu.Lock()
		m.last[name] = ch
		m.mu.Unlock()

		report.Components = append(report.Components, ch)
	}

	if len(report.Components) == 0 {
		return report
	}

	// Overall is the worst component status.
	report.Overall = HealthHealthy
	for _, ch := range report.Components {
		if statusPriority[ch.Status] > statusPriority[report.Overall] {
			report.Overall = ch.Status
		}
	}
	return report
}

// Last returns the most recent result for one component.
func (m *HealthMonitor) Last(name string) (ComponentHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.last[name]
	return ch, ok
}
