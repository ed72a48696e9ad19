package seo

import "time"

// HealthState is the coarse health of a service or the whole system.
type HealthState string

// HealthState values.
const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// ServiceHealth is the health reported by one service.
type ServiceHealth struct {
	Status  HealthState `json:"status"`
	Message string      `json:"message,omitempty"`
}

// HealthReport aggregates the health of every registered service.
type HealthReport struct {
	Overall   HealthState              `json:"overall"`
	CheckedAt time.Time                `json:"checked_at"`
	Services  map[string]ServiceHealth `json:"services"`
}
