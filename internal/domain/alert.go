package domain

import "time"

// AlertLevel grades operational alerts.
type AlertLevel string

const (
	AlertInfo AlertLevel = "INFO"
	AlertWarn AlertLevel = "WARN"
	AlertCrit AlertLevel = "CRIT"
)

// Alert is an operational event emitted by the guardrail engine. Alert
// history is append-only; an alert is never mutated after emission.
type Alert struct {
	Level     AlertLevel        `json:"level"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
}
