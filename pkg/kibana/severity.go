package kibana

import "strings"

// Severity is the fixed severity enumeration used by the alerting backend.
type Severity string

const (
	SeverityInformational Severity = "informational"
	SeverityLow           Severity = "low"
	SeverityMedium        Severity = "medium"
	SeverityHigh          Severity = "high"
	SeverityCritical      Severity = "critical"
)

// Severities lists all valid levels, lowest first.
var Severities = []Severity{
	SeverityInformational,
	SeverityLow,
	SeverityMedium,
	SeverityHigh,
	SeverityCritical,
}

// IsValid checks if the severity is one of the allowed levels.
// Matching is case-sensitive: the backend stores lowercase values.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInformational, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// SeverityNames returns the allowed values as strings, for schemas and
// validation messages.
func SeverityNames() []string {
	names := make([]string, len(Severities))
	for i, s := range Severities {
		names[i] = string(s)
	}
	return names
}

// severityList is the human-readable form used in error messages.
func severityList() string {
	return strings.Join(SeverityNames(), ", ")
}
