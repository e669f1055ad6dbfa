package domain

import "strings"

type Severity string

const (
	SeverityInformative Severity = "informative"
	SeverityCaution     Severity = "caution"
	SeverityWarning     Severity = "warning"
	SeverityCritical    Severity = "critical"
)

// ParseSeverity normalizes free-form input; unknown values map to informative.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityWarning:
		return SeverityWarning
	case SeverityCaution:
		return SeverityCaution
	default:
		return SeverityInformative
	}
}

// Rank orders severities; informative is 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityCaution:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInformative, SeverityCaution, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// MaxSeverity returns the higher-ranked of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
