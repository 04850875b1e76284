package derived

// Severity is a display urgency tag. Overdue outranks critical, which
// outranks warning.
type Severity string

const (
	SeverityOverdue  Severity = "overdue"
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
	SeverityNeutral  Severity = "neutral"
)

// Rank orders severities for sorting; higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityOverdue:
		return 3
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	}
	return 0
}

// Kind selects the threshold table of an indicator.
type Kind string

const (
	// Expiry applies to offers that lapse, such as proposals.
	Expiry Kind = "expiry"
	// Deadline applies to commitments that end or fall due.
	Deadline Kind = "deadline"
)

// StatusIndicator maps days left onto a severity. The boolean is false when
// no indicator should be shown. Callers filter out terminal statuses first.
//
//	daysLeft < 0          overdue
//	expiry    0..3 / 4..7  critical / warning
//	deadline  0..7 / 8..30 critical / warning
func StatusIndicator(daysLeft int, kind Kind) (Severity, bool) {
	if daysLeft < 0 {
		return SeverityOverdue, true
	}
	critical, warning := 3, 7
	if kind == Deadline {
		critical, warning = 7, 30
	}
	switch {
	case daysLeft <= critical:
		return SeverityCritical, true
	case daysLeft <= warning:
		return SeverityWarning, true
	}
	return "", false
}
