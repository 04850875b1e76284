package derived

import "testing"

func TestStatusIndicatorThresholds(t *testing.T) {
	tests := []struct {
		days int
		kind Kind
		want Severity
		show bool
	}{
		{-1, Expiry, SeverityOverdue, true},
		{-30, Deadline, SeverityOverdue, true},
		{0, Expiry, SeverityCritical, true},
		{3, Expiry, SeverityCritical, true},
		{4, Expiry, SeverityWarning, true},
		{7, Expiry, SeverityWarning, true},
		{8, Expiry, "", false},
		{0, Deadline, SeverityCritical, true},
		{7, Deadline, SeverityCritical, true},
		{8, Deadline, SeverityWarning, true},
		{30, Deadline, SeverityWarning, true},
		{31, Deadline, "", false},
	}
	for _, tt := range tests {
		got, ok := StatusIndicator(tt.days, tt.kind)
		if got != tt.want || ok != tt.show {
			t.Fatalf("StatusIndicator(%d, %s) = (%q, %v), want (%q, %v)", tt.days, tt.kind, got, ok, tt.want, tt.show)
		}
	}
}

func TestSeverityRank(t *testing.T) {
	order := []Severity{SeverityOverdue, SeverityCritical, SeverityWarning, SeverityNeutral}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() <= order[i].Rank() {
			t.Fatalf("%s should outrank %s", order[i-1], order[i])
		}
	}
}
