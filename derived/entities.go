package derived

import (
	"time"

	"bizdesk/domain"
)

// Indicator is an urgency marker attached to an entity with a date.
type Indicator struct {
	Kind     Kind     `json:"kind"`
	DaysLeft int      `json:"daysLeft"`
	Severity Severity `json:"severity"`
}

// ProposalExpiry reports how close a proposal is to its validity date.
// Accepted, rejected and expired proposals never carry one.
func ProposalExpiry(p domain.Proposal, today time.Time) (Indicator, bool) {
	if p.Status.Terminal() {
		return Indicator{}, false
	}
	return indicate(p.ValidUntil, Expiry, today)
}

// ContractDeadline reports how close an open contract is to its end date.
func ContractDeadline(c domain.Contract, today time.Time) (Indicator, bool) {
	if c.Status.Terminal() {
		return Indicator{}, false
	}
	return indicate(c.EndDate, Deadline, today)
}

// TransactionDue reports how close an unpaid transaction is to falling due.
// The transaction date stands in when no due date is set.
func TransactionDue(tx domain.Transaction, today time.Time) (Indicator, bool) {
	if tx.Status.Terminal() {
		return Indicator{}, false
	}
	date := tx.DueDate
	if date == "" {
		date = tx.Date
	}
	return indicate(date, Deadline, today)
}

func indicate(date string, kind Kind, today time.Time) (Indicator, bool) {
	if date == "" {
		return Indicator{}, false
	}
	days, err := DaysUntilISO(date, today)
	if err != nil {
		return Indicator{}, false
	}
	sev, ok := StatusIndicator(days, kind)
	if !ok {
		return Indicator{}, false
	}
	return Indicator{Kind: kind, DaysLeft: days, Severity: sev}, true
}
