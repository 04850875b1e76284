package derived

import "bizdesk/domain"

// Badge is the label and severity a status renders as.
type Badge struct {
	Label    string   `json:"label"`
	Severity Severity `json:"severity"`
}

// StatusBadge maps a status to its badge. Statuses outside the known
// vocabularies render as themselves with neutral severity.
func StatusBadge(s domain.Status) Badge {
	switch st := s.(type) {
	case domain.ProposalStatus:
		return proposalBadge(st)
	case domain.ContractStatus:
		return contractBadge(st)
	case domain.TransactionStatus:
		return transactionBadge(st)
	case domain.UnknownStatus:
		return fallbackBadge(string(st))
	case nil:
		return fallbackBadge("")
	}
	return fallbackBadge(s.String())
}

// BadgeFor parses a raw status string and maps it.
func BadgeFor(status string) Badge {
	return StatusBadge(domain.ParseStatus(status))
}

func fallbackBadge(label string) Badge {
	return Badge{Label: label, Severity: SeverityNeutral}
}

func proposalBadge(s domain.ProposalStatus) Badge {
	switch s {
	case domain.ProposalDraft:
		return Badge{"Draft", SeverityNeutral}
	case domain.ProposalSent:
		return Badge{"Sent", SeverityInfo}
	case domain.ProposalAccepted:
		return Badge{"Accepted", SeveritySuccess}
	case domain.ProposalRejected:
		return Badge{"Rejected", SeverityCritical}
	case domain.ProposalExpired:
		return Badge{"Expired", SeverityNeutral}
	}
	return fallbackBadge(string(s))
}

func contractBadge(s domain.ContractStatus) Badge {
	switch s {
	case domain.ContractActive:
		return Badge{"Active", SeveritySuccess}
	case domain.ContractCompleted:
		return Badge{"Completed", SeveritySuccess}
	case domain.ContractCancelled:
		return Badge{"Cancelled", SeverityCritical}
	case domain.ContractPaused:
		return Badge{"Paused", SeverityNeutral}
	}
	return fallbackBadge(string(s))
}

func transactionBadge(s domain.TransactionStatus) Badge {
	switch s {
	case domain.TransactionPaid:
		return Badge{"Paid", SeveritySuccess}
	case domain.TransactionPending:
		return Badge{"Pending", SeverityWarning}
	case domain.TransactionOverdue:
		return Badge{"Overdue", SeverityOverdue}
	}
	return fallbackBadge(string(s))
}
