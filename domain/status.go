package domain

// Status is a closed set of lifecycle statuses. Known vocabularies are
// ProposalStatus, ContractStatus and TransactionStatus; anything else parses
// to UnknownStatus so callers can still render it.
type Status interface {
	String() string
	status()
}

// ProposalStatus is the lifecycle of a proposal.
type ProposalStatus string

const (
	ProposalDraft    ProposalStatus = "draft"
	ProposalSent     ProposalStatus = "sent"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
	ProposalExpired  ProposalStatus = "expired"
)

func (s ProposalStatus) String() string { return string(s) }
func (ProposalStatus) status()          {}

// Terminal proposals never show an expiry countdown.
func (s ProposalStatus) Terminal() bool {
	return s == ProposalAccepted || s == ProposalRejected || s == ProposalExpired
}

// ContractStatus is the lifecycle of a contract.
type ContractStatus string

const (
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
	ContractCancelled ContractStatus = "cancelled"
	ContractPaused    ContractStatus = "paused"
)

func (s ContractStatus) String() string { return string(s) }
func (ContractStatus) status()          {}

// Terminal contracts never show a deadline indicator.
func (s ContractStatus) Terminal() bool {
	return s == ContractCompleted || s == ContractCancelled
}

// TransactionStatus is the settlement state of a transaction.
type TransactionStatus string

const (
	TransactionPaid    TransactionStatus = "paid"
	TransactionPending TransactionStatus = "pending"
	TransactionOverdue TransactionStatus = "overdue"
)

func (s TransactionStatus) String() string { return string(s) }
func (TransactionStatus) status()          {}

// Terminal transactions never show a due-date indicator.
func (s TransactionStatus) Terminal() bool { return s == TransactionPaid }

// UnknownStatus carries a status string outside every known vocabulary.
type UnknownStatus string

func (s UnknownStatus) String() string { return string(s) }
func (UnknownStatus) status()          {}

// legacyStatuses maps the Portuguese vocabulary of imported records.
var legacyStatuses = map[string]Status{
	"rascunho":  ProposalDraft,
	"enviada":   ProposalSent,
	"aceita":    ProposalAccepted,
	"rejeitada": ProposalRejected,
	"vencida":   ProposalExpired,
	"ativo":     ContractActive,
	"concluido": ContractCompleted,
	"cancelado": ContractCancelled,
	"pausado":   ContractPaused,
	"pago":      TransactionPaid,
	"pendente":  TransactionPending,
	"vencido":   TransactionOverdue,
}

// ParseStatus maps s onto its known variant, or UnknownStatus.
func ParseStatus(s string) Status {
	if st, ok := legacyStatuses[s]; ok {
		return st
	}
	if p := ProposalStatus(s); p.valid() {
		return p
	}
	if c := ContractStatus(s); c.valid() {
		return c
	}
	if t := TransactionStatus(s); t.valid() {
		return t
	}
	return UnknownStatus(s)
}

func (s ProposalStatus) valid() bool {
	switch s {
	case ProposalDraft, ProposalSent, ProposalAccepted, ProposalRejected, ProposalExpired:
		return true
	}
	return false
}

func (s ContractStatus) valid() bool {
	switch s {
	case ContractActive, ContractCompleted, ContractCancelled, ContractPaused:
		return true
	}
	return false
}

func (s TransactionStatus) valid() bool {
	switch s {
	case TransactionPaid, TransactionPending, TransactionOverdue:
		return true
	}
	return false
}
