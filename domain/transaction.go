package domain

import (
	"strings"
	"time"
)

// TransactionType tells whether an amount is money in or money out.
type TransactionType string

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// Transaction is a financial movement. Amount is a magnitude in cents; the
// sign is implied by Type.
type Transaction struct {
	ID            string            `json:"id"`
	Type          TransactionType   `json:"type"`
	Category      string            `json:"category,omitempty"`
	Description   string            `json:"description"`
	Amount        int64             `json:"amount"`
	Date          string            `json:"date"`
	DueDate       string            `json:"dueDate,omitempty"`
	ContractID    string            `json:"contractId,omitempty"`
	ClientName    string            `json:"clientName,omitempty"`
	Status        TransactionStatus `json:"status"`
	PaymentMethod string            `json:"paymentMethod,omitempty"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func (t Transaction) Normalize() Transaction {
	if t.Status == "" {
		t.Status = TransactionPending
	}
	return t
}

func (t Transaction) Validate() error {
	if t.Type != Income && t.Type != Expense {
		return Invalid("type", "expected income or expense")
	}
	if strings.TrimSpace(t.Description) == "" {
		return Invalid("description", "required")
	}
	if t.Amount < 0 {
		return Invalid("amount", "must not be negative")
	}
	if !t.Status.valid() {
		return Invalid("status", "unknown transaction status "+string(t.Status))
	}
	if err := validDate("date", t.Date, true); err != nil {
		return err
	}
	return validDate("dueDate", t.DueDate, false)
}
