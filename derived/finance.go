// Package derived computes display values from entity snapshots: financial
// totals, day counts, urgency indicators and status badges. Every function is
// pure and safe to call from any goroutine.
package derived

import "bizdesk/domain"

// Summary aggregates a set of transactions. Amounts are in cents.
type Summary struct {
	TotalIncome    int64 `json:"totalIncome"`
	TotalExpense   int64 `json:"totalExpense"`
	CurrentBalance int64 `json:"currentBalance"`
	PendingIncome  int64 `json:"pendingIncome"`
	PendingExpense int64 `json:"pendingExpense"`
}

// FinancialSummary totals paid and pending amounts per type over the whole
// collection. Amounts are treated as magnitudes; the type carries the sign.
// Overdue transactions count toward neither paid nor pending totals.
func FinancialSummary(txs []domain.Transaction) Summary {
	var s Summary
	for _, tx := range txs {
		amount := magnitude(tx.Amount)
		switch {
		case tx.Type == domain.Income && tx.Status == domain.TransactionPaid:
			s.TotalIncome += amount
		case tx.Type == domain.Expense && tx.Status == domain.TransactionPaid:
			s.TotalExpense += amount
		case tx.Type == domain.Income && tx.Status == domain.TransactionPending:
			s.PendingIncome += amount
		case tx.Type == domain.Expense && tx.Status == domain.TransactionPending:
			s.PendingExpense += amount
		}
	}
	s.CurrentBalance = s.TotalIncome - s.TotalExpense
	return s
}

func magnitude(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
