package derived

import (
	"testing"

	"bizdesk/domain"
)

func TestFinancialSummary(t *testing.T) {
	txs := []domain.Transaction{
		{Type: domain.Income, Status: domain.TransactionPaid, Amount: 100},
		{Type: domain.Income, Status: domain.TransactionPending, Amount: 50},
		{Type: domain.Expense, Status: domain.TransactionPaid, Amount: 30},
	}

	got := FinancialSummary(txs)
	want := Summary{TotalIncome: 100, TotalExpense: 30, CurrentBalance: 70, PendingIncome: 50}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestFinancialSummaryIgnoresOverdueAndSign(t *testing.T) {
	txs := []domain.Transaction{
		{Type: domain.Expense, Status: domain.TransactionPaid, Amount: -40},
		{Type: domain.Expense, Status: domain.TransactionPending, Amount: 15},
		{Type: domain.Income, Status: domain.TransactionOverdue, Amount: 999},
	}

	got := FinancialSummary(txs)
	want := Summary{TotalExpense: 40, CurrentBalance: -40, PendingExpense: 15}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestFinancialSummaryEmpty(t *testing.T) {
	if got := FinancialSummary(nil); got != (Summary{}) {
		t.Fatalf("expected zero summary, got %+v", got)
	}
}
