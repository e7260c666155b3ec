package model

import (
	"time"

	"github.com/theirongolddev/budgetscope/internal/address"
)

// BudgetRecord is the on-ledger budget anchored to an NFT collection.
type BudgetRecord struct {
	Authority    address.Address `json:"authority"`
	Collection   address.Address `json:"collection"`
	Year         uint16          `json:"year"`
	ExpenseCount uint32          `json:"expense_count"` // incremented once per created expense, never decremented
	Bump         uint8           `json:"bump"`
}

// SkippedRecord describes an expense that could not be reconciled.
type SkippedRecord struct {
	Index   uint32          `json:"index"`
	Address address.Address `json:"address"`
	Reason  string          `json:"reason"`
	Detail  string          `json:"detail,omitempty"`
	Err     error           `json:"-"`
}

// BudgetTotals holds the budget-level sums across reconciled expenses.
type BudgetTotals struct {
	TotalApproved  uint64 `json:"total_approved"`
	TotalSpent     uint64 `json:"total_spent"`
	TotalRemaining uint64 `json:"total_remaining"`
	TotalOverage   uint64 `json:"total_overage"`

	Reconciled int `json:"reconciled"`
	Warnings   int `json:"warnings"`
	OverBudget int `json:"over_budget"`
	Suspicious int `json:"suspicious"`
	Stale      int `json:"stale"`
}

// BudgetReport is the full reconciliation result for one budget.
type BudgetReport struct {
	RunID    string          `json:"run_id"`
	LoadedAt time.Time       `json:"loaded_at"`
	Address  address.Address `json:"address"`
	Budget   BudgetRecord    `json:"budget"`
	Expenses []ExpenseView   `json:"expenses"`
	Totals   BudgetTotals    `json:"totals"`
	Skipped  []SkippedRecord `json:"skipped,omitempty"`
}

// Complete reports whether every expense index was reconciled.
func (r *BudgetReport) Complete() bool {
	return len(r.Skipped) == 0 && len(r.Expenses) == int(r.Budget.ExpenseCount)
}
