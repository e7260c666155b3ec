// Package model defines the budget and expense records and their reconciled views.
package model

import (
	"github.com/shopspring/decimal"

	"github.com/theirongolddev/budgetscope/internal/address"
)

// ExpenseRecord is the on-ledger expense item. Remaining spend capacity
// lives in the token balance of Mint, not in the record.
type ExpenseRecord struct {
	Budget         address.Address `json:"budget"`
	Mint           address.Address `json:"mint"`
	ExpenseType    string          `json:"expense_type"`
	ApprovedAmount uint64          `json:"approved_amount"`
	SpentOnRecord  uint64          `json:"spent_on_record"` // maintained by the program, may lag token burns
	VariancePct    uint8           `json:"variance_pct"`
	Bump           uint8           `json:"bump"`
}

// Status classifies spend against the approved amount.
type Status int

const (
	StatusNormal Status = iota
	StatusWarning
	StatusOverBudget
)

func (s Status) String() string {
	switch s {
	case StatusWarning:
		return "warning"
	case StatusOverBudget:
		return "over_budget"
	default:
		return "normal"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus maps a status name back to a Status.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "normal":
		return StatusNormal, true
	case "warning":
		return StatusWarning, true
	case "over_budget", "over":
		return StatusOverBudget, true
	}
	return StatusNormal, false
}

// AmountSource records where the approved amount came from.
// External takes precedence because the on-record value is never updated
// as tokens are consumed.
type AmountSource int

const (
	AmountOnRecord AmountSource = iota
	AmountExternal
)

func (s AmountSource) String() string {
	if s == AmountExternal {
		return "external"
	}
	return "on_record"
}

// MarshalText implements encoding.TextMarshaler.
func (s AmountSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BalanceSource records where the spend figure came from.
type BalanceSource int

const (
	BalanceLive BalanceSource = iota
	BalanceOnRecord
)

func (s BalanceSource) String() string {
	if s == BalanceOnRecord {
		return "on_record"
	}
	return "live"
}

// MarshalText implements encoding.TextMarshaler.
func (s BalanceSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ExpenseView is a reconciled expense, safe to display and aggregate.
type ExpenseView struct {
	Index       uint32          `json:"index"`
	Address     address.Address `json:"address"`
	Mint        address.Address `json:"mint"`
	ExpenseType string          `json:"expense_type"`
	VariancePct uint8           `json:"variance_pct"`

	ApprovedAmount   uint64        `json:"approved_amount"`
	AmountSource     AmountSource  `json:"amount_source"`
	ActualSpent      uint64        `json:"actual_spent"`
	RemainingBalance uint64        `json:"remaining_balance"`
	BalanceSource    BalanceSource `json:"balance_source"`
	MaxAllowed       uint64        `json:"max_allowed"`
	Overage          uint64        `json:"overage"`

	Status     Status `json:"status"`
	Suspicious bool   `json:"suspicious_reading"`
}

// SpentPercent returns spend as a percentage of the approved amount,
// rounded to one decimal place. Zero when nothing was approved.
func (v ExpenseView) SpentPercent() decimal.Decimal {
	if v.ApprovedAmount == 0 {
		return decimal.Zero
	}
	spent := decimal.NewFromUint64(v.ActualSpent)
	approved := decimal.NewFromUint64(v.ApprovedAmount)
	return spent.Mul(decimal.NewFromInt(100)).DivRound(approved, 1)
}

// HeadroomToMax returns how much more can be spent before OverBudget.
func (v ExpenseView) HeadroomToMax() uint64 {
	if v.ActualSpent >= v.MaxAllowed {
		return 0
	}
	return v.MaxAllowed - v.ActualSpent
}
