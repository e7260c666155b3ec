// Package reconcile turns decoded expense records and live balances into
// validated spend views and budget totals.
//
// Nothing in this package returns an error. Bad readings degrade to zero
// spend plus the Suspicious flag on the view.
package reconcile

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/theirongolddev/budgetscope/internal/model"
)

// Policy holds the classification thresholds.
type Policy struct {
	// WarningPct is the share of the approved amount, in percent, at which
	// an expense is flagged. The boundary is inclusive.
	WarningPct uint64 `toml:"warning_pct" json:"warning_pct"`
	// ImplausibleMultiplier bounds believable spend at this multiple of the
	// approved amount. Zero disables the check.
	ImplausibleMultiplier uint64 `toml:"implausible_multiplier" json:"implausible_multiplier"`
}

// DefaultPolicy flags spend at 80% and distrusts spend above 2x approved.
var DefaultPolicy = Policy{WarningPct: 80, ImplausibleMultiplier: 2}

// ErrInvalidPolicy is returned by Validate.
var ErrInvalidPolicy = errors.New("reconcile: invalid policy")

// Validate checks the thresholds are usable.
func (p Policy) Validate() error {
	if p.WarningPct == 0 || p.WarningPct > 100 {
		return fmt.Errorf("%w: warning_pct %d must be in 1..100", ErrInvalidPolicy, p.WarningPct)
	}
	if p.ImplausibleMultiplier == 1 {
		return fmt.Errorf("%w: implausible_multiplier 1 would flag any overspend", ErrInvalidPolicy)
	}
	return nil
}

// Reconcile builds the view of rec from its live remaining token balance.
// A non-nil external amount takes precedence over the on-record one.
func (p Policy) Reconcile(rec model.ExpenseRecord, external *uint64, liveRemaining uint64) model.ExpenseView {
	v := baseView(rec, external)
	v.RemainingBalance = liveRemaining
	v.BalanceSource = model.BalanceLive

	if v.ApprovedAmount != 0 && liveRemaining < v.ApprovedAmount {
		v.ActualSpent = v.ApprovedAmount - liveRemaining
	}
	p.finish(&v)
	return v
}

// ReconcileStale builds the view from the program's spend counter when the
// live balance cannot be read.
func (p Policy) ReconcileStale(rec model.ExpenseRecord, external *uint64) model.ExpenseView {
	v := baseView(rec, external)
	v.BalanceSource = model.BalanceOnRecord

	if v.ApprovedAmount != 0 {
		v.ActualSpent = rec.SpentOnRecord
	}
	if v.ActualSpent < v.ApprovedAmount {
		v.RemainingBalance = v.ApprovedAmount - v.ActualSpent
	}
	p.finish(&v)
	if v.Suspicious {
		v.RemainingBalance = v.ApprovedAmount
	}
	return v
}

func baseView(rec model.ExpenseRecord, external *uint64) model.ExpenseView {
	v := model.ExpenseView{
		Mint:           rec.Mint,
		ExpenseType:    rec.ExpenseType,
		VariancePct:    rec.VariancePct,
		ApprovedAmount: rec.ApprovedAmount,
		AmountSource:   model.AmountOnRecord,
	}
	if external != nil {
		v.ApprovedAmount = *external
		v.AmountSource = model.AmountExternal
	}
	v.MaxAllowed = MaxAllowed(v.ApprovedAmount, v.VariancePct)
	return v
}

// finish applies the plausibility clamp, then classifies.
func (p Policy) finish(v *model.ExpenseView) {
	if p.implausible(v.ActualSpent, v.ApprovedAmount) {
		v.ActualSpent = 0
		v.Suspicious = true
	}
	if v.ActualSpent > v.ApprovedAmount {
		v.Overage = v.ActualSpent - v.ApprovedAmount
	}
	v.Status = p.Classify(v.ActualSpent, v.ApprovedAmount, v.MaxAllowed)
}

// Classify returns the status of spent against approved and maxAllowed.
func (p Policy) Classify(spent, approved, maxAllowed uint64) model.Status {
	switch {
	case approved == 0 || spent == 0:
		return model.StatusNormal
	case spent > maxAllowed:
		return model.StatusOverBudget
	case cmpScaled(spent, 100, approved, p.WarningPct) >= 0:
		return model.StatusWarning
	}
	return model.StatusNormal
}

func (p Policy) implausible(spent, approved uint64) bool {
	if p.ImplausibleMultiplier == 0 {
		return false
	}
	return cmpScaled(spent, 1, approved, p.ImplausibleMultiplier) > 0
}

// MaxAllowed returns approved * (100 + variancePct) / 100, saturating at
// MaxUint64.
func MaxAllowed(approved uint64, variancePct uint8) uint64 {
	hi, lo := bits.Mul64(approved, 100+uint64(variancePct))
	if hi >= 100 {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, 100)
	return q
}

// cmpScaled compares a*x with b*y without overflow.
func cmpScaled(a, x, b, y uint64) int {
	ahi, alo := bits.Mul64(a, x)
	bhi, blo := bits.Mul64(b, y)
	switch {
	case ahi != bhi:
		if ahi > bhi {
			return 1
		}
		return -1
	case alo > blo:
		return 1
	case alo < blo:
		return -1
	}
	return 0
}

// Aggregate sums views into budget totals. The result does not depend on
// the order of views, and sums saturate instead of wrapping.
func (p Policy) Aggregate(views []model.ExpenseView) model.BudgetTotals {
	var t model.BudgetTotals
	for _, v := range views {
		spent := v.ActualSpent
		if p.implausible(spent, v.ApprovedAmount) {
			spent = 0
		}
		var overage uint64
		if spent > v.ApprovedAmount {
			overage = spent - v.ApprovedAmount
		}

		t.TotalApproved = satAdd(t.TotalApproved, v.ApprovedAmount)
		t.TotalSpent = satAdd(t.TotalSpent, spent)
		t.TotalRemaining = satAdd(t.TotalRemaining, v.RemainingBalance)
		t.TotalOverage = satAdd(t.TotalOverage, overage)

		t.Reconciled++
		switch v.Status {
		case model.StatusWarning:
			t.Warnings++
		case model.StatusOverBudget:
			t.OverBudget++
		}
		if v.Suspicious {
			t.Suspicious++
		}
		if v.BalanceSource == model.BalanceOnRecord {
			t.Stale++
		}
	}
	return t
}

func satAdd(a, b uint64) uint64 {
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return s
}

// Reconcile applies DefaultPolicy.
func Reconcile(rec model.ExpenseRecord, external *uint64, liveRemaining uint64) model.ExpenseView {
	return DefaultPolicy.Reconcile(rec, external, liveRemaining)
}

// Aggregate applies DefaultPolicy.
func Aggregate(views []model.ExpenseView) model.BudgetTotals {
	return DefaultPolicy.Aggregate(views)
}
