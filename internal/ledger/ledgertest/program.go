// Package ledgertest applies the budget program's instructions to an
// in-memory ledger so the read path can be exercised offline.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sync"
	"unicode/utf8"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/codec"
	"github.com/theirongolddev/budgetscope/internal/ledger"
	"github.com/theirongolddev/budgetscope/internal/model"
)

// Errors returned by Program, mirroring the on-ledger program's checks.
var (
	ErrUnauthorized      = errors.New("ledgertest: unauthorized access")
	ErrOverBudget        = errors.New("ledgertest: over budget limit")
	ErrInvalidVariance   = errors.New("ledgertest: invalid variance percentage")
	ErrInvalidAmount     = errors.New("ledgertest: invalid amount")
	ErrMathOverflow      = errors.New("ledgertest: math overflow")
	ErrAlreadyExists     = errors.New("ledgertest: account already exists")
	ErrInsufficientFunds = errors.New("ledgertest: insufficient token balance")
)

// NewExpense holds the arguments of an expense creation.
type NewExpense struct {
	Mint           address.Address
	Name           string
	ExpenseType    string
	URI            string
	ApprovedAmount uint64
	VariancePct    uint8
}

// Program applies the budget program's instructions to a Memory ledger,
// producing byte-exact accounts. Calls are serialized.
type Program struct {
	mem     *ledger.Memory
	deriver *address.Deriver
	mu      sync.Mutex
}

// NewProgram binds the program to mem under programID.
func NewProgram(mem *ledger.Memory, programID address.Address) *Program {
	return &Program{mem: mem, deriver: address.NewDeriver(programID)}
}

// Deriver returns the address deriver for the program.
func (p *Program) Deriver() *address.Deriver {
	return p.deriver
}

// CreateBudget initializes the budget record for collection.
func (p *Program) CreateBudget(authority, collection address.Address, year uint16) (address.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	addr, bump, err := p.deriver.Budget(collection)
	if err != nil {
		return address.Address{}, err
	}
	if _, ok := p.account(addr); ok {
		return address.Address{}, fmt.Errorf("%w: budget %s", ErrAlreadyExists, addr)
	}

	p.mem.PutAccount(addr, codec.EncodeBudget(model.BudgetRecord{
		Authority:  authority,
		Collection: collection,
		Year:       year,
		Bump:       bump,
	}))
	return addr, nil
}

// CreateExpense appends an expense at index expenseCount, mints the
// approved amount into its token account and writes the mint's metadata.
func (p *Program) CreateExpense(authority, collection address.Address, ne NewExpense) (address.Address, uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ne.VariancePct > codec.MaxVariancePct {
		return address.Address{}, 0, ErrInvalidVariance
	}
	if ne.ApprovedAmount == 0 {
		return address.Address{}, 0, ErrInvalidAmount
	}

	budgetAddr, _, err := p.deriver.Budget(collection)
	if err != nil {
		return address.Address{}, 0, err
	}
	budget, err := p.loadBudget(budgetAddr)
	if err != nil {
		return address.Address{}, 0, err
	}
	if budget.Authority != authority {
		return address.Address{}, 0, ErrUnauthorized
	}
	if budget.ExpenseCount == math.MaxUint32 {
		return address.Address{}, 0, ErrMathOverflow
	}

	index := budget.ExpenseCount
	expenseAddr, bump, err := p.deriver.Expense(collection, index)
	if err != nil {
		return address.Address{}, 0, err
	}
	raw, err := codec.EncodeExpense(model.ExpenseRecord{
		Budget:         budgetAddr,
		Mint:           ne.Mint,
		ExpenseType:    ne.ExpenseType,
		ApprovedAmount: ne.ApprovedAmount,
		VariancePct:    ne.VariancePct,
		Bump:           bump,
	})
	if err != nil {
		return address.Address{}, 0, err
	}

	ata, _, err := address.AssociatedTokenAddress(expenseAddr, ne.Mint)
	if err != nil {
		return address.Address{}, 0, err
	}
	mdAddr, err := address.MetadataAddress(ne.Mint)
	if err != nil {
		return address.Address{}, 0, err
	}
	symbol := truncateSymbol(ne.ExpenseType)
	md, err := codec.EncodeTokenMetadata(codec.TokenMetadata{
		UpdateAuthority: expenseAddr,
		Mint:            ne.Mint,
		Name:            ne.Name,
		Symbol:          symbol,
		URI:             ne.URI,
	})
	if err != nil {
		return address.Address{}, 0, err
	}

	p.mem.PutAccount(expenseAddr, raw)
	p.mem.SetBalance(ata, ne.ApprovedAmount)
	p.mem.PutAccount(mdAddr, md)

	budget.ExpenseCount++
	p.mem.PutAccount(budgetAddr, codec.EncodeBudget(budget))
	return expenseAddr, index, nil
}

// Spend burns amount tokens from the index-th expense of collection and
// records the spend, refusing to exceed the variance-adjusted ceiling.
func (p *Program) Spend(collection address.Address, index uint32, amount uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	expenseAddr, _, err := p.deriver.Expense(collection, index)
	if err != nil {
		return err
	}
	raw, ok := p.account(expenseAddr)
	if !ok {
		return fmt.Errorf("%w: expense %d", ledger.ErrNotFound, index)
	}
	e, _, err := codec.New().DecodeExpense(raw)
	if err != nil {
		return err
	}

	hi, lo := bits.Mul64(e.ApprovedAmount, 100+uint64(e.VariancePct))
	if hi != 0 {
		return ErrMathOverflow
	}
	maxAllowed := lo / 100

	newSpent, carry := bits.Add64(e.SpentOnRecord, amount, 0)
	if carry != 0 {
		return ErrMathOverflow
	}
	if newSpent > maxAllowed {
		return ErrOverBudget
	}

	ata, _, err := address.AssociatedTokenAddress(expenseAddr, e.Mint)
	if err != nil {
		return err
	}
	bal, err := p.mem.GetTokenBalance(context.Background(), ata)
	if err != nil || bal < amount {
		return ErrInsufficientFunds
	}
	p.mem.SetBalance(ata, bal-amount)

	e.SpentOnRecord = newSpent
	updated, err := codec.EncodeExpense(e)
	if err != nil {
		return err
	}
	p.mem.PutAccount(expenseAddr, updated)
	return nil
}

func (p *Program) account(addr address.Address) ([]byte, bool) {
	raw, err := p.mem.GetRawAccount(context.Background(), addr)
	return raw, err == nil
}

func (p *Program) loadBudget(addr address.Address) (model.BudgetRecord, error) {
	raw, ok := p.account(addr)
	if !ok {
		return model.BudgetRecord{}, fmt.Errorf("%w: budget %s", ledger.ErrNotFound, addr)
	}
	b, _, err := codec.New().DecodeBudget(raw)
	return b, err
}

// truncateSymbol cuts s to the 10-byte metadata symbol slot without
// splitting a UTF-8 sequence.
func truncateSymbol(s string) string {
	const limit = 10
	end := 0
	for i, r := range s {
		n := utf8.RuneLen(r)
		if i+n > limit {
			break
		}
		end = i + n
	}
	return s[:end]
}
