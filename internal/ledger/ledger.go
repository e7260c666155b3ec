// Package ledger reads raw accounts and token balances from the ledger.
package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/theirongolddev/budgetscope/internal/address"
)

var (
	// ErrNotFound indicates that no account exists at the address.
	ErrNotFound = errors.New("ledger: account not found")
	// ErrRateLimited indicates the RPC endpoint throttled the request.
	ErrRateLimited = errors.New("ledger: rate limited")
)

// BalanceReader is the read side of the ledger the reconciler depends on.
// Implementations own their timeout and retry policy.
type BalanceReader interface {
	// GetRawAccount returns the account data at a, or ErrNotFound.
	GetRawAccount(ctx context.Context, a address.Address) ([]byte, error)
	// GetTokenBalance returns the raw token amount held at a token account, or ErrNotFound.
	GetTokenBalance(ctx context.Context, a address.Address) (uint64, error)
}

// Memory is an in-process ledger. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	accounts map[address.Address][]byte
	balances map[address.Address]uint64
}

// NewMemory returns an empty in-process ledger.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[address.Address][]byte),
		balances: make(map[address.Address]uint64),
	}
}

// PutAccount stores a copy of data at a.
func (m *Memory) PutAccount(a address.Address, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	m.mu.Lock()
	m.accounts[a] = cp
	m.mu.Unlock()
}

// DeleteAccount removes the account at a.
func (m *Memory) DeleteAccount(a address.Address) {
	m.mu.Lock()
	delete(m.accounts, a)
	m.mu.Unlock()
}

// SetBalance sets the token amount held at a.
func (m *Memory) SetBalance(a address.Address, amount uint64) {
	m.mu.Lock()
	m.balances[a] = amount
	m.mu.Unlock()
}

// DeleteBalance removes the token account at a.
func (m *Memory) DeleteBalance(a address.Address) {
	m.mu.Lock()
	delete(m.balances, a)
	m.mu.Unlock()
}

// GetRawAccount implements BalanceReader.
func (m *Memory) GetRawAccount(ctx context.Context, a address.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.accounts[a]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// GetTokenBalance implements BalanceReader.
func (m *Memory) GetTokenBalance(ctx context.Context, a address.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	amt, ok := m.balances[a]
	m.mu.RUnlock()
	if !ok {
		return 0, ErrNotFound
	}
	return amt, nil
}
