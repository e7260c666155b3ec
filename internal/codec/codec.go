// Package codec decodes and encodes budget and expense records.
//
// Decoding tries three tiers in order and the first success wins:
// the canonical discriminator, a registered alias discriminator, and finally
// the raw fixed layout with the discriminator ignored. All tiers share one
// layout decoder, so a record decoded by any tier is field-for-field the same.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/theirongolddev/budgetscope/internal/model"
)

var (
	// ErrTruncatedRecord indicates the buffer ended before a field was fully read.
	ErrTruncatedRecord = errors.New("codec: truncated record")
	// ErrInvalidEncoding indicates a malformed variable-length field.
	ErrInvalidEncoding = errors.New("codec: invalid encoding")
	// ErrUnknownDiscriminator indicates the leading tag matches no known name.
	ErrUnknownDiscriminator = errors.New("codec: unknown discriminator")
	// ErrUnknownKind indicates a kind with no registered schema.
	ErrUnknownKind = errors.New("codec: unknown record kind")
	// ErrInvalidField indicates a record that cannot be encoded as given.
	ErrInvalidField = errors.New("codec: field out of range")
)

// Tier identifies which decode strategy produced a record.
type Tier int

const (
	TierStructured Tier = iota + 1
	TierAlias
	TierRaw
)

func (t Tier) String() string {
	switch t {
	case TierStructured:
		return "structured"
	case TierAlias:
		return "alias"
	case TierRaw:
		return "raw"
	default:
		return "none"
	}
}

// DecodeError carries the kind, tier and byte offset of a decode failure.
type DecodeError struct {
	Kind   Kind
	Tier   Tier
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decoding %s (%s tier) at offset %d: %v", e.Kind, e.Tier, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Record is a decoded record. Kind says which of Budget or Expense is set.
type Record struct {
	Kind    Kind
	Budget  model.BudgetRecord
	Expense model.ExpenseRecord
}

// Codec decodes records against a schema registry.
type Codec struct {
	registry    *Registry
	rawFallback bool
}

// Option configures a Codec.
type Option func(*Codec)

// WithoutRawFallback disables the raw layout tier, so records with an
// unrecognized discriminator fail with ErrUnknownDiscriminator.
func WithoutRawFallback() Option {
	return func(c *Codec) { c.rawFallback = false }
}

// New returns a Codec using DefaultRegistry with raw fallback enabled.
func New(opts ...Option) *Codec {
	c := &Codec{registry: DefaultRegistry, rawFallback: true}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Decode decodes raw as a record of kind k.
func (c *Codec) Decode(k Kind, raw []byte) (Record, Tier, error) {
	e, ok := c.registry.lookup(k)
	if !ok {
		return Record{}, 0, fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}

	if len(raw) < DiscriminatorLen {
		return Record{}, 0, &DecodeError{Kind: k, Tier: TierStructured, Offset: len(raw), Err: ErrTruncatedRecord}
	}
	disc := raw[:DiscriminatorLen]

	var lastErr error
	if bytes.Equal(disc, e.primary[:]) {
		rec, err := c.decodeLayout(e, raw, TierStructured)
		if err == nil {
			return rec, TierStructured, nil
		}
		lastErr = err
	}

	for _, alias := range e.aliases {
		if !bytes.Equal(disc, alias[:]) {
			continue
		}
		rec, err := c.decodeLayout(e, raw, TierAlias)
		if err == nil {
			return rec, TierAlias, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = &DecodeError{Kind: k, Tier: TierAlias, Offset: 0, Err: ErrUnknownDiscriminator}
	}
	if !c.rawFallback {
		return Record{}, 0, lastErr
	}

	rec, err := c.decodeLayout(e, raw, TierRaw)
	if err != nil {
		return Record{}, 0, err
	}
	return rec, TierRaw, nil
}

func (c *Codec) decodeLayout(e *entry, raw []byte, tier Tier) (Record, error) {
	r := &reader{buf: raw, off: DiscriminatorLen}
	rec := Record{Kind: e.schema.Kind}
	if err := e.schema.decode(r, &rec); err != nil {
		return Record{}, &DecodeError{Kind: e.schema.Kind, Tier: tier, Offset: r.off, Err: err}
	}
	return rec, nil
}

// DecodeBudget decodes raw as a budget record.
func (c *Codec) DecodeBudget(raw []byte) (model.BudgetRecord, Tier, error) {
	rec, tier, err := c.Decode(KindBudget, raw)
	return rec.Budget, tier, err
}

// DecodeExpense decodes raw as an expense record.
func (c *Codec) DecodeExpense(raw []byte) (model.ExpenseRecord, Tier, error) {
	rec, tier, err := c.Decode(KindExpense, raw)
	return rec.Expense, tier, err
}

// DecodeAny identifies raw by its discriminator and decodes it.
func (c *Codec) DecodeAny(raw []byte) (Record, Tier, error) {
	k, ok := c.registry.Identify(raw)
	if !ok {
		return Record{}, 0, &DecodeError{Tier: TierAlias, Err: ErrUnknownDiscriminator}
	}
	return c.Decode(k, raw)
}
