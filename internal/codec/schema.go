package codec

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// DiscriminatorLen is the size of the type tag that prefixes every record.
const DiscriminatorLen = 8

// Discriminator is the leading type tag of a record.
type Discriminator [DiscriminatorLen]byte

// DiscriminatorFor derives the tag the ledger program writes for an account
// type name: the first 8 bytes of sha256("account:<name>").
func DiscriminatorFor(name string) Discriminator {
	sum := sha256.Sum256([]byte("account:" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorLen])
	return d
}

// Kind identifies a record type.
type Kind int

const (
	KindBudget Kind = iota + 1
	KindExpense
)

func (k Kind) String() string {
	switch k {
	case KindBudget:
		return "budget"
	case KindExpense:
		return "expense"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts "budget" or "expense", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "budget":
		return KindBudget, nil
	case "expense":
		return KindExpense, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Schema describes one record kind: its canonical account name, the
// alternate names older schema versions used, and its layout decoder.
type Schema struct {
	Kind    Kind
	Name    string
	Aliases []string

	decode func(r *reader, rec *Record) error
}

// Registry maps record kinds to schemas. It is immutable after construction.
type Registry struct {
	byKind map[Kind]*entry
}

type entry struct {
	schema  Schema
	primary Discriminator
	aliases []Discriminator
}

// NewRegistry builds a registry from schemas.
func NewRegistry(schemas ...Schema) *Registry {
	r := &Registry{byKind: make(map[Kind]*entry, len(schemas))}
	for _, s := range schemas {
		e := &entry{schema: s, primary: DiscriminatorFor(s.Name)}
		for _, alias := range s.Aliases {
			e.aliases = append(e.aliases, DiscriminatorFor(alias))
		}
		r.byKind[s.Kind] = e
	}
	return r
}

// BudgetSchema is the budget record layout.
var BudgetSchema = Schema{
	Kind:    KindBudget,
	Name:    "BudgetPDA",
	Aliases: []string{"budgetPDA", "budgetPda"},
	decode:  decodeBudget,
}

// ExpenseSchema is the expense record layout.
var ExpenseSchema = Schema{
	Kind:    KindExpense,
	Name:    "ExpensePDA",
	Aliases: []string{"expensePDA", "expensePda"},
	decode:  decodeExpense,
}

// DefaultRegistry holds the budget and expense schemas.
var DefaultRegistry = NewRegistry(BudgetSchema, ExpenseSchema)

func (r *Registry) lookup(k Kind) (*entry, bool) {
	e, ok := r.byKind[k]
	return e, ok
}

// Identify returns the kind whose primary or alias discriminator prefixes raw.
func (r *Registry) Identify(raw []byte) (Kind, bool) {
	if len(raw) < DiscriminatorLen {
		return 0, false
	}
	var d Discriminator
	copy(d[:], raw[:DiscriminatorLen])
	for k, e := range r.byKind {
		if d == e.primary {
			return k, true
		}
		for _, a := range e.aliases {
			if d == a {
				return k, true
			}
		}
	}
	return 0, false
}

// Primary returns the canonical discriminator for k.
func (r *Registry) Primary(k Kind) (Discriminator, bool) {
	e, ok := r.lookup(k)
	if !ok {
		return Discriminator{}, false
	}
	return e.primary, true
}
