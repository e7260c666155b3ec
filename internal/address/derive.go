package address

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// MaxSeedLen is the longest single seed accepted by the ledger.
	MaxSeedLen = 32
	// MaxSeeds bounds the seed count, bump included.
	MaxSeeds = 16

	pdaMarker = "ProgramDerivedAddress"
)

var (
	// ErrInvalidSeed indicates an empty or oversized seed, too many seeds,
	// or a namespace tag that is not reserved.
	ErrInvalidSeed = errors.New("address: invalid seed")
	// ErrDerivationExhausted indicates that no bump in 255..0 produced an
	// off-curve address.
	ErrDerivationExhausted = errors.New("address: derivation exhausted all bump seeds")

	errOnCurve = errors.New("address: derived address is on the ed25519 curve")
)

// Tag names a record namespace. Only reserved tags are accepted by a Deriver.
type Tag string

// Reserved namespace tags.
const (
	TagBudget   Tag = "budget"
	TagExpense  Tag = "expense"
	TagMetadata Tag = "metadata"
)

var programTags = map[Tag]struct{}{
	TagBudget:  {},
	TagExpense: {},
}

// CreateProgramAddress hashes seeds under program. It fails when the result
// lies on the ed25519 curve and so could have a private key.
func CreateProgramAddress(seeds [][]byte, program Address) (Address, error) {
	if err := validateSeeds(seeds, MaxSeeds); err != nil {
		return Address{}, err
	}

	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	var a Address
	copy(a[:], h.Sum(nil))
	if IsOnCurve(a[:]) {
		return Address{}, errOnCurve
	}
	return a, nil
}

// FindProgramAddress searches bumps from 255 down and returns the first
// off-curve address along with its bump.
func FindProgramAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	if err := validateSeeds(seeds, MaxSeeds-1); err != nil {
		return Address{}, 0, err
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	bump := []byte{0}
	withBump[len(seeds)] = bump

	for b := 255; b >= 0; b-- {
		bump[0] = byte(b)
		a, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return a, uint8(b), nil
		}
		if !errors.Is(err, errOnCurve) {
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrDerivationExhausted
}

func validateSeeds(seeds [][]byte, limit int) error {
	if len(seeds) > limit {
		return fmt.Errorf("%w: %d seeds, at most %d allowed", ErrInvalidSeed, len(seeds), limit)
	}
	for i, s := range seeds {
		if len(s) == 0 {
			return fmt.Errorf("%w: seed %d is empty", ErrInvalidSeed, i)
		}
		if len(s) > MaxSeedLen {
			return fmt.Errorf("%w: seed %d is %d bytes, max %d", ErrInvalidSeed, i, len(s), MaxSeedLen)
		}
	}
	return nil
}

// IndexSeed serializes an expense index as a 4-byte little-endian integer.
// Readers and writers must agree on this encoding byte for byte.
func IndexSeed(index uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, index)
	return b
}

// Deriver computes budget and expense record addresses under one program.
type Deriver struct {
	program Address
}

// NewDeriver returns a Deriver scoped to program.
func NewDeriver(program Address) *Deriver {
	return &Deriver{program: program}
}

// Program returns the namespace the deriver is scoped to.
func (d *Deriver) Program() Address {
	return d.program
}

// Derive returns the address and bump for tag followed by seeds.
func (d *Deriver) Derive(tag Tag, seeds ...[]byte) (Address, uint8, error) {
	if _, ok := programTags[tag]; !ok {
		return Address{}, 0, fmt.Errorf("%w: tag %q is not reserved", ErrInvalidSeed, string(tag))
	}
	all := make([][]byte, 0, len(seeds)+1)
	all = append(all, []byte(tag))
	all = append(all, seeds...)
	return FindProgramAddress(all, d.program)
}

// Budget derives the budget record address for a collection.
func (d *Deriver) Budget(collection Address) (Address, uint8, error) {
	return d.Derive(TagBudget, collection[:])
}

// Expense derives the address of the index-th expense of a collection.
func (d *Deriver) Expense(collection Address, index uint32) (Address, uint8, error) {
	return d.Derive(TagExpense, collection[:], IndexSeed(index))
}

// AssociatedTokenAddress derives the canonical token account holding mint
// for owner. Owner may itself be a program-derived address.
func AssociatedTokenAddress(owner, mint Address) (Address, uint8, error) {
	return FindProgramAddress([][]byte{owner[:], TokenProgram[:], mint[:]}, AssociatedTokenProgram)
}

// MetadataAddress derives the token-metadata account for mint.
func MetadataAddress(mint Address) (Address, error) {
	a, _, err := FindProgramAddress(
		[][]byte{[]byte(TagMetadata), TokenMetadataProgram[:], mint[:]},
		TokenMetadataProgram,
	)
	return a, err
}

// MasterEditionAddress derives the master-edition account for mint.
func MasterEditionAddress(mint Address) (Address, error) {
	a, _, err := FindProgramAddress(
		[][]byte{[]byte(TagMetadata), TokenMetadataProgram[:], mint[:], []byte("edition")},
		TokenMetadataProgram,
	)
	return a, err
}
