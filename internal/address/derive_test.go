package address

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func collectionGen() *rapid.Generator[Address] {
	return rapid.Custom(func(t *rapid.T) Address {
		var a Address
		copy(a[:], rapid.SliceOfN(rapid.Byte(), Size, Size).Draw(t, "collection"))
		return a
	})
}

func TestDerive_Deterministic(t *testing.T) {
	d := NewDeriver(BudgetProgram)
	rapid.Check(t, func(t *rapid.T) {
		collection := collectionGen().Draw(t, "collection")
		index := rapid.Uint32().Draw(t, "index")

		a1, b1, err := d.Expense(collection, index)
		require.NoError(t, err)
		a2, b2, err := d.Expense(collection, index)
		require.NoError(t, err)

		require.Equal(t, a1, a2)
		require.Equal(t, b1, b2)
		require.False(t, IsOnCurve(a1[:]), "derived address must be off curve")
	})
}

func TestDerive_SeedSensitivity(t *testing.T) {
	d := NewDeriver(BudgetProgram)
	rapid.Check(t, func(t *rapid.T) {
		collection := collectionGen().Draw(t, "collection")
		pos := rapid.IntRange(0, Size-1).Draw(t, "pos")
		flip := rapid.ByteRange(1, 255).Draw(t, "flip")

		other := collection
		other[pos] ^= flip

		a1, _, err := d.Budget(collection)
		require.NoError(t, err)
		a2, _, err := d.Budget(other)
		require.NoError(t, err)
		require.NotEqual(t, a1, a2)
	})
}

func TestDerive_NoCollisionsAcrossKinds(t *testing.T) {
	d := NewDeriver(BudgetProgram)
	collection := MustParse("So11111111111111111111111111111111111111112")

	seen := make(map[Address]string)
	budget, _, err := d.Budget(collection)
	require.NoError(t, err)
	seen[budget] = "budget"

	for i := uint32(0); i < 64; i++ {
		a, _, err := d.Expense(collection, i)
		require.NoError(t, err)
		prev, dup := seen[a]
		require.False(t, dup, "expense %d collides with %s", i, prev)
		seen[a] = "expense"
	}
}

func TestDerive_BumpReproducesAddress(t *testing.T) {
	d := NewDeriver(BudgetProgram)
	collection := MustParse("So11111111111111111111111111111111111111112")

	a, bump, err := d.Expense(collection, 7)
	require.NoError(t, err)

	again, err := CreateProgramAddress([][]byte{
		[]byte(TagExpense), collection[:], IndexSeed(7), {bump},
	}, BudgetProgram)
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

func TestDerive_ProgramScoped(t *testing.T) {
	collection := MustParse("So11111111111111111111111111111111111111112")
	a1, _, err := NewDeriver(BudgetProgram).Budget(collection)
	require.NoError(t, err)
	a2, _, err := NewDeriver(TokenProgram).Budget(collection)
	require.NoError(t, err)
	assert.NotEqual(t, a1, a2)
}

func TestIndexSeed_LittleEndian(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 0}, IndexSeed(0))
	assert.Equal(t, []byte{1, 0, 0, 0}, IndexSeed(1))
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, IndexSeed(0x01020304))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, IndexSeed(^uint32(0)))
}

func TestDerive_InvalidSeeds(t *testing.T) {
	d := NewDeriver(BudgetProgram)

	tests := []struct {
		name  string
		tag   Tag
		seeds [][]byte
	}{
		{"unreserved tag", Tag("budgets"), [][]byte{{1}}},
		{"empty tag", Tag(""), [][]byte{{1}}},
		{"metadata tag is not a program tag", TagMetadata, [][]byte{{1}}},
		{"empty seed", TagBudget, [][]byte{{}}},
		{"oversized seed", TagBudget, [][]byte{bytes.Repeat([]byte{1}, MaxSeedLen+1)}},
		{"too many seeds", TagBudget, make16Seeds()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := d.Derive(tt.tag, tt.seeds...)
			require.ErrorIs(t, err, ErrInvalidSeed)
		})
	}
}

func make16Seeds() [][]byte {
	seeds := make([][]byte, 16)
	for i := range seeds {
		seeds[i] = []byte{byte(i + 1)}
	}
	return seeds
}

func TestAssociatedTokenAddress_Deterministic(t *testing.T) {
	owner := MustParse("So11111111111111111111111111111111111111112")
	mint := MustParse("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	a1, b1, err := AssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	a2, b2, err := AssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)

	swapped, _, err := AssociatedTokenAddress(mint, owner)
	require.NoError(t, err)
	assert.NotEqual(t, a1, swapped)
}

func TestMetadataAndEditionDiffer(t *testing.T) {
	mint := MustParse("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	md, err := MetadataAddress(mint)
	require.NoError(t, err)
	ed, err := MasterEditionAddress(mint)
	require.NoError(t, err)
	assert.NotEqual(t, md, ed)
}

func TestParse(t *testing.T) {
	a := MustParse("Hz5ZKTWQMRRcCGwMEjnqcQrLEkTp5E8qD2zZKPFxCmXf")
	assert.Equal(t, "Hz5ZKTWQMRRcCGwMEjnqcQrLEkTp5E8qD2zZKPFxCmXf", a.String())

	_, err := Parse("not-base58-0OIl")
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, err = Parse("abc")
	require.ErrorIs(t, err, ErrInvalidAddress)

	var zero Address
	assert.True(t, zero.IsZero())
	assert.True(t, strings.HasPrefix(a.Short(), "Hz5ZKTWQ"))
}

func TestAddress_TextRoundTrip(t *testing.T) {
	a := MustParse("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	text, err := a.MarshalText()
	require.NoError(t, err)

	var b Address
	require.NoError(t, b.UnmarshalText(text))
	assert.Equal(t, a, b)
}

func TestCreateProgramAddress_KnownVectors(t *testing.T) {
	program := MustParse("BPFLoaderUpgradeab1e11111111111111111111111")

	tests := []struct {
		name  string
		seeds [][]byte
		want  string
	}{
		{"two words", [][]byte{[]byte("Talking"), []byte("Squirrels")}, "2fnQrngrQT4SeLcdToJAD96phoEjNL2man2kfRLCASVk"},
		{"multibyte seed and zero byte", [][]byte{[]byte("☉"), {0}}, "13yWmRpaTR4r5nAktwLqMpRNr28tnVUZw26rTvPSSB19"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CreateProgramAddress(tt.seeds, program)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

// The derivations below must agree byte for byte with the ledger SDK.

func TestDerive_MatchesSDK(t *testing.T) {
	d := NewDeriver(BudgetProgram)
	program := solana.PublicKey(BudgetProgram)

	rapid.Check(t, func(t *rapid.T) {
		collection := collectionGen().Draw(t, "collection")
		index := rapid.Uint32().Draw(t, "index")

		budget, bump, err := d.Budget(collection)
		require.NoError(t, err)
		want, wantBump, err := solana.FindProgramAddress([][]byte{[]byte("budget"), collection[:]}, program)
		require.NoError(t, err)
		require.Equal(t, want.String(), budget.String())
		require.Equal(t, wantBump, bump)

		idx := []byte{byte(index), byte(index >> 8), byte(index >> 16), byte(index >> 24)}
		expense, bump, err := d.Expense(collection, index)
		require.NoError(t, err)
		want, wantBump, err = solana.FindProgramAddress([][]byte{[]byte("expense"), collection[:], idx}, program)
		require.NoError(t, err)
		require.Equal(t, want.String(), expense.String())
		require.Equal(t, wantBump, bump)
	})
}

func TestAssociatedTokenAddress_MatchesSDK(t *testing.T) {
	owner := MustParse("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	mint := MustParse("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	got, bump, err := AssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	want, wantBump, err := solana.FindAssociatedTokenAddress(solana.PublicKey(owner), solana.PublicKey(mint))
	require.NoError(t, err)
	assert.Equal(t, want.String(), got.String())
	assert.Equal(t, wantBump, bump)

	// Expense records own their token accounts, so owners are often off-curve.
	d := NewDeriver(BudgetProgram)
	expense, _, err := d.Expense(MustParse("So11111111111111111111111111111111111111112"), 3)
	require.NoError(t, err)
	got, _, err = AssociatedTokenAddress(expense, mint)
	require.NoError(t, err)
	want, _, err = solana.FindAssociatedTokenAddress(solana.PublicKey(expense), solana.PublicKey(mint))
	require.NoError(t, err)
	assert.Equal(t, want.String(), got.String())
}

func TestMetadataAddress_MatchesSDK(t *testing.T) {
	mint := MustParse("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	got, err := MetadataAddress(mint)
	require.NoError(t, err)
	want, _, err := solana.FindTokenMetadataAddress(solana.PublicKey(mint))
	require.NoError(t, err)
	assert.Equal(t, want.String(), got.String())
}

func TestProgramIDs_MatchSDK(t *testing.T) {
	assert.Equal(t, solana.TokenProgramID.String(), TokenProgram.String())
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID.String(), AssociatedTokenProgram.String())
	assert.Equal(t, solana.TokenMetadataProgramID.String(), TokenMetadataProgram.String())
}
