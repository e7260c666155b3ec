package codec

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/model"
)

// Layout sizes. Offsets are relative to the record start, discriminator included.
const (
	BudgetLen = DiscriminatorLen + 32 + 32 + 2 + 4 + 1 // 79

	expenseTypeOffset = DiscriminatorLen + 32 + 32 // 72
	expenseTailLen    = 8 + 8 + 1 + 1

	// ExpenseMinLen is the size of an expense record with an empty type.
	ExpenseMinLen = (expenseTypeOffset+4+7)&^7 + expenseTailLen // 98

	// MaxExpenseTypeLen is the longest expense type the program accepts.
	MaxExpenseTypeLen = 50

	// MaxVariancePct is the largest allowed overspend percentage.
	MaxVariancePct = 100
)

// ExpenseLen returns the encoded size of an expense with a typeLen-byte type.
func ExpenseLen(typeLen int) int {
	return align8(expenseTypeOffset+4+typeLen) + expenseTailLen
}

func align8(n int) int {
	return (n + 7) &^ 7
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, fmt.Errorf("%w: need %d bytes, %d left", ErrTruncatedRecord, n, len(r.buf)-r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) key() (address.Address, error) {
	var a address.Address
	b, err := r.take(address.Size)
	if err != nil {
		return a, err
	}
	copy(a[:], b)
	return a, nil
}

// str reads a u32 length-prefixed UTF-8 string. A prefix pointing past the
// end of the buffer is an encoding error, not a truncation.
func (r *reader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if uint64(r.off)+uint64(n) > uint64(len(r.buf)) {
		return "", fmt.Errorf("%w: string length %d at offset %d overruns %d-byte buffer",
			ErrInvalidEncoding, n, r.off-4, len(r.buf))
	}
	b, _ := r.take(int(n))
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: string is not valid UTF-8", ErrInvalidEncoding)
	}
	return string(b), nil
}

// align8 skips padding up to the next multiple of 8 from the record start.
func (r *reader) align8() error {
	next := align8(r.off)
	if next > len(r.buf) {
		return fmt.Errorf("%w: padding runs past end of buffer", ErrTruncatedRecord)
	}
	r.off = next
	return nil
}

func decodeBudget(r *reader, rec *Record) error {
	if len(r.buf) < BudgetLen {
		return fmt.Errorf("%w: %d bytes, budget needs %d", ErrTruncatedRecord, len(r.buf), BudgetLen)
	}

	var (
		b   model.BudgetRecord
		err error
	)
	if b.Authority, err = r.key(); err != nil {
		return err
	}
	if b.Collection, err = r.key(); err != nil {
		return err
	}
	if b.Year, err = r.u16(); err != nil {
		return err
	}
	if b.ExpenseCount, err = r.u32(); err != nil {
		return err
	}
	if b.Bump, err = r.u8(); err != nil {
		return err
	}

	rec.Budget = b
	return nil
}

func decodeExpense(r *reader, rec *Record) error {
	if len(r.buf) < ExpenseMinLen {
		return fmt.Errorf("%w: %d bytes, expense needs at least %d", ErrTruncatedRecord, len(r.buf), ExpenseMinLen)
	}

	var (
		e   model.ExpenseRecord
		err error
	)
	if e.Budget, err = r.key(); err != nil {
		return err
	}
	if e.Mint, err = r.key(); err != nil {
		return err
	}
	if e.ExpenseType, err = r.str(); err != nil {
		return err
	}
	if err = r.align8(); err != nil {
		return err
	}
	if e.ApprovedAmount, err = r.u64(); err != nil {
		return err
	}
	if e.SpentOnRecord, err = r.u64(); err != nil {
		return err
	}
	if e.VariancePct, err = r.u8(); err != nil {
		return err
	}
	if e.Bump, err = r.u8(); err != nil {
		return err
	}

	rec.Expense = e
	return nil
}

// EncodeBudget serializes b with the canonical discriminator.
func EncodeBudget(b model.BudgetRecord) []byte {
	buf := make([]byte, BudgetLen)
	disc := DiscriminatorFor(BudgetSchema.Name)
	copy(buf, disc[:])
	copy(buf[8:], b.Authority[:])
	copy(buf[40:], b.Collection[:])
	binary.LittleEndian.PutUint16(buf[72:], b.Year)
	binary.LittleEndian.PutUint32(buf[74:], b.ExpenseCount)
	buf[78] = b.Bump
	return buf
}

// EncodeExpense serializes e with the canonical discriminator, padding the
// amounts to an 8-byte boundary after the expense type.
func EncodeExpense(e model.ExpenseRecord) ([]byte, error) {
	if len(e.ExpenseType) > MaxExpenseTypeLen {
		return nil, fmt.Errorf("%w: expense type is %d bytes, max %d", ErrInvalidField, len(e.ExpenseType), MaxExpenseTypeLen)
	}
	if !utf8.ValidString(e.ExpenseType) {
		return nil, fmt.Errorf("%w: expense type is not valid UTF-8", ErrInvalidField)
	}
	if e.VariancePct > MaxVariancePct {
		return nil, fmt.Errorf("%w: variance %d%% exceeds %d%%", ErrInvalidField, e.VariancePct, MaxVariancePct)
	}

	buf := make([]byte, ExpenseLen(len(e.ExpenseType)))
	disc := DiscriminatorFor(ExpenseSchema.Name)
	copy(buf, disc[:])
	copy(buf[8:], e.Budget[:])
	copy(buf[40:], e.Mint[:])

	off := expenseTypeOffset
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(e.ExpenseType)))
	off += 4
	off += copy(buf[off:], e.ExpenseType)
	off = align8(off)

	binary.LittleEndian.PutUint64(buf[off:], e.ApprovedAmount)
	binary.LittleEndian.PutUint64(buf[off+8:], e.SpentOnRecord)
	buf[off+16] = e.VariancePct
	buf[off+17] = e.Bump
	return buf, nil
}

// Encode serializes rec according to its kind.
func Encode(rec Record) ([]byte, error) {
	switch rec.Kind {
	case KindBudget:
		return EncodeBudget(rec.Budget), nil
	case KindExpense:
		return EncodeExpense(rec.Expense)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKind, rec.Kind)
}

// Rediscriminate returns a copy of raw with its discriminator replaced by
// the one derived from name.
func Rediscriminate(raw []byte, name string) []byte {
	out := make([]byte, len(raw))
	copy(out, raw)
	if len(out) >= DiscriminatorLen {
		d := DiscriminatorFor(name)
		copy(out, d[:])
	}
	return out
}
