package codec

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/theirongolddev/budgetscope/internal/address"
)

// Token-metadata account sizing. Names, symbols and URIs are stored
// NUL-padded to fixed widths.
const (
	metadataKeyV1     = 4
	metadataNameLen   = 32
	metadataSymbolLen = 10
	metadataURILen    = 200
)

// TokenMetadata is the subset of a token-metadata account needed to locate
// an asset's attribute document.
type TokenMetadata struct {
	UpdateAuthority address.Address `json:"update_authority"`
	Mint            address.Address `json:"mint"`
	Name            string          `json:"name"`
	Symbol          string          `json:"symbol"`
	URI             string          `json:"uri"`
}

// DecodeTokenMetadata parses the header of a token-metadata account.
func DecodeTokenMetadata(raw []byte) (TokenMetadata, error) {
	var md TokenMetadata
	r := &reader{buf: raw}

	key, err := r.u8()
	if err != nil {
		return md, err
	}
	if key != metadataKeyV1 {
		return md, fmt.Errorf("%w: metadata key %d", ErrUnknownDiscriminator, key)
	}
	if md.UpdateAuthority, err = r.key(); err != nil {
		return md, err
	}
	if md.Mint, err = r.key(); err != nil {
		return md, err
	}

	fields := []*string{&md.Name, &md.Symbol, &md.URI}
	for _, f := range fields {
		s, err := r.str()
		if err != nil {
			return md, err
		}
		*f = strings.TrimRight(s, "\x00")
	}
	return md, nil
}

// EncodeTokenMetadata writes a token-metadata header with padded fields and
// zero seller fee. Fields longer than their slot are rejected.
func EncodeTokenMetadata(md TokenMetadata) ([]byte, error) {
	type slot struct {
		val   string
		width int
	}
	slots := []slot{
		{md.Name, metadataNameLen},
		{md.Symbol, metadataSymbolLen},
		{md.URI, metadataURILen},
	}

	size := 1 + 2*address.Size + 2
	for _, s := range slots {
		if len(s.val) > s.width {
			return nil, fmt.Errorf("%w: metadata field %q exceeds %d bytes", ErrInvalidField, s.val, s.width)
		}
		size += 4 + s.width
	}

	buf := make([]byte, size)
	buf[0] = metadataKeyV1
	off := 1
	off += copy(buf[off:], md.UpdateAuthority[:])
	off += copy(buf[off:], md.Mint[:])
	for _, s := range slots {
		binary.LittleEndian.PutUint32(buf[off:], uint32(s.width))
		off += 4
		copy(buf[off:], s.val)
		off += s.width
	}
	return buf, nil
}
