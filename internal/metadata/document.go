// Package metadata resolves an expense's externally published approved amount.
package metadata

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ApprovedAmountTrait is the attribute trait_type holding the approved amount.
const ApprovedAmountTrait = "Approved Amount"

// Document is an off-ledger attribute document.
type Document struct {
	Name        string      `json:"name"`
	Symbol      string      `json:"symbol"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
}

// Attribute is a single trait. Value can be a JSON number or string,
// so it is kept as raw JSON until read.
type Attribute struct {
	TraitType string          `json:"trait_type"`
	Value     json.RawMessage `json:"value"`
}

var maxUint64 = decimal.NewFromUint64(math.MaxUint64)

// ParseDocument decodes body and extracts the approved amount.
func ParseDocument(body []byte) (uint64, error) {
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, fmt.Errorf("%w: parsing document: %w", ErrUnavailable, err)
	}
	return doc.ApprovedAmount()
}

// ApprovedAmount returns the value of the first ApprovedAmountTrait attribute.
func (d Document) ApprovedAmount() (uint64, error) {
	for _, a := range d.Attributes {
		if !strings.EqualFold(strings.TrimSpace(a.TraitType), ApprovedAmountTrait) {
			continue
		}
		v, ok := parseAmount(a.Value)
		if !ok {
			return 0, fmt.Errorf("%w: unparseable %q value %s", ErrUnavailable, ApprovedAmountTrait, a.Value)
		}
		return v, nil
	}
	return 0, fmt.Errorf("%w: no %q attribute", ErrUnavailable, ApprovedAmountTrait)
}

// parseAmount handles 500000000, 5e8, "500000000" and "500,000,000".
// Negative, fractional and out-of-range values are rejected.
func parseAmount(raw json.RawMessage) (uint64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, false
		}
		s = n.String()
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = strings.ReplaceAll(s, "_", "")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	if d.IsNegative() || !d.IsInteger() || d.GreaterThan(maxUint64) {
		return 0, false
	}
	return d.BigInt().Uint64(), true
}
