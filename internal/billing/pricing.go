package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ledgergate/ledgergate/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Pricing validation errors.
var (
	// ErrInvalidPrice indicates a malformed or negative price string.
	ErrInvalidPrice = errors.New("billing: invalid price")
	// ErrPriceTooLarge indicates a price above $10,000 per million tokens.
	ErrPriceTooLarge = errors.New("billing: price too large")
	// ErrInvalidDiscount indicates a discount multiplier outside (0, 1].
	ErrInvalidDiscount = errors.New("billing: invalid discount")
)

// maxPriceUSDMicrosPerM caps prices at $10,000 per million tokens.
const maxPriceUSDMicrosPerM = int64(10_000_000_000)

var usdMicros = decimal.NewFromInt(1_000_000)

// PriceSpec is one default-table entry: dollar-per-million-token price
// strings (empty means free/unpriced) and an optional discount multiplier.
type PriceSpec struct {
	InputUSDPerM  string
	OutputUSDPerM string
	Discount      string
}

// defaultPriceSpecs is the built-in price table, keyed by model-id prefix.
// Resolution uses longest-prefix match, so more specific prefixes override
// shorter ones.
var defaultPriceSpecs = map[string]PriceSpec{
	"claude-3-7-sonnet":       {InputUSDPerM: "3", OutputUSDPerM: "15"},
	"claude-3-7-sonnet-think": {InputUSDPerM: "4", OutputUSDPerM: "20"},
	"claude-opus-4":           {InputUSDPerM: "3", OutputUSDPerM: "15"},
	"gemini-2.5-pro":          {InputUSDPerM: "3", OutputUSDPerM: "15"},
	"gemini-3-pro":            {InputUSDPerM: "3", OutputUSDPerM: "15"},
	"gemini-2.5-flash":        {InputUSDPerM: "0.15", OutputUSDPerM: "0.60"},
	"gemini-3-flash":          {InputUSDPerM: "0.15", OutputUSDPerM: "0.60"},
	"gemini-2.5-flash-lite":   {InputUSDPerM: "0.15", OutputUSDPerM: "0.60", Discount: "0.5"},
	"deepseek-chat":           {InputUSDPerM: "0.14"},
}

// priceEntry is a parsed table entry in integer micros.
type priceEntry struct {
	input  *int64
	output *int64
}

// PriceTable resolves default prices by longest model-id prefix.
type PriceTable struct {
	prefixes []string
	entries  map[string]priceEntry
}

// NewPriceTable parses and validates a prefix-keyed price table.
func NewPriceTable(specs map[string]PriceSpec) (*PriceTable, error) {
	table := &PriceTable{
		prefixes: make([]string, 0, len(specs)),
		entries:  make(map[string]priceEntry, len(specs)),
	}
	for prefix, spec := range specs {
		discount, errDiscount := parseDiscount(spec.Discount)
		if errDiscount != nil {
			return nil, fmt.Errorf("price table %q: %w", prefix, errDiscount)
		}
		input, errInput := parsePriceWithDiscount(spec.InputUSDPerM, discount)
		if errInput != nil {
			return nil, fmt.Errorf("price table %q: %w", prefix, errInput)
		}
		output, errOutput := parsePriceWithDiscount(spec.OutputUSDPerM, discount)
		if errOutput != nil {
			return nil, fmt.Errorf("price table %q: %w", prefix, errOutput)
		}
		table.entries[prefix] = priceEntry{input: input, output: output}
		table.prefixes = append(table.prefixes, prefix)
	}
	// Longest prefix first; ties broken lexicographically for determinism.
	sort.Slice(table.prefixes, func(i, j int) bool {
		if len(table.prefixes[i]) != len(table.prefixes[j]) {
			return len(table.prefixes[i]) > len(table.prefixes[j])
		}
		return table.prefixes[i] < table.prefixes[j]
	})
	return table, nil
}

// DefaultPriceTable returns the built-in table. The specs are static, so
// parsing cannot fail at runtime.
func DefaultPriceTable() *PriceTable {
	table, err := NewPriceTable(defaultPriceSpecs)
	if err != nil {
		panic(err)
	}
	return table
}

// Lookup returns the default prices for a model via longest-prefix match.
// Either side may be nil, meaning free/unpriced.
func (t *PriceTable) Lookup(modelID string) (input *int64, output *int64) {
	for _, prefix := range t.prefixes {
		if strings.HasPrefix(modelID, prefix) {
			entry := t.entries[prefix]
			return entry.input, entry.output
		}
	}
	return nil, nil
}

// ParseUSDPerM converts a decimal dollars-per-million-tokens string into
// integer micros. Empty input yields nil (unpriced).
func ParseUSDPerM(value string) (*int64, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return nil, nil
	}
	dec, errParse := decimal.NewFromString(raw)
	if errParse != nil {
		return nil, ErrInvalidPrice
	}
	if dec.IsNegative() {
		return nil, ErrInvalidPrice
	}
	micros := dec.Mul(usdMicros).Round(0).IntPart()
	if micros > maxPriceUSDMicrosPerM {
		return nil, ErrPriceTooLarge
	}
	return &micros, nil
}

func parseDiscount(value string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return nil, nil
	}
	dec, errParse := decimal.NewFromString(raw)
	if errParse != nil {
		return nil, ErrInvalidDiscount
	}
	one := decimal.NewFromInt(1)
	if !dec.IsPositive() || dec.GreaterThan(one) {
		return nil, ErrInvalidDiscount
	}
	if dec.Equal(one) {
		return nil, nil
	}
	return &dec, nil
}

func parsePriceWithDiscount(value string, discount *decimal.Decimal) (*int64, error) {
	micros, err := ParseUSDPerM(value)
	if err != nil || micros == nil {
		return micros, err
	}
	if discount == nil {
		return micros, nil
	}
	// Round is half away from zero, which matches half-up for positive prices.
	discounted := decimal.NewFromInt(*micros).Mul(*discount).Round(0)
	out := discounted.IntPart()
	return &out, nil
}

// ResolvePrice returns the effective per-million-token prices for a model.
// A per-organization override wins field by field; nil fields fall through to
// the default table.
func ResolvePrice(ctx context.Context, conn *gorm.DB, table *PriceTable, orgID uint64, modelID string) (input *int64, output *int64, err error) {
	modelID = strings.TrimSpace(modelID)
	input, output = table.Lookup(modelID)
	if conn == nil {
		return input, output, nil
	}

	var row models.ModelPrice
	errFind := conn.WithContext(ctx).
		Where("org_id = ? AND model_id = ?", orgID, modelID).
		First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return input, output, nil
		}
		return nil, nil, errFind
	}
	if row.InputUSDMicrosPerM != nil {
		input = row.InputUSDMicrosPerM
	}
	if row.OutputUSDMicrosPerM != nil {
		output = row.OutputUSDMicrosPerM
	}
	return input, output, nil
}
