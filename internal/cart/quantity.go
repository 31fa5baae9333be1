package cart

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// maxQuantityDepth bounds how far nested quantity objects are unwrapped.
	maxQuantityDepth = 5
	// MaxQuantity caps any single count taken from a payload.
	MaxQuantity = 1000
)

// QuantityKind tags which payload shape a Quantity was decoded from.
type QuantityKind uint8

const (
	// KindInvalid marks a value that could not be interpreted; it counts as zero.
	KindInvalid QuantityKind = iota
	// KindNumeric is a JSON number or numeric string.
	KindNumeric
	// KindObject is an object nesting quantity/qty/count.
	KindObject
)

var quantityKeys = [...]string{"quantity", "qty", "count"}

// Quantity is a count decoded from any of the shapes clients send.
// Decoding never fails: unusable input yields KindInvalid.
type Quantity struct {
	Kind  QuantityKind
	Value int
}

// Int returns the non-negative count.
func (q Quantity) Int() int {
	if q.Kind == KindInvalid || q.Value < 0 {
		return 0
	}
	return q.Value
}

// Count builds a numeric quantity, clamped like decoded input.
func Count(n int) Quantity {
	return Quantity{Kind: KindNumeric, Value: clampCount(float64(n))}
}

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	*q = parseQuantity(data, 0)
	return nil
}

func parseQuantity(data []byte, depth int) Quantity {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || depth > maxQuantityDepth {
		return Quantity{}
	}
	switch data[0] {
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return Quantity{}
		}
		for _, key := range quantityKeys {
			if raw, ok := fields[key]; ok {
				inner := parseQuantity(raw, depth+1)
				if inner.Kind == KindInvalid {
					return Quantity{}
				}
				return Quantity{Kind: KindObject, Value: inner.Value}
			}
		}
		return Quantity{}
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Quantity{}
		}
		return quantityFromString(s)
	default:
		return quantityFromString(string(data))
	}
}

func quantityFromString(s string) Quantity {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Quantity{}
	}
	return Quantity{Kind: KindNumeric, Value: clampCount(f)}
}

func clampCount(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	if f > MaxQuantity {
		return MaxQuantity
	}
	return int(math.Floor(f))
}

// Amount is a monetary value decoded from a JSON number or numeric string.
// Negative, non-finite or unparsable input decodes to zero.
type Amount struct {
	decimal.Decimal
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	a.Decimal = parseAmount(data)
	return nil
}

func parseAmount(data []byte) decimal.Decimal {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return decimal.Zero
	}
	value := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &value); err != nil {
			return decimal.Zero
		}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// flag decodes booleans sent as true, "true", 1 or "1".
type flag bool

func (f *flag) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`)) {
	case "true", "1", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

// text decodes identifiers that arrive as strings or numbers.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*t = ""
			return nil
		}
		*t = text(strings.TrimSpace(s))
		return nil
	}
	if data[0] == '{' || data[0] == '[' {
		*t = ""
		return nil
	}
	*t = text(string(data))
	return nil
}
