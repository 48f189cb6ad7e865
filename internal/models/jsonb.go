package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"sort"

	"github.com/shopspring/decimal"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	raw, err := scanBytes(value)
	if err != nil {
		return err
	}
	result := make(JSONB)
	if len(raw) == 0 {
		*j = result
		return nil
	}
	// numbers stay json.Number so large values keep every digit
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		return err
	}
	*j = result
	return nil
}

// String returns a details value formatted for display
func (j JSONB) String(key string) string {
	v, ok := j[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "はい"
		}
		return "いいえ"
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// monthKeyRe matches allocation months, e.g. 2024-04
var monthKeyRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ValidMonth reports whether s is a YYYY-MM month key
func ValidMonth(s string) bool {
	return monthKeyRe.MatchString(s)
}

// Allocations maps a YYYY-MM month to the revenue booked in it.
// Amounts are stored as decimal strings to keep yen values exact.
type Allocations map[string]decimal.Decimal

// Value implements the driver.Valuer interface
func (a Allocations) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]decimal.Decimal(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (a *Allocations) Scan(value interface{}) error {
	b, err := scanBytes(value)
	if err != nil {
		return err
	}
	result := make(Allocations)
	if len(b) == 0 {
		*a = result
		return nil
	}
	raw := make(map[string]decimal.Decimal)
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		result[k] = v
	}
	*a = result
	return nil
}

// Months returns the allocation months in ascending order
func (a Allocations) Months() []string {
	months := make([]string, 0, len(a))
	for m := range a {
		months = append(months, m)
	}
	sort.Strings(months)
	return months
}

// Total sums every allocated amount
func (a Allocations) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range a {
		total = total.Add(v)
	}
	return total
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("type assertion to []byte failed")
	}
}
