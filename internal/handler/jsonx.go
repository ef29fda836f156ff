package handler

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// flexDecimal accepts a JSON number, a numeric string, null or anything
// else. Values that do not parse as a number decode to zero.
type flexDecimal struct {
	decimal.Decimal
}

func (f *flexDecimal) UnmarshalJSON(b []byte) error {
	f.Decimal = decimal.Zero
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = strings.TrimSpace(v)
	case float64:
		s = string(b)
	default:
		return nil
	}
	if d, err := decimal.NewFromString(s); err == nil {
		f.Decimal = d
	}
	return nil
}

// flexInt accepts a JSON number or a numeric string, the way the checklist
// editor sends codes. Fractions are truncated; anything else decodes to 0.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var d flexDecimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*f = flexInt(d.IntPart())
	return nil
}

// recordsBody accepts either a bare JSON array or {"records": [...]}.
type recordsBody[T any] []T

func (r *recordsBody[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var items []T
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*r = items
		return nil
	}
	var wrapped struct {
		Records []T `json:"records"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return err
	}
	*r = wrapped.Records
	return nil
}
