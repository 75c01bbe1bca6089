package utils

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// FlexDecimal accepts a JSON number or a numeric string.
// Unmarshalling never fails: a value that is not a finite number sets Invalid
// so callers can order their own validation messages.
type FlexDecimal struct {
	Value   decimal.Decimal
	Set     bool
	Invalid bool
}

func (f *FlexDecimal) UnmarshalJSON(data []byte) error {
	*f = FlexDecimal{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	f.Set = true

	var raw string
	switch data[0] {
	case '"':
		if err := json.Unmarshal(data, &raw); err != nil {
			f.Invalid = true
			return nil
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			f.Value = decimal.Zero
			return nil
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		raw = string(data)
	default:
		f.Invalid = true
		return nil
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		f.Invalid = true
		return nil
	}
	f.Value = value
	return nil
}

// OrZero returns the value, or zero when the field was absent or null.
func (f FlexDecimal) OrZero() decimal.Decimal {
	if !f.Set {
		return decimal.Zero
	}
	return f.Value
}

// FlexString accepts a JSON string or number and keeps its text.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*s = FlexString(raw)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		*s = ""
		return nil
	}
	*s = FlexString(num.String())
	return nil
}

func (s FlexString) String() string {
	return string(s)
}
