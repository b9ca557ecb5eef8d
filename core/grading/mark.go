// Package grading derives totals, letter grades, publication status and SGPA from raw mark records.
//
// Everything in this package is pure: no I/O, no shared state, safe for concurrent use.
// Missing or malformed input is modelled as absence, never as an error.
package grading

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Mark is an optional numeric mark. The zero value is absent.
type Mark struct {
	value float64
	valid bool
}

// NewMark returns a present mark. NaN and infinities are absent.
func NewMark(v float64) Mark {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Mark{}
	}
	return Mark{value: v, valid: true}
}

// MarkFromPtr returns an absent mark for nil.
func MarkFromPtr(v *float64) Mark {
	if v == nil {
		return Mark{}
	}
	return NewMark(*v)
}

// ParseMark normalizes free text to a mark; blank or unparsable text is absent.
func ParseMark(s string) Mark {
	s = strings.TrimSpace(s)
	if s == "" {
		return Mark{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Mark{}
	}
	return NewMark(v)
}

func (m Mark) Valid() bool { return m.valid }

// Value returns the mark and whether it is present.
func (m Mark) Value() (float64, bool) { return m.value, m.valid }

// Ptr returns nil when absent.
func (m Mark) Ptr() *float64 {
	if !m.valid {
		return nil
	}
	v := m.value
	return &v
}

func (m Mark) String() string {
	if !m.valid {
		return "-"
	}
	return strconv.FormatFloat(m.value, 'f', -1, 64)
}

// MarshalJSON encodes absent marks as null.
func (m Mark) MarshalJSON() ([]byte, error) {
	if !m.valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.value)
}

// UnmarshalJSON accepts numbers, numeric strings and null.
// Anything else decodes to an absent mark instead of failing the whole payload.
func (m *Mark) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*m = Mark{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			*m = ParseMark(s)
		}
	default:
		var v float64
		if err := json.Unmarshal(data, &v); err == nil {
			*m = NewMark(v)
		}
	}
	return nil
}
