package model

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueInt
	ValueFloat
	ValueText
)

// Value is a tagged union for a submitted cell value: an integer, a float or
// a text string. Callers go through the typed accessors instead of sniffing
// the dynamic type at each site.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	s    string
}

// IntValue builds an integer Value.
func IntValue(v int64) Value { return Value{kind: ValueInt, i: v} }

// FloatValue builds a float Value.
func FloatValue(v float64) Value { return Value{kind: ValueFloat, f: v} }

// TextValue builds a text Value.
func TextValue(v string) Value { return Value{kind: ValueText, s: v} }

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether no value was supplied.
func (v Value) IsZero() bool { return v.kind == ValueNone }

// Float returns the numeric payload. Integers convert losslessly for the
// magnitudes seen in result tables; text values report ok=false.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case ValueInt:
		return float64(v.i), true
	case ValueFloat:
		return v.f, true
	}
	return 0, false
}

// Text returns the string payload, or ok=false for numeric values.
func (v Value) Text() (string, bool) {
	if v.kind == ValueText {
		return v.s, true
	}
	return "", false
}

// String renders the value for display.
func (v Value) String() string {
	switch v.kind {
	case ValueInt:
		return strconv.FormatInt(v.i, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case ValueText:
		return v.s
	}
	return ""
}

// MarshalJSON encodes the value transparently: numbers as JSON numbers,
// text as a JSON string, absent as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueInt:
		return json.Marshal(v.i)
	case ValueFloat:
		return json.Marshal(v.f)
	case ValueText:
		return json.Marshal(v.s)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts a JSON number (integer or float) or string.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*v = Value{}
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "value: decode string")
		}
		*v = TextValue(s)
		return nil
	}
	if !strings.ContainsAny(trimmed, ".eE") {
		i, err := strconv.ParseInt(trimmed, 10, 64)
		if err == nil {
			*v = IntValue(i)
			return nil
		}
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return eris.Wrapf(err, "value: decode %q", trimmed)
	}
	*v = FloatValue(f)
	return nil
}
