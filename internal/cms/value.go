package cms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind discriminates the closed set of scalar kinds an entry field can hold,
// mirroring the four schema field types. Anything outside the closed set is
// preserved verbatim as KindRaw for forward compatibility.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindBool
	KindRaw
)

// Value is one entry field value: a tagged union over the scalar kinds.
// It marshals as the bare JSON scalar (no wrapper object), so entry data
// round-trips byte-compatible with the original open-mapping format.
type Value struct {
	kind Kind
	text string
	num  float64
	b    bool
	raw  json.RawMessage
}

// Text creates a text value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Number creates a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool creates a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Raw creates a value preserving arbitrary JSON (arrays, objects, null).
func Raw(data json.RawMessage) Value {
	return Value{kind: KindRaw, raw: append(json.RawMessage(nil), data...)}
}

// Kind reports which variant the value holds.
func (v Value) Kind() Kind { return v.kind }

// AsText returns the text payload; ok is false for other kinds.
func (v Value) AsText() (string, bool) { return v.text, v.kind == KindText }

// AsNumber returns the numeric payload; ok is false for other kinds.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool returns the boolean payload; ok is false for other kinds.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// String renders the value for display and tool results.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return string(v.raw)
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		if len(v.raw) == 0 {
			return []byte("null"), nil
		}
		return v.raw, nil
	}
}

// UnmarshalJSON implements json.Unmarshaler by sniffing the leading token.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty value")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("decoding text value: %w", err)
		}
		*v = Text(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return fmt.Errorf("decoding boolean value: %w", err)
		}
		*v = Bool(b)
	case '{', '[', 'n':
		*v = Raw(trimmed)
	default:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return fmt.Errorf("decoding numeric value: %w", err)
		}
		*v = Number(f)
	}
	return nil
}
