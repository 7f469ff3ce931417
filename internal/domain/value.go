package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type ValueKind string

const (
	KindNull ValueKind = "null"
	KindText ValueKind = "text"
	KindEnum ValueKind = "enum"
	KindTime ValueKind = "timestamp"
	KindBool ValueKind = "boolean"
)

// Value is one side of a field change. Only the member matching Kind is set.
type Value struct {
	Kind ValueKind
	Text string
	Time time.Time
	Bool bool
}

func Null() Value { return Value{Kind: KindNull} }
func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }
func EnumValue(s string) Value { return Value{Kind: KindEnum, Text: s} }
func TimeValue(t time.Time) Value { return Value{Kind: KindTime, Time: t.UTC()} }
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// OptionalTime maps a nil time to Null.
func OptionalTime(t *time.Time) Value {
	if t == nil {
		return Null()
	}
	return TimeValue(*t)
}

func (v Value) IsNull() bool { return v.Kind == "" || v.Kind == KindNull }

// Equal compares semantically: timestamps by instant, text and enum by content.
func (v Value) Equal(o Value) bool {
	if v.IsNull() || o.IsNull() {
		return v.IsNull() == o.IsNull()
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindTime:
		return v.Time.Equal(o.Time)
	case KindBool:
		return v.Bool == o.Bool
	default:
		return v.Text == o.Text
	}
}

// Any returns the loosely typed form used in API responses.
func (v Value) Any() any {
	switch v.Kind {
	case KindText, KindEnum:
		return v.Text
	case KindTime:
		return v.Time.UTC().Format(time.RFC3339Nano)
	case KindBool:
		return v.Bool
	default:
		return nil
	}
}

func (v Value) String() string {
	if v.IsNull() {
		return "null"
	}
	return fmt.Sprint(v.Any())
}

type valueJSON struct {
	Kind  ValueKind `json:"kind"`
	Value any       `json:"value"`
}

// MarshalJSON keeps the kind so stored entries decode back to the same union member.
func (v Value) MarshalJSON() ([]byte, error) {
	kind := v.Kind
	if kind == "" {
		kind = KindNull
	}
	return json.Marshal(valueJSON{Kind: kind, Value: v.Any()})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind  ValueKind       `json:"kind"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case "", KindNull:
		*v = Null()
	case KindText, KindEnum:
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return fmt.Errorf("decode %s value: %w", raw.Kind, err)
		}
		*v = Value{Kind: raw.Kind, Text: s}
	case KindTime:
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return fmt.Errorf("decode timestamp value: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("decode timestamp value: %w", err)
		}
		*v = TimeValue(t)
	case KindBool:
		var b bool
		if err := json.Unmarshal(raw.Value, &b); err != nil {
			return fmt.Errorf("decode boolean value: %w", err)
		}
		*v = BoolValue(b)
	default:
		return fmt.Errorf("unknown value kind %q", raw.Kind)
	}
	return nil
}
