// Package field provides the minimal record shape the enrichment layer works on:
// an ordered, mutable list of named, typed fields.
package field

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"time"
)

// Kind identifies the value type carried by a DataField.
type Kind string

// Field kinds. The string values are the wire tags and must never be reassigned.
const (
	KindChars  Kind = "chars"
	KindDigit  Kind = "digit"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindIP     Kind = "ip"
	KindTime   Kind = "time"
	KindIgnore Kind = "ignore"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindChars, KindDigit, KindFloat, KindBool, KindIP, KindTime, KindIgnore:
		return true
	}
	return false
}

// String returns the wire tag of the kind.
func (k Kind) String() string {
	return string(k)
}

// DataField is one named, typed value within a record.
// Name is the stable key used for anchor matching.
type DataField struct {
	Name  string
	Kind  Kind
	Value any
}

// NewChars creates a chars field.
func NewChars(name, v string) DataField {
	return DataField{Name: name, Kind: KindChars, Value: v}
}

// NewDigit creates a digit field.
func NewDigit(name string, v int64) DataField {
	return DataField{Name: name, Kind: KindDigit, Value: v}
}

// NewFloat creates a float field.
func NewFloat(name string, v float64) DataField {
	return DataField{Name: name, Kind: KindFloat, Value: v}
}

// NewBool creates a bool field.
func NewBool(name string, v bool) DataField {
	return DataField{Name: name, Kind: KindBool, Value: v}
}

// NewIP creates an ip field.
func NewIP(name string, v netip.Addr) DataField {
	return DataField{Name: name, Kind: KindIP, Value: v}
}

// NewTime creates a time field.
func NewTime(name string, v time.Time) DataField {
	return DataField{Name: name, Kind: KindTime, Value: v}
}

// Chars returns the value as a string when the field is chars.
func (f DataField) Chars() (string, bool) {
	s, ok := f.Value.(string)
	return s, ok && f.Kind == KindChars
}

// Digit returns the value as an int64 when the field is a digit.
func (f DataField) Digit() (int64, bool) {
	d, ok := f.Value.(int64)
	return d, ok && f.Kind == KindDigit
}

// IP returns the field as an address. Chars fields holding a parseable
// address are accepted as well.
func (f DataField) IP() (netip.Addr, bool) {
	switch v := f.Value.(type) {
	case netip.Addr:
		return v, v.IsValid()
	case string:
		if f.Kind != KindChars && f.Kind != KindIP {
			return netip.Addr{}, false
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return netip.Addr{}, false
		}
		return addr, true
	}
	return netip.Addr{}, false
}

// String renders the value in its wire form.
func (f DataField) String() string {
	switch v := f.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

type wireField struct {
	Name  string          `json:"name"`
	Kind  Kind            `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (f DataField) MarshalJSON() ([]byte, error) {
	var raw []byte
	var err error
	switch v := f.Value.(type) {
	case netip.Addr:
		raw, err = json.Marshal(v.String())
	case time.Time:
		raw, err = json.Marshal(v.Format(time.RFC3339Nano))
	default:
		raw, err = json.Marshal(v)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal field %s: %w", f.Name, err)
	}
	return json.Marshal(wireField{Name: f.Name, Kind: f.Kind, Value: raw})
}

// UnmarshalJSON implements json.Unmarshaler. The value is coerced to the Go
// type matching its kind; unknown kinds are rejected.
func (f *DataField) UnmarshalJSON(data []byte) error {
	var w wireField
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Name == "" {
		return fmt.Errorf("field name is required")
	}
	if !w.Kind.IsValid() {
		return fmt.Errorf("field %s: unknown kind %q", w.Name, w.Kind)
	}

	value, err := decodeValue(w.Kind, w.Value)
	if err != nil {
		return fmt.Errorf("field %s: %w", w.Name, err)
	}

	f.Name = w.Name
	f.Kind = w.Kind
	f.Value = value
	return nil
}

func decodeValue(kind Kind, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	switch kind {
	case KindChars:
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case KindDigit:
		var d int64
		err := json.Unmarshal(raw, &d)
		return d, err
	case KindFloat:
		var v float64
		err := json.Unmarshal(raw, &v)
		return v, err
	case KindBool:
		var b bool
		err := json.Unmarshal(raw, &b)
		return b, err
	case KindIP:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("parse ip: %w", err)
		}
		return addr, nil
	case KindTime:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("parse time: %w", err)
		}
		return t, nil
	default:
		var v any
		err := json.Unmarshal(raw, &v)
		return v, err
	}
}
