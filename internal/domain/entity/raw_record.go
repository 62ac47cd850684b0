package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
)

// Value is one cell of an upstream row: null, a string or a number.
type Value struct {
	kind ValueKind
	str  string
	num  float64
}

func Null() Value { return Value{} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Float() float64 { return v.num }
func (v Value) RawString() string { return v.str }

// String renders the value as text. Numbers use the shortest decimal form,
// null renders as "".
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return ""
	}
}

// Truthy mirrors the loose truthiness scrapers rely on: non-empty strings and
// non-zero numbers.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindString:
		return v.str != ""
	case KindNumber:
		return v.num != 0
	default:
		return false
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts any JSON value. Booleans keep their text form,
// objects and arrays collapse to null.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*v = Null()
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = String(strconv.FormatBool(b))
	case 'n', '{', '[':
		*v = Null()
	default:
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("raw value %q: %w", data, err)
		}
		*v = Number(n)
	}
	return nil
}

func (v Value) MarshalBSONValue() (bsontype.Type, []byte, error) {
	switch v.kind {
	case KindString:
		return bson.MarshalValue(v.str)
	case KindNumber:
		return bson.MarshalValue(v.num)
	default:
		return bsontype.Null, nil, nil
	}
}

func (v *Value) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.String:
		*v = String(rv.StringValue())
	case bsontype.Double:
		*v = Number(rv.Double())
	case bsontype.Int32, bsontype.Int64:
		*v = Number(float64(rv.AsInt64()))
	case bsontype.Boolean:
		*v = String(strconv.FormatBool(rv.Boolean()))
	default:
		*v = Null()
	}
	return nil
}

// RawRecord is an untyped upstream row.
type RawRecord map[string]Value
