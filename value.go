package norm

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/constraints"
)

// ValueKind tags the scalar types norm can index and compare. This is the
// supported index type set exposed by Store.SupportedIndexTypes.
type ValueKind string

const (
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
	KindBool   ValueKind = "bool"
	KindString ValueKind = "string"
	KindID     ValueKind = "id"
	KindTime   ValueKind = "time"
)

// AllValueKinds is the supported index type set, in a stable order.
func AllValueKinds() []ValueKind {
	return []ValueKind{KindInt, KindFloat, KindBool, KindString, KindID, KindTime}
}

// ID is an opaque 128-bit record identifier, chosen uniformly at random by
// the store on create. Identifiers are immutable and never reused.
type ID [16]byte

func (id ID) String() string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", id[0:4], id[4:6], id[6:8], id[8:10], id[10:16])
}

// Bytes returns the identifier's unsigned big-endian byte sequence, the
// ordering basis required by §4.1.
func (id ID) Bytes() []byte {
	return id[:]
}

func (id ID) IsZero() bool {
	return id == ID{}
}

// Value is the canonical scalar value taxonomy: exactly one of the Kind
// fields below is meaningful at a time. Values are immutable and safe to
// share, per §5's resource policy for Condition DSL values.
type Value struct {
	Kind ValueKind

	i   int64
	f   float64
	b   bool
	s   string
	id  ID
	t   time.Time
}

func IntValue(v int64) Value      { return Value{Kind: KindInt, i: v} }
func BoolValue(v bool) Value      { return Value{Kind: KindBool, b: v} }
func StringValue(v string) Value  { return Value{Kind: KindString, s: v} }
func IDValue(v ID) Value          { return Value{Kind: KindID, id: v} }
func TimeValue(v time.Time) Value { return Value{Kind: KindTime, t: v} }

// FloatValue constructs a float scalar. NaN is disallowed per §3 and
// returns an error rather than a silently unorderable value.
func FloatValue(v float64) (Value, error) {
	if math.IsNaN(v) {
		return Value{}, fmt.Errorf("norm: NaN is not a valid index value")
	}
	return Value{Kind: KindFloat, f: v}, nil
}

func (v Value) Int() int64        { return v.i }
func (v Value) Float() float64    { return v.f }
func (v Value) Bool() bool        { return v.b }
func (v Value) String() string    { return v.s }
func (v Value) ID() ID            { return v.id }
func (v Value) Time() time.Time   { return v.t }

// Equal reports whether two values of the same kind are equal. Cross-kind
// equality is always false (callers needing strict validation should use
// Compare, which errors on kind mismatch).
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	c, err := v.Compare(o)
	return err == nil && c == 0
}

// Compare imposes the strict total order of §4.1 over values of identical
// Kind. Cross-kind comparison is undefined and returns InvalidConditionError,
// never a guessed ordering.
func (v Value) Compare(o Value) (int, error) {
	if v.Kind != o.Kind {
		return 0, &InvalidConditionError{Reason: fmt.Sprintf("cannot compare %s to %s", v.Kind, o.Kind)}
	}
	switch v.Kind {
	case KindInt:
		return cmpOrdered(v.i, o.i), nil
	case KindFloat:
		return cmpOrdered(v.f, o.f), nil
	case KindBool:
		return cmpBool(v.b, o.b), nil
	case KindString:
		return bytes.Compare([]byte(v.s), []byte(o.s)), nil
	case KindID:
		return bytes.Compare(v.id[:], o.id[:]), nil
	case KindTime:
		switch {
		case v.t.Before(o.t):
			return -1, nil
		case v.t.After(o.t):
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, &InvalidConditionError{Reason: fmt.Sprintf("unsupported value kind %s", v.Kind)}
	}
}

// cmpOrdered compares two values of any ordered numeric kind, the same
// constraints.Ordered-based generic comparison dynamodb/index/val/key.go
// uses for its Numeric key encoding.
func cmpOrdered[T constraints.Ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}
