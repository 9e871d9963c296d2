package norm

import (
	"fmt"
	"strings"

	"golang.org/x/exp/constraints"
)

// fieldPick is the named-field shorthand: Index("age") means
// Index("age", key_fn = FieldPick("age")). Dotted names address nested
// documents, grounded on dynamodb/table/keyer.go's FmtKeyer dot-notation
// support.
type fieldPick struct {
	path []string
}

// FieldPick returns a KeyFunction that copies the named field out of the
// document. Dot-separated names (e.g. "meta.version") address nested
// documents.
func FieldPick(name string) KeyFunction {
	return fieldPick{path: strings.Split(name, ".")}
}

// Chain is the general chained-field-pick form, taking path segments
// directly rather than a dot-joined string.
func Chain(path ...string) KeyFunction {
	cp := make([]string, len(path))
	copy(cp, path)
	return fieldPick{path: cp}
}

func (f fieldPick) Apply(doc Document) (Value, bool, error) {
	raw, ok := doc.field(f.path)
	if !ok {
		return Value{}, false, nil
	}
	v, ok := toValue(raw)
	return v, ok, nil
}

func (f fieldPick) kind() string { return "field_pick" }

func (f fieldPick) Serialize() ([]byte, error) {
	return marshalKeyFn(keyFnWire{Kind: f.kind(), Path: f.path})
}

// transform is the shared shape for the unary combinators (lower, upper,
// length) that operate on another KeyFunction's result.
type transform struct {
	op    string
	inner KeyFunction
}

func Lower(inner KeyFunction) KeyFunction  { return transform{op: "lower", inner: inner} }
func Upper(inner KeyFunction) KeyFunction  { return transform{op: "upper", inner: inner} }
func Length(inner KeyFunction) KeyFunction { return transform{op: "length", inner: inner} }

func (t transform) Apply(doc Document) (Value, bool, error) {
	v, ok, err := t.inner.Apply(doc)
	if err != nil || !ok {
		return Value{}, ok, err
	}
	switch t.op {
	case "lower":
		if v.Kind != KindString {
			return Value{}, false, fmt.Errorf("norm: lower() requires a string, got %s", v.Kind)
		}
		return StringValue(strings.ToLower(v.String())), true, nil
	case "upper":
		if v.Kind != KindString {
			return Value{}, false, fmt.Errorf("norm: upper() requires a string, got %s", v.Kind)
		}
		return StringValue(strings.ToUpper(v.String())), true, nil
	case "length":
		if v.Kind != KindString {
			return Value{}, false, fmt.Errorf("norm: length() requires a string, got %s", v.Kind)
		}
		return IntValue(int64(len(v.String()))), true, nil
	default:
		return Value{}, false, fmt.Errorf("norm: unknown transform %q", t.op)
	}
}

func (t transform) kind() string { return t.op }

func (t transform) Serialize() ([]byte, error) {
	innerBlob, err := innerWire(t.inner)
	if err != nil {
		return nil, err
	}
	return marshalKeyFn(keyFnWire{Kind: t.kind(), Inner: innerBlob})
}

// arithmetic is the shared shape for Add/Mul, the numeric transforms the
// Design Notes call for. Operates on KindInt or KindFloat inner values,
// always producing KindFloat (widening avoids a second int/float branch
// at apply time, matching the single canonical numeric path the Design
// Notes favor for the combinator language).
type arithmetic struct {
	op       string
	inner    KeyFunction
	operand  float64
}

// Numeric is every integer or floating-point type, the same shape
// dynamodb/index/val/key.go's Numeric constraint uses for its key
// encoding helpers.
type Numeric interface {
	constraints.Integer | constraints.Float
}

// Add returns a KeyFunction adding a constant to a numeric inner function's
// result. operand accepts any Numeric type so callers can pass an int
// constant without an explicit float64 conversion.
func Add[T Numeric](inner KeyFunction, operand T) KeyFunction {
	return arithmetic{op: "add", inner: inner, operand: float64(operand)}
}

// Mul returns a KeyFunction multiplying a numeric inner function's result
// by a constant.
func Mul[T Numeric](inner KeyFunction, operand T) KeyFunction {
	return arithmetic{op: "mul", inner: inner, operand: float64(operand)}
}

func (a arithmetic) Apply(doc Document) (Value, bool, error) {
	v, ok, err := a.inner.Apply(doc)
	if err != nil || !ok {
		return Value{}, ok, err
	}
	var base float64
	switch v.Kind {
	case KindInt:
		base = float64(v.Int())
	case KindFloat:
		base = v.Float()
	default:
		return Value{}, false, fmt.Errorf("norm: %s() requires a numeric value, got %s", a.op, v.Kind)
	}
	var result float64
	switch a.op {
	case "add":
		result = base + a.operand
	case "mul":
		result = base * a.operand
	default:
		return Value{}, false, fmt.Errorf("norm: unknown arithmetic op %q", a.op)
	}
	fv, err := FloatValue(result)
	if err != nil {
		return Value{}, false, err
	}
	return fv, true, nil
}

func (a arithmetic) kind() string { return a.op }

func (a arithmetic) Serialize() ([]byte, error) {
	innerBlob, err := innerWire(a.inner)
	if err != nil {
		return nil, err
	}
	return marshalKeyFn(keyFnWire{Kind: a.kind(), Inner: innerBlob, Const: a.operand})
}
