package norm

import (
	"encoding/json"
	"fmt"
)

// keyFnWire is the tagged-union wire format for the KeyFunction combinator
// AST. JSON (rather than gob) is used deliberately: the blob must compare
// byte-for-byte across independently built processes (§4.2), and JSON's
// field order for a fixed Go struct is stable across builds, whereas
// gob's wire format embeds per-process type metadata that isn't
// guaranteed identical across binaries. See SPEC_FULL.md §4.2.
type keyFnWire struct {
	Kind  string     `json:"kind"`
	Path  []string   `json:"path,omitempty"`
	Inner *keyFnWire `json:"inner,omitempty"`
	Const float64    `json:"const,omitempty"`
}

func marshalKeyFn(w keyFnWire) ([]byte, error) {
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("norm: marshal key function: %w", err)
	}
	return b, nil
}

func innerWire(fn KeyFunction) (*keyFnWire, error) {
	blob, err := fn.Serialize()
	if err != nil {
		return nil, err
	}
	var w keyFnWire
	if err := json.Unmarshal(blob, &w); err != nil {
		return nil, fmt.Errorf("norm: invalid inner key function blob: %w", err)
	}
	return &w, nil
}

// DeserializeKeyFn reconstructs a KeyFunction from a blob produced by
// KeyFunction.Serialize, as required to reconcile index declarations
// made by another process (possibly another version) against persisted
// SchemaState.
func DeserializeKeyFn(blob []byte) (KeyFunction, error) {
	var w keyFnWire
	if err := json.Unmarshal(blob, &w); err != nil {
		return nil, &InvalidKeyFnError{Reason: fmt.Sprintf("malformed key function blob: %v", err)}
	}
	return fromWire(w)
}

func fromWire(w keyFnWire) (KeyFunction, error) {
	switch w.Kind {
	case "field_pick":
		if len(w.Path) == 0 {
			return nil, &InvalidKeyFnError{Reason: "field_pick blob missing path"}
		}
		return Chain(w.Path...), nil
	case "lower", "upper", "length":
		inner, err := requireInner(w)
		if err != nil {
			return nil, err
		}
		switch w.Kind {
		case "lower":
			return Lower(inner), nil
		case "upper":
			return Upper(inner), nil
		default:
			return Length(inner), nil
		}
	case "add", "mul":
		inner, err := requireInner(w)
		if err != nil {
			return nil, err
		}
		if w.Kind == "add" {
			return Add(inner, w.Const), nil
		}
		return Mul(inner, w.Const), nil
	default:
		return nil, &InvalidKeyFnError{Reason: fmt.Sprintf("unrepresentable key function kind %q", w.Kind)}
	}
}

func requireInner(w keyFnWire) (KeyFunction, error) {
	if w.Inner == nil {
		return nil, &InvalidKeyFnError{Reason: fmt.Sprintf("%s blob missing inner function", w.Kind)}
	}
	return fromWire(*w.Inner)
}
