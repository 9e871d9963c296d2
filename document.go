package norm

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Document is a recursive, schemaless mapping from text keys to values of
// type {scalar, Document, ordered sequence of Document/scalar}. Any
// well-formed JSON-like tree is storable; norm never enforces a schema on
// document bodies (§3, Non-goals).
type Document map[string]any

// Record pairs a freshly generated identifier with a document body.
type Record struct {
	ID  ID
	Doc Document
}

// NewID returns a fresh 128-bit identifier chosen uniformly at random.
func NewID() ID {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		// crypto/rand.Read on the standard reader only fails if the OS
		// entropy source is broken; there is no sane recovery.
		panic(fmt.Sprintf("norm: failed to generate record id: %v", err))
	}
	return id
}

// ParseID parses the hex form produced by ID.String, or the bare 32-hex
// form without separators.
func ParseID(s string) (ID, error) {
	clean := make([]byte, 0, 32)
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			continue
		}
		clean = append(clean, s[i])
	}
	if len(clean) != 32 {
		return ID{}, fmt.Errorf("norm: invalid id %q", s)
	}
	raw, err := hex.DecodeString(string(clean))
	if err != nil {
		return ID{}, fmt.Errorf("norm: invalid id %q: %w", s, err)
	}
	var id ID
	copy(id[:], raw)
	return id, nil
}

// field looks up a dot-nested path in a document, e.g. "meta.version".
// Returns (nil, false) if any segment is missing or not a Document.
func (d Document) field(path []string) (any, bool) {
	var cur any = d
	for _, seg := range path {
		m, ok := cur.(Document)
		if !ok {
			if asMap, ok2 := cur.(map[string]any); ok2 {
				m = Document(asMap)
			} else {
				return nil, false
			}
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// toValue converts a raw document leaf into a norm.Value, inferring Kind
// from the Go runtime type. Returns ok=false for nil, missing, or
// unordered (document/sequence) leaves, consistent with the KeyFunction
// totality invariant in §3.
func toValue(v any) (Value, bool) {
	switch x := v.(type) {
	case nil:
		return Value{}, false
	case int:
		return IntValue(int64(x)), true
	case int32:
		return IntValue(int64(x)), true
	case int64:
		return IntValue(x), true
	case float32:
		fv, err := FloatValue(float64(x))
		return fv, err == nil
	case float64:
		fv, err := FloatValue(x)
		return fv, err == nil
	case bool:
		return BoolValue(x), true
	case string:
		return StringValue(x), true
	case ID:
		return IDValue(x), true
	case time.Time:
		return TimeValue(x), true
	case Value:
		return x, true
	default:
		// Document and ordered-sequence leaves are unordered and cannot
		// back an index, per the KeyFunction totality invariant in §3.
		return Value{}, false
	}
}
