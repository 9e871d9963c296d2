package sqlstore

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/acksell/norm"
)

// Document bodies are stored as JSON text. Plain JSON can't round-trip
// norm.ID or time.Time unambiguously (an ID is a 16-byte array and would
// otherwise decode as a JSON number array), so both are wrapped in a
// single-key tagged object on the way in and unwrapped on the way out --
// the same tagged-union idea keyfn_serialize.go uses for KeyFunction
// blobs, applied here to leaf values instead of a fixed struct.
const (
	tagID   = "$id"
	tagTime = "$time"
)

func encodeDocument(doc norm.Document) ([]byte, error) {
	return json.Marshal(toJSONTree(doc))
}

func decodeDocument(data []byte) (norm.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	out, ok := fromJSONTree(tree).(norm.Document)
	if !ok {
		return norm.Document{}, nil
	}
	return out, nil
}

func toJSONTree(v any) any {
	switch x := v.(type) {
	case norm.Document:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[k] = toJSONTree(val)
		}
		return m
	case map[string]any:
		return toJSONTree(norm.Document(x))
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = toJSONTree(item)
		}
		return out
	case norm.ID:
		return map[string]any{tagID: x.String()}
	case time.Time:
		return map[string]any{tagTime: x.Format(time.RFC3339Nano)}
	default:
		return x
	}
}

func fromJSONTree(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 1 {
			if raw, ok := x[tagID]; ok {
				if s, ok := raw.(string); ok {
					if id, err := norm.ParseID(s); err == nil {
						return id
					}
				}
			}
			if raw, ok := x[tagTime]; ok {
				if s, ok := raw.(string); ok {
					if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
						return t
					}
				}
			}
		}
		doc := make(norm.Document, len(x))
		for k, val := range x {
			doc[k] = fromJSONTree(val)
		}
		return doc
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = fromJSONTree(item)
		}
		return out
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	default:
		return x
	}
}
