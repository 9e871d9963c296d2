package memstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math"

	"github.com/acksell/norm"
)

// Order-preserving byte encoding for index entries, extending the
// sign-flip big-endian scheme used for DynamoDB numeric keys to every
// norm.ValueKind: ints and times get the same sign-bit flip as floats,
// strings sort lexicographically once interior separator bytes are
// escaped, IDs are their raw fixed-length 16 bytes, and bool collapses to
// a single ordered byte.
const (
	keySeparator byte = 0x00
	escapeByte   byte = 0x01
)

// encodeOrderedValue encodes v so that byte-wise comparison of the result
// matches norm.Value.Compare's ordering for values of the same Kind.
func encodeOrderedValue(v norm.Value) ([]byte, error) {
	switch v.Kind {
	case norm.KindInt:
		return encodeInt64(v.Int()), nil
	case norm.KindFloat:
		return encodeFloat64(v.Float()), nil
	case norm.KindBool:
		if v.Bool() {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case norm.KindString:
		return escapeBytes([]byte(v.String())), nil
	case norm.KindID:
		id := v.ID()
		return append([]byte(nil), id.Bytes()...), nil
	case norm.KindTime:
		return encodeInt64(v.Time().UnixNano()), nil
	default:
		return nil, fmt.Errorf("memstore: unsupported value kind %q", v.Kind)
	}
}

func encodeInt64(i int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(i)^(1<<63))
	return buf
}

func encodeFloat64(f float64) []byte {
	bits := math.Float64bits(f)
	if f >= 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	return buf
}

// escapeBytes escapes the separator and escape bytes themselves so a
// string's encoding can never be confused with a key-structure boundary.
func escapeBytes(b []byte) []byte {
	var buf bytes.Buffer
	for _, c := range b {
		switch c {
		case keySeparator:
			buf.WriteByte(escapeByte)
			buf.WriteByte(0x01)
		case escapeByte:
			buf.WriteByte(escapeByte)
			buf.WriteByte(0x02)
		default:
			buf.WriteByte(c)
		}
	}
	return buf.Bytes()
}

// recordKey is the badger key for a record's document body.
func recordKey(collection string, id norm.ID) []byte {
	var buf bytes.Buffer
	buf.WriteString("rec")
	buf.WriteByte(keySeparator)
	buf.WriteString(collection)
	buf.WriteByte(keySeparator)
	buf.Write(id.Bytes())
	return buf.Bytes()
}

func recordPrefix(collection string) []byte {
	var buf bytes.Buffer
	buf.WriteString("rec")
	buf.WriteByte(keySeparator)
	buf.WriteString(collection)
	buf.WriteByte(keySeparator)
	return buf.Bytes()
}

// indexKey is the badger key for one index entry: the encoded value
// followed by the record id, so entries with equal values still sort
// distinctly and uniquely per record.
func indexKey(collection, index string, encodedValue []byte, id norm.ID) []byte {
	var buf bytes.Buffer
	buf.Write(indexPrefix(collection, index))
	buf.Write(encodedValue)
	buf.WriteByte(keySeparator)
	buf.Write(id.Bytes())
	return buf.Bytes()
}

func indexPrefix(collection, index string) []byte {
	var buf bytes.Buffer
	buf.WriteString("idx")
	buf.WriteByte(keySeparator)
	buf.WriteString(collection)
	buf.WriteByte(keySeparator)
	buf.WriteString(index)
	buf.WriteByte(keySeparator)
	return buf.Bytes()
}

// indexLowerBound/indexUpperBound build scan boundaries for an interval.
// An inclusive lower bound starts exactly at the encoded value; an
// exclusive one starts just past every key with that value by appending
// 0xFF after the separator, past any possible id byte.
func indexLowerBound(collection, index string, encoded []byte, inclusive bool) []byte {
	var buf bytes.Buffer
	buf.Write(indexPrefix(collection, index))
	buf.Write(encoded)
	if !inclusive {
		buf.WriteByte(keySeparator)
		buf.Write(bytes.Repeat([]byte{0xFF}, 16))
		buf.WriteByte(0xFF)
	}
	return buf.Bytes()
}

func indexUpperBound(collection, index string, encoded []byte, inclusive bool) []byte {
	var buf bytes.Buffer
	buf.Write(indexPrefix(collection, index))
	buf.Write(encoded)
	if inclusive {
		buf.WriteByte(keySeparator)
		buf.Write(bytes.Repeat([]byte{0xFF}, 16))
		buf.WriteByte(0xFF)
	}
	return buf.Bytes()
}

func schemaKey(collection, name string) []byte {
	var buf bytes.Buffer
	buf.WriteString("schema")
	buf.WriteByte(keySeparator)
	buf.WriteString(collection)
	buf.WriteByte(keySeparator)
	buf.WriteString(name)
	return buf.Bytes()
}

func schemaPrefix(collection string) []byte {
	var buf bytes.Buffer
	buf.WriteString("schema")
	buf.WriteByte(keySeparator)
	buf.WriteString(collection)
	buf.WriteByte(keySeparator)
	return buf.Bytes()
}

func heartbeatKey(collection string, process norm.ProcessID) []byte {
	var buf bytes.Buffer
	buf.WriteString("hb")
	buf.WriteByte(keySeparator)
	buf.WriteString(collection)
	buf.WriteByte(keySeparator)
	buf.WriteString(string(process))
	return buf.Bytes()
}

// heartbeatTablePrefix bounds a scan over every collection's heartbeats,
// used by PruneStaleHeartbeats which runs across all collections at once.
func heartbeatTablePrefix() []byte {
	return []byte{'h', 'b', keySeparator}
}

func heartbeatPrefix(collection string) []byte {
	var buf bytes.Buffer
	buf.WriteString("hb")
	buf.WriteByte(keySeparator)
	buf.WriteString(collection)
	buf.WriteByte(keySeparator)
	return buf.Bytes()
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
