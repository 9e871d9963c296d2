package sqlstore

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/acksell/norm"
)

// encodeOrderedValue encodes v so that SQLite's default byte-wise BLOB
// comparison matches norm.Value.Compare's ordering for values of the same
// Kind -- the same sign-flip big-endian scheme used by memstore, since
// both backends need identical range-scan semantics over an opaque byte
// encoding.
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
		return []byte(v.String()), nil
	case norm.KindID:
		id := v.ID()
		return append([]byte(nil), id.Bytes()...), nil
	case norm.KindTime:
		return encodeInt64(v.Time().UnixNano()), nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported value kind %q", v.Kind)
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
