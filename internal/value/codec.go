package value

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Binary encoding for property values persisted in the B+tree-backed
// property store and WAL payloads: a one-byte kind tag followed by
// length-prefixed fields where the field is variable-length. This is a
// distinct scheme from the ordered-index encoding (ordered.go) — this one
// round-trips exactly (little-endian, as required by spec §6), the other
// is designed purely for byte-order comparison.
var ErrTruncated = fmt.Errorf("value: truncated buffer")
var ErrBadTag = fmt.Errorf("value: unrecognized tag byte")

// Encode appends the self-describing binary encoding of v to dst.
func Encode(dst []byte, v Value) []byte {
	dst = append(dst, byte(v.Kind))
	switch v.Kind {
	case KindNull:
	case KindBool:
		b := byte(0)
		if v.B {
			b = 1
		}
		dst = append(dst, b)
	case KindInt:
		dst = appendLE64(dst, uint64(v.I))
	case KindFloat:
		dst = appendLE64(dst, math.Float64bits(v.F))
	case KindString:
		dst = appendLenPrefixed(dst, []byte(v.S))
	case KindDateTime:
		dst = appendLE64(dst, uint64(v.I))
	case KindBlob:
		dst = appendLenPrefixed(dst, v.Blob)
	case KindList:
		dst = appendLE32(dst, uint32(len(v.List)))
		for _, e := range v.List {
			dst = Encode(dst, e)
		}
	case KindMap:
		dst = appendLE32(dst, uint32(len(v.Keys)))
		for _, k := range v.Keys {
			dst = appendLenPrefixed(dst, []byte(k))
			dst = Encode(dst, v.Map[k])
		}
	}
	return dst
}

// Decode parses one Value from buf, returning the value and the number of
// bytes consumed.
func Decode(buf []byte) (Value, int, error) {
	if len(buf) < 1 {
		return Value{}, 0, ErrTruncated
	}
	kind := Kind(buf[0])
	pos := 1
	switch kind {
	case KindNull:
		return Null, pos, nil
	case KindBool:
		if len(buf) < pos+1 {
			return Value{}, 0, ErrTruncated
		}
		v := Bool(buf[pos] != 0)
		return v, pos + 1, nil
	case KindInt:
		if len(buf) < pos+8 {
			return Value{}, 0, ErrTruncated
		}
		u := binary.LittleEndian.Uint64(buf[pos:])
		return Int(int64(u)), pos + 8, nil
	case KindFloat:
		if len(buf) < pos+8 {
			return Value{}, 0, ErrTruncated
		}
		u := binary.LittleEndian.Uint64(buf[pos:])
		return Float(math.Float64frombits(u)), pos + 8, nil
	case KindString:
		s, n, err := readLenPrefixed(buf[pos:])
		if err != nil {
			return Value{}, 0, err
		}
		return String(string(s)), pos + n, nil
	case KindDateTime:
		if len(buf) < pos+8 {
			return Value{}, 0, ErrTruncated
		}
		u := binary.LittleEndian.Uint64(buf[pos:])
		return DateTime(int64(u)), pos + 8, nil
	case KindBlob:
		b, n, err := readLenPrefixed(buf[pos:])
		if err != nil {
			return Value{}, 0, err
		}
		cp := append([]byte(nil), b...)
		return Blob(cp), pos + n, nil
	case KindList:
		if len(buf) < pos+4 {
			return Value{}, 0, ErrTruncated
		}
		count := binary.LittleEndian.Uint32(buf[pos:])
		pos += 4
		items := make([]Value, 0, count)
		for i := uint32(0); i < count; i++ {
			v, n, err := Decode(buf[pos:])
			if err != nil {
				return Value{}, 0, err
			}
			items = append(items, v)
			pos += n
		}
		return List(items), pos, nil
	case KindMap:
		if len(buf) < pos+4 {
			return Value{}, 0, ErrTruncated
		}
		count := binary.LittleEndian.Uint32(buf[pos:])
		pos += 4
		keys := make([]string, 0, count)
		m := make(map[string]Value, count)
		for i := uint32(0); i < count; i++ {
			kb, n, err := readLenPrefixed(buf[pos:])
			if err != nil {
				return Value{}, 0, err
			}
			pos += n
			v, n2, err := Decode(buf[pos:])
			if err != nil {
				return Value{}, 0, err
			}
			pos += n2
			k := string(kb)
			keys = append(keys, k)
			m[k] = v
		}
		return NewMap(keys, m), pos, nil
	default:
		return Value{}, 0, ErrBadTag
	}
}

func appendLE64(dst []byte, u uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], u)
	return append(dst, b[:]...)
}

func appendLE32(dst []byte, u uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], u)
	return append(dst, b[:]...)
}

func appendLenPrefixed(dst, b []byte) []byte {
	dst = appendLE32(dst, uint32(len(b)))
	return append(dst, b...)
}

func readLenPrefixed(buf []byte) ([]byte, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrTruncated
	}
	n := int(binary.LittleEndian.Uint32(buf))
	if len(buf) < 4+n {
		return nil, 0, ErrTruncated
	}
	return buf[4 : 4+n], 4 + n, nil
}
