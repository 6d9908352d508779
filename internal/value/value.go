// Package value defines the tagged-union Value type shared by storage,
// evaluation, and indexing. Every property, literal, and expression result
// in NervusDB is a Value.
package value

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindDateTime
	KindBlob
	KindList
	KindMap
)

// Value is a tagged union over the Cypher/property value space: null,
// bool, signed 64-bit int, float64, UTF-8 string, a 64-bit date-time
// (nanoseconds since epoch), a byte blob, an ordered list, and a
// string-keyed map. Only one of the typed fields is meaningful for a
// given Kind.
type Value struct {
	Kind  Kind
	B     bool
	I     int64
	F     float64
	S     string
	Blob  []byte
	List  []Value
	Map   map[string]Value
	Keys  []string // insertion order for Map, kept parallel to Map
}

// Null is the shared null value.
var Null = Value{Kind: KindNull}

func Bool(b bool) Value    { return Value{Kind: KindBool, B: b} }
func Int(i int64) Value    { return Value{Kind: KindInt, I: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, F: f} }
func String(s string) Value { return Value{Kind: KindString, S: s} }
func DateTime(nanos int64) Value { return Value{Kind: KindDateTime, I: nanos} }
func Blob(b []byte) Value  { return Value{Kind: KindBlob, Blob: b} }
func List(vs []Value) Value { return Value{Kind: KindList, List: vs} }

// NewMap builds a Map value preserving the given key order.
func NewMap(keys []string, m map[string]Value) Value {
	return Value{Kind: KindMap, Keys: keys, Map: m}
}

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsTime converts a DateTime value to time.Time (UTC, nanosecond precision).
func (v Value) AsTime() time.Time {
	return time.Unix(0, v.I).UTC()
}

// TypeName returns the Cypher-visible type name, used in TypeError messages.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindNull:
		return "Null"
	case KindBool:
		return "Boolean"
	case KindInt:
		return "Integer"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindDateTime:
		return "DateTime"
	case KindBlob:
		return "Blob"
	case KindList:
		return "List"
	case KindMap:
		return "Map"
	default:
		return "Unknown"
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.B {
			return "true"
		}
		return "false"
	case KindInt:
		return fmt.Sprintf("%d", v.I)
	case KindFloat:
		return fmt.Sprintf("%g", v.F)
	case KindString:
		return v.S
	case KindDateTime:
		return v.AsTime().Format(time.RFC3339Nano)
	case KindBlob:
		return fmt.Sprintf("blob(%d bytes)", len(v.Blob))
	case KindList:
		parts := make([]string, len(v.List))
		for i, e := range v.List {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		parts := make([]string, 0, len(v.Keys))
		for _, k := range v.Keys {
			parts = append(parts, k+": "+v.Map[k].String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "?"
}

// Equal implements Cypher equality with grouping semantics: two nulls
// compare equal here even though the `=` operator in the evaluator returns
// null-propagating three-valued logic instead — callers needing the latter
// use evaluator equality, not this method. query/exec groups and
// deduplicates rows with query/eval's own Value type, not this method.
func (a Value) Equal(b Value) bool {
	if a.Kind != b.Kind {
		// Numeric cross-kind equality (1 == 1.0).
		if a.Kind == KindInt && b.Kind == KindFloat {
			return float64(a.I) == b.F
		}
		if a.Kind == KindFloat && b.Kind == KindInt {
			return a.F == float64(b.I)
		}
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.B == b.B
	case KindInt:
		return a.I == b.I
	case KindFloat:
		if math.IsNaN(a.F) && math.IsNaN(b.F) {
			return true
		}
		return a.F == b.F
	case KindString:
		return a.S == b.S
	case KindDateTime:
		return a.I == b.I
	case KindBlob:
		return string(a.Blob) == string(b.Blob)
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !a.List[i].Equal(b.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.Keys) != len(b.Keys) {
			return false
		}
		for _, k := range a.Keys {
			bv, ok := b.Map[k]
			if !ok || !a.Map[k].Equal(bv) {
				return false
			}
		}
		return true
	}
	return false
}

// FingerprintInto appends a deterministic byte fingerprint of v to dst.
// query/exec's Distinct and GROUP BY key rows with query/eval's
// Value.Fingerprint instead.
func (v Value) FingerprintInto(dst []byte) []byte {
	dst = append(dst, byte(v.Kind))
	switch v.Kind {
	case KindBool:
		if v.B {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case KindInt:
		dst = appendBE64(dst, uint64(v.I))
	case KindFloat:
		dst = appendBE64(dst, math.Float64bits(v.F))
	case KindString:
		dst = append(dst, v.S...)
	case KindDateTime:
		dst = appendBE64(dst, uint64(v.I))
	case KindBlob:
		dst = append(dst, v.Blob...)
	case KindList:
		for _, e := range v.List {
			dst = e.FingerprintInto(dst)
		}
	case KindMap:
		keys := append([]string(nil), v.Keys...)
		sort.Strings(keys)
		for _, k := range keys {
			dst = append(dst, k...)
			dst = v.Map[k].FingerprintInto(dst)
		}
	}
	return dst
}

func appendBE64(dst []byte, u uint64) []byte {
	return append(dst,
		byte(u>>56), byte(u>>48), byte(u>>40), byte(u>>32),
		byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
}

// Compare implements Cypher's total order across types for ORDER BY:
// Null < Bool < Int/Float (compared numerically) < String < DateTime < Blob
// < List < Map, with NaN treated as incomparable (reported as 0 / equal).
func Compare(a, b Value) int {
	an, bn := a.isNumeric(), b.isNumeric()
	if an && bn {
		return compareNumeric(a, b)
	}
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case KindNull:
		return 0
	case KindBool:
		if a.B == b.B {
			return 0
		}
		if !a.B {
			return -1
		}
		return 1
	case KindString:
		return strings.Compare(a.S, b.S)
	case KindDateTime:
		if a.I == b.I {
			return 0
		}
		if a.I < b.I {
			return -1
		}
		return 1
	case KindBlob:
		return strings.Compare(string(a.Blob), string(b.Blob))
	default:
		return 0
	}
}

func (v Value) isNumeric() bool { return v.Kind == KindInt || v.Kind == KindFloat }

func compareNumeric(a, b Value) int {
	af, bf := a.asFloat(), b.asFloat()
	if math.IsNaN(af) || math.IsNaN(bf) {
		return 0
	}
	if af < bf {
		return -1
	}
	if af > bf {
		return 1
	}
	return 0
}

func (v Value) asFloat() float64 {
	if v.Kind == KindInt {
		return float64(v.I)
	}
	return v.F
}

func typeRank(v Value) int {
	switch v.Kind {
	case KindNull:
		return 0
	case KindBool:
		return 1
	case KindInt, KindFloat:
		return 2
	case KindString:
		return 3
	case KindDateTime:
		return 4
	case KindBlob:
		return 5
	case KindList:
		return 6
	case KindMap:
		return 7
	}
	return 8
}
