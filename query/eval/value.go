// Package eval implements the scalar expression evaluator: Cypher
// three-valued logic, checked-then-float-promoting arithmetic, string/
// list/map functions, temporal parsing/arithmetic, and quantifiers (spec
// §4.12). It has no dependency on storage internals beyond internal/value
// (the property value tagged union) and internal/value's DateTime
// encoding; graph reads go through the Graph interface so this package
// stays usable against either a read-only Snapshot or an in-flight
// WriteTxn (spec §4.11's WriteableGraph).
package eval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nervusdb/nervusdb/internal/value"
)

// Kind tags the variant held by a Value. Value is a superset of
// internal/value.Value: in addition to the storage-level scalar union it
// can hold a node, relationship, or path reference, since Cypher rows can
// bind any of those (spec §4.10's binding kinds: Node / Relationship /
// RelationshipList / Path / Scalar).
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindDateTime
	KindDuration
	KindBlob
	KindList
	KindMap
	KindNode
	KindEdge
	KindPath
)

// EdgeRef identifies a relationship by its (src, rel, dst) triple. Its
// field shape matches internal/l0.EdgeKey/internal/segment.EdgeKey
// exactly so callers can convert between them with a plain type
// conversion, keeping this package free of a storage-layer import.
type EdgeRef struct {
	Src uint32
	Rel uint32
	Dst uint32
}

// PathRef is an alternating node/edge walk: Nodes[i] --Edges[i]--> Nodes[i+1].
type PathRef struct {
	Nodes []uint32
	Edges []EdgeRef
}

// Value is the runtime value every expression evaluates to and every Row
// column holds.
type Value struct {
	Kind Kind

	B bool
	I int64
	F float64
	S string

	// Duration holds a Cypher duration's component parts when Kind ==
	// KindDuration; months/days are kept separate from nanoseconds because
	// month/day length varies with the anchor date (spec §4.12
	// duration.between/inMonths/inDays/inSeconds).
	Months int64
	Days   int64
	Nanos  int64

	Blob []byte
	List []Value
	Map  map[string]Value
	Keys []string

	Node uint32
	Edge EdgeRef
	Path PathRef
}

var Null = Value{Kind: KindNull}

func Bool(b bool) Value       { return Value{Kind: KindBool, B: b} }
func Int(i int64) Value       { return Value{Kind: KindInt, I: i} }
func Float(f float64) Value   { return Value{Kind: KindFloat, F: f} }
func String(s string) Value   { return Value{Kind: KindString, S: s} }
func DateTime(ns int64) Value { return Value{Kind: KindDateTime, I: ns} }
func Blob(b []byte) Value     { return Value{Kind: KindBlob, Blob: b} }
func List(vs []Value) Value   { return Value{Kind: KindList, List: vs} }
func NodeVal(internal uint32) Value { return Value{Kind: KindNode, Node: internal} }
func EdgeVal(e EdgeRef) Value       { return Value{Kind: KindEdge, Edge: e} }
func PathVal(p PathRef) Value      { return Value{Kind: KindPath, Path: p} }
func Duration(months, days, nanos int64) Value {
	return Value{Kind: KindDuration, Months: months, Days: days, Nanos: nanos}
}

func NewMap(keys []string, m map[string]Value) Value {
	return Value{Kind: KindMap, Keys: keys, Map: m}
}

func (v Value) IsNull() bool     { return v.Kind == KindNull }
func (v Value) IsNumeric() bool  { return v.Kind == KindInt || v.Kind == KindFloat }
func (v Value) AsFloat() float64 {
	if v.Kind == KindInt {
		return float64(v.I)
	}
	return v.F
}

// FromStorage lifts a property value.Value into the evaluator's superset
// Value type.
func FromStorage(v value.Value) Value {
	switch v.Kind {
	case value.KindNull:
		return Null
	case value.KindBool:
		return Bool(v.B)
	case value.KindInt:
		return Int(v.I)
	case value.KindFloat:
		return Float(v.F)
	case value.KindString:
		return String(v.S)
	case value.KindDateTime:
		return DateTime(v.I)
	case value.KindBlob:
		return Blob(v.Blob)
	case value.KindList:
		out := make([]Value, len(v.List))
		for i, e := range v.List {
			out[i] = FromStorage(e)
		}
		return List(out)
	case value.KindMap:
		m := make(map[string]Value, len(v.Map))
		for k, e := range v.Map {
			m[k] = FromStorage(e)
		}
		return NewMap(append([]string(nil), v.Keys...), m)
	}
	return Null
}

// ToStorage lowers a scalar/list/map Value back to internal/value.Value
// for persistence as a node/edge property. Node/Edge/Path values cannot be
// stored as properties and return ok=false.
func ToStorage(v Value) (value.Value, bool) {
	switch v.Kind {
	case KindNull:
		return value.Null, true
	case KindBool:
		return value.Bool(v.B), true
	case KindInt:
		return value.Int(v.I), true
	case KindFloat:
		return value.Float(v.F), true
	case KindString:
		return value.String(v.S), true
	case KindDateTime:
		return value.DateTime(v.I), true
	case KindBlob:
		return value.Blob(v.Blob), true
	case KindList:
		out := make([]value.Value, len(v.List))
		for i, e := range v.List {
			sv, ok := ToStorage(e)
			if !ok {
				return value.Null, false
			}
			out[i] = sv
		}
		return value.List(out), true
	case KindMap:
		m := make(map[string]value.Value, len(v.Map))
		for k, e := range v.Map {
			sv, ok := ToStorage(e)
			if !ok {
				return value.Null, false
			}
			m[k] = sv
		}
		return value.NewMap(append([]string(nil), v.Keys...), m), true
	}
	return value.Null, false
}

// TypeName returns the Cypher-visible type name for error messages.
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
	case KindDuration:
		return "Duration"
	case KindBlob:
		return "Blob"
	case KindList:
		return "List"
	case KindMap:
		return "Map"
	case KindNode:
		return "Node"
	case KindEdge:
		return "Relationship"
	case KindPath:
		return "Path"
	}
	return "Unknown"
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
		return formatDateTime(v.I)
	case KindDuration:
		return formatDuration(v)
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
	case KindNode:
		return fmt.Sprintf("(id=%d)", v.Node)
	case KindEdge:
		return fmt.Sprintf("[%d-%d->%d]", v.Edge.Src, v.Edge.Rel, v.Edge.Dst)
	case KindPath:
		return fmt.Sprintf("<path len=%d>", len(v.Path.Edges))
	}
	return "?"
}

// Equal implements Cypher grouping/Distinct equality (spec §4.11
// Aggregate/Distinct, §4.12): two nulls compare equal here even though `=`
// itself null-propagates (evalEq in binary.go). Nodes/relationships compare by
// identity, matching OptionalWhereFixup's binding-equality rule (spec
// §4.11).
func (a Value) Equal(b Value) bool {
	if a.Kind == KindNode && b.Kind == KindNode {
		return a.Node == b.Node
	}
	if a.Kind == KindEdge && b.Kind == KindEdge {
		return a.Edge == b.Edge
	}
	if a.Kind != b.Kind {
		if a.IsNumeric() && b.IsNumeric() {
			return a.AsFloat() == b.AsFloat()
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
		return a.F == b.F
	case KindString:
		return a.S == b.S
	case KindDateTime:
		return a.I == b.I
	case KindDuration:
		return a.Months == b.Months && a.Days == b.Days && a.Nanos == b.Nanos
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
	case KindPath:
		if len(a.Path.Nodes) != len(b.Path.Nodes) {
			return false
		}
		for i := range a.Path.Nodes {
			if a.Path.Nodes[i] != b.Path.Nodes[i] {
				return false
			}
		}
		return true
	}
	return false
}

// Compare implements the total order ORDER BY relies on: Null < Bool <
// Int/Float < String < DateTime < Duration < Blob < List < Map, NaN
// treated as incomparable (spec §4.11 OrderBy).
func Compare(a, b Value) int {
	if a.IsNumeric() && b.IsNumeric() {
		af, bf := a.AsFloat(), b.AsFloat()
		if af < bf {
			return -1
		}
		if af > bf {
			return 1
		}
		return 0
	}
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch a.Kind {
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
		return cmpInt64(a.I, b.I)
	case KindBlob:
		return strings.Compare(string(a.Blob), string(b.Blob))
	case KindList:
		n := len(a.List)
		if len(b.List) < n {
			n = len(b.List)
		}
		for i := 0; i < n; i++ {
			if c := Compare(a.List[i], b.List[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(a.List), len(b.List))
	}
	return 0
}

func cmpInt64(a, b int64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
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
	case KindDuration:
		return 5
	case KindBlob:
		return 6
	case KindList:
		return 7
	case KindMap:
		return 8
	case KindNode:
		return 9
	case KindEdge:
		return 10
	case KindPath:
		return 11
	}
	return 12
}

// Fingerprint returns a deterministic byte fingerprint, used by Distinct
// and GROUP BY to key rows without re-deriving equality on every pair.
func (v Value) Fingerprint() []byte {
	var buf []byte
	return v.fingerprintInto(buf)
}

func (v Value) fingerprintInto(dst []byte) []byte {
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
		dst = appendBE64(dst, uint64(int64(v.F*1e9)))
	case KindString:
		dst = append(dst, v.S...)
	case KindDateTime:
		dst = appendBE64(dst, uint64(v.I))
	case KindDuration:
		dst = appendBE64(dst, uint64(v.Months))
		dst = appendBE64(dst, uint64(v.Days))
		dst = appendBE64(dst, uint64(v.Nanos))
	case KindBlob:
		dst = append(dst, v.Blob...)
	case KindList:
		for _, e := range v.List {
			dst = e.fingerprintInto(dst)
		}
	case KindMap:
		keys := append([]string(nil), v.Keys...)
		sort.Strings(keys)
		for _, k := range keys {
			dst = append(dst, k...)
			dst = v.Map[k].fingerprintInto(dst)
		}
	case KindNode:
		dst = appendBE64(dst, uint64(v.Node))
	case KindEdge:
		dst = appendBE64(dst, uint64(v.Edge.Src))
		dst = appendBE64(dst, uint64(v.Edge.Rel))
		dst = appendBE64(dst, uint64(v.Edge.Dst))
	}
	return dst
}

func appendBE64(dst []byte, u uint64) []byte {
	return append(dst,
		byte(u>>56), byte(u>>48), byte(u>>40), byte(u>>32),
		byte(u>>24), byte(u>>16), byte(u>>8), byte(u))
}

// Row is an ordered (name, Value) vector with linear-scan lookup, per spec
// §4.11.
type Row struct {
	Names  []string
	Values []Value
}

// NewRow builds an empty row.
func NewRow() Row { return Row{} }

// Get returns the value bound to name and whether it is bound at all.
func (r Row) Get(name string) (Value, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Values[i], true
		}
	}
	return Null, false
}

// With returns a new row with name bound to v, replacing any existing
// binding of the same name. Rows are treated as immutable so operators can
// safely fan a parent row out to multiple children (e.g. CartesianProduct,
// Apply).
func (r Row) With(name string, v Value) Row {
	for i, n := range r.Names {
		if n == name {
			names := append([]string(nil), r.Names...)
			values := append([]Value(nil), r.Values...)
			values[i] = v
			return Row{Names: names, Values: values}
		}
	}
	return Row{
		Names:  append(append([]string(nil), r.Names...), name),
		Values: append(append([]Value(nil), r.Values...), v),
	}
}

// Graph is the read surface the evaluator needs from either a Snapshot or
// an in-flight WriteTxn (spec §4.11's WriteableGraph covers the write
// side; this is the read side both share).
type Graph interface {
	NodeProperty(internal uint32, key string) (value.Value, bool, error)
	EdgeProperty(e EdgeRef, key string) (value.Value, bool, error)
	NodeProperties(internal uint32) map[string]value.Value
	EdgeProperties(e EdgeRef) map[string]value.Value
	Labels(internal uint32) []uint32
	ResolveLabelID(name string) (uint32, bool)
	ResolveLabelName(id uint32) (string, bool)
	ResolveRelTypeID(name string) (uint32, bool)
	ResolveRelTypeName(id uint32) (string, bool)
	ExternalID(internal uint32) (uint64, bool)
}
