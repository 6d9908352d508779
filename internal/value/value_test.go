package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEqualCrossKindNumeric(t *testing.T) {
	require.True(t, Int(1).Equal(Float(1.0)))
	require.True(t, Float(1.0).Equal(Int(1)))
	require.False(t, Int(1).Equal(Float(1.5)))
}

func TestEqualNaN(t *testing.T) {
	nan := Float(math.NaN())
	require.True(t, nan.Equal(nan))
}

func TestEqualList(t *testing.T) {
	a := List([]Value{Int(1), String("x")})
	b := List([]Value{Int(1), String("x")})
	c := List([]Value{Int(1), String("y")})
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestEqualMapIgnoresKeyOrder(t *testing.T) {
	a := NewMap([]string{"a", "b"}, map[string]Value{"a": Int(1), "b": Int(2)})
	b := NewMap([]string{"b", "a"}, map[string]Value{"a": Int(1), "b": Int(2)})
	require.True(t, a.Equal(b))
}

func TestCompareTotalOrder(t *testing.T) {
	ordered := []Value{
		Null,
		Bool(false),
		Bool(true),
		Int(1),
		Float(1.5),
		String("a"),
		DateTime(100),
		Blob([]byte{1}),
	}
	for i := 0; i < len(ordered)-1; i++ {
		require.Negative(t, Compare(ordered[i], ordered[i+1]), "index %d", i)
		require.Positive(t, Compare(ordered[i+1], ordered[i]), "index %d", i)
	}
}

func TestCompareNumericCrossKind(t *testing.T) {
	require.Zero(t, Compare(Int(2), Float(2.0)))
	require.Negative(t, Compare(Int(1), Float(2.0)))
	require.Positive(t, Compare(Float(3.0), Int(2)))
}

func TestCompareNaNIncomparable(t *testing.T) {
	nan := Float(math.NaN())
	require.Zero(t, Compare(nan, Int(5)))
	require.Zero(t, Compare(Int(5), nan))
}

func TestFingerprintDeterministic(t *testing.T) {
	a := NewMap([]string{"x", "y"}, map[string]Value{"x": Int(1), "y": String("z")})
	b := NewMap([]string{"y", "x"}, map[string]Value{"x": Int(1), "y": String("z")})
	require.Equal(t, a.FingerprintInto(nil), b.FingerprintInto(nil))

	c := NewMap([]string{"x", "y"}, map[string]Value{"x": Int(1), "y": String("different")})
	require.NotEqual(t, a.FingerprintInto(nil), c.FingerprintInto(nil))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Value{
		Null,
		Bool(true),
		Bool(false),
		Int(-42),
		Float(3.14159),
		String("hello, \x00 world"),
		DateTime(1234567890),
		Blob([]byte{0, 1, 2, 255}),
		List([]Value{Int(1), String("a"), Bool(true)}),
		NewMap([]string{"k1", "k2"}, map[string]Value{"k1": Int(1), "k2": List([]Value{Int(2), Int(3)})}),
	}
	for _, v := range cases {
		buf := Encode(nil, v)
		got, n, err := Decode(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
		require.True(t, v.Equal(got), "round trip mismatch for %v", v)
	}
}

func TestDecodeTruncated(t *testing.T) {
	buf := Encode(nil, String("hello"))
	_, _, err := Decode(buf[:len(buf)-1])
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeBadTag(t *testing.T) {
	_, _, err := Decode([]byte{0xFF})
	require.ErrorIs(t, err, ErrBadTag)
}

// P5: the ordered-index encoding's byte order must match Cypher value
// order, so a B+tree's natural key ordering can serve as a secondary
// index without a comparator callback (spec §4.6).
func TestEncodeOrderedMatchesCompare(t *testing.T) {
	values := []Value{
		Null,
		Bool(false),
		Bool(true),
		Int(math.MinInt64),
		Int(-100),
		Int(-1),
		Int(0),
		Int(1),
		Int(100),
		Int(math.MaxInt64),
		Float(math.Inf(-1)),
		Float(-100.5),
		Float(-0.001),
		Float(0),
		Float(0.001),
		Float(100.5),
		Float(math.Inf(1)),
		String(""),
		String("a"),
		String("ab"),
		String("b"),
		String("with\x00nul"),
		DateTime(-100),
		DateTime(0),
		DateTime(100),
	}
	for i := range values {
		for j := range values {
			bi := EncodeOrdered(nil, values[i])
			bj := EncodeOrdered(nil, values[j])
			byteCmp := compareBytes(bi, bj)
			valueCmp := compareMixedOrder(values[i], values[j])
			require.Equal(t, sign(valueCmp), sign(byteCmp),
				"EncodeOrdered(%v) vs EncodeOrdered(%v)", values[i], values[j])
		}
	}
}

// compareMixedOrder extends Compare to also order Int against Float
// strictly by kind rank, since EncodeOrdered keeps Int and Float in
// separate byte-tagged ranges (unlike Compare's total order, which
// compares them numerically). Both orders agree within a single kind,
// which is what the index actually relies on.
func compareMixedOrder(a, b Value) int {
	if a.Kind != b.Kind {
		ra, rb := typeRank(a), typeRank(b)
		if ra < rb {
			return -1
		}
		if ra > rb {
			return 1
		}
		return 0
	}
	return Compare(a, b)
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func TestEncodeOrderedStringNulStuffing(t *testing.T) {
	a := EncodeOrdered(nil, String("a"))
	b := EncodeOrdered(nil, String("a\x00b"))
	// "a" terminates immediately at 0x00 0x00; "a\x00b" stuffs the embedded
	// NUL as 0x00 0xFF before continuing, so the two never collide and "a"
	// sorts first (shorter is a true prefix up to the terminator).
	require.Negative(t, compareBytes(a, b))
}

func TestEncodeIndexKeyOrdersByIndexIDThenValueThenID(t *testing.T) {
	k1 := EncodeIndexKey(1, Int(5), 10)
	k2 := EncodeIndexKey(1, Int(5), 20)
	k3 := EncodeIndexKey(1, Int(6), 0)
	k4 := EncodeIndexKey(2, Int(0), 0)
	require.Negative(t, compareBytes(k1, k2))
	require.Negative(t, compareBytes(k2, k3))
	require.Negative(t, compareBytes(k3, k4))
}
