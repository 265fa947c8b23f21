package location

import (
	"fmt"
	"math"

	"github.com/chazu/codemeta/wire"
)

// ValueKind is the kind byte written after an immediate tag.
type ValueKind uint8

const (
	Boolean ValueKind = iota
	Byte
	Short
	Char
	Int
	Long
	Float
	Double
	Reference
	Word

	numValueKinds
)

var valueKindNames = [...]string{"boolean", "byte", "short", "char", "int", "long", "float", "double", "reference", "word"}

func (k ValueKind) String() string {
	if k < numValueKinds {
		return valueKindNames[k]
	}
	return fmt.Sprintf("ValueKind(%d)", uint8(k))
}

// Value is a constant held by an Immediate location. Signed integral kinds
// store their sign-extended value, floating kinds their IEEE bits, so two
// Values are equal exactly when == says so.
type Value struct {
	kind ValueKind
	bits uint64
}

func BoolValue(b bool) Value {
	if b {
		return Value{Boolean, 1}
	}
	return Value{Boolean, 0}
}

func ByteValue(v int8) Value     { return Value{Byte, uint64(int64(v))} }
func ShortValue(v int16) Value   { return Value{Short, uint64(int64(v))} }
func CharValue(v uint16) Value   { return Value{Char, uint64(v)} }
func IntValue(v int32) Value     { return Value{Int, uint64(int64(v))} }
func LongValue(v int64) Value    { return Value{Long, uint64(v)} }
func FloatValue(v float32) Value { return Value{Float, uint64(math.Float32bits(v))} }
func DoubleValue(v float64) Value {
	return Value{Double, math.Float64bits(v)}
}
func WordValue(v uint64) Value { return Value{Word, v} }

// ReferenceValue is a reference immediate identified by an opaque handle.
// Handle 0 is the null reference.
func ReferenceValue(handle uint64) Value { return Value{Reference, handle} }

// NullReference is the null reference immediate.
var NullReference = ReferenceValue(0)

func (v Value) Kind() ValueKind { return v.kind }

// Bits returns the raw payload bits.
func (v Value) Bits() uint64 { return v.bits }

func (v Value) Bool() bool       { return v.bits != 0 }
func (v Value) Int64() int64     { return int64(v.bits) }
func (v Value) Float32() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Value) Float64() float64 { return math.Float64frombits(v.bits) }

func (v Value) String() string {
	switch v.kind {
	case Boolean:
		return fmt.Sprintf("boolean:%t", v.Bool())
	case Byte, Short, Int, Long:
		return fmt.Sprintf("%s:%d", v.kind, v.Int64())
	case Char:
		return fmt.Sprintf("char:%d", v.bits)
	case Float:
		return fmt.Sprintf("float:%g", v.Float32())
	case Double:
		return fmt.Sprintf("double:%g", v.Float64())
	case Reference:
		if v.bits == 0 {
			return "reference:null"
		}
		return fmt.Sprintf("reference:#%d", v.bits)
	case Word:
		return fmt.Sprintf("word:%#x", v.bits)
	}
	return fmt.Sprintf("%s:%#x", v.kind, v.bits)
}

// asImplicitInt returns the int the value narrows to when narrowing and
// widening back through valueFromInt reproduces the identical value.
func (v Value) asImplicitInt() (int32, bool) {
	switch v.kind {
	case Boolean, Char, Word:
		if v.bits <= math.MaxInt32 {
			return int32(v.bits), true
		}
	case Byte, Short, Int, Long:
		i := v.Int64()
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return int32(i), true
		}
	case Float:
		return floatAsInt(float64(v.Float32()), func(i int32) bool {
			return math.Float32bits(float32(i)) == uint32(v.bits)
		})
	case Double:
		return floatAsInt(v.Float64(), func(i int32) bool {
			return math.Float64bits(float64(i)) == v.bits
		})
	case Reference:
		if v.bits == 0 {
			return 0, true
		}
	}
	return 0, false
}

func floatAsInt(f float64, exact func(int32) bool) (int32, bool) {
	if math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 || f != math.Trunc(f) {
		return 0, false
	}
	i := int32(f)
	return i, exact(i)
}

// valueFromInt widens an implicit operand back into a Value of kind k.
func valueFromInt(k ValueKind, i int32) (Value, bool) {
	switch k {
	case Boolean:
		return BoolValue(i != 0), true
	case Byte:
		return ByteValue(int8(i)), true
	case Short:
		return ShortValue(int16(i)), true
	case Char:
		return CharValue(uint16(i)), true
	case Int:
		return IntValue(i), true
	case Long:
		return LongValue(int64(i)), true
	case Float:
		return FloatValue(float32(i)), true
	case Double:
		return DoubleValue(float64(i)), true
	case Word:
		return WordValue(uint64(uint32(i))), true
	case Reference:
		if i == 0 {
			return NullReference, true
		}
	}
	return Value{}, false
}

// writePayload writes the natural-width encoding of v.
func writePayload(w *wire.Writer, v Value) {
	switch v.kind {
	case Boolean, Byte:
		w.PutByte(byte(v.bits))
	case Short, Char:
		w.PutUint16(uint16(v.bits))
	case Int, Float:
		w.PutUint32(uint32(v.bits))
	case Long, Double, Reference, Word:
		w.PutUint64(v.bits)
	}
}

// readPayload reads the natural-width encoding of a value of kind k.
func readPayload(r *wire.Reader, k ValueKind) Value {
	switch k {
	case Boolean:
		return BoolValue(r.Byte() != 0)
	case Byte:
		return ByteValue(int8(r.Byte()))
	case Short:
		return ShortValue(int16(r.Uint16()))
	case Char:
		return CharValue(r.Uint16())
	case Int:
		return IntValue(r.Int32())
	case Float:
		return Value{Float, uint64(r.Uint32())}
	case Long:
		return LongValue(int64(r.Uint64()))
	case Double:
		return Value{Double, r.Uint64()}
	case Reference:
		return ReferenceValue(r.Uint64())
	case Word:
		return WordValue(r.Uint64())
	}
	r.Fail(fmt.Errorf("%w: %d", ErrUnknownValueKind, k))
	return Value{}
}
