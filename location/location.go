// Package location implements TargetLocation, the tagged description of
// where a source-level value physically resides at a stop: a register, a
// stack slot, a literal-pool entry, an immediate constant, a code block or a
// method reference, together with its compact byte encoding.
//
// Locations are small comparable values. Two locations are equal exactly
// when they have the same variant and payload, so == is structural
// equality and a Location can be used as a map key.
package location

import (
	"fmt"

	"github.com/chazu/codemeta/ident"
)

// Kind identifies the variant of a Location.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindImmediate
	KindScalarLiteral
	KindReferenceLiteral
	KindIntegerRegister
	KindFloatingPointRegister
	KindParameterStackSlot
	KindLocalStackSlot
	KindBlockAddress
	KindMethodReference
)

var kindNames = [...]string{
	"Undefined", "Immediate", "ScalarLiteral", "ReferenceLiteral",
	"IntegerRegister", "FloatingPointRegister", "ParameterStackSlot",
	"LocalStackSlot", "BlockAddress", "MethodReference",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsIndex reports whether k carries a single integer index operand.
func (k Kind) IsIndex() bool {
	return k >= KindScalarLiteral && k <= KindLocalStackSlot
}

// Location is a TargetLocation. The zero value is Undefined.
type Location struct {
	kind   Kind
	index  int32 // index variants and BlockAddress position
	value  Value
	method ident.Method
}

// Undefined is the location of a value that is dead or unknown.
var Undefined = Location{}

func Immediate(v Value) Location {
	return Location{kind: KindImmediate, value: v}
}

func ScalarLiteral(index int32) Location {
	return Location{kind: KindScalarLiteral, index: index}
}

func ReferenceLiteral(index int32) Location {
	return Location{kind: KindReferenceLiteral, index: index}
}

func IntegerRegister(number int32) Location {
	return Location{kind: KindIntegerRegister, index: number}
}

func FloatingPointRegister(number int32) Location {
	return Location{kind: KindFloatingPointRegister, index: number}
}

func ParameterStackSlot(index int32) Location {
	return Location{kind: KindParameterStackSlot, index: index}
}

func LocalStackSlot(index int32) Location {
	return Location{kind: KindLocalStackSlot, index: index}
}

func BlockAddress(position int32) Location {
	return Location{kind: KindBlockAddress, index: position}
}

func MethodReference(m ident.Method) Location {
	return Location{kind: KindMethodReference, method: m}
}

func (l Location) Kind() Kind { return l.kind }

// Index returns the operand of an index variant or the position of a
// BlockAddress. It is 0 for every other variant.
func (l Location) Index() int32 { return l.index }

// Value returns the constant of an Immediate.
func (l Location) Value() Value { return l.value }

// Method returns the target of a MethodReference.
func (l Location) Method() ident.Method { return l.method }

func (l Location) IsUndefined() bool { return l.kind == KindUndefined }

func (l Location) String() string {
	switch {
	case l.kind == KindUndefined:
		return "Undefined"
	case l.kind == KindImmediate:
		return l.value.String()
	case l.kind.IsIndex():
		return fmt.Sprintf("%s#%d", l.kind, l.index)
	case l.kind == KindBlockAddress:
		return fmt.Sprintf("block@%d", l.index)
	case l.kind == KindMethodReference:
		return l.method.String()
	}
	return l.kind.String()
}
