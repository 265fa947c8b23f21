package framedesc

import (
	"fmt"
	"strings"

	"github.com/chazu/codemeta/ident"
	"github.com/chazu/codemeta/location"
)

// frame is the shared representation behind arena entries and inflated
// descriptors. It is never mutated once reachable from a Descriptor.
type frame struct {
	handle Handle // arena handle; None for inflated frames
	method ident.Method
	bci    uint16
	locals []location.Location
	stack  []location.Location
	parent *frame
}

// Descriptor is a read-only view of one inlined frame. The zero Descriptor
// is invalid.
type Descriptor struct {
	f *frame
}

// IsValid reports whether d refers to a descriptor.
func (d Descriptor) IsValid() bool { return d.f != nil }

func (d Descriptor) Method() ident.Method { return d.f.method }
func (d Descriptor) BCI() uint16          { return d.f.bci }
func (d Descriptor) NumLocals() int       { return len(d.f.locals) }
func (d Descriptor) NumStack() int        { return len(d.f.stack) }

// Local returns the location of local variable i, or Undefined when i is
// out of range.
func (d Descriptor) Local(i int) location.Location {
	if i < 0 || i >= len(d.f.locals) {
		return location.Undefined
	}
	return d.f.locals[i]
}

// StackSlot returns the location of operand stack slot i, or Undefined when
// i is out of range.
func (d Descriptor) StackSlot(i int) location.Location {
	if i < 0 || i >= len(d.f.stack) {
		return location.Undefined
	}
	return d.f.stack[i]
}

// Locals returns a copy of the local variable locations.
func (d Descriptor) Locals() []location.Location {
	return append([]location.Location(nil), d.f.locals...)
}

// Stack returns a copy of the operand stack locations.
func (d Descriptor) Stack() []location.Location {
	return append([]location.Location(nil), d.f.stack...)
}

// Parent returns the caller's descriptor at the inlined call site.
func (d Descriptor) Parent() (Descriptor, bool) {
	if d.f.parent == nil {
		return Descriptor{}, false
	}
	return Descriptor{d.f.parent}, true
}

// Depth returns the number of frames in the chain starting at d.
func (d Descriptor) Depth() int {
	n := 0
	for f := d.f; f != nil; f = f.parent {
		n++
	}
	return n
}

// Equal reports structural equality of the two chains: same methods,
// bytecode positions and locations at every level.
func (d Descriptor) Equal(other Descriptor) bool {
	a, b := d.f, other.f
	for a != nil && b != nil {
		if a == b {
			return true
		}
		if !a.sameLevel(b) {
			return false
		}
		a, b = a.parent, b.parent
	}
	return a == nil && b == nil
}

func (f *frame) sameLevel(g *frame) bool {
	if f.method != g.method || f.bci != g.bci || len(f.locals) != len(g.locals) || len(f.stack) != len(g.stack) {
		return false
	}
	for i := range f.locals {
		if f.locals[i] != g.locals[i] {
			return false
		}
	}
	for i := range f.stack {
		if f.stack[i] != g.stack[i] {
			return false
		}
	}
	return true
}

// String renders the chain innermost first, one frame per line.
func (d Descriptor) String() string {
	if d.f == nil {
		return "<none>"
	}
	var sb strings.Builder
	for f := d.f; f != nil; f = f.parent {
		if f != d.f {
			sb.WriteString("\n  at ")
		}
		fmt.Fprintf(&sb, "%s@%d locals=%v stack=%v", f.method, f.bci, f.locals, f.stack)
	}
	return sb.String()
}
