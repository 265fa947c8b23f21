// Package framedesc stores the inlined-frame debug descriptors of a compiled
// method and their dictionary-compressed byte form.
//
// A descriptor records, for one inlined call level at one stop, the method,
// the bytecode position and the locations of its locals and operand stack
// slots. Descriptors chain to the descriptor of their caller through a
// parent link. Parents are shared between stops, so the compressed form
// stores each parent once (keyed by arena handle) and each method once.
package framedesc

import (
	"errors"
	"fmt"

	"github.com/chazu/codemeta/ident"
	"github.com/chazu/codemeta/location"
)

var (
	ErrBadHandle       = errors.New("invalid frame descriptor handle")
	ErrIndexOutOfRange = errors.New("frame descriptor index out of range")
)

// Handle identifies a descriptor in an Arena. The zero Handle is None.
type Handle int32

// None marks the absence of a descriptor: a stop without debug info, or a
// descriptor without a parent.
const None Handle = 0

// Entry is the caller-supplied content of one descriptor.
type Entry struct {
	Method ident.Method
	BCI    uint16
	Locals []location.Location
	Stack  []location.Location
	Parent Handle
}

// Arena owns the descriptors of one compilation. Identity is the handle:
// two handles are the same parent exactly when they are equal, whatever
// their contents.
type Arena struct {
	frames []*frame
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Add stores a copy of e and returns its handle. The parent must already be
// in the arena.
func (a *Arena) Add(e Entry) (Handle, error) {
	var parent *frame
	if e.Parent != None {
		p, err := a.frame(e.Parent)
		if err != nil {
			return None, fmt.Errorf("parent of %s@%d: %w", e.Method, e.BCI, err)
		}
		parent = p
	}
	f := &frame{
		handle: Handle(len(a.frames) + 1),
		method: e.Method,
		bci:    e.BCI,
		locals: append([]location.Location(nil), e.Locals...),
		stack:  append([]location.Location(nil), e.Stack...),
		parent: parent,
	}
	a.frames = append(a.frames, f)
	return f.handle, nil
}

// Len returns the number of descriptors in the arena.
func (a *Arena) Len() int {
	return len(a.frames)
}

// Entry returns the content stored under h.
func (a *Arena) Entry(h Handle) (Entry, error) {
	f, err := a.frame(h)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		Method: f.method,
		BCI:    f.bci,
		Locals: append([]location.Location(nil), f.locals...),
		Stack:  append([]location.Location(nil), f.stack...),
	}
	if f.parent != nil {
		e.Parent = f.parent.handle
	}
	return e, nil
}

// Descriptor returns a read-only view of the descriptor stored under h.
func (a *Arena) Descriptor(h Handle) (Descriptor, error) {
	f, err := a.frame(h)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{f}, nil
}

func (a *Arena) frame(h Handle) (*frame, error) {
	if h <= None || int(h) > len(a.frames) {
		return nil, fmt.Errorf("%w: %d (arena has %d)", ErrBadHandle, h, len(a.frames))
	}
	return a.frames[h-1], nil
}
