// Package refmap stores the reference maps of one compiled method: a frame
// map for every stop, telling the collector which frame slots hold
// references, followed by a register map for every safepoint.
//
// All maps live in a single byte buffer:
//
//	[frame map 0][frame map 1]...[frame map N-1][register map 0]...[register map S-1]
//
// Within a map, bit i lives in byte i/8 at bit position i%8 (least
// significant bit first).
package refmap

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	ErrSize                = errors.New("reference map buffer has wrong size")
	ErrStopOutOfRange      = errors.New("stop index out of range")
	ErrSafepointOutOfRange = errors.New("safepoint index out of range")
	ErrSlotOutOfRange      = errors.New("slot out of range")
)

// BitMapSize returns the number of bytes needed for a map of n bits.
func BitMapSize(n int) int {
	return (n + 7) / 8
}

// Layout fixes the shape of a reference map buffer.
type Layout struct {
	Stops           int // every stop has a frame map
	Safepoints      int // only safepoints have register maps
	FrameMapSize    int // bytes per frame map
	RegisterMapSize int // bytes per register map
}

// Size returns the buffer length the layout requires.
func (l Layout) Size() int {
	return l.Stops*l.FrameMapSize + l.Safepoints*l.RegisterMapSize
}

func (l Layout) validate() error {
	if l.Stops < 0 || l.Safepoints < 0 || l.FrameMapSize < 0 || l.RegisterMapSize < 0 {
		return fmt.Errorf("%w: negative layout field in %+v", ErrSize, l)
	}
	if l.Safepoints > l.Stops {
		return fmt.Errorf("%w: %d safepoints exceed %d stops", ErrSize, l.Safepoints, l.Stops)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Table
// ---------------------------------------------------------------------------

// Table is an immutable reference map buffer with its layout.
type Table struct {
	layout Layout
	buf    []byte
}

// NewTable adopts buf as a table with the given layout. The buffer is not
// copied; the caller must not modify it afterwards.
func NewTable(layout Layout, buf []byte) (*Table, error) {
	if err := layout.validate(); err != nil {
		return nil, err
	}
	if len(buf) != layout.Size() {
		return nil, fmt.Errorf("%w: have %d bytes, layout %+v needs %d", ErrSize, len(buf), layout, layout.Size())
	}
	return &Table{layout: layout, buf: buf}, nil
}

// Layout returns the table's layout.
func (t *Table) Layout() Layout {
	return t.layout
}

// Bytes returns a copy of the whole buffer.
func (t *Table) Bytes() []byte {
	return append([]byte(nil), t.buf...)
}

// FrameMapFor returns the frame reference map of the given stop.
func (t *Table) FrameMapFor(stop int) (BitMap, error) {
	if stop < 0 || stop >= t.layout.Stops {
		return BitMap{}, fmt.Errorf("%w: %d (have %d stops)", ErrStopOutOfRange, stop, t.layout.Stops)
	}
	off := stop * t.layout.FrameMapSize
	return t.view(off, t.layout.FrameMapSize), nil
}

// RegisterMapFor returns the register reference map of the safepoint with
// the given ordinal (its position among safepoints, not its stop index).
func (t *Table) RegisterMapFor(ordinal int) (BitMap, error) {
	if ordinal < 0 || ordinal >= t.layout.Safepoints {
		return BitMap{}, fmt.Errorf("%w: %d (have %d safepoints)", ErrSafepointOutOfRange, ordinal, t.layout.Safepoints)
	}
	off := t.layout.Stops*t.layout.FrameMapSize + ordinal*t.layout.RegisterMapSize
	return t.view(off, t.layout.RegisterMapSize), nil
}

func (t *Table) view(off, size int) BitMap {
	return BitMap{data: t.buf[off : off+size : off+size], offset: off}
}

// ---------------------------------------------------------------------------
// BitMap
// ---------------------------------------------------------------------------

// BitMap is a read-only view of one reference map.
type BitMap struct {
	data   []byte
	offset int
}

// Len returns the number of bits in the map.
func (m BitMap) Len() int {
	return len(m.data) * 8
}

// Offset returns the byte offset of the map within its table.
func (m BitMap) Offset() int {
	return m.offset
}

// IsSet reports whether bit i is set. Bits beyond the map are clear.
func (m BitMap) IsSet(i int) bool {
	if i < 0 || i >= m.Len() {
		return false
	}
	return m.data[i/8]&(1<<(i%8)) != 0
}

// Cardinality returns the number of set bits.
func (m BitMap) Cardinality() int {
	n := 0
	for _, b := range m.data {
		n += bits.OnesCount8(b)
	}
	return n
}

// SetBits returns the indices of the set bits in increasing order.
func (m BitMap) SetBits() []int {
	var out []int
	for i, b := range m.data {
		for b != 0 {
			j := bits.TrailingZeros8(b)
			out = append(out, i*8+j)
			b &^= 1 << j
		}
	}
	return out
}

// Bytes returns a copy of the map's bytes.
func (m BitMap) Bytes() []byte {
	return append([]byte(nil), m.data...)
}

func (m BitMap) String() string {
	return fmt.Sprintf("%v", m.SetBits())
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// Builder fills in a reference map buffer before it is frozen into a Table.
type Builder struct {
	layout Layout
	buf    []byte
	err    error
}

// NewBuilder creates a builder with every bit clear.
func NewBuilder(layout Layout) *Builder {
	b := &Builder{layout: layout}
	if b.err = layout.validate(); b.err == nil {
		b.buf = make([]byte, layout.Size())
	}
	return b
}

// SetFrameSlot marks frame slot as holding a reference at stop.
func (b *Builder) SetFrameSlot(stop, slot int) error {
	if b.err != nil {
		return b.err
	}
	if stop < 0 || stop >= b.layout.Stops {
		return fmt.Errorf("%w: %d (have %d stops)", ErrStopOutOfRange, stop, b.layout.Stops)
	}
	return b.set(stop*b.layout.FrameMapSize, b.layout.FrameMapSize, slot)
}

// SetRegister marks register reg as holding a reference at the safepoint
// with the given ordinal.
func (b *Builder) SetRegister(ordinal, reg int) error {
	if b.err != nil {
		return b.err
	}
	if ordinal < 0 || ordinal >= b.layout.Safepoints {
		return fmt.Errorf("%w: %d (have %d safepoints)", ErrSafepointOutOfRange, ordinal, b.layout.Safepoints)
	}
	off := b.layout.Stops*b.layout.FrameMapSize + ordinal*b.layout.RegisterMapSize
	return b.set(off, b.layout.RegisterMapSize, reg)
}

func (b *Builder) set(off, size, bit int) error {
	if bit < 0 || bit >= size*8 {
		return fmt.Errorf("%w: bit %d in a %d-byte map", ErrSlotOutOfRange, bit, size)
	}
	b.buf[off+bit/8] |= 1 << (bit % 8)
	return nil
}

// Build freezes the buffer. The builder must not be used afterwards.
func (b *Builder) Build() (*Table, error) {
	if b.err != nil {
		return nil, b.err
	}
	t := &Table{layout: b.layout, buf: b.buf}
	b.buf = nil
	b.err = errors.New("refmap: builder already built")
	return t, nil
}
