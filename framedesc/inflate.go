package framedesc

import (
	"fmt"
	"unsafe"

	"github.com/chazu/codemeta/ident"
	"github.com/chazu/codemeta/location"
	"github.com/chazu/codemeta/wire"
)

// Inflated is the decompressed descriptor sequence of one compiled method.
type Inflated struct {
	top      []*frame
	parents  int
	heapSize int64
}

// Len returns the number of entries, one per stop.
func (in *Inflated) Len() int {
	return len(in.top)
}

// At returns the descriptor of entry i. It reports false for a hole or an
// index out of range.
func (in *Inflated) At(i int) (Descriptor, bool) {
	if i < 0 || i >= len(in.top) || in.top[i] == nil {
		return Descriptor{}, false
	}
	return Descriptor{in.top[i]}, true
}

// NumParents returns the number of distinct parent descriptors.
func (in *Inflated) NumParents() int {
	return in.parents
}

// HeapSize is an estimate, in bytes, of the memory held by the inflated
// descriptors. It is meant for accounting, not for correctness.
func (in *Inflated) HeapSize() int64 {
	return in.heapSize
}

var (
	frameSize    = int64(unsafe.Sizeof(frame{}))
	locationSize = int64(unsafe.Sizeof(location.Location{}))
	pointerSize  = int64(unsafe.Sizeof(uintptr(0)))
)

// Inflate decodes bytes produced by Compress in a single pass. Empty input
// is an empty sequence.
func Inflate(b []byte) (*Inflated, error) {
	in := &Inflated{}
	if len(b) == 0 {
		return in, nil
	}
	r := wire.NewReader(b)
	iw := intWidth(r.Bool())

	methodCount := readCount(r, iw)
	methods := make([]ident.Method, 0, methodCount)
	for i := 0; i < methodCount && r.Err() == nil; i++ {
		m := ident.ReadMethod(r)
		methods = append(methods, m)
		in.heapSize += int64(len(m.Holder) + len(m.Name) + len(m.Descriptor))
	}

	parentCount := readCount(r, iw)
	parents := make([]*frame, 0, parentCount)
	for i := 0; i < parentCount && r.Err() == nil; i++ {
		ps := iw.get(r)
		if ps == serialAbsent {
			r.Fail(fmt.Errorf("%w: parent %d is marked absent", ErrCorrupt, i))
			break
		}
		f := readFrame(r, iw, ps, methods, parents)
		parents = append(parents, f)
		in.heapSize += f.size()
	}
	in.parents = len(parents)

	n := readCount(r, iw)
	in.top = make([]*frame, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		ps := iw.get(r)
		if ps == serialAbsent {
			in.top = append(in.top, nil)
			continue
		}
		f := readFrame(r, iw, ps, methods, parents)
		in.top = append(in.top, f)
		in.heapSize += f.size()
	}
	in.heapSize += int64(cap(in.top)+cap(parents))*pointerSize + int64(cap(methods))*int64(unsafe.Sizeof(ident.Method{}))

	if err := r.Err(); err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, r.Remaining())
	}
	return in, nil
}

// readCount reads a count and bounds it by the remaining input, since every
// counted element takes at least one byte.
func readCount(r *wire.Reader, iw intWidth) int {
	n := iw.get(r)
	if n > r.Remaining() {
		r.Fail(fmt.Errorf("%w: count %d exceeds the %d remaining bytes", ErrCorrupt, n, r.Remaining()))
		return 0
	}
	return n
}

// readFrame reads the rest of a frame whose parent serial ps has already
// been consumed. Only parents decoded so far may be referenced.
func readFrame(r *wire.Reader, iw intWidth, ps int, methods []ident.Method, parents []*frame) *frame {
	f := &frame{}
	if ps != serialNoParent {
		idx := ps - FirstSerial
		if idx < 0 || idx >= len(parents) {
			r.Fail(fmt.Errorf("%w: parent serial %d (have %d parents)", ErrCorrupt, ps, len(parents)))
			return f
		}
		f.parent = parents[idx]
	}
	ms := iw.get(r)
	if r.Err() == nil && (ms < 0 || ms >= len(methods)) {
		r.Fail(fmt.Errorf("%w: method serial %d (have %d methods)", ErrCorrupt, ms, len(methods)))
		return f
	}
	if r.Err() != nil {
		return f
	}
	f.method = methods[ms]
	f.bci = r.Uint16()
	f.locals = readLocations(r, iw)
	f.stack = readLocations(r, iw)
	return f
}

func readLocations(r *wire.Reader, iw intWidth) []location.Location {
	n := readCount(r, iw)
	if n == 0 {
		return nil
	}
	out := make([]location.Location, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		out = append(out, location.Read(r))
	}
	return out
}

func (f *frame) size() int64 {
	return frameSize + int64(cap(f.locals)+cap(f.stack))*locationSize
}
