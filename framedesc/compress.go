package framedesc

import (
	"errors"
	"fmt"
	"math"

	"github.com/tliron/commonlog"

	"github.com/chazu/codemeta/ident"
	"github.com/chazu/codemeta/location"
	"github.com/chazu/codemeta/wire"
)

var log = commonlog.GetLogger("codemeta.framedesc")

var (
	ErrSelfCheck = errors.New("compressed frame descriptors do not inflate to their input")
	ErrCorrupt   = errors.New("corrupt frame descriptor data")
	ErrTooLarge  = errors.New("frame descriptor table too large")
)

// Reserved parent serials. Real parents are numbered from FirstSerial.
const (
	serialNoParent = 0
	serialAbsent   = 1
	FirstSerial    = 2
)

// intWidth is the width of counts and serials: one byte in compact mode,
// four bytes otherwise.
type intWidth bool

const (
	wide    intWidth = false
	compact intWidth = true
)

func (iw intWidth) put(w *wire.Writer, n int) {
	if iw == compact {
		w.PutByte(byte(n))
	} else {
		w.PutUint32(uint32(n))
	}
}

func (iw intWidth) get(r *wire.Reader) int {
	if iw == compact {
		return int(r.Byte())
	}
	n := r.Uint32()
	if n > math.MaxInt32 {
		r.Fail(fmt.Errorf("%w: count %d", ErrCorrupt, n))
		return 0
	}
	return int(n)
}

func fitsByte(n int) bool {
	return n <= math.MaxUint8
}

// dictionary is the set of shared methods and parents of one sequence.
type dictionary struct {
	methods       []ident.Method
	methodSerial  map[ident.Method]int
	parents       []*frame
	parentSerial  map[*frame]int
	maxSlots      int
	largestSerial int
}

func (d *dictionary) addMethod(m ident.Method) {
	if _, ok := d.methodSerial[m]; !ok {
		d.methodSerial[m] = len(d.methods)
		d.methods = append(d.methods, m)
	}
}

func (d *dictionary) noteSlots(f *frame) {
	d.maxSlots = max(d.maxSlots, len(f.locals), len(f.stack))
}

// collect walks every descriptor's parent chain. A chain is cut at the first
// parent already seen, whose own ancestors were registered with it, so
// appending each new run outermost-first keeps every parent after its own
// parent.
func collect(top []*frame) *dictionary {
	d := &dictionary{
		methodSerial: make(map[ident.Method]int),
		parentSerial: make(map[*frame]int),
	}
	var run []*frame
	for _, f := range top {
		if f == nil {
			continue
		}
		d.addMethod(f.method)
		d.noteSlots(f)
		run = run[:0]
		for p := f.parent; p != nil; p = p.parent {
			if _, seen := d.parentSerial[p]; seen {
				break
			}
			d.parentSerial[p] = -1
			d.addMethod(p.method)
			d.noteSlots(p)
			run = append(run, p)
		}
		for i := len(run) - 1; i >= 0; i-- {
			d.parentSerial[run[i]] = FirstSerial + len(d.parents)
			d.parents = append(d.parents, run[i])
		}
	}
	d.largestSerial = FirstSerial + len(d.parents) - 1
	return d
}

func (d *dictionary) width(n int) intWidth {
	if fitsByte(len(d.methods)) && fitsByte(len(d.parents)) && fitsByte(n) &&
		fitsByte(d.maxSlots) && fitsByte(d.largestSerial) {
		return compact
	}
	return wide
}

// Compress serializes the descriptors named by seq, one per stop, with None
// for stops that have no descriptor. The result is inflated again and
// compared with the input before it is returned.
//
// Layout:
//
//	[compact bool]
//	[methodCount] method...
//	[parentCount] parent...   (outermost first)
//	[length]      entry...
//
// where an entry (and a parent) is
//
//	[parent serial] [method serial] [bci u16] [nLocals] location... [nStack] location...
//
// and a top-level hole is the single serial 1.
func Compress(a *Arena, seq []Handle) ([]byte, error) {
	top := make([]*frame, len(seq))
	for i, h := range seq {
		if h == None {
			continue
		}
		f, err := a.frame(h)
		if err != nil {
			return nil, fmt.Errorf("stop %d: %w", i, err)
		}
		top[i] = f
	}

	d := collect(top)
	iw := d.width(len(seq))
	if iw == wide && (len(seq) > math.MaxInt32 || d.largestSerial > math.MaxInt32) {
		return nil, fmt.Errorf("%w: %d entries, %d parents", ErrTooLarge, len(seq), len(d.parents))
	}

	w := wire.NewWriter(64 + 8*len(seq))
	w.PutBool(bool(iw))
	iw.put(w, len(d.methods))
	for _, m := range d.methods {
		if err := m.Write(w); err != nil {
			return nil, err
		}
	}
	iw.put(w, len(d.parents))
	for _, p := range d.parents {
		if err := d.writeFrame(w, iw, p); err != nil {
			return nil, err
		}
	}
	iw.put(w, len(top))
	for _, f := range top {
		if f == nil {
			iw.put(w, serialAbsent)
			continue
		}
		if err := d.writeFrame(w, iw, f); err != nil {
			return nil, err
		}
	}
	out := w.Bytes()

	if err := selfCheck(out, top); err != nil {
		log.Criticalf("frame descriptor self-check failed: %s", err)
		return nil, err
	}
	log.Debugf("compressed %d descriptors (%d parents, %d methods, compact=%t) into %d bytes",
		len(top), len(d.parents), len(d.methods), iw == compact, len(out))
	return out, nil
}

func (d *dictionary) writeFrame(w *wire.Writer, iw intWidth, f *frame) error {
	ps := serialNoParent
	if f.parent != nil {
		ps = d.parentSerial[f.parent]
	}
	iw.put(w, ps)
	iw.put(w, d.methodSerial[f.method])
	w.PutUint16(f.bci)
	for _, slots := range [2][]location.Location{f.locals, f.stack} {
		iw.put(w, len(slots))
		for _, l := range slots {
			if err := location.Write(w, l); err != nil {
				return fmt.Errorf("%s@%d: %w", f.method, f.bci, err)
			}
		}
	}
	return nil
}

func selfCheck(b []byte, top []*frame) error {
	inf, err := Inflate(b)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSelfCheck, err)
	}
	if inf.Len() != len(top) {
		return fmt.Errorf("%w: %d entries inflated, %d compressed", ErrSelfCheck, inf.Len(), len(top))
	}
	for i, f := range top {
		got, ok := inf.At(i)
		switch {
		case f == nil && ok:
			return fmt.Errorf("%w: entry %d should be absent", ErrSelfCheck, i)
		case f != nil && !ok:
			return fmt.Errorf("%w: entry %d is missing", ErrSelfCheck, i)
		case f != nil && !got.Equal(Descriptor{f}):
			return fmt.Errorf("%w: entry %d differs", ErrSelfCheck, i)
		}
	}
	return nil
}
