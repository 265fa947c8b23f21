package framedesc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/chazu/codemeta/ident"
	"github.com/chazu/codemeta/location"
)

var (
	mCaller = ident.Method{Holder: "app/Main", Name: "run", Descriptor: "()V"}
	mInline = ident.Method{Holder: "app/Util", Name: "sum", Descriptor: "(II)I"}
	mLeaf   = ident.Method{Holder: "java/lang/Math", Name: "max", Descriptor: "(II)I"}
)

func mustAdd(t *testing.T, a *Arena, e Entry) Handle {
	t.Helper()
	h, err := a.Add(e)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func roundTrip(t *testing.T, a *Arena, seq []Handle) (*Inflated, []byte) {
	t.Helper()
	b, err := Compress(a, seq)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	in, err := Inflate(b)
	if err != nil {
		t.Fatalf("Inflate: %v", err)
	}
	if in.Len() != len(seq) {
		t.Fatalf("Len: got %d, want %d", in.Len(), len(seq))
	}
	for i, h := range seq {
		got, ok := in.At(i)
		if h == None {
			if ok {
				t.Errorf("entry %d: got %v, want hole", i, got)
			}
			continue
		}
		want, _ := a.Descriptor(h)
		if !ok || !got.Equal(want) {
			t.Errorf("entry %d: got %v, want %v", i, got, want)
		}
	}
	return in, b
}

// [d0, hole, d1] where d1's parent is d0.
func TestScenarioC(t *testing.T) {
	a := NewArena()
	d0 := mustAdd(t, a, Entry{
		Method: mCaller, BCI: 7,
		Locals: []location.Location{location.LocalStackSlot(0), location.IntegerRegister(3)},
		Stack:  []location.Location{location.Immediate(location.IntValue(1))},
	})
	d1 := mustAdd(t, a, Entry{
		Method: mInline, BCI: 2,
		Locals: []location.Location{location.IntegerRegister(1), location.IntegerRegister(2)},
		Parent: d0,
	})

	in, b := roundTrip(t, a, []Handle{d0, None, d1})
	if b[0] != 1 {
		t.Errorf("compact flag: got %d, want 1", b[0])
	}
	if in.NumParents() != 1 {
		t.Errorf("NumParents: got %d, want 1", in.NumParents())
	}

	got1, _ := in.At(2)
	parent, ok := got1.Parent()
	if !ok {
		t.Fatal("entry 2 lost its parent")
	}
	got0, _ := in.At(0)
	if !parent.Equal(got0) {
		t.Errorf("shared parent: got %v, want %v", parent, got0)
	}
	if parent.Method() != mCaller || parent.BCI() != 7 {
		t.Errorf("parent: got %s@%d, want %s@7", parent.Method(), parent.BCI(), mCaller)
	}
	if got1.Depth() != 2 || got0.Depth() != 1 {
		t.Errorf("depths: got %d and %d, want 2 and 1", got1.Depth(), got0.Depth())
	}
}

func TestSharedParentsStoredOnce(t *testing.T) {
	a := NewArena()
	root := mustAdd(t, a, Entry{Method: mCaller, BCI: 1})
	mid := mustAdd(t, a, Entry{Method: mInline, BCI: 4, Parent: root})
	var seq []Handle
	for i := 0; i < 10; i++ {
		seq = append(seq, mustAdd(t, a, Entry{
			Method: mLeaf, BCI: uint16(i),
			Stack:  []location.Location{location.LocalStackSlot(int32(i))},
			Parent: mid,
		}))
	}
	seq = append(seq, mustAdd(t, a, Entry{Method: mInline, BCI: 9, Parent: root}))

	in, _ := roundTrip(t, a, seq)
	if in.NumParents() != 2 {
		t.Errorf("NumParents: got %d, want 2", in.NumParents())
	}
	first, _ := in.At(0)
	last, _ := in.At(9)
	p1, _ := first.Parent()
	p2, _ := last.Parent()
	if p1.f != p2.f {
		t.Error("inflated entries should share one parent frame")
	}
	if first.Depth() != 3 {
		t.Errorf("Depth: got %d, want 3", first.Depth())
	}
}

// Equal contents under different handles are different parents.
func TestParentIdentityIsHandle(t *testing.T) {
	a := NewArena()
	p1 := mustAdd(t, a, Entry{Method: mCaller, BCI: 3})
	p2 := mustAdd(t, a, Entry{Method: mCaller, BCI: 3})
	c1 := mustAdd(t, a, Entry{Method: mLeaf, Parent: p1})
	c2 := mustAdd(t, a, Entry{Method: mLeaf, Parent: p2})

	in, _ := roundTrip(t, a, []Handle{c1, c2})
	if in.NumParents() != 2 {
		t.Errorf("NumParents: got %d, want 2", in.NumParents())
	}
}

func TestParentsOutermostFirst(t *testing.T) {
	a := NewArena()
	h := mustAdd(t, a, Entry{Method: mCaller})
	for depth := 0; depth < 6; depth++ {
		h = mustAdd(t, a, Entry{Method: mInline, BCI: uint16(depth), Parent: h})
	}
	leaf := mustAdd(t, a, Entry{Method: mLeaf, Parent: h})
	in, _ := roundTrip(t, a, []Handle{leaf})
	d, _ := in.At(0)
	if d.Depth() != 8 {
		t.Errorf("Depth: got %d, want 8", d.Depth())
	}
}

func TestWideMode(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T, a *Arena) []Handle
	}{
		{"many stops", func(t *testing.T, a *Arena) []Handle {
			seq := make([]Handle, 300)
			seq[299] = mustAdd(t, a, Entry{Method: mLeaf, BCI: 1})
			return seq
		}},
		{"many slots", func(t *testing.T, a *Arena) []Handle {
			locals := make([]location.Location, 256)
			for i := range locals {
				locals[i] = location.LocalStackSlot(int32(i))
			}
			return []Handle{mustAdd(t, a, Entry{Method: mLeaf, Locals: locals})}
		}},
		{"many methods", func(t *testing.T, a *Arena) []Handle {
			var seq []Handle
			for i := 0; i < 256; i++ {
				m := ident.Method{Holder: "gen/C", Name: fmt.Sprintf("m%d", i)}
				seq = append(seq, mustAdd(t, a, Entry{Method: m}))
			}
			return seq
		}},
		{"largest serial", func(t *testing.T, a *Arena) []Handle {
			// 254 parents put the last serial at 255, which still fits; the
			// 255th pushes it to 256.
			var seq []Handle
			for i := 0; i < 255; i++ {
				p := mustAdd(t, a, Entry{Method: mCaller, BCI: uint16(i)})
				seq = append(seq, mustAdd(t, a, Entry{Method: mLeaf, Parent: p}))
			}
			return seq
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewArena()
			seq := tt.build(t, a)
			_, b := roundTrip(t, a, seq)
			if b[0] != 0 {
				t.Errorf("compact flag: got %d, want 0 (wide)", b[0])
			}
		})
	}
}

func TestCompactAtLimit(t *testing.T) {
	a := NewArena()
	var seq []Handle
	for i := 0; i < 254; i++ {
		p := mustAdd(t, a, Entry{Method: mCaller, BCI: uint16(i)})
		seq = append(seq, mustAdd(t, a, Entry{Method: mLeaf, Parent: p}))
	}
	seq = append(seq, None)
	_, b := roundTrip(t, a, seq)
	if b[0] != 1 {
		t.Errorf("compact flag: got %d, want 1", b[0])
	}
}

func TestEmptySequence(t *testing.T) {
	in, b := roundTrip(t, NewArena(), nil)
	if in.Len() != 0 || len(b) == 0 {
		t.Errorf("got %d entries from %d bytes", in.Len(), len(b))
	}
	empty, err := Inflate(nil)
	if err != nil || empty.Len() != 0 {
		t.Errorf("Inflate(nil): got (%v, %v)", empty, err)
	}
}

func TestAllHoles(t *testing.T) {
	roundTrip(t, NewArena(), []Handle{None, None, None})
}

func TestBadHandles(t *testing.T) {
	a := NewArena()
	if _, err := a.Add(Entry{Method: mLeaf, Parent: 5}); !errors.Is(err, ErrBadHandle) {
		t.Errorf("Add with unknown parent: got %v, want ErrBadHandle", err)
	}
	if _, err := Compress(a, []Handle{3}); !errors.Is(err, ErrBadHandle) {
		t.Errorf("Compress with unknown handle: got %v, want ErrBadHandle", err)
	}
	if _, err := a.Descriptor(-1); !errors.Is(err, ErrBadHandle) {
		t.Errorf("Descriptor(-1): got %v, want ErrBadHandle", err)
	}
}

func TestArenaCopiesInput(t *testing.T) {
	a := NewArena()
	locals := []location.Location{location.IntegerRegister(0)}
	h := mustAdd(t, a, Entry{Method: mLeaf, Locals: locals})
	locals[0] = location.IntegerRegister(9)
	e, err := a.Entry(h)
	if err != nil {
		t.Fatal(err)
	}
	if e.Locals[0] != location.IntegerRegister(0) {
		t.Errorf("arena entry changed with caller slice: %v", e.Locals)
	}
}

func TestInflate_Corrupt(t *testing.T) {
	a := NewArena()
	p := mustAdd(t, a, Entry{Method: mCaller, Locals: []location.Location{location.IntegerRegister(40)}})
	h := mustAdd(t, a, Entry{Method: mLeaf, Parent: p})
	good, err := Compress(a, []Handle{h, None})
	if err != nil {
		t.Fatal(err)
	}

	for n := 1; n < len(good); n++ {
		if _, err := Inflate(good[:n]); err == nil {
			t.Errorf("truncated to %d bytes: expected an error", n)
		}
	}
	if _, err := Inflate(append(append([]byte(nil), good...), 0)); !errors.Is(err, ErrCorrupt) {
		t.Errorf("trailing byte: got %v, want ErrCorrupt", err)
	}
	// compact, no methods, no parents, one entry naming parent serial 2.
	if _, err := Inflate([]byte{1, 0, 0, 1, 2, 0, 0, 0, 0, 0}); !errors.Is(err, ErrCorrupt) {
		t.Errorf("dangling parent: got %v, want ErrCorrupt", err)
	}
	// compact, no methods, no parents, one entry naming method 0.
	if _, err := Inflate([]byte{1, 0, 0, 1, 0, 0, 0, 0, 0, 0}); !errors.Is(err, ErrCorrupt) {
		t.Errorf("dangling method: got %v, want ErrCorrupt", err)
	}
}

func TestHeapSizeGrows(t *testing.T) {
	a := NewArena()
	small, _ := roundTrip(t, a, []Handle{mustAdd(t, a, Entry{Method: mLeaf})})
	locals := make([]location.Location, 20)
	big, _ := roundTrip(t, a, []Handle{mustAdd(t, a, Entry{Method: mLeaf, Locals: locals})})
	if small.HeapSize() <= 0 || big.HeapSize() <= small.HeapSize() {
		t.Errorf("HeapSize: small %d, big %d", small.HeapSize(), big.HeapSize())
	}
}

func TestDescriptorAccessors(t *testing.T) {
	a := NewArena()
	h := mustAdd(t, a, Entry{
		Method: mLeaf, BCI: 65535,
		Locals: []location.Location{location.FloatingPointRegister(2)},
		Stack:  []location.Location{location.Undefined, location.ScalarLiteral(3)},
	})
	d, err := a.Descriptor(h)
	if err != nil {
		t.Fatal(err)
	}
	if d.BCI() != 65535 || d.NumLocals() != 1 || d.NumStack() != 2 {
		t.Errorf("got bci %d, %d locals, %d stack", d.BCI(), d.NumLocals(), d.NumStack())
	}
	if d.Local(0) != location.FloatingPointRegister(2) || d.StackSlot(1) != location.ScalarLiteral(3) {
		t.Errorf("slots: got %v / %v", d.Local(0), d.StackSlot(1))
	}
	if !d.Local(5).IsUndefined() || !d.StackSlot(-1).IsUndefined() {
		t.Error("out-of-range slots should be Undefined")
	}
	if _, ok := d.Parent(); ok {
		t.Error("root descriptor should have no parent")
	}
}
