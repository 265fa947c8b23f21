package location

import (
	"errors"
	"fmt"

	"github.com/chazu/codemeta/ident"
	"github.com/chazu/codemeta/wire"
)

var (
	ErrUnknownTag       = errors.New("unknown location tag")
	ErrUnknownValueKind = errors.New("unknown immediate value kind")
	ErrCorrupt          = errors.New("corrupt location encoding")
	ErrUnknownKind      = errors.New("unknown location kind")
)

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Encode returns the byte encoding of l.
func Encode(l Location) ([]byte, error) {
	w := wire.NewWriter(6)
	if err := Write(w, l); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Append appends the encoding of l to dst.
func Append(dst []byte, l Location) ([]byte, error) {
	b, err := Encode(l)
	if err != nil {
		return dst, err
	}
	return append(dst, b...), nil
}

// Write appends the encoding of l to w.
//
// Index variants use, in order of preference: a tag that implies the
// operand (1 byte), the generic tag plus an unsigned byte operand (2 bytes),
// or the wide tag plus a signed 32-bit big-endian operand (5 bytes).
func Write(w *wire.Writer, l Location) error {
	switch {
	case l.kind == KindUndefined:
		w.PutByte(byte(TagUndefined))

	case l.kind == KindImmediate:
		writeImmediate(w, l.value)

	case l.kind.IsIndex():
		f := familyFor(l.kind)
		if t, ok := f.implicitTag(l.index); ok {
			w.PutByte(byte(t))
		} else if l.index >= 0 && l.index <= 0xFF {
			w.PutByte(byte(f.generic))
			w.PutByte(byte(l.index))
		} else {
			w.PutByte(byte(f.wide))
			w.PutInt32(l.index)
		}

	case l.kind == KindBlockAddress:
		w.PutByte(byte(TagBlockAddress))
		w.PutInt32(l.index)

	case l.kind == KindMethodReference:
		w.PutByte(byte(TagMethodReference))
		return l.method.Write(w)

	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, l.kind)
	}
	return nil
}

func writeImmediate(w *wire.Writer, v Value) {
	f := familyFor(KindImmediate)
	if i, ok := v.asImplicitInt(); ok {
		if back, ok := valueFromInt(v.kind, i); ok && back == v {
			if t, ok := f.implicitTag(i); ok {
				w.PutByte(byte(t))
				w.PutByte(byte(v.kind))
				return
			}
		}
	}
	w.PutByte(byte(f.generic))
	w.PutByte(byte(v.kind))
	writePayload(w, v)
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Decode decodes one location from the front of b and returns it with the
// number of bytes consumed.
func Decode(b []byte) (Location, int, error) {
	r := wire.NewReader(b)
	l := Read(r)
	if err := r.Err(); err != nil {
		return Location{}, 0, err
	}
	return l, r.Offset(), nil
}

// Read decodes one location from r. Failures are recorded on r.
func Read(r *wire.Reader) Location {
	tag := Tag(r.Byte())
	if r.Err() != nil {
		return Location{}
	}
	info := tagTable[tag]

	switch info.form {
	case formNone:
		return Undefined

	case formImplicit:
		if info.kind == KindImmediate {
			k := ValueKind(r.Byte())
			if r.Err() != nil {
				return Location{}
			}
			if k >= numValueKinds {
				r.Fail(fmt.Errorf("%w: %d", ErrUnknownValueKind, k))
				return Location{}
			}
			v, ok := valueFromInt(k, info.operand)
			if !ok {
				r.Fail(fmt.Errorf("%w: %s with implicit operand %d", ErrCorrupt, k, info.operand))
				return Location{}
			}
			return Immediate(v)
		}
		return Location{kind: info.kind, index: info.operand}

	case formGeneric:
		if info.kind == KindImmediate {
			k := ValueKind(r.Byte())
			v := readPayload(r, k)
			if r.Err() != nil {
				return Location{}
			}
			return Immediate(v)
		}
		return Location{kind: info.kind, index: int32(r.Byte())}

	case formWide:
		return Location{kind: info.kind, index: r.Int32()}

	case formFixed:
		if tag == TagBlockAddress {
			return BlockAddress(r.Int32())
		}
		m := ident.ReadMethod(r)
		return MethodReference(m)
	}

	r.Fail(fmt.Errorf("%w: %d", ErrUnknownTag, byte(tag)))
	return Location{}
}

// EncodedTag returns the tag byte l encodes with.
func EncodedTag(l Location) (Tag, error) {
	b, err := Encode(l)
	if err != nil {
		return 0, err
	}
	return Tag(b[0]), nil
}
