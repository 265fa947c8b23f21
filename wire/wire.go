// Package wire provides the big-endian field codec shared by the metadata
// byte formats. Writers append to a growing buffer; readers consume a byte
// slice and remember the first error they hit, so callers check Err once at
// the end of a decode pass instead of after every field.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrTruncated = errors.New("unexpected end of metadata")
	ErrTooLong   = errors.New("string too long for u16 length prefix")
)

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

// Writer appends fixed-width big-endian fields to a byte buffer.
type Writer struct {
	buf []byte
}

// NewWriter creates a writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the bytes written so far. The slice aliases the writer's
// buffer; stop writing before handing it out.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) PutByte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *Writer) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) PutUint16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *Writer) PutUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *Writer) PutInt32(v int32) {
	w.PutUint32(uint32(v))
}

func (w *Writer) PutUint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *Writer) PutFloat32(v float32) {
	w.PutUint32(math.Float32bits(v))
}

func (w *Writer) PutFloat64(v float64) {
	w.PutUint64(math.Float64bits(v))
}

// PutPrefixedString writes a u16 length prefix followed by the raw bytes.
func (w *Writer) PutPrefixedString(s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("%w: %d bytes", ErrTooLong, len(s))
	}
	w.PutUint16(uint16(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

// Reader consumes fixed-width big-endian fields from a byte slice.
// After the first failure every read returns a zero value and Err reports
// the failure.
type Reader struct {
	data   []byte
	offset int
	err    error
}

// NewReader creates a reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first error encountered, or nil.
func (r *Reader) Err() error {
	return r.err
}

// Fail records err unless an earlier error is already recorded.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Offset returns the number of bytes consumed.
func (r *Reader) Offset() int {
	return r.offset
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.offset
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data)-r.offset < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.offset, len(r.data)-r.offset)
		return nil
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b
}

func (r *Reader) Byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool() bool {
	return r.Byte() != 0
}

func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *Reader) Int32() int32 {
	return int32(r.Uint32())
}

func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// PrefixedString reads a u16 length-prefixed string.
func (r *Reader) PrefixedString() string {
	n := int(r.Uint16())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}
