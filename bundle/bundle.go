// Package bundle persists compiled-method metadata as a CBOR document. The
// metadata byte formats (reference maps, compressed frame descriptors) are
// stored verbatim; CBOR only frames them together with the scalar fields.
package bundle

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chazu/codemeta/exctable"
	"github.com/chazu/codemeta/ident"
	"github.com/chazu/codemeta/platform"
	"github.com/chazu/codemeta/target"
)

// Version is the bundle format version written by Marshal.
const Version = 1

var (
	ErrVersion     = errors.New("unsupported bundle version")
	ErrNotFound    = errors.New("method not in bundle")
	ErrDuplicateID = errors.New("duplicate method id in bundle")
)

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bundle: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// File is the top-level bundle document.
type File struct {
	Version uint        `cbor:"1,keyasint"`
	Methods []MethodRec `cbor:"2,keyasint"`
}

// MethodRec is the record of one compiled method.
type MethodRec struct {
	ID               [16]byte     `cbor:"1,keyasint"`
	Holder           string       `cbor:"2,keyasint"`
	Name             string       `cbor:"3,keyasint"`
	Descriptor       string       `cbor:"4,keyasint,omitempty"`
	Platform         PlatformRec  `cbor:"5,keyasint"`
	CodeLength       uint32       `cbor:"6,keyasint"`
	FrameWords       int          `cbor:"7,keyasint"`
	Positions        []uint32     `cbor:"8,keyasint"`
	NumDirectCalls   int          `cbor:"9,keyasint"`
	NumIndirectCalls int          `cbor:"10,keyasint"`
	ReferenceMaps    []byte       `cbor:"11,keyasint"`
	Dispatch         uint8        `cbor:"12,keyasint"`
	Handlers         []HandlerRec `cbor:"13,keyasint,omitempty"`
	FrameDescriptors []byte       `cbor:"14,keyasint"`
}

// PlatformRec records the platform parameters the metadata was built for.
type PlatformRec struct {
	Name               string `cbor:"1,keyasint"`
	WordSize           int    `cbor:"2,keyasint"`
	IntegerRegisters   int    `cbor:"3,keyasint"`
	FloatRegisters     int    `cbor:"4,keyasint"`
	CallerIPAdjustment int32  `cbor:"5,keyasint"`
	ReturnPCOffset     int32  `cbor:"6,keyasint"`
}

// HandlerRec is one exception table entry.
type HandlerRec struct {
	Start     uint32 `cbor:"1,keyasint"`
	Handler   int32  `cbor:"2,keyasint"`
	CatchType string `cbor:"3,keyasint,omitempty"`
}

// FromMethod converts m to its record.
func FromMethod(m *target.Method) MethodRec {
	p := m.Parts()
	rec := MethodRec{
		ID:         p.ID,
		Holder:     p.Name.Holder,
		Name:       p.Name.Name,
		Descriptor: p.Name.Descriptor,
		Platform: PlatformRec{
			Name:               p.Platform.Name,
			WordSize:           p.Platform.WordSize,
			IntegerRegisters:   p.Platform.IntegerRegisters,
			FloatRegisters:     p.Platform.FloatRegisters,
			CallerIPAdjustment: p.Platform.CallerIPAdjustment,
			ReturnPCOffset:     p.Platform.ReturnPCOffset,
		},
		CodeLength:       p.CodeLength,
		FrameWords:       p.FrameWords,
		Positions:        p.Positions,
		NumDirectCalls:   p.NumDirectCalls,
		NumIndirectCalls: p.NumIndirectCalls,
		ReferenceMaps:    p.ReferenceMaps,
		Dispatch:         uint8(p.Dispatch),
		FrameDescriptors: p.FrameDescriptors,
	}
	for _, e := range p.Handlers {
		rec.Handlers = append(rec.Handlers, HandlerRec{Start: e.Start, Handler: e.Handler, CatchType: string(e.CatchType)})
	}
	return rec
}

// MethodName returns the identifier of the recorded method.
func (r *MethodRec) MethodName() ident.Method {
	return ident.Method{Holder: r.Holder, Name: r.Name, Descriptor: r.Descriptor}
}

// Method rebuilds the recorded method. h resolves catch types for typed
// dispatch and may be nil.
func (r *MethodRec) Method(h exctable.Hierarchy) (*target.Method, error) {
	p := target.Parts{
		ID:   uuid.UUID(r.ID),
		Name: r.MethodName(),
		Platform: platform.Platform{
			Name:               r.Platform.Name,
			WordSize:           r.Platform.WordSize,
			IntegerRegisters:   r.Platform.IntegerRegisters,
			FloatRegisters:     r.Platform.FloatRegisters,
			CallerIPAdjustment: r.Platform.CallerIPAdjustment,
			ReturnPCOffset:     r.Platform.ReturnPCOffset,
		},
		CodeLength:       r.CodeLength,
		FrameWords:       r.FrameWords,
		Positions:        r.Positions,
		NumDirectCalls:   r.NumDirectCalls,
		NumIndirectCalls: r.NumIndirectCalls,
		ReferenceMaps:    r.ReferenceMaps,
		Dispatch:         exctable.Mode(r.Dispatch),
		FrameDescriptors: r.FrameDescriptors,
	}
	for _, e := range r.Handlers {
		p.Handlers = append(p.Handlers, exctable.Entry{Start: e.Start, Handler: e.Handler, CatchType: ident.Type(e.CatchType)})
	}
	return target.Restore(p, h)
}

// New creates a bundle of the given methods.
func New(methods ...*target.Method) *File {
	f := &File{Version: Version}
	for _, m := range methods {
		f.Methods = append(f.Methods, FromMethod(m))
	}
	return f
}

// Find returns the record of the method named name.
func (f *File) Find(name ident.Method) (*MethodRec, error) {
	for i := range f.Methods {
		if f.Methods[i].MethodName() == name {
			return &f.Methods[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// FindByName returns the first record whose holder and name match,
// ignoring the descriptor.
func (f *File) FindByName(holder, name string) (*MethodRec, error) {
	for i := range f.Methods {
		if f.Methods[i].Holder == holder && f.Methods[i].Name == name {
			return &f.Methods[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrNotFound, holder, name)
}

// Validate checks that every method record has its own ID.
func (f *File) Validate() error {
	seen := make(map[[16]byte]int, len(f.Methods))
	for i := range f.Methods {
		id := f.Methods[i].ID
		if j, dup := seen[id]; dup {
			return fmt.Errorf("%w: records %d and %d share %s", ErrDuplicateID, j, i, uuid.UUID(id))
		}
		seen[id] = i
	}
	return nil
}

// Marshal serializes a bundle to CBOR bytes.
func Marshal(f *File) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(f)
}

// Unmarshal deserializes a bundle from CBOR bytes.
func Unmarshal(data []byte) (*File, error) {
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("bundle: unmarshal: %w", err)
	}
	if f.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, f.Version)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// WriteFile marshals f to path.
func WriteFile(path string, f *File) error {
	data, err := Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadFile reads and unmarshals the bundle at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	f, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}
