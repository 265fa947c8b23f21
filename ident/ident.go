// Package ident defines the symbolic method and type identifiers that the
// metadata tables use as opaque keys. Identifiers are plain comparable
// values: two identifiers are the same method (or type) exactly when they
// compare equal with ==.
package ident

import (
	"fmt"

	"github.com/chazu/codemeta/wire"
)

// Method names a method independently of any runtime object.
type Method struct {
	Holder     string // declaring type, e.g. "java/util/HashMap"
	Name       string // e.g. "get"
	Descriptor string // e.g. "(Ljava/lang/Object;)Ljava/lang/Object;"
}

// String returns "Holder.Name" followed by the descriptor, if any.
func (m Method) String() string {
	if m.Descriptor == "" {
		return m.Holder + "." + m.Name
	}
	return m.Holder + "." + m.Name + m.Descriptor
}

// IsZero reports whether m is the zero identifier.
func (m Method) IsZero() bool {
	return m == Method{}
}

// Write serializes m as three u16 length-prefixed strings.
func (m Method) Write(w *wire.Writer) error {
	for _, s := range [...]string{m.Holder, m.Name, m.Descriptor} {
		if err := w.PutPrefixedString(s); err != nil {
			return fmt.Errorf("method %s: %w", m, err)
		}
	}
	return nil
}

// ReadMethod deserializes a Method written by Method.Write.
func ReadMethod(r *wire.Reader) Method {
	return Method{
		Holder:     r.PrefixedString(),
		Name:       r.PrefixedString(),
		Descriptor: r.PrefixedString(),
	}
}

// Type names a runtime type, used as a declared catch type or as the type
// of a thrown exception. The empty Type means "any".
type Type string

// CatchAll is the catch type that accepts every thrown type.
const CatchAll Type = ""

// IsCatchAll reports whether t accepts every thrown type.
func (t Type) IsCatchAll() bool {
	return t == CatchAll
}
