// Package exctable maps a faulting code offset (and optionally the type of
// the thrown exception) to the offset of its handler.
//
// Two table shapes are supported:
//
//   - ModeRanges: the code is partitioned into half-open ranges
//     [start, nextStart), the last one extending to the end of the code. Each
//     range names a handler offset; a handler <= 0 means the range has none.
//     Entries sharing a start form a group tried in order against the thrown
//     type.
//   - ModeSites: each entry names the exact offset of an instruction that can
//     throw, a handler and a catch type. The first matching entry in table
//     order wins. Offsets are matched as given, for top and caller frames
//     alike.
//
// A Table is immutable after New and safe for concurrent use.
package exctable

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/codemeta/ident"
)

var (
	ErrUnsorted     = errors.New("exception ranges are not sorted by start")
	ErrUnknownMode  = errors.New("unknown exception table mode")
	ErrIndexInvalid = errors.New("exception entry index out of range")
)

// Mode selects how entries are interpreted.
type Mode uint8

const (
	ModeRanges Mode = iota
	ModeSites
)

func (m Mode) String() string {
	switch m {
	case ModeRanges:
		return "ranges"
	case ModeSites:
		return "sites"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "ranges", "":
		return ModeRanges, nil
	case "sites":
		return ModeSites, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Entry is one row of the table. In ModeRanges Start is the first offset of
// the range; in ModeSites it is the exact throw offset.
type Entry struct {
	Start     uint32
	Handler   int32
	CatchType ident.Type // CatchAll accepts everything
}

// HasHandler reports whether the entry names a handler.
func (e Entry) HasHandler() bool {
	return e.Handler > 0
}

// Hierarchy answers subtype questions for typed dispatch.
type Hierarchy interface {
	AssignableTo(thrown, catchType ident.Type) bool
}

// Supertypes is a Hierarchy given as a child -> parent map.
type Supertypes map[ident.Type]ident.Type

// AssignableTo walks the parent chain of thrown looking for catchType.
func (s Supertypes) AssignableTo(thrown, catchType ident.Type) bool {
	for seen := 0; seen <= len(s); seen++ {
		if thrown == catchType {
			return true
		}
		parent, ok := s[thrown]
		if !ok {
			return false
		}
		thrown = parent
	}
	return false // cycle
}

// Option adjusts a Table at construction.
type Option func(*Table)

// WithCallerAdjustment sets the amount added to an offset taken from a frame
// that is not the top frame, so that a return address lands inside the
// range of its call instruction. ModeSites tables ignore it.
func WithCallerAdjustment(n int32) Option {
	return func(t *Table) { t.callerAdjust = n }
}

// WithCodeStart sets the base added to handler offsets in lookup results.
func WithCodeStart(base uint32) Option {
	return func(t *Table) { t.codeStart = base }
}

// Table is an exception table for one compiled method.
type Table struct {
	mode         Mode
	starts       []uint32
	handlers     []int32
	catchTypes   []ident.Type
	codeLength   uint32
	hierarchy    Hierarchy
	callerAdjust int32
	codeStart    uint32
}

// New builds a table from entries. In ModeRanges the entries must already be
// sorted by start; that is the only check. A nil Hierarchy makes catch types
// match only themselves.
func New(entries []Entry, codeLength uint32, mode Mode, h Hierarchy, opts ...Option) (*Table, error) {
	switch mode {
	case ModeRanges:
		for i := 1; i < len(entries); i++ {
			if entries[i].Start < entries[i-1].Start {
				return nil, fmt.Errorf("%w: entry %d starts at %d after %d", ErrUnsorted, i, entries[i].Start, entries[i-1].Start)
			}
		}
	case ModeSites:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, mode)
	}

	t := &Table{
		mode:       mode,
		starts:     make([]uint32, len(entries)),
		handlers:   make([]int32, len(entries)),
		catchTypes: make([]ident.Type, len(entries)),
		codeLength: codeLength,
		hierarchy:  h,
	}
	for i, e := range entries {
		t.starts[i] = e.Start
		t.handlers[i] = e.Handler
		t.catchTypes[i] = e.CatchType
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// SortEntries orders entries by start, keeping the relative order of entries
// with equal starts.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Start < entries[j].Start })
}

// Mode returns the table's dispatch mode.
func (t *Table) Mode() Mode {
	if t == nil {
		return ModeRanges
	}
	return t.mode
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.starts)
}

// CodeLength returns the length of the code the table covers.
func (t *Table) CodeLength() uint32 {
	if t == nil {
		return 0
	}
	return t.codeLength
}

// EntryAt returns entry i.
func (t *Table) EntryAt(i int) (Entry, error) {
	if i < 0 || i >= t.Len() {
		return Entry{}, fmt.Errorf("%w: %d (have %d)", ErrIndexInvalid, i, t.Len())
	}
	return Entry{Start: t.starts[i], Handler: t.handlers[i], CatchType: t.catchTypes[i]}, nil
}

// Entries returns a copy of all entries in table order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, t.Len())
	for i := range out {
		out[i], _ = t.EntryAt(i)
	}
	return out
}

// RangeEnd returns the exclusive end of entry i: the next larger start, or
// the code length for the last range. In ModeSites an entry covers exactly
// one offset.
func (t *Table) RangeEnd(i int) (uint32, error) {
	if i < 0 || i >= t.Len() {
		return 0, fmt.Errorf("%w: %d (have %d)", ErrIndexInvalid, i, t.Len())
	}
	if t.mode == ModeSites {
		return t.starts[i] + 1, nil
	}
	for j := i + 1; j < len(t.starts); j++ {
		if t.starts[j] > t.starts[i] {
			return t.starts[j], nil
		}
	}
	return t.codeLength, nil
}

// Lookup returns the handler address for an exception raised at offset.
// In ModeRanges, when isTopFrame is false, offset is a return address and the
// caller adjustment is applied first. An empty thrown type asks by position
// only.
func (t *Table) Lookup(offset uint32, isTopFrame bool, thrown ident.Type) (uint32, bool) {
	if t.Len() == 0 {
		return 0, false
	}
	pos := int64(offset)
	if !isTopFrame && t.mode == ModeRanges {
		pos += int64(t.callerAdjust)
	}
	if pos < 0 {
		return 0, false
	}

	var i int
	var ok bool
	if t.mode == ModeSites {
		i, ok = t.findSite(uint32(pos), thrown)
	} else {
		i, ok = t.findRange(uint32(pos), thrown)
	}
	if !ok || t.handlers[i] <= 0 {
		return 0, false
	}
	return t.codeStart + uint32(t.handlers[i]), true
}

func (t *Table) findRange(pos uint32, thrown ident.Type) (int, bool) {
	last := -1
	for i := len(t.starts) - 1; i >= 0; i-- {
		if t.starts[i] <= pos {
			last = i
			break
		}
	}
	if last < 0 {
		return 0, false
	}
	first := last
	for first > 0 && t.starts[first-1] == t.starts[last] {
		first--
	}
	for i := first; i <= last; i++ {
		if t.accepts(t.catchTypes[i], thrown) {
			return i, true
		}
	}
	return 0, false
}

func (t *Table) findSite(pos uint32, thrown ident.Type) (int, bool) {
	for i, s := range t.starts {
		if s == pos && t.accepts(t.catchTypes[i], thrown) {
			return i, true
		}
	}
	return 0, false
}

func (t *Table) accepts(catchType, thrown ident.Type) bool {
	if catchType.IsCatchAll() || thrown.IsCatchAll() {
		return true
	}
	if t.hierarchy == nil {
		return thrown == catchType
	}
	return t.hierarchy.AssignableTo(thrown, catchType)
}

// CallerAdjustment returns the adjustment applied to non-top-frame offsets.
func (t *Table) CallerAdjustment() int32 {
	if t == nil {
		return 0
	}
	return t.callerAdjust
}
