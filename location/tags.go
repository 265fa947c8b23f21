package location

import "fmt"

// ---------------------------------------------------------------------------
// Frozen tag bytes for the TargetLocation encoding.
//
// IMPORTANT: These tags are FROZEN. Tooling outside this module reads raw
// metadata, so a tag byte must never change meaning. Index-style variants
// reserve a contiguous block of tags whose operand is implied by the tag
// itself, followed by a generic tag (u8 operand) and a wide tag (s32 operand).
// ---------------------------------------------------------------------------

// Tag is the first byte of an encoded location.
type Tag byte

const (
	TagUndefined Tag = 0

	// Immediates: generic form, then implicit operands -2..9.
	TagImmediate          Tag = 1
	tagImmediateImplicit  Tag = 2 // IMMEDIATE_M2 .. IMMEDIATE_9 = 2..13
	tagScalarLiteralFirst Tag = 14

	TagScalarLiteral     Tag = 24
	TagScalarLiteralWide Tag = 25

	tagReferenceLiteralFirst Tag = 26
	TagReferenceLiteral      Tag = 36
	TagReferenceLiteralWide  Tag = 37

	tagIntegerRegisterFirst Tag = 38
	TagIntegerRegister      Tag = 70
	TagIntegerRegisterWide  Tag = 71

	tagFloatingPointRegisterFirst Tag = 72
	TagFloatingPointRegister      Tag = 104
	TagFloatingPointRegisterWide  Tag = 105

	tagParameterStackSlotFirst Tag = 106
	TagParameterStackSlot      Tag = 116
	TagParameterStackSlotWide  Tag = 117

	tagLocalStackSlotFirst Tag = 118
	TagLocalStackSlot      Tag = 148
	TagLocalStackSlotWide  Tag = 149

	TagBlockAddress    Tag = 150
	TagMethodReference Tag = 151

	// tagCount is the number of defined tags.
	tagCount = 152
)

// family describes how one variant maps onto the tag space.
type family struct {
	kind     Kind
	name     string
	implicit Tag   // first implicit-operand tag
	lo, hi   int32 // implicit operand range, inclusive
	generic  Tag
	wide     Tag // zero when the variant has no wide form
}

var families = [...]family{
	{KindImmediate, "IMMEDIATE", tagImmediateImplicit, -2, 9, TagImmediate, 0},
	{KindScalarLiteral, "SCALAR_LITERAL", tagScalarLiteralFirst, 0, 9, TagScalarLiteral, TagScalarLiteralWide},
	{KindReferenceLiteral, "REFERENCE_LITERAL", tagReferenceLiteralFirst, 0, 9, TagReferenceLiteral, TagReferenceLiteralWide},
	{KindIntegerRegister, "INTEGER_REGISTER", tagIntegerRegisterFirst, 0, 31, TagIntegerRegister, TagIntegerRegisterWide},
	{KindFloatingPointRegister, "FLOATING_POINT_REGISTER", tagFloatingPointRegisterFirst, 0, 31, TagFloatingPointRegister, TagFloatingPointRegisterWide},
	{KindParameterStackSlot, "PARAMETER_STACK_SLOT", tagParameterStackSlotFirst, 0, 9, TagParameterStackSlot, TagParameterStackSlotWide},
	{KindLocalStackSlot, "LOCAL_STACK_SLOT", tagLocalStackSlotFirst, 0, 29, TagLocalStackSlot, TagLocalStackSlotWide},
}

// familyFor returns the tag family of an index-style or immediate kind.
func familyFor(k Kind) *family {
	for i := range families {
		if families[i].kind == k {
			return &families[i]
		}
	}
	return nil
}

// implicitTag returns the tag that encodes operand implicitly, if any.
func (f *family) implicitTag(operand int32) (Tag, bool) {
	if operand < f.lo || operand > f.hi {
		return 0, false
	}
	return f.implicit + Tag(operand-f.lo), true
}

// tagForm says how the bytes after a tag are laid out.
type tagForm uint8

const (
	formInvalid  tagForm = iota
	formNone             // no operand (Undefined)
	formImplicit         // operand implied by the tag
	formGeneric          // u8 operand (immediates: kind byte + payload)
	formWide             // s32 operand
	formFixed            // variant-specific payload (block, method)
)

type tagInfo struct {
	kind    Kind
	form    tagForm
	operand int32
	name    string
}

var tagTable [256]tagInfo

func init() {
	// Every tag must fit in one byte.
	if tagCount > 256 {
		panic(fmt.Sprintf("location: %d tags do not fit in a byte", tagCount))
	}

	assign := func(t Tag, info tagInfo) {
		if tagTable[t].form != formInvalid {
			panic(fmt.Sprintf("location: tag %d assigned twice (%s, %s)", t, tagTable[t].name, info.name))
		}
		tagTable[t] = info
	}

	assign(TagUndefined, tagInfo{kind: KindUndefined, form: formNone, name: "UNDEFINED"})
	for i := range families {
		f := &families[i]
		for op := f.lo; op <= f.hi; op++ {
			t, _ := f.implicitTag(op)
			suffix := fmt.Sprintf("_%d", op)
			if op < 0 {
				suffix = fmt.Sprintf("_M%d", -op)
			}
			assign(t, tagInfo{kind: f.kind, form: formImplicit, operand: op, name: f.name + suffix})
		}
		assign(f.generic, tagInfo{kind: f.kind, form: formGeneric, name: f.name})
		if f.wide != 0 {
			assign(f.wide, tagInfo{kind: f.kind, form: formWide, name: f.name + "_WIDE"})
		}
	}
	assign(TagBlockAddress, tagInfo{kind: KindBlockAddress, form: formFixed, name: "BLOCK"})
	assign(TagMethodReference, tagInfo{kind: KindMethodReference, form: formFixed, name: "METHOD"})

	for t := 0; t < tagCount; t++ {
		if tagTable[t].form == formInvalid {
			panic(fmt.Sprintf("location: tag %d is not assigned", t))
		}
	}
}

// String returns the mnemonic of t, e.g. "INTEGER_REGISTER_3".
func (t Tag) String() string {
	if info := tagTable[t]; info.form != formInvalid {
		return info.name
	}
	return fmt.Sprintf("Tag(%d)", byte(t))
}

// Valid reports whether t is a defined tag.
func (t Tag) Valid() bool {
	return tagTable[t].form != formInvalid
}
