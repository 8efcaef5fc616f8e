package beam

import (
	"fmt"
	"math/big"
)

// Compact term base tags, carried in the low 3 bits of the first byte.
const (
	tagLiteral = 0 // untagged literal value (arity, count, index)
	tagInteger = 1
	tagAtom    = 2
	tagXReg    = 3
	tagYReg    = 4
	tagLabel   = 5
	tagChar    = 6
)

// Extended tags occupy the whole first byte when the low 3 bits are all set.
const (
	tagExtList      = 0x17 // operand list (jump tables)
	tagExtFloatReg  = 0x27
	tagExtAllocList = 0x37
	tagExtLiteral   = 0x47 // literal table reference
	tagExtTypedReg  = 0x57 // register with type hint (OTP 25+)
)

// OperandKind discriminates the Operand union.
type OperandKind int

const (
	// OperandLiteral is an untagged small value: an arity, a count, a table
	// index. Always non-negative.
	OperandLiteral OperandKind = iota

	// OperandInteger is an inline integer literal. May be negative and may
	// exceed 64 bits, in which case Big is set instead of Val.
	OperandInteger

	// OperandAtom is a 1-based index into the atom table.
	OperandAtom

	// OperandNil is the reserved atom index 0.
	OperandNil

	// OperandXReg and OperandYReg are virtual machine register slots.
	OperandXReg
	OperandYReg

	// OperandLabel is a label number, defined elsewhere in the stream by a
	// label instruction. Forward references are legal.
	OperandLabel

	// OperandChar is a raw character code point.
	OperandChar

	// OperandFloatReg is a floating-point register slot.
	OperandFloatReg

	// OperandExtLiteral is an index into the literal table.
	OperandExtLiteral

	// OperandList is a nested operand sequence (select_val jump tables and
	// friends).
	OperandList

	// OperandAllocList is a nested sequence of (kind, amount) pairs stored
	// flattened in Elems.
	OperandAllocList

	// OperandTypedReg wraps a register operand (Elems[0]) with a type table
	// index (Val).
	OperandTypedReg
)

// Operand is one decoded instruction argument. The compound kinds own their
// nested operands; the nesting is strictly structural, never cyclic.
type Operand struct {
	Kind  OperandKind
	Val   int64
	Big   *big.Int  // set only when an integer exceeds 64 bits
	Elems []Operand // list, alloc list and typed register payloads
}

// readTerm decodes exactly one operand from the cursor. The number of bytes
// consumed is reflected by the cursor position.
func readTerm(r *reader) (Operand, error) {
	b0, err := r.readByte()
	if err != nil {
		return Operand{}, err
	}

	if b0&0x07 == 0x07 {
		return readExtTerm(r, b0)
	}

	tag := b0 & 0x07

	// Single-byte form: the value fits in the high 4 bits.
	if b0&(1<<3) == 0 {
		return makeOperand(tag, int64(b0>>4), nil)
	}

	// Two-byte form: 11 bits, high 3 bits of b0 then a continuation byte.
	if b0&(1<<4) == 0 {
		b1, err := r.readByte()
		if err != nil {
			return Operand{}, err
		}
		return makeOperand(tag, int64(b0&0xE0)<<3|int64(b1), nil)
	}

	// Multi-byte form: (b0>>5)+2 bytes of big-endian value, or for very
	// large values a nested literal carrying the byte count minus 9.
	n := int(b0 >> 5)
	if n == 7 {
		sz, err := readTerm(r)
		if err != nil {
			return Operand{}, err
		}
		if sz.Kind != OperandLiteral {
			return Operand{}, fmt.Errorf("%w: bad length term in multi-byte operand", ErrInvalidOperandTag)
		}
		n = int(sz.Val) + 9
	} else {
		n += 2
	}
	raw, err := r.readBytes(n)
	if err != nil {
		return Operand{}, err
	}
	return makeBytesOperand(tag, raw)
}

// makeOperand builds an operand from a base tag and an inline value.
func makeOperand(tag byte, val int64, bigVal *big.Int) (Operand, error) {
	switch tag {
	case tagLiteral:
		return Operand{Kind: OperandLiteral, Val: val, Big: bigVal}, nil
	case tagInteger:
		return Operand{Kind: OperandInteger, Val: val, Big: bigVal}, nil
	case tagAtom:
		if val == 0 && bigVal == nil {
			return Operand{Kind: OperandNil}, nil
		}
		return Operand{Kind: OperandAtom, Val: val, Big: bigVal}, nil
	case tagXReg:
		return Operand{Kind: OperandXReg, Val: val}, nil
	case tagYReg:
		return Operand{Kind: OperandYReg, Val: val}, nil
	case tagLabel:
		return Operand{Kind: OperandLabel, Val: val}, nil
	case tagChar:
		return Operand{Kind: OperandChar, Val: val}, nil
	}
	return Operand{}, fmt.Errorf("%w: 0x%02x", ErrInvalidOperandTag, tag)
}

// makeBytesOperand builds an operand from the multi-byte value form. Integer
// literals are signed (two's complement over the accumulated bytes); all
// other tags carry indices and are unsigned.
func makeBytesOperand(tag byte, raw []byte) (Operand, error) {
	v := new(big.Int).SetBytes(raw)
	if tag == tagInteger && len(raw) > 0 && raw[0]&0x80 != 0 {
		// Two's complement: subtract 2^(8*len).
		shift := new(big.Int).Lsh(big.NewInt(1), uint(8*len(raw)))
		v.Sub(v, shift)
	}
	if v.IsInt64() {
		return makeOperand(tag, v.Int64(), nil)
	}
	return makeOperand(tag, 0, v)
}

// readExtTerm decodes the extended (full-byte tag) operand forms.
func readExtTerm(r *reader, tag byte) (Operand, error) {
	switch tag {
	case tagExtList:
		count, err := readCount(r)
		if err != nil {
			return Operand{}, err
		}
		elems := make([]Operand, 0, count)
		for i := 0; i < count; i++ {
			el, err := readTerm(r)
			if err != nil {
				return Operand{}, err
			}
			elems = append(elems, el)
		}
		return Operand{Kind: OperandList, Elems: elems}, nil

	case tagExtAllocList:
		count, err := readCount(r)
		if err != nil {
			return Operand{}, err
		}
		// Each pair is at least two bytes.
		elems := make([]Operand, 0, r.capHint(2*count, 1))
		for i := 0; i < count; i++ {
			key, err := readTerm(r)
			if err != nil {
				return Operand{}, err
			}
			val, err := readTerm(r)
			if err != nil {
				return Operand{}, err
			}
			elems = append(elems, key, val)
		}
		return Operand{Kind: OperandAllocList, Elems: elems}, nil

	case tagExtFloatReg:
		idx, err := readTerm(r)
		if err != nil {
			return Operand{}, err
		}
		if idx.Kind != OperandLiteral {
			return Operand{}, fmt.Errorf("%w: float register index is not a literal", ErrInvalidOperandTag)
		}
		return Operand{Kind: OperandFloatReg, Val: idx.Val}, nil

	case tagExtLiteral:
		idx, err := readTerm(r)
		if err != nil {
			return Operand{}, err
		}
		if idx.Kind != OperandLiteral {
			return Operand{}, fmt.Errorf("%w: literal reference index is not a literal", ErrInvalidOperandTag)
		}
		return Operand{Kind: OperandExtLiteral, Val: idx.Val}, nil

	case tagExtTypedReg:
		reg, err := readTerm(r)
		if err != nil {
			return Operand{}, err
		}
		if reg.Kind != OperandXReg && reg.Kind != OperandYReg {
			return Operand{}, fmt.Errorf("%w: typed register wraps a non-register", ErrInvalidOperandTag)
		}
		typ, err := readTerm(r)
		if err != nil {
			return Operand{}, err
		}
		if typ.Kind != OperandLiteral {
			return Operand{}, fmt.Errorf("%w: typed register type index is not a literal", ErrInvalidOperandTag)
		}
		return Operand{Kind: OperandTypedReg, Val: typ.Val, Elems: []Operand{reg}}, nil
	}

	return Operand{}, fmt.Errorf("%w: 0x%02x", ErrInvalidOperandTag, tag)
}

// readCount reads the element count of a compound operand. Every element
// occupies at least one byte, so a count past the end of the stream is
// malformed and rejected here before any allocation sized from it.
func readCount(r *reader) (int, error) {
	op, err := readTerm(r)
	if err != nil {
		return 0, err
	}
	if op.Kind != OperandLiteral || op.Val < 0 || op.Big != nil {
		return 0, fmt.Errorf("%w: compound operand count is not a literal", ErrInvalidOperandTag)
	}
	if op.Val > int64(r.remaining()) {
		return 0, fmt.Errorf("%w: compound operand count %d exceeds stream", ErrInvalidOperandTag, op.Val)
	}
	return int(op.Val), nil
}
