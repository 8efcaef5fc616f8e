package beam

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// External Term Format tags that can occur inside a literal chunk.
const (
	etfVersion = 131

	etfNewFloat     = 70
	etfSmallInteger = 97
	etfInteger      = 98
	etfFloat        = 99 // old string form
	etfAtom         = 100
	etfSmallTuple   = 104
	etfLargeTuple   = 105
	etfNil          = 106
	etfString       = 107
	etfList         = 108
	etfBinary       = 109
	etfSmallBig     = 110
	etfLargeBig     = 111
	etfExport       = 113
	etfSmallAtom    = 115
	etfMap          = 116
	etfAtomUtf8     = 118
	etfSmallAtomU8  = 119
)

// TermKind discriminates the Term union.
type TermKind int

const (
	// TermInt is an integer of any magnitude.
	TermInt TermKind = iota

	// TermFloat is a floating-point number.
	TermFloat

	// TermAtom is an atom, stored by name (literal terms carry the name
	// inline, not an atom table index).
	TermAtom

	// TermNil is the empty list.
	TermNil

	// TermString is a byte-list string.
	TermString

	// TermList is a list; Improper marks a non-nil tail stored as the final
	// element.
	TermList

	// TermTuple is a tuple.
	TermTuple

	// TermMap stores its pairs flattened as key, value, key, value...
	TermMap

	// TermBinary is a binary or bitstring payload.
	TermBinary

	// TermExport is a fun m:f/a reference; Elems holds module, function
	// and arity terms.
	TermExport
)

// Term is one decoded literal value. The structure is recursive for the
// compound kinds and owned top-down; there are no cycles.
type Term struct {
	Kind     TermKind
	Int      *big.Int
	Float    float64
	Atom     string
	Bytes    []byte
	Elems    []Term
	Improper bool
}

// String renders the term the way the emitter quotes it inside a literal
// reference.
func (t Term) String() string {
	switch t.Kind {
	case TermInt:
		return formatBigInt(t.Int)
	case TermFloat:
		return strconv.FormatFloat(t.Float, 'g', -1, 64)
	case TermAtom:
		return "'" + t.Atom + "'"
	case TermNil:
		return "[]"
	case TermString:
		return quoteString(t.Bytes)
	case TermBinary:
		return quoteString(t.Bytes)
	case TermList:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, el := range t.Elems {
			if i > 0 {
				if t.Improper && i == len(t.Elems)-1 {
					sb.WriteString(" | ")
				} else {
					sb.WriteString(", ")
				}
			}
			sb.WriteString(el.String())
		}
		sb.WriteByte(']')
		return sb.String()
	case TermTuple:
		parts := make([]string, len(t.Elems))
		for i, el := range t.Elems {
			parts[i] = el.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case TermMap:
		var sb strings.Builder
		sb.WriteByte('{')
		for i := 0; i+1 < len(t.Elems); i += 2 {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(t.Elems[i].String())
			sb.WriteString(" => ")
			sb.WriteString(t.Elems[i+1].String())
		}
		sb.WriteByte('}')
		return sb.String()
	case TermExport:
		if len(t.Elems) == 3 {
			return fmt.Sprintf("fun %s:%s/%s",
				t.Elems[0].String(), t.Elems[1].String(), t.Elems[2].String())
		}
	}
	return "?"
}

// quoteString renders bytes as a double-quoted string, hex-escaping
// anything that would break the one-line output format.
func quoteString(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range b {
		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c < 0x20 || c > 0x7e:
			fmt.Fprintf(&sb, `\x%02x`, c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// LiteralTable maps indices to decoded literal terms.
type LiteralTable struct {
	terms []Term
}

// Count returns the number of literals.
func (t *LiteralTable) Count() int {
	return len(t.terms)
}

// Get returns the literal at a 0-based index.
func (t *LiteralTable) Get(index int) (Term, error) {
	if index < 0 || index >= len(t.terms) {
		return Term{}, fmt.Errorf("%w: literal index %d of %d", ErrInvalidReference, index, len(t.terms))
	}
	return t.terms[index], nil
}

// decodeLiteralTable parses a LitT chunk: a declared uncompressed size
// followed by a zlib stream of length-prefixed external terms.
func decodeLiteralTable(payload []byte) (*LiteralTable, error) {
	r := newReader(payload)
	uncompressed, err := r.readUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: literal chunk: %v", ErrMalformedContainer, err)
	}

	zr, err := zlib.NewReader(bytes.NewReader(payload[4:]))
	if err != nil {
		return nil, fmt.Errorf("%w: literal chunk: %v", ErrMalformedContainer, err)
	}
	defer zr.Close()

	body, err := io.ReadAll(io.LimitReader(zr, int64(uncompressed)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: literal chunk: %v", ErrMalformedContainer, err)
	}
	if len(body) != int(uncompressed) {
		return nil, fmt.Errorf("%w: literal chunk: uncompressed %d bytes, declared %d",
			ErrMalformedContainer, len(body), uncompressed)
	}

	br := newReader(body)
	count, err := br.readUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: literal chunk: %v", ErrMalformedContainer, err)
	}

	t := &LiteralTable{terms: make([]Term, 0, br.capHint(int(count), 4))}
	for i := uint32(0); i < count; i++ {
		size, err := br.readUint32()
		if err != nil {
			return nil, fmt.Errorf("%w: literal %d: %v", ErrMalformedContainer, i, err)
		}
		raw, err := br.readBytes(int(size))
		if err != nil {
			return nil, fmt.Errorf("%w: literal %d: %v", ErrMalformedContainer, i, err)
		}
		term, err := parseExtTermBuffer(raw)
		if err != nil {
			return nil, fmt.Errorf("literal %d: %w", i, err)
		}
		t.terms = append(t.terms, term)
	}
	return t, nil
}

// parseExtTermBuffer decodes one version-marked external term from its own
// length-delimited buffer.
func parseExtTermBuffer(raw []byte) (Term, error) {
	r := newReader(raw)
	marker, err := r.readByte()
	if err != nil {
		return Term{}, fmt.Errorf("%w: empty literal", ErrMalformedContainer)
	}
	if marker != etfVersion {
		return Term{}, fmt.Errorf("%w: literal version marker %d", ErrMalformedContainer, marker)
	}
	return parseExtTerm(r)
}

// parseExtTerm decodes one tag-prefixed external term.
func parseExtTerm(r *reader) (Term, error) {
	tag, err := r.readByte()
	if err != nil {
		return Term{}, err
	}

	switch tag {
	case etfSmallInteger:
		b, err := r.readByte()
		if err != nil {
			return Term{}, err
		}
		return Term{Kind: TermInt, Int: big.NewInt(int64(b))}, nil

	case etfInteger:
		v, err := r.readInt32()
		if err != nil {
			return Term{}, err
		}
		return Term{Kind: TermInt, Int: big.NewInt(int64(v))}, nil

	case etfSmallBig, etfLargeBig:
		var n int
		if tag == etfSmallBig {
			b, err := r.readByte()
			if err != nil {
				return Term{}, err
			}
			n = int(b)
		} else {
			v, err := r.readUint32()
			if err != nil {
				return Term{}, err
			}
			n = int(v)
		}
		sign, err := r.readByte()
		if err != nil {
			return Term{}, err
		}
		raw, err := r.readBytes(n)
		if err != nil {
			return Term{}, err
		}
		// Magnitude bytes are little-endian.
		be := make([]byte, n)
		for i, b := range raw {
			be[n-1-i] = b
		}
		v := new(big.Int).SetBytes(be)
		if sign == 1 {
			v.Neg(v)
		}
		return Term{Kind: TermInt, Int: v}, nil

	case etfNewFloat:
		raw, err := r.readBytes(8)
		if err != nil {
			return Term{}, err
		}
		bits := uint64(raw[0])<<56 | uint64(raw[1])<<48 | uint64(raw[2])<<40 | uint64(raw[3])<<32 |
			uint64(raw[4])<<24 | uint64(raw[5])<<16 | uint64(raw[6])<<8 | uint64(raw[7])
		return Term{Kind: TermFloat, Float: math.Float64frombits(bits)}, nil

	case etfFloat:
		raw, err := r.readBytes(31)
		if err != nil {
			return Term{}, err
		}
		s := strings.TrimRight(string(raw), "\x00")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Term{}, fmt.Errorf("%w: float literal %q", ErrMalformedContainer, s)
		}
		return Term{Kind: TermFloat, Float: f}, nil

	case etfAtom, etfAtomUtf8:
		length, err := r.readUint16()
		if err != nil {
			return Term{}, err
		}
		name, err := r.readBytes(int(length))
		if err != nil {
			return Term{}, err
		}
		return Term{Kind: TermAtom, Atom: string(name)}, nil

	case etfSmallAtom, etfSmallAtomU8:
		length, err := r.readByte()
		if err != nil {
			return Term{}, err
		}
		name, err := r.readBytes(int(length))
		if err != nil {
			return Term{}, err
		}
		return Term{Kind: TermAtom, Atom: string(name)}, nil

	case etfNil:
		return Term{Kind: TermNil}, nil

	case etfString:
		length, err := r.readUint16()
		if err != nil {
			return Term{}, err
		}
		raw, err := r.readBytes(int(length))
		if err != nil {
			return Term{}, err
		}
		return Term{Kind: TermString, Bytes: append([]byte(nil), raw...)}, nil

	case etfBinary:
		length, err := r.readUint32()
		if err != nil {
			return Term{}, err
		}
		raw, err := r.readBytes(int(length))
		if err != nil {
			return Term{}, err
		}
		return Term{Kind: TermBinary, Bytes: append([]byte(nil), raw...)}, nil

	case etfSmallTuple, etfLargeTuple:
		var arity int
		if tag == etfSmallTuple {
			b, err := r.readByte()
			if err != nil {
				return Term{}, err
			}
			arity = int(b)
		} else {
			v, err := r.readUint32()
			if err != nil {
				return Term{}, err
			}
			arity = int(v)
		}
		elems := make([]Term, 0, arity)
		for i := 0; i < arity; i++ {
			el, err := parseExtTerm(r)
			if err != nil {
				return Term{}, err
			}
			elems = append(elems, el)
		}
		return Term{Kind: TermTuple, Elems: elems}, nil

	case etfList:
		length, err := r.readUint32()
		if err != nil {
			return Term{}, err
		}
		elems := make([]Term, 0, length)
		for i := uint32(0); i < length; i++ {
			el, err := parseExtTerm(r)
			if err != nil {
				return Term{}, err
			}
			elems = append(elems, el)
		}
		tail, err := parseExtTerm(r)
		if err != nil {
			return Term{}, err
		}
		if tail.Kind == TermNil {
			return Term{Kind: TermList, Elems: elems}, nil
		}
		return Term{Kind: TermList, Elems: append(elems, tail), Improper: true}, nil

	case etfMap:
		arity, err := r.readUint32()
		if err != nil {
			return Term{}, err
		}
		elems := make([]Term, 0, 2*arity)
		for i := uint32(0); i < arity; i++ {
			key, err := parseExtTerm(r)
			if err != nil {
				return Term{}, err
			}
			val, err := parseExtTerm(r)
			if err != nil {
				return Term{}, err
			}
			elems = append(elems, key, val)
		}
		return Term{Kind: TermMap, Elems: elems}, nil

	case etfExport:
		var elems []Term
		for i := 0; i < 3; i++ {
			el, err := parseExtTerm(r)
			if err != nil {
				return Term{}, err
			}
			elems = append(elems, el)
		}
		return Term{Kind: TermExport, Elems: elems}, nil
	}

	return Term{}, fmt.Errorf("%w: external term tag %d", ErrInvalidOperandTag, tag)
}
