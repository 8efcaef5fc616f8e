package beam

import (
	"errors"
	"fmt"
)

// Instruction is one decoded generic instruction: a mnemonic and exactly
// the number of operands the opcode table declares for it.
type Instruction struct {
	Opcode   byte
	Name     string
	Operands []Operand
}

// IsLabel reports whether this is the label-defining instruction.
func (in Instruction) IsLabel() bool {
	return in.Opcode == opLabel
}

// IsFuncInfo reports whether this is the function boundary marker.
func (in Instruction) IsFuncInfo() bool {
	return in.Opcode == opFuncInfo
}

// IsLine reports whether this is the source-location marker.
func (in Instruction) IsLine() bool {
	return in.Opcode == opLine
}

// CodeHeader carries the code chunk's subheader words.
type CodeHeader struct {
	Version       int
	MaxOpcode     int
	LabelCount    int
	FunctionCount int
}

// readInstruction decodes one instruction at the cursor: an opcode byte,
// then exactly arity compact terms.
func readInstruction(r *reader, atoms *AtomTable) (Instruction, error) {
	opcode, err := r.readByte()
	if err != nil {
		return Instruction{}, err
	}
	info, err := OpLookup(opcode)
	if err != nil {
		return Instruction{}, err
	}

	in := Instruction{Opcode: opcode, Name: info.Name}
	if info.Arity > 0 {
		in.Operands = make([]Operand, 0, info.Arity)
	}
	for i := 0; i < info.Arity; i++ {
		op, err := readTerm(r)
		if err != nil {
			return Instruction{}, fmt.Errorf("%s operand %d: %w", info.Name, i, err)
		}
		if err := checkOperand(op, atoms); err != nil {
			return Instruction{}, fmt.Errorf("%s operand %d: %w", info.Name, i, err)
		}
		in.Operands = append(in.Operands, op)
	}
	return in, nil
}

// checkOperand validates table references, recursing into compound
// operands. Atom index 0 decodes to Nil and is always legal; anything past
// the end of the atom table is not.
func checkOperand(op Operand, atoms *AtomTable) error {
	switch op.Kind {
	case OperandAtom:
		if _, err := atoms.Name(int(op.Val)); err != nil {
			return err
		}
	case OperandList, OperandAllocList, OperandTypedReg:
		for _, el := range op.Elems {
			if err := checkOperand(el, atoms); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeCode parses the Code chunk: a subheader, then instructions until
// exactly the end of the payload. Consuming more or less than the declared
// length means the decoder lost the instruction boundary somewhere, so the
// whole module is rejected.
func decodeCode(payload []byte, atoms *AtomTable) (CodeHeader, []Instruction, error) {
	r := newReader(payload)

	subSize, err := r.readUint32()
	if err != nil {
		return CodeHeader{}, nil, fmt.Errorf("%w: code chunk header: %v", ErrMalformedContainer, err)
	}
	if subSize < 16 || int(subSize) > r.remaining() {
		return CodeHeader{}, nil, fmt.Errorf("%w: code subheader size %d", ErrMalformedContainer, subSize)
	}
	var words [4]uint32
	for j := range words {
		words[j], err = r.readUint32()
		if err != nil {
			return CodeHeader{}, nil, fmt.Errorf("%w: code chunk header: %v", ErrMalformedContainer, err)
		}
	}
	// Forward compatibility: skip subheader words this decoder predates.
	if err := r.skip(int(subSize) - 16); err != nil {
		return CodeHeader{}, nil, fmt.Errorf("%w: code chunk header: %v", ErrMalformedContainer, err)
	}
	hdr := CodeHeader{
		Version:       int(words[0]),
		MaxOpcode:     int(words[1]),
		LabelCount:    int(words[2]),
		FunctionCount: int(words[3]),
	}

	var insts []Instruction
	for r.remaining() > 0 {
		in, err := readInstruction(r, atoms)
		if err != nil {
			if errors.Is(err, ErrUnknownOpcode) ||
				errors.Is(err, ErrInvalidOperandTag) ||
				errors.Is(err, ErrInvalidReference) {
				return hdr, nil, err
			}
			// Anything else is the cursor running off the end of the
			// chunk: the stream and the decoder disagree about where
			// instructions start.
			return hdr, nil, fmt.Errorf("%w: %v", ErrStreamDesync, err)
		}
		insts = append(insts, in)
	}
	return hdr, insts, nil
}
