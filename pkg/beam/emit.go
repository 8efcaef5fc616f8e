package beam

import (
	"fmt"
	"math/big"
	"strings"
)

// hexThreshold is the magnitude at which integers switch from decimal to
// hexadecimal rendering.
const hexThreshold = 1 << 16

// emit renders a decoded module into the textual disassembly grammar. It
// never validates; every reference it resolves was checked during decode,
// and anything still unresolvable renders as a bare token.
func emit(m *Module) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "; Module: %s\n", m.Name())
	fmt.Fprintf(&sb, "; Fingerprint: %s\n", m.Fingerprint)
	for _, exp := range m.ExportStrings() {
		fmt.Fprintf(&sb, "; Export: %s\n", exp)
	}

	for _, in := range m.Instructions {
		switch {
		case in.IsLabel() && len(in.Operands) == 1:
			fmt.Fprintf(&sb, "label%d:\n", in.Operands[0].Val)
		case in.IsFuncInfo() && len(in.Operands) == 3:
			sb.WriteByte('\n')
			fmt.Fprintf(&sb, "; Function <%s:%s/%d>\n",
				m.atomOrNil(in.Operands[0]),
				m.atomOrNil(in.Operands[1]),
				in.Operands[2].Val)
			sb.WriteString(emitInstruction(m, in))
			sb.WriteByte('\n')
		case in.IsLine() && len(in.Operands) == 1:
			if loc := emitLine(m, in.Operands[0]); loc != "" {
				sb.WriteString(loc)
				sb.WriteByte('\n')
			}
		default:
			sb.WriteString(emitInstruction(m, in))
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// emitInstruction renders one instruction line: a tab, the mnemonic, then
// whitespace-separated operands.
func emitInstruction(m *Module, in Instruction) string {
	var sb strings.Builder
	sb.WriteByte('\t')
	sb.WriteString(in.Name)
	for i, op := range in.Operands {
		sb.WriteByte(' ')
		if i == 1 && isExtCall(in.Opcode) && op.Kind == OperandLiteral {
			if ref, err := m.ImportString(int(op.Val)); err == nil {
				sb.WriteString(ref)
				continue
			}
		}
		if isJumpTable(in.Opcode) && op.Kind == OperandList {
			sb.WriteString(emitPairs(m, op.Elems))
			continue
		}
		sb.WriteString(emitOperand(m, op))
	}
	return sb.String()
}

// isExtCall reports whether an opcode's second operand is an import table
// index (the call_ext family).
func isExtCall(opcode byte) bool {
	return opcode == 7 || opcode == 8 || opcode == 78
}

// isJumpTable reports whether an opcode carries a list of paired entries:
// select_val and select_tuple_arity switch on value => label pairs, and
// update_record lists index => value pairs.
func isJumpTable(opcode byte) bool {
	return opcode == 59 || opcode == 60 || opcode == 181
}

// emitOperand renders one operand in its per-kind textual form.
func emitOperand(m *Module, op Operand) string {
	switch op.Kind {
	case OperandLiteral:
		if op.Big != nil {
			return formatBigInt(op.Big)
		}
		return fmt.Sprintf("%d", op.Val)
	case OperandInteger, OperandChar:
		if op.Big != nil {
			return formatBigInt(op.Big)
		}
		return formatInt(op.Val)
	case OperandAtom:
		return m.atomOrNil(op)
	case OperandNil:
		return "nil"
	case OperandXReg:
		return fmt.Sprintf("X%d", op.Val)
	case OperandYReg:
		return fmt.Sprintf("Y%d", op.Val)
	case OperandFloatReg:
		return fmt.Sprintf("FR%d", op.Val)
	case OperandLabel:
		return fmt.Sprintf("label%d", op.Val)
	case OperandExtLiteral:
		if m.Literals != nil {
			if term, err := m.Literals.Get(int(op.Val)); err == nil {
				return "`" + term.String() + "`"
			}
		}
		return fmt.Sprintf("`%d`", op.Val)
	case OperandList:
		parts := make([]string, len(op.Elems))
		for i, el := range op.Elems {
			parts[i] = emitOperand(m, el)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case OperandAllocList:
		return emitPairs(m, op.Elems)
	case OperandTypedReg:
		if len(op.Elems) == 1 {
			return fmt.Sprintf("%s<%d>", emitOperand(m, op.Elems[0]), op.Val)
		}
	}
	return "?"
}

// emitLine resolves a line-instruction operand through the line table and
// renders the source location as a comment. Modules with the table stripped,
// and the reserved no-location entry, render nothing.
func emitLine(m *Module, op Operand) string {
	if m.Lines == nil || op.Kind != OperandLiteral {
		return ""
	}
	ref, err := m.Lines.Get(int(op.Val))
	if err != nil || ref.Line == 0 {
		return ""
	}
	if ref.Filename != "" {
		return fmt.Sprintf("\t; file %s line %d", ref.Filename, ref.Line)
	}
	return fmt.Sprintf("\t; line %d", ref.Line)
}

// emitPairs renders a flat element slice two by two as key => value entries.
// An odd trailing element renders bare.
func emitPairs(m *Module, elems []Operand) string {
	var parts []string
	for i := 0; i < len(elems); i += 2 {
		if i+1 < len(elems) {
			parts = append(parts, emitOperand(m, elems[i])+" => "+emitOperand(m, elems[i+1]))
		} else {
			parts = append(parts, emitOperand(m, elems[i]))
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// atomOrNil renders an atom operand, single-quoted, with the reserved
// index 0 as the bare token nil.
func (m *Module) atomOrNil(op Operand) string {
	if op.Kind == OperandNil {
		return "nil"
	}
	name, err := m.Atoms.Name(int(op.Val))
	if err != nil {
		return "nil"
	}
	return "'" + name + "'"
}

// formatInt renders a signed integer: decimal while small, hex once the
// magnitude stops being readable at a glance.
func formatInt(v int64) string {
	if v >= -hexThreshold && v < hexThreshold {
		return fmt.Sprintf("%d", v)
	}
	if v < 0 {
		return fmt.Sprintf("-0x%x", -v)
	}
	return fmt.Sprintf("0x%x", v)
}

// formatBigInt renders an arbitrary-precision integer the same way.
func formatBigInt(v *big.Int) string {
	if v == nil {
		return "0"
	}
	if v.IsInt64() {
		return formatInt(v.Int64())
	}
	if v.Sign() < 0 {
		return "-0x" + new(big.Int).Neg(v).Text(16)
	}
	return "0x" + v.Text(16)
}
