// Package beam decodes compiled Erlang BEAM modules into a textual
// disassembly. Decoding is a pure function over an in-memory buffer: no
// goroutines, no I/O, no shared mutable state beyond the static opcode
// table, so any number of modules can be decoded concurrently.
package beam

import (
	"fmt"

	"github.com/relicsec/beamdis/internal/types"
)

// Module is the decode result for one compiled unit. It is immutable once
// built.
type Module struct {
	Fingerprint types.Fingerprint

	Atoms     *AtomTable
	Imports   *ImportTable
	Exports   *ExportTable
	Functions *FunctionTable // nil when the FunT chunk is absent
	Literals  *LiteralTable  // nil when the LitT chunk is absent
	Lines     *LineTable     // nil when the Line chunk is absent

	Header       CodeHeader
	Instructions []Instruction

	Labels *LabelIndex

	// Warnings collects non-fatal inconsistencies found while decoding,
	// such as label references without a matching definition.
	Warnings []string
}

// Decode parses one BEAM module from a fully buffered byte slice. Failures
// are per-module: an error here never carries partial results, and decoding
// the same buffer twice yields structurally identical modules.
func Decode(data []byte) (*Module, error) {
	c, err := parseContainer(data)
	if err != nil {
		return nil, err
	}

	atoms, err := decodeAtomTable(c.atomChunk())
	if err != nil {
		return nil, err
	}

	m := &Module{
		Fingerprint: types.FingerprintOf(data),
		Atoms:       atoms,
	}

	impPayload, _ := c.chunk(chunkImports)
	if m.Imports, err = decodeImportTable(impPayload, atoms); err != nil {
		return nil, err
	}
	expPayload, _ := c.chunk(chunkExports)
	if m.Exports, err = decodeExportTable(expPayload, atoms); err != nil {
		return nil, err
	}
	if payload, ok := c.chunk(chunkFuncs); ok {
		if m.Functions, err = decodeFunctionTable(payload, atoms); err != nil {
			return nil, err
		}
	}
	if payload, ok := c.chunk(chunkLiteral); ok {
		if m.Literals, err = decodeLiteralTable(payload); err != nil {
			return nil, err
		}
	}
	if payload, ok := c.chunk(chunkLine); ok {
		if m.Lines, err = decodeLineTable(payload); err != nil {
			return nil, err
		}
	}

	codePayload, _ := c.chunk(chunkCode)
	if m.Header, m.Instructions, err = decodeCode(codePayload, atoms); err != nil {
		return nil, err
	}

	if err := m.validateRefs(); err != nil {
		return nil, err
	}

	var warnings []string
	m.Labels, warnings = buildLabelIndex(m.Instructions)
	m.Warnings = warnings

	return m, nil
}

// validateRefs checks the table references only the instruction semantics
// reveal: import indices on the call_ext family and literal table indices
// anywhere in the operand tree. Atom references were already checked while
// decoding the code chunk.
func (m *Module) validateRefs() error {
	var check func(op Operand) error
	check = func(op Operand) error {
		switch op.Kind {
		case OperandExtLiteral:
			if m.Literals == nil {
				return fmt.Errorf("%w: literal %d referenced but module has no literal table",
					ErrInvalidReference, op.Val)
			}
			if _, err := m.Literals.Get(int(op.Val)); err != nil {
				return err
			}
		case OperandList, OperandAllocList, OperandTypedReg:
			for _, el := range op.Elems {
				if err := check(el); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, in := range m.Instructions {
		if isExtCall(in.Opcode) && len(in.Operands) > 1 && in.Operands[1].Kind == OperandLiteral {
			if _, err := m.Imports.Get(int(in.Operands[1].Val)); err != nil {
				return fmt.Errorf("%s: %w", in.Name, err)
			}
		}
		for _, op := range in.Operands {
			if err := check(op); err != nil {
				return fmt.Errorf("%s: %w", in.Name, err)
			}
		}
	}
	return nil
}

// Name returns the module's own name: by convention the first atom in the
// atom table. Returns an empty string for an (impossible) empty table.
func (m *Module) Name() string {
	name, err := m.Atoms.Name(1)
	if err != nil {
		return ""
	}
	return name
}

// ImportString renders an import entry as an external reference in
// <module:function/arity> form.
func (m *Module) ImportString(index int) (string, error) {
	imp, err := m.Imports.Get(index)
	if err != nil {
		return "", err
	}
	mod, err := m.Atoms.Name(imp.Module)
	if err != nil {
		return "", err
	}
	fn, err := m.Atoms.Name(imp.Function)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("<%s:%s/%d>", mod, fn, imp.Arity), nil
}

// ExportStrings lists the exported functions as name/arity strings.
func (m *Module) ExportStrings() []string {
	out := make([]string, 0, m.Exports.Count())
	for i := 0; i < m.Exports.Count(); i++ {
		exp, err := m.Exports.Get(i)
		if err != nil {
			continue
		}
		name, err := m.Atoms.Name(exp.Function)
		if err != nil {
			continue
		}
		out = append(out, fmt.Sprintf("%s/%d", name, exp.Arity))
	}
	return out
}

// Disassemble renders the module as text. Emission is a pure function of
// the decoded module and cannot fail.
func (m *Module) Disassemble() string {
	return emit(m)
}
