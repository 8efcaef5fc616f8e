package beam

import (
	"fmt"
	"sort"
)

// LabelIndex records where each label is defined in the instruction stream
// and which label numbers are referenced by operands. It exists purely for
// display: the emitter uses it to render definition lines, and undefined
// references become warnings, never errors.
type LabelIndex struct {
	defs map[int64]int     // label number -> defining instruction position
	refs map[int64][]int   // label number -> referencing instruction positions
}

// buildLabelIndex makes a single forward pass over the instruction
// sequence. It returns the index plus a warning for every referenced label
// that has no definition anywhere in the stream.
func buildLabelIndex(insts []Instruction) (*LabelIndex, []string) {
	idx := &LabelIndex{
		defs: make(map[int64]int),
		refs: make(map[int64][]int),
	}

	for pos, in := range insts {
		if in.IsLabel() && len(in.Operands) == 1 {
			idx.defs[in.Operands[0].Val] = pos
			continue
		}
		for _, op := range in.Operands {
			collectLabelRefs(op, pos, idx.refs)
		}
	}

	var warnings []string
	missing := make([]int64, 0)
	for n := range idx.refs {
		if _, ok := idx.defs[n]; !ok {
			missing = append(missing, n)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	for _, n := range missing {
		warnings = append(warnings, fmt.Sprintf("label%d is referenced but never defined", n))
	}
	return idx, warnings
}

// collectLabelRefs records label operands, descending into compound
// operands so jump-table targets are seen too.
func collectLabelRefs(op Operand, pos int, refs map[int64][]int) {
	switch op.Kind {
	case OperandLabel:
		refs[op.Val] = append(refs[op.Val], pos)
	case OperandList, OperandAllocList, OperandTypedReg:
		for _, el := range op.Elems {
			collectLabelRefs(el, pos, refs)
		}
	}
}

// Definition returns the instruction position defining a label number.
func (idx *LabelIndex) Definition(label int64) (int, bool) {
	pos, ok := idx.defs[label]
	return pos, ok
}

// References returns the instruction positions referencing a label number.
func (idx *LabelIndex) References(label int64) []int {
	return idx.refs[label]
}

// Defined reports the number of defined labels.
func (idx *LabelIndex) Defined() int {
	return len(idx.defs)
}
