package beam

import "fmt"

// AtomTable maps 1-based indices to atom names. Index 0 is reserved and
// denotes "no atom"; it never resolves to a name.
type AtomTable struct {
	names []string
}

// Count returns the number of atoms in the table.
func (t *AtomTable) Count() int {
	return len(t.names)
}

// Name resolves a 1-based atom index.
func (t *AtomTable) Name(index int) (string, error) {
	if index <= 0 || index > len(t.names) {
		return "", fmt.Errorf("%w: atom index %d of %d", ErrInvalidReference, index, len(t.names))
	}
	return t.names[index-1], nil
}

// decodeAtomTable parses an Atom or AtU8 chunk. Both use a signed entry
// count followed by length-prefixed names; a negative count selects the
// long-form encoding where each length is a compact term instead of a
// single byte.
func decodeAtomTable(payload []byte) (*AtomTable, error) {
	r := newReader(payload)
	count, err := r.readInt32()
	if err != nil {
		return nil, fmt.Errorf("%w: atom chunk: %v", ErrMalformedContainer, err)
	}

	longForm := false
	if count < 0 {
		count = -count
		longForm = true
	}

	t := &AtomTable{names: make([]string, 0, r.capHint(int(count), 1))}
	for i := int32(0); i < count; i++ {
		var length int
		if longForm {
			op, err := readTerm(r)
			if err != nil {
				return nil, fmt.Errorf("%w: atom %d length: %v", ErrMalformedContainer, i+1, err)
			}
			if op.Kind != OperandLiteral || op.Val < 0 {
				return nil, fmt.Errorf("%w: atom %d has a non-literal length", ErrMalformedContainer, i+1)
			}
			length = int(op.Val)
		} else {
			b, err := r.readByte()
			if err != nil {
				return nil, fmt.Errorf("%w: atom %d length: %v", ErrMalformedContainer, i+1, err)
			}
			length = int(b)
		}
		name, err := r.readBytes(length)
		if err != nil {
			return nil, fmt.Errorf("%w: atom %d: %v", ErrMalformedContainer, i+1, err)
		}
		t.names = append(t.names, string(name))
	}
	return t, nil
}

// ImportEntry identifies an external call target by atom indices and arity.
type ImportEntry struct {
	Module   int
	Function int
	Arity    int
}

// ImportTable holds the module's external call targets.
type ImportTable struct {
	entries []ImportEntry
}

// Count returns the number of imports.
func (t *ImportTable) Count() int {
	return len(t.entries)
}

// Get returns the import at a 0-based index.
func (t *ImportTable) Get(index int) (ImportEntry, error) {
	if index < 0 || index >= len(t.entries) {
		return ImportEntry{}, fmt.Errorf("%w: import index %d of %d", ErrInvalidReference, index, len(t.entries))
	}
	return t.entries[index], nil
}

// decodeImportTable parses an ImpT chunk of (module, function, arity)
// triples. The atom indices must already resolve in the atom table.
func decodeImportTable(payload []byte, atoms *AtomTable) (*ImportTable, error) {
	r := newReader(payload)
	count, err := r.readUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: import chunk: %v", ErrMalformedContainer, err)
	}

	t := &ImportTable{entries: make([]ImportEntry, 0, r.capHint(int(count), 12))}
	for i := uint32(0); i < count; i++ {
		mod, err := r.readUint32()
		if err != nil {
			return nil, fmt.Errorf("%w: import %d: %v", ErrMalformedContainer, i, err)
		}
		fn, err := r.readUint32()
		if err != nil {
			return nil, fmt.Errorf("%w: import %d: %v", ErrMalformedContainer, i, err)
		}
		arity, err := r.readUint32()
		if err != nil {
			return nil, fmt.Errorf("%w: import %d: %v", ErrMalformedContainer, i, err)
		}
		if _, err := atoms.Name(int(mod)); err != nil {
			return nil, fmt.Errorf("import %d module: %w", i, err)
		}
		if _, err := atoms.Name(int(fn)); err != nil {
			return nil, fmt.Errorf("import %d function: %w", i, err)
		}
		t.entries = append(t.entries, ImportEntry{
			Module:   int(mod),
			Function: int(fn),
			Arity:    int(arity),
		})
	}
	return t, nil
}

// ExportEntry identifies a publicly reachable function.
type ExportEntry struct {
	Function int // atom index
	Arity    int
	Label    int // entry label number
}

// ExportTable holds the module's exported functions.
type ExportTable struct {
	entries []ExportEntry
}

// Count returns the number of exports.
func (t *ExportTable) Count() int {
	return len(t.entries)
}

// Get returns the export at a 0-based index.
func (t *ExportTable) Get(index int) (ExportEntry, error) {
	if index < 0 || index >= len(t.entries) {
		return ExportEntry{}, fmt.Errorf("%w: export index %d of %d", ErrInvalidReference, index, len(t.entries))
	}
	return t.entries[index], nil
}

// decodeExportTable parses an ExpT chunk of (function, arity, label)
// triples.
func decodeExportTable(payload []byte, atoms *AtomTable) (*ExportTable, error) {
	r := newReader(payload)
	count, err := r.readUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: export chunk: %v", ErrMalformedContainer, err)
	}

	t := &ExportTable{entries: make([]ExportEntry, 0, r.capHint(int(count), 12))}
	for i := uint32(0); i < count; i++ {
		fn, err := r.readUint32()
		if err != nil {
			return nil, fmt.Errorf("%w: export %d: %v", ErrMalformedContainer, i, err)
		}
		arity, err := r.readUint32()
		if err != nil {
			return nil, fmt.Errorf("%w: export %d: %v", ErrMalformedContainer, i, err)
		}
		label, err := r.readUint32()
		if err != nil {
			return nil, fmt.Errorf("%w: export %d: %v", ErrMalformedContainer, i, err)
		}
		if _, err := atoms.Name(int(fn)); err != nil {
			return nil, fmt.Errorf("export %d function: %w", i, err)
		}
		t.entries = append(t.entries, ExportEntry{
			Function: int(fn),
			Arity:    int(arity),
			Label:    int(label),
		})
	}
	return t, nil
}

// FunctionEntry describes a local (lambda) function from the FunT chunk.
type FunctionEntry struct {
	Function int // atom index
	Arity    int
	Offset   int // entry label number
	Index    int
	NumFree  int
	OldUniq  int
}

// FunctionTable holds the module's local lambda table. The chunk is
// optional; modules without funs simply omit it.
type FunctionTable struct {
	entries []FunctionEntry
}

// Count returns the number of local functions.
func (t *FunctionTable) Count() int {
	return len(t.entries)
}

// Get returns the function entry at a 0-based index.
func (t *FunctionTable) Get(index int) (FunctionEntry, error) {
	if index < 0 || index >= len(t.entries) {
		return FunctionEntry{}, fmt.Errorf("%w: function index %d of %d", ErrInvalidReference, index, len(t.entries))
	}
	return t.entries[index], nil
}

func decodeFunctionTable(payload []byte, atoms *AtomTable) (*FunctionTable, error) {
	r := newReader(payload)
	count, err := r.readUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: function chunk: %v", ErrMalformedContainer, err)
	}

	t := &FunctionTable{entries: make([]FunctionEntry, 0, r.capHint(int(count), 24))}
	for i := uint32(0); i < count; i++ {
		var words [6]uint32
		for j := range words {
			words[j], err = r.readUint32()
			if err != nil {
				return nil, fmt.Errorf("%w: function %d: %v", ErrMalformedContainer, i, err)
			}
		}
		if _, err := atoms.Name(int(words[0])); err != nil {
			return nil, fmt.Errorf("function %d name: %w", i, err)
		}
		t.entries = append(t.entries, FunctionEntry{
			Function: int(words[0]),
			Arity:    int(words[1]),
			Offset:   int(words[2]),
			Index:    int(words[3]),
			NumFree:  int(words[4]),
			OldUniq:  int(words[5]),
		})
	}
	return t, nil
}

// LineRef locates one line-info entry: a filename (empty for the module
// source itself) and a line number.
type LineRef struct {
	Filename string
	Line     int64
}

// LineTable maps line-instruction operand indices to source locations. The
// Line chunk is optional; compilers may strip it.
type LineTable struct {
	refs      []LineRef
	filenames []string
}

// Count returns the number of line references.
func (t *LineTable) Count() int {
	return len(t.refs)
}

// Get returns the line reference at an index. Index 0 is the reserved
// "no location" entry.
func (t *LineTable) Get(index int) (LineRef, error) {
	if index < 0 || index >= len(t.refs) {
		return LineRef{}, fmt.Errorf("%w: line index %d of %d", ErrInvalidReference, index, len(t.refs))
	}
	return t.refs[index], nil
}

// decodeLineTable parses a Line chunk: a five-word header, a run of compact
// terms encoding (file, line) pairs, then the filename strings. An atom term
// switches the current file; an integer term appends a reference to it.
func decodeLineTable(payload []byte) (*LineTable, error) {
	r := newReader(payload)
	var words [5]uint32
	for j := range words {
		w, err := r.readUint32()
		if err != nil {
			return nil, fmt.Errorf("%w: line chunk header: %v", ErrMalformedContainer, err)
		}
		words[j] = w
	}
	numRefs := int(words[3])
	numFilenames := int(words[4])

	t := &LineTable{refs: []LineRef{{}}} // entry 0: no location
	fileOf := []int{0}                   // file slot for each ref, resolved below
	fileIndex := 0
	for seen := 0; seen < numRefs; {
		op, err := readTerm(r)
		if err != nil {
			return nil, fmt.Errorf("%w: line ref %d: %v", ErrMalformedContainer, seen, err)
		}
		switch op.Kind {
		case OperandInteger, OperandLiteral:
			t.refs = append(t.refs, LineRef{Line: op.Val})
			fileOf = append(fileOf, fileIndex)
			seen++
		case OperandAtom, OperandNil:
			// An atom term switches the current file slot (1-based).
			fileIndex = int(op.Val)
			if fileIndex > numFilenames {
				return nil, fmt.Errorf("%w: line file index %d of %d", ErrInvalidReference, fileIndex, numFilenames)
			}
		default:
			return nil, fmt.Errorf("%w: unexpected term in line chunk", ErrMalformedContainer)
		}
	}

	t.filenames = make([]string, 0, r.capHint(numFilenames, 2))
	for i := 0; i < numFilenames; i++ {
		length, err := r.readUint16()
		if err != nil {
			return nil, fmt.Errorf("%w: line filename %d: %v", ErrMalformedContainer, i, err)
		}
		name, err := r.readBytes(int(length))
		if err != nil {
			return nil, fmt.Errorf("%w: line filename %d: %v", ErrMalformedContainer, i, err)
		}
		t.filenames = append(t.filenames, string(name))
	}

	for i := range t.refs {
		if fi := fileOf[i]; fi > 0 && fi <= len(t.filenames) {
			t.refs[i].Filename = t.filenames[fi-1]
		}
	}
	return t, nil
}
