package beam

import (
	"encoding/binary"
	"fmt"
)

// Container header magics: an IFF-style "FOR1" form holding a "BEAM" body.
const (
	magicForm = 0x464f5231 // "FOR1"
	magicBeam = 0x4245414d // "BEAM"
)

// Chunk names the decoder interprets. Anything else is preserved in the
// container map but left alone.
const (
	chunkAtom    = "Atom"
	chunkAtomU8  = "AtU8"
	chunkCode    = "Code"
	chunkString  = "StrT"
	chunkImports = "ImpT"
	chunkExports = "ExpT"
	chunkFuncs   = "FunT"
	chunkLiteral = "LitT"
	chunkLine    = "Line"
)

// container is the parsed outer layer of a module: a mapping from chunk name
// to payload bytes. Payloads alias the input buffer.
type container struct {
	chunks map[string][]byte
}

// parseContainer validates the FOR1/BEAM header and splits the buffer into
// named chunks. Chunk payloads are padded to a 4-byte boundary; the declared
// length excludes the padding.
func parseContainer(data []byte) (*container, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: %d bytes is too short for a header", ErrMalformedContainer, len(data))
	}
	if binary.BigEndian.Uint32(data[0:4]) != magicForm {
		return nil, fmt.Errorf("%w: bad form magic", ErrMalformedContainer)
	}
	formLen := int(binary.BigEndian.Uint32(data[4:8]))
	if binary.BigEndian.Uint32(data[8:12]) != magicBeam {
		return nil, fmt.Errorf("%w: bad beam magic", ErrMalformedContainer)
	}
	// The form length counts everything after the length field itself. Some
	// writers round it; never trust it beyond the buffer.
	end := 8 + formLen
	if end > len(data) {
		return nil, fmt.Errorf("%w: declared length %d exceeds buffer", ErrMalformedContainer, formLen)
	}

	c := &container{chunks: make(map[string][]byte)}
	pos := 12
	for pos+8 <= end {
		name := string(data[pos : pos+4])
		size := int(binary.BigEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			return nil, fmt.Errorf("%w: chunk %q runs past end of buffer", ErrMalformedContainer, name)
		}
		c.chunks[name] = data[body : body+size]

		// Advance over the payload and its 4-byte alignment padding.
		pos = body + (size+3)&^3
	}

	for _, name := range []string{chunkCode, chunkImports, chunkExports} {
		if _, ok := c.chunks[name]; !ok {
			return nil, fmt.Errorf("%w: missing mandatory chunk %q", ErrMalformedContainer, name)
		}
	}
	if _, ok := c.chunks[chunkAtom]; !ok {
		if _, ok := c.chunks[chunkAtomU8]; !ok {
			return nil, fmt.Errorf("%w: missing atom chunk", ErrMalformedContainer)
		}
	}
	return c, nil
}

// atomChunk returns the atom chunk payload, preferring the UTF-8 variant
// when a module carries both.
func (c *container) atomChunk() []byte {
	if b, ok := c.chunks[chunkAtomU8]; ok {
		return b
	}
	return c.chunks[chunkAtom]
}

func (c *container) chunk(name string) ([]byte, bool) {
	b, ok := c.chunks[name]
	return b, ok
}
