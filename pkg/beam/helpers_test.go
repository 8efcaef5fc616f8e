package beam

import "encoding/binary"

// Test helpers that assemble synthetic BEAM buffers byte by byte.

// u32 big-endian.
func be32(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

// encSmall encodes a single-byte compact term: tag plus a value below 16.
func encSmall(tag byte, val byte) byte {
	return tag | val<<4
}

// encMedium encodes the two-byte compact term form for values below 2048.
func encMedium(tag byte, val int) []byte {
	return []byte{tag | 1<<3 | byte(val>>8)<<5, byte(val)}
}

// encBytes encodes the multi-byte compact term form from big-endian value
// bytes. Nine or more bytes switch to the nested-length encoding.
func encBytes(tag byte, raw []byte) []byte {
	n := len(raw)
	if n < 9 {
		return append([]byte{tag | 3<<3 | byte(n-2)<<5}, raw...)
	}
	out := []byte{tag | 0xF8, encSmall(tagLiteral, byte(n-9))}
	return append(out, raw...)
}

// chunk assembles one named chunk with its 4-byte alignment padding.
func chunk(name string, payload []byte) []byte {
	out := append([]byte(name), be32(uint32(len(payload)))...)
	out = append(out, payload...)
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out
}

// buildContainer wraps chunks in a FOR1/BEAM header.
func buildContainer(chunks ...[]byte) []byte {
	var body []byte
	for _, c := range chunks {
		body = append(body, c...)
	}
	out := append([]byte("FOR1"), be32(uint32(len(body)+4))...)
	out = append(out, []byte("BEAM")...)
	return append(out, body...)
}

// atomPayload builds a short-form atom chunk payload.
func atomPayload(names ...string) []byte {
	out := be32(uint32(len(names)))
	for _, n := range names {
		out = append(out, byte(len(n)))
		out = append(out, n...)
	}
	return out
}

// triplePayload builds an ImpT or ExpT payload from u32 triples.
func triplePayload(triples ...[3]uint32) []byte {
	out := be32(uint32(len(triples)))
	for _, t := range triples {
		out = append(out, be32(t[0])...)
		out = append(out, be32(t[1])...)
		out = append(out, be32(t[2])...)
	}
	return out
}

// codePayload wraps instruction bytes in a 16-byte code subheader.
func codePayload(labelCount, functionCount uint32, code []byte) []byte {
	out := be32(16)
	out = append(out, be32(0)...)   // instruction set version
	out = append(out, be32(182)...) // max opcode
	out = append(out, be32(labelCount)...)
	out = append(out, be32(functionCount)...)
	return append(out, code...)
}

// minimalModule builds a well-formed module named m exporting f/0, with the
// instruction sequence func_info, label 2, move, return.
func minimalModule() []byte {
	code := []byte{
		2, encSmall(tagAtom, 1), encSmall(tagAtom, 2), encSmall(tagLiteral, 0), // func_info 'm' 'f' 0
		1, encSmall(tagLiteral, 2), // label 2
		64, encSmall(tagXReg, 0), encSmall(tagXReg, 1), // move X0 X1
		19, // return
	}
	return buildContainer(
		chunk("AtU8", atomPayload("m", "f")),
		chunk("Code", codePayload(2, 1, code)),
		chunk("ImpT", triplePayload()),
		chunk("ExpT", triplePayload([3]uint32{2, 0, 2})),
	)
}
