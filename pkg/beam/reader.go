package beam

import (
	"encoding/binary"
	"fmt"
)

// reader wraps a byte slice with a position cursor. All multi-byte integers
// in the BEAM format are big-endian.
type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

// capHint clamps an untrusted entry count to what the remaining bytes could
// actually hold, given a minimum per-entry size. Slices sized from chunk
// headers use this so a hostile count cannot drive allocation.
func (r *reader) capHint(count, entrySize int) int {
	if max := r.remaining() / entrySize; count > max {
		return max
	}
	if count < 0 {
		return 0
	}
	return count
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("unexpected EOF at offset %d", r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// readBytes returns a view of the next n bytes. Callers that retain the
// result beyond the lifetime of the source buffer must copy it.
func (r *reader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, fmt.Errorf("unexpected EOF: need %d bytes at offset %d", n, r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) readUint16() (uint16, error) {
	b, err := r.readBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) readUint32() (uint32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) readInt32() (int32, error) {
	v, err := r.readUint32()
	return int32(v), err
}

func (r *reader) skip(n int) error {
	if n < 0 || r.pos+n > len(r.data) {
		return fmt.Errorf("unexpected EOF: skip %d bytes at offset %d", n, r.pos)
	}
	r.pos += n
	return nil
}
