package beam

import "errors"

var (
	// ErrMalformedContainer is returned when the outer chunk container is
	// unusable: bad magic, a chunk running past the end of the buffer, or a
	// missing mandatory chunk.
	ErrMalformedContainer = errors.New("malformed container")

	// ErrInvalidReference is returned when a table entry or operand points
	// outside an auxiliary table, or at the reserved atom index 0 where a
	// real atom is required.
	ErrInvalidReference = errors.New("invalid table reference")

	// ErrUnknownOpcode is returned when the code chunk uses an opcode absent
	// from the opcode table. The operand arity is unknowable at that point,
	// so the rest of the stream cannot be decoded.
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrInvalidOperandTag is returned when an operand tag byte matches no
	// known compact-term encoding. The consumed length cannot be determined,
	// so decoding of the module stops.
	ErrInvalidOperandTag = errors.New("invalid operand tag")

	// ErrStreamDesync is returned when instruction decoding does not consume
	// exactly the declared length of the code chunk.
	ErrStreamDesync = errors.New("code stream desynchronized")
)
