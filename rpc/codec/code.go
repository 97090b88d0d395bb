package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Code is the constraint for command and result enums.
// Any named integer type with a fixed width qualifies.
type Code interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64
}

// ErrShortMessage is returned when a message ends before a fixed width field
var ErrShortMessage = errors.New("message too short")

// Width returns the number of bytes a code of type T occupies on the wire
func Width[T Code]() int {
	var zero T
	return binary.Size(zero)
}

// AppendCode appends c to b using the width of T (little endian)
func AppendCode[T Code](b []byte, c T) []byte {
	v := uint64(c)
	switch Width[T]() {
	case 1:
		return append(b, byte(v))
	case 2:
		return binary.LittleEndian.AppendUint16(b, uint16(v))
	case 4:
		return binary.LittleEndian.AppendUint32(b, uint32(v))
	default:
		return binary.LittleEndian.AppendUint64(b, v)
	}
}

// ReadCode reads a code of type T from the start of b.
// It returns the code and the number of bytes consumed.
func ReadCode[T Code](b []byte) (T, int, error) {
	w := Width[T]()
	if len(b) < w {
		return 0, 0, fmt.Errorf("%w: need %d bytes for code, have %d", ErrShortMessage, w, len(b))
	}

	var v uint64
	switch w {
	case 1:
		v = uint64(b[0])
	case 2:
		v = uint64(binary.LittleEndian.Uint16(b))
	case 4:
		v = uint64(binary.LittleEndian.Uint32(b))
	default:
		v = binary.LittleEndian.Uint64(b)
	}
	return T(v), w, nil
}
