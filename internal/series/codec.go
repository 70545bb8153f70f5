package series

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrCorruptCell marks a cell that cannot be decoded: wrong tag byte,
// truncated payload or malformed msgpack.
var ErrCorruptCell = errors.New("corrupt cell")

// Cell layout: 1 tag byte, 4 byte little endian int32 offset, then either a
// 4 byte little endian float32 (tag 1) or msgpack bytes (tag 2). Counters
// are bare 8 byte big endian int64, no tag.

// EncodeCell packs one point payload into its storage cell.
func EncodeCell(offset int32, v Value) ([]byte, error) {
	switch v.Kind() {
	case FloatKind:
		b := make([]byte, 9)
		b[0] = byte(FloatKind)
		binary.LittleEndian.PutUint32(b[1:5], uint32(offset))
		binary.LittleEndian.PutUint32(b[5:9], math.Float32bits(v.Float()))
		return b, nil
	case DictKind:
		packed, err := msgpack.Marshal(v.Dict())
		if err != nil {
			return nil, fmt.Errorf("encode dict cell: %w", err)
		}
		b := make([]byte, 5, 5+len(packed))
		b[0] = byte(DictKind)
		binary.LittleEndian.PutUint32(b[1:5], uint32(offset))
		return append(b, packed...), nil
	}
	return nil, fmt.Errorf("encode cell: unknown value kind %d", byte(v.Kind()))
}

// DecodeCell unpacks a storage cell, checking the tag against the expected
// series kind.
func DecodeCell(want Kind, b []byte) (int32, Value, error) {
	if len(b) < 5 {
		return 0, Value{}, fmt.Errorf("%w: %d bytes", ErrCorruptCell, len(b))
	}
	if Kind(b[0]) != want {
		return 0, Value{}, fmt.Errorf("%w: tag %d, want %d", ErrCorruptCell, b[0], byte(want))
	}
	offset := int32(binary.LittleEndian.Uint32(b[1:5]))
	switch want {
	case FloatKind:
		if len(b) != 9 {
			return 0, Value{}, fmt.Errorf("%w: float cell has %d bytes", ErrCorruptCell, len(b))
		}
		return offset, Float(math.Float32frombits(binary.LittleEndian.Uint32(b[5:9]))), nil
	case DictKind:
		var m map[string]any
		if err := msgpack.Unmarshal(b[5:], &m); err != nil {
			return 0, Value{}, fmt.Errorf("%w: %v", ErrCorruptCell, err)
		}
		return offset, Dict(m), nil
	}
	return 0, Value{}, fmt.Errorf("%w: unsupported kind %d", ErrCorruptCell, byte(want))
}

// EncodeCounter packs a counter cell.
func EncodeCounter(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// DecodeCounter unpacks a counter cell.
func DecodeCounter(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: counter cell has %d bytes", ErrCorruptCell, len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}
