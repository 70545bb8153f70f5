package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloatCellRoundTrip(t *testing.T) {
	b, err := EncodeCell(-3600, Float(23.5))
	require.NoError(t, err)
	require.Len(t, b, 9)
	assert.Equal(t, byte(1), b[0])

	off, v, err := DecodeCell(FloatKind, b)
	require.NoError(t, err)
	assert.Equal(t, int32(-3600), off)
	assert.Equal(t, float32(23.5), v.Float())
}

func TestDictCellRoundTrip(t *testing.T) {
	in := map[string]any{"state": "running", "level": 3.5}
	b, err := EncodeCell(7200, Dict(in))
	require.NoError(t, err)
	assert.Equal(t, byte(2), b[0])

	off, v, err := DecodeCell(DictKind, b)
	require.NoError(t, err)
	assert.Equal(t, int32(7200), off)
	assert.Equal(t, "running", v.Dict()["state"])
	assert.Equal(t, 3.5, v.Dict()["level"])
}

func TestDecodeCellCorrupt(t *testing.T) {
	good, err := EncodeCell(0, Float(1))
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":          nil,
		"short":          {1, 0, 0},
		"truncated":      good[:8],
		"trailing bytes": append(append([]byte{}, good...), 0xff),
		"bad msgpack":    {2, 0, 0, 0, 0, 0xc1},
	}
	for name, b := range cases {
		want := FloatKind
		if len(b) > 0 && b[0] == 2 {
			want = DictKind
		}
		_, _, err := DecodeCell(want, b)
		assert.ErrorIs(t, err, ErrCorruptCell, name)
	}
}

func TestDecodeCellTagMismatch(t *testing.T) {
	b, err := EncodeCell(0, Float(1))
	require.NoError(t, err)
	_, _, err = DecodeCell(DictKind, b)
	assert.ErrorIs(t, err, ErrCorruptCell)
}

func TestCounterCell(t *testing.T) {
	b := EncodeCounter(-42)
	require.Len(t, b, 8)
	v, err := DecodeCounter(b)
	require.NoError(t, err)
	assert.Equal(t, int64(-42), v)

	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 3}, EncodeCounter(3))

	_, err = DecodeCounter([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorruptCell)
}
