package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerospike/aerospike-client-go-teachable/types"
)

func roundTrip(t *testing.T, v types.Value) types.Value {
	a := NewArena(64)
	require.NoError(t, EncodeValue(a, v))

	decoded, n, err := DecodeValue(a.Bytes(), Strict)
	require.NoError(t, err)
	assert.Equal(t, a.Len(), n)

	return decoded
}

func TestCodec_ScalarRoundTrip(t *testing.T) {
	cases := []types.Value{
		types.NilValue{},
		types.BoolValue(true),
		types.BoolValue(false),
		types.IntValue(-999),
		types.UintValue(999),
		types.FloatValue(3.14159),
		types.StringValue("Hello, World!"),
		types.BlobValue([]byte{1, 2, 3, 0xff}),
	}

	for _, c := range cases {
		got := roundTrip(t, c)
		assert.Equal(t, c, got)
	}
}

func TestCodec_ListRoundTrip(t *testing.T) {
	list := types.ListValue{
		types.IntValue(1),
		types.StringValue("two"),
		types.ListValue{types.IntValue(3)},
	}

	got := roundTrip(t, list)
	assert.Equal(t, list, got)
}

func TestCodec_ListRoundTrip_WideIntegers(t *testing.T) {
	// msgpack's interface{} decoding sizes the Go type to the encoded
	// magnitude, so these values exercise int16/int32/int64/uint64 wire
	// widths rather than the single-byte fixnum range a small IntValue
	// like IntValue(1) decodes as.
	list := types.ListValue{
		types.IntValue(1000),
		types.IntValue(100000),
		types.IntValue(-100000),
		types.UintValue(1 << 40),
	}

	got := roundTrip(t, list)
	assert.Equal(t, list, got)
}

func TestCodec_MapRoundTrip_PreservesOrder(t *testing.T) {
	m := types.MapValue{
		Ordered: true,
		Entries: []types.MapEntry{
			{Key: types.StringValue("a"), Value: types.IntValue(1)},
			{Key: types.StringValue("b"), Value: types.IntValue(2)},
		},
	}

	got := roundTrip(t, m)
	gotMap, ok := got.(types.MapValue)
	require.True(t, ok)
	assert.True(t, gotMap.Ordered)
	assert.Equal(t, m.Entries, gotMap.Entries)
}

func TestCodec_DecodeTruncated(t *testing.T) {
	_, _, err := DecodeValue([]byte{1, 2}, Strict)
	assert.Error(t, err)
}

func TestCodec_UnknownParticleType_Strict(t *testing.T) {
	a := NewArena(16)
	a.WriteByte(250)
	a.WriteUint32(2)
	a.WriteBytes([]byte{0xAA, 0xBB})

	_, _, err := DecodeValue(a.Bytes(), Strict)
	assert.Error(t, err)
}

func TestCodec_WritePayload_ReadPayloadRoundTrip(t *testing.T) {
	a := NewArena(16)
	v := types.IntValue(42)

	require.NoError(t, WritePayload(a, v))

	got, err := ReadPayload(types.ParticleInt, a.Bytes(), Strict)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestCodec_UnknownParticleType_Permissive(t *testing.T) {
	a := NewArena(16)
	a.WriteByte(250)
	a.WriteUint32(2)
	a.WriteBytes([]byte{0xAA, 0xBB})

	v, _, err := DecodeValue(a.Bytes(), BePermissive)
	assert.NoError(t, err)
	assert.Equal(t, types.BlobValue{0xAA, 0xBB}, v)
}
