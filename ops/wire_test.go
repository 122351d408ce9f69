package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerospike/aerospike-client-go-teachable/internal/buffer"
	"github.com/aerospike/aerospike-client-go-teachable/types"
)

func TestWire_HeaderRoundTrip(t *testing.T) {
	a := buffer.NewArena(msgHeaderSize)
	writeHeader(a, requestHeader{
		Info1:      info1Read,
		Info2:      info2Write,
		Generation: 7,
		Expiration: -1,
		NFields:    3,
		NOps:       2,
	})

	got, size, err := readHeader(a.Bytes())
	require.NoError(t, err)
	assert.Equal(t, msgHeaderSize, size)
	assert.Equal(t, info1Read, got.Info1)
	assert.Equal(t, info2Write, got.Info2)
	assert.Equal(t, uint32(7), got.Generation)
	assert.Equal(t, int32(-1), got.Expiration)
	assert.Equal(t, uint16(3), got.NFields)
	assert.Equal(t, uint16(2), got.NOps)
}

func TestWire_FieldRoundTrip(t *testing.T) {
	a := buffer.NewArena(32)
	writeField(a, fieldNamespace, []byte("test"))

	typ, data, n, err := readField(a.Bytes())
	require.NoError(t, err)
	assert.Equal(t, fieldNamespace, typ)
	assert.Equal(t, "test", string(data))
	assert.Equal(t, a.Len(), n)
}

func TestWire_BinOpRoundTrip(t *testing.T) {
	a := buffer.NewArena(32)
	bin := types.Bin{Name: "score", Value: types.IntValue(99)}

	require.NoError(t, writeBinOp(a, OpWrite, bin))

	opType, got, n, err := readBinOp(a.Bytes(), buffer.Strict)
	require.NoError(t, err)
	assert.Equal(t, a.Len(), n)
	assert.Equal(t, OpWrite, opType)
	assert.Equal(t, bin.Name, got.Name)
	assert.Equal(t, bin.Value, got.Value)
}

func TestWire_ReadOpHasNilPayload(t *testing.T) {
	a := buffer.NewArena(32)
	writeReadOp(a, "score")

	opType, got, n, err := readBinOp(a.Bytes(), buffer.Strict)
	require.NoError(t, err)
	assert.Equal(t, a.Len(), n)
	assert.Equal(t, OpRead, opType)
	assert.Equal(t, "score", got.Name)
	assert.Equal(t, types.NilValue{}, got.Value)
}

func TestWire_WriteKeyFields_WithSendKey(t *testing.T) {
	key, err := types.NewKey("test", "demo", types.StringValue("k1"))
	require.NoError(t, err)

	a := buffer.NewArena(128)
	n, err := writeKeyFields(a, key, true)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	cursor := 0

	for i := 0; i < n; i++ {
		typ, data, consumed, err := readField(a.Bytes()[cursor:])
		require.NoError(t, err)
		cursor += consumed

		if typ == fieldUserKey {
			v, _, err := buffer.DecodeValue(data, buffer.Strict)
			require.NoError(t, err)
			assert.Equal(t, types.StringValue("k1"), v)
		}
	}

	assert.Equal(t, a.Len(), cursor)
}
