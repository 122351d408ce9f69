package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_Digest_Deterministic(t *testing.T) {
	k1, err := NewKey("test", "test", StringValue("k1"))
	assert.NoError(t, err)

	k2, err := NewKey("test", "test", StringValue("k1"))
	assert.NoError(t, err)

	d1, err := k1.Digest()
	assert.NoError(t, err)

	d2, err := k2.Digest()
	assert.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.True(t, k1.Equal(k2))
}

func TestKey_Digest_PartitionIDInRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		k, err := NewKey("test", "test", IntValue(int64(i)))
		assert.NoError(t, err)

		d, err := k.Digest()
		assert.NoError(t, err)

		pid := d.PartitionID()
		assert.GreaterOrEqual(t, pid, 0)
		assert.Less(t, pid, 4096)
	}
}

func TestKey_Equal_DifferentNamespace(t *testing.T) {
	k1, _ := NewKey("ns1", "test", StringValue("k1"))
	k2, _ := NewKey("ns2", "test", StringValue("k1"))

	assert.False(t, k1.Equal(k2))
}

func TestKey_InvalidUserKeyType(t *testing.T) {
	_, err := NewKey("test", "test", ListValue{IntValue(1)})
	assert.Error(t, err)
}
