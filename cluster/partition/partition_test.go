package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_SetGet(t *testing.T) {
	tbl := NewTable("test")

	assert.Nil(t, tbl.Get(42))

	tbl.Set(42, Replicas{"n1", "n2", "n3"})

	got := tbl.Get(42)
	require.Len(t, got, 3)
	assert.Equal(t, "n1", got[0])
}

func TestSelect_WriteAlwaysTargetsMaster(t *testing.T) {
	replicas := Replicas{"master", "prole1", "prole2"}

	for i := 0; i < 10; i++ {
		got, err := Select(replicas, Random, true, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "master", got)
	}
}

func TestSelect_MasterPolicy(t *testing.T) {
	replicas := Replicas{"master", "prole1"}

	got, err := Select(replicas, Master, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "master", got)
}

func TestSelect_SequenceRoundRobins(t *testing.T) {
	replicas := Replicas{"a", "b", "c"}
	cursor := NewSequenceCursor()

	seen := make([]string, 3)
	for i := range seen {
		got, err := Select(replicas, Sequence, false, cursor, nil)
		require.NoError(t, err)
		seen[i] = got
	}

	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestSelect_ExcludesInactiveNodes(t *testing.T) {
	replicas := Replicas{"master", "prole1"}

	isInactive := func(n string) bool { return n == "master" }

	_, err := Select(replicas, Master, false, nil, isInactive)
	assert.Error(t, err)

	got, err := Select(replicas, Random, false, nil, isInactive)
	require.NoError(t, err)
	assert.Equal(t, "prole1", got)
}

func TestSelect_EmptyReplicasErrors(t *testing.T) {
	_, err := Select(nil, Master, false, nil, nil)
	assert.Error(t, err)
}
