// Package partition implements the Partition Map component (C4 support):
// a per-namespace table of 4096 partitions, each holding the ordered list
// of nodes replicating it, swapped atomically as the tend loop refreshes
// it. Grounded on the teacher's swap-on-read config-snapshot pattern (an
// atomic.Value holding an immutable value, replaced wholesale rather than
// mutated); here each slot holds a replica list instead of a config.
package partition

import (
	"sync/atomic"

	"github.com/twmb/murmur3"
)

// Count is the fixed number of partitions per namespace (§3.2, §6).
const Count = 4096

// ReplicaPolicy selects which replica of a partition a command targets
// (§4.5 Policy.ReplicaPolicy).
type ReplicaPolicy int

const (
	// Master always targets the partition's master replica.
	Master ReplicaPolicy = iota
	// MasterProles prefers the master for writes and spreads reads across
	// master and prole replicas.
	MasterProles
	// Random picks uniformly among all known replicas.
	Random
	// Sequence walks replicas in a fixed round-robin order per caller,
	// distributing load deterministically.
	Sequence
)

// Replicas is the ordered node-name list for one partition: index 0 is
// the master, the rest are prole replicas in server-assigned order.
type Replicas []string

func (r Replicas) Master() (string, bool) {
	if len(r) == 0 {
		return "", false
	}

	return r[0], true
}

// replicaSlot is one partition's swap-on-read replica list: readers never
// block a tend-loop writer and never see a partially-written slice, since
// the whole Replicas value is replaced atomically rather than mutated.
type replicaSlot struct {
	v atomic.Value
}

func (s *replicaSlot) Load() Replicas {
	v, _ := s.v.Load().(Replicas)
	return v
}

func (s *replicaSlot) Store(r Replicas) {
	s.v.Store(r)
}

// Table is one namespace's partition map: Count independently swappable
// replica slots, so refreshing one partition never blocks readers of
// another.
type Table struct {
	namespace string
	slots     [Count]replicaSlot
}

// NewTable returns an empty table; every slot starts with a nil Replicas
// until the first tend cycle populates it.
func NewTable(namespace string) *Table {
	return &Table{namespace: namespace}
}

func (t *Table) Namespace() string {
	return t.namespace
}

// Get returns the current replica list for partitionID.
func (t *Table) Get(partitionID int) Replicas {
	return t.slots[partitionID].Load()
}

// Set atomically replaces the replica list for partitionID, called by the
// tend loop once per cycle with the list rebuilt from the nodes'
// "replicas-master"/"replicas-prole" reports (§4.4).
func (t *Table) Set(partitionID int, replicas Replicas) {
	t.slots[partitionID].Store(replicas)
}

// SequenceCursor hands out round-robin offsets for ReplicaPolicy Sequence,
// one counter shared across every caller that wants its reads to cycle
// through a partition's replicas (§4.5).
type SequenceCursor struct {
	next atomic.Int64
}

func newSequenceCursor() *SequenceCursor {
	return &SequenceCursor{}
}

func (c *SequenceCursor) take(n int) int {
	if n <= 0 {
		return 0
	}

	v := c.next.Add(1) - 1

	return int(v % int64(n))
}

// LoadBucket maps a partition/node pair into one of n client-side
// load-metric buckets. This is purely a reporting aid (the caller's own
// dashboards, not routing decisions) -- partition routing is always
// digest-driven per the wire protocol, so bucketing uses a secondary,
// unrelated hash rather than the partition ID itself.
func LoadBucket(node string, partitionID int, n int) int {
	if n <= 0 {
		return 0
	}

	h := murmur3.New64()
	h.Write([]byte(node))

	var b [4]byte
	b[0] = byte(partitionID)
	b[1] = byte(partitionID >> 8)
	b[2] = byte(partitionID >> 16)
	b[3] = byte(partitionID >> 24)
	h.Write(b[:])

	return int(h.Sum64() % uint64(n))
}
