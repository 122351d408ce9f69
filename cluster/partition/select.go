package partition

import (
	"math/rand"

	"github.com/aerospike/aerospike-client-go-teachable/errs"
)

// Select picks one node name from replicas according to policy (§4.5). A
// nil or empty replicas list is reported as ErrNoAvailableNode so the
// command engine can decide whether to retry after a tend refresh. Writes
// and the Master policy only ever target replicas[0], the partition's
// master; when it is inactive they fail with ErrNoAvailableNode.
func Select(replicas Replicas, policy ReplicaPolicy, isWrite bool, cursor *SequenceCursor, isInactive func(string) bool) (string, error) {
	live := make(Replicas, 0, len(replicas))

	for _, n := range replicas {
		if isInactive == nil || !isInactive(n) {
			live = append(live, n)
		}
	}

	if len(live) == 0 {
		return "", errs.ErrNoAvailableNode
	}

	master, hasMaster := replicas.Master()
	if hasMaster && isInactive != nil && isInactive(master) {
		hasMaster = false
	}

	if isWrite {
		if hasMaster {
			return master, nil
		}

		return "", errs.ErrNoAvailableNode
	}

	switch policy {
	case Master:
		if !hasMaster {
			return "", errs.ErrNoAvailableNode
		}

		return master, nil

	case MasterProles:
		return live[rand.Intn(len(live))], nil

	case Random:
		return live[rand.Intn(len(live))], nil

	case Sequence:
		if cursor == nil {
			cursor = newSequenceCursor()
		}

		return live[cursor.take(len(live))], nil

	default:
		master, ok := live.Master()
		if !ok {
			return "", errs.ErrNoAvailableNode
		}

		return master, nil
	}
}

// NewSequenceCursor constructs a cursor for callers (e.g. a per-namespace
// cursor shared across all Sequence-policy reads) that need to hold one
// across calls to Select.
func NewSequenceCursor() *SequenceCursor {
	return newSequenceCursor()
}
