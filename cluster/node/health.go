package node

import "github.com/aerospike/aerospike-client-go-teachable/internal/counter"

// failureThreshold is the number of consecutive failed operations after
// which a Node is considered Inactive and stops receiving new work from
// the Cluster's replica selection (§4.4 health tracking).
const failureThreshold = 5

// health tracks consecutive command failures against a Node. Grounded on
// internal/counter's rollover-safe Counter, reused here as a plain
// failure tally rather than a sequence number: recordFailure adds one with
// no upper bound and recordSuccess resets it to zero.
type health struct {
	failures counter.Counter
}

func (h *health) recordSuccess() {
	h.failures.Add(-h.failures.Get())
}

func (h *health) recordFailure() int32 {
	return h.failures.Add(1)
}

// inactive reports whether consecutive failures have crossed the
// threshold, per §4.4: "a node that fails N consecutive health checks is
// marked inactive and excluded from replica selection until it recovers".
func (h *health) inactive() bool {
	return h.failures.Get() >= failureThreshold
}
