// Package command implements the Command Engine (C5): the Policy knobs, the
// Command interface every operation implements, and the retry/timeout loop
// that executes a Command against the cluster. Grounded on cmd/kivi-server's
// join() retry loop — a capped backoff wrapped in a context deadline and a
// select against ctx.Done() — generalized from a one-shot cluster join to a
// per-command retry budget.
package command

import "time"

// Priority hints the server-side queuing class for a request (§4.5).
type Priority int

const (
	PriorityDefault Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

// ConsistencyLevel controls how many replicas a read must agree with
// (§4.5).
type ConsistencyLevel int

const (
	ConsistencyOne ConsistencyLevel = iota
	ConsistencyAll
)

// GenerationPolicy controls whether a write carries a generation check
// (§4.6 "Generation guard", §8 scenario 3).
type GenerationPolicy int

const (
	// GenerationPolicyNone writes unconditionally.
	GenerationPolicyNone GenerationPolicy = iota
	// GenerationPolicyExpectGenEqual fails with a generation error unless
	// the record's current generation equals Policy.Generation.
	GenerationPolicyExpectGenEqual
	// GenerationPolicyExpectGenGT fails with a generation error unless
	// the record's current generation is greater than Policy.Generation.
	GenerationPolicyExpectGenGT
)

// CommitLevel controls how many replicas must durably apply a write
// before the server replies (§4.6).
type CommitLevel int

const (
	// CommitAll waits for every replica to apply the write.
	CommitAll CommitLevel = iota
	// CommitMaster returns as soon as the master replica applies the
	// write, without waiting on replica propagation.
	CommitMaster
)

// Policy configures one command's targeting, timeouts, and retry behavior
// (§4.5). Every operation in package ops builds one of these, defaulting
// unset fields via DefaultPolicy.
type Policy struct {
	Priority           Priority
	ConsistencyLevel   ConsistencyLevel
	ReplicaPolicy      int // cluster/partition.ReplicaPolicy, kept as int here to avoid an import cycle
	TotalTimeout       time.Duration
	SocketTimeout      time.Duration
	MaxRetries         int
	SleepBetweenRetries time.Duration
	RetryOnTimeout     bool
	SendKey            bool

	// GenerationPolicy and Generation together gate a write on the
	// record's current generation (§4.6, §8 scenario 3). CommitLevel
	// controls replica-propagation durability (§4.6). Both double as the
	// "caller opts in" half of the retry invariant in §4.5/§7: a write
	// guarded by a generation check is safe to retry even after a lost
	// response, since a retry that lands on an already-applied write
	// simply fails with a generation error instead of re-applying.
	GenerationPolicy GenerationPolicy
	Generation       uint32
	CommitLevel      CommitLevel
}

// DefaultPolicy returns the baseline policy used when an operation is
// given a zero-value Policy (§4.5 defaults).
func DefaultPolicy() Policy {
	return Policy{
		Priority:            PriorityDefault,
		ConsistencyLevel:    ConsistencyOne,
		ReplicaPolicy:       0, // partition.Master
		TotalTimeout:        1 * time.Second,
		SocketTimeout:       30 * time.Second,
		MaxRetries:          2,
		SleepBetweenRetries: 0,
		RetryOnTimeout:      false,
		SendKey:             false,
		GenerationPolicy:    GenerationPolicyNone,
		CommitLevel:         CommitAll,
	}
}

// BatchPolicy configures a batch-read command, layering on top of a base
// Policy (§4.6 batch operations).
type BatchPolicy struct {
	Policy
	AllowPartialResults bool
	ConcurrentNodes     int
}

// DefaultBatchPolicy mirrors DefaultPolicy with batch-specific defaults.
func DefaultBatchPolicy() BatchPolicy {
	return BatchPolicy{
		Policy:              DefaultPolicy(),
		AllowPartialResults: false,
		ConcurrentNodes:     8,
	}
}

// ScanPolicy configures a full-namespace scan (§4.6 scan).
type ScanPolicy struct {
	Policy
	ConcurrentNodes  int
	RecordsPerSecond int
}

func DefaultScanPolicy() ScanPolicy {
	p := DefaultPolicy()
	p.MaxRetries = 0
	p.TotalTimeout = 0

	return ScanPolicy{
		Policy:          p,
		ConcurrentNodes: 0, // 0 means "all nodes"
	}
}

// QueryPolicy configures a secondary-index query (§4.6 query).
type QueryPolicy struct {
	Policy
	ConcurrentNodes int
}

func DefaultQueryPolicy() QueryPolicy {
	return QueryPolicy{
		Policy:          DefaultPolicy(),
		ConcurrentNodes: 0,
	}
}
