package command

import (
	"context"
	"time"

	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/async"
)

// NodePool is the subset of cluster/node.Node that Execute needs: acquire
// a connection, and report whether it was used cleanly so the pool can
// decide whether to recycle or discard it.
type NodePool interface {
	Acquire(ctx context.Context) (*conn.Conn, error)
	Release(c *conn.Conn, used bool)
}

// NodeLocator resolves a node name to its pool, implemented by
// cluster.Cluster. Kept as an interface here so command does not import
// cluster, which would otherwise create a cycle once cluster's tend loop
// starts driving command executions directly.
type NodeLocator interface {
	Node(name string) (NodePool, bool)
}

// Execute runs cmd against the cluster, retrying per Policy on retryable
// errors until MaxRetries is exhausted or TotalTimeout elapses. Grounded
// on cmd/kivi-server's join() retry loop: a context-bounded attempt,
// classify-then-sleep, re-select against ctx.Done(); generalized from a
// fixed exponential backoff to the Policy's fixed SleepBetweenRetries
// since the server, not the client, owns request pacing here (§4.5).
func Execute(ctx context.Context, locator NodeLocator, cmd Command, policy Policy) error {
	if policy.TotalTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, policy.TotalTimeout)
		defer cancel()
	}

	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err := attemptOnce(ctx, locator, cmd, policy)
		if err == nil {
			return nil
		}

		lastErr = err

		if !cmd.IsRetryable(err) {
			return err
		}

		if errs.IsKind(err, errs.KindTimeout) && !policy.RetryOnTimeout {
			return err
		}

		if attempt == policy.MaxRetries {
			break
		}

		if err := async.Sleep(ctx, policy.SleepBetweenRetries); err != nil {
			return lastErr
		}
	}

	return lastErr
}

// socketDeadline computes the per-attempt I/O budget: min(socketTimeout,
// time remaining until ctx's deadline), per §4.5 step (b). Either bound
// may be absent -- socketTimeout <= 0 means "no per-attempt cap" and an
// undeadlined ctx (e.g. ScanPolicy's TotalTimeout=0) means "no overall
// cap" -- in which case only the other bound applies; a result of 0 means
// neither bound applies and the caller should not set a deadline at all.
func socketDeadline(ctx context.Context, socketTimeout time.Duration) time.Duration {
	deadline, hasDeadline := ctx.Deadline()

	switch {
	case socketTimeout > 0 && hasDeadline:
		if remaining := time.Until(deadline); remaining < socketTimeout {
			return remaining
		}

		return socketTimeout
	case socketTimeout > 0:
		return socketTimeout
	case hasDeadline:
		return time.Until(deadline)
	default:
		return 0
	}
}

// attemptOnce performs one node-bound attempt: resolve the target node,
// acquire a connection, run the request/response pair, and release the
// connection reporting whether it is still usable.
func attemptOnce(ctx context.Context, locator NodeLocator, cmd Command, policy Policy) error {
	nodeName, err := cmd.TargetNode()
	if err != nil {
		return err
	}

	pool, ok := locator.Node(nodeName)
	if !ok {
		return errs.ErrNoAvailableNode
	}

	c, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}

	if d := socketDeadline(ctx, policy.SocketTimeout); d > 0 {
		if err := c.SetSocketDeadline(d); err != nil {
			pool.Release(c, false)
			return err
		}
	}

	if err := cmd.WriteRequest(c); err != nil {
		pool.Release(c, false)
		return err
	}

	// The request is now on the wire: any connection-kind failure from
	// here on may mean the server received and applied it before the
	// response was lost, not that it never arrived (§4.5/§7).
	if err := cmd.ParseResponse(c); err != nil {
		pool.Release(c, false)
		return errs.MarkSent(err)
	}

	pool.Release(c, true)

	return nil
}
