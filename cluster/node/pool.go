package node

import (
	"context"
	"sync/atomic"

	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
)

// pool is a bounded idle-connection queue for one Node. Acquire takes the
// idle connection that was released earliest (the buffered channel is a
// FIFO queue, not a stack) or opens a new one while under the cap; it never
// blocks — when the cap is reached it fails immediately with
// ErrPoolExhausted so callers can surface backpressure themselves (§5).
// Grounded on cluster/registry.go's ConnRegistry: a per-ID map protected by
// a mutex plus in-flight-dial de-duplication, generalized here from "one
// connection per member" to "a capped pool of connections per member".
type pool struct {
	idle    chan *conn.Conn
	inUse   atomic.Int32
	opened  atomic.Int32
	maxConn int32
}

func newPool(maxConn int) *pool {
	return &pool{
		idle:    make(chan *conn.Conn, maxConn),
		maxConn: int32(maxConn),
	}
}

// ErrPoolExhausted is returned by acquire when the node has reached its
// connection cap and no idle connection is available (§5).
var ErrPoolExhausted = errs.New(errs.KindConnection, "connection pool exhausted")

// acquire returns an idle connection, discarding it first if it has been
// idle longer than idleTimeout (§4.2 Idle policy), or dials a fresh one if
// the pool is under its cap. dialFn is the node's dial function bound to
// the acquiring context.
func (p *pool) acquire(ctx context.Context, idleTimeoutExceeded func(*conn.Conn) bool, dialFn func(context.Context) (*conn.Conn, error)) (*conn.Conn, error) {
	for {
		select {
		case c := <-p.idle:
			if c.IsClosed() {
				p.opened.Add(-1)
				continue
			}

			if idleTimeoutExceeded(c) {
				_ = c.Close()
				p.opened.Add(-1)

				continue
			}

			p.inUse.Add(1)

			return c, nil
		default:
		}

		break
	}

	if !p.tryReserve() {
		return nil, ErrPoolExhausted
	}

	c, err := dialFn(ctx)
	if err != nil {
		p.opened.Add(-1)
		return nil, err
	}

	p.inUse.Add(1)

	return c, nil
}

// tryReserve atomically claims one slot against maxConn via
// compare-and-swap, closing the check-then-act race a plain Load-then-Add
// leaves open between concurrent acquirers (§5, §8 invariant
// in_use + idle <= max_conns).
func (p *pool) tryReserve() bool {
	for {
		cur := p.opened.Load()
		if cur >= p.maxConn {
			return false
		}

		if p.opened.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// release returns c to the idle queue unless it is Broken or the queue is
// full, in which case it is closed and the slot freed (§4.2, §3
// invariants: "on error it is discarded, never returned to pool").
func (p *pool) release(c *conn.Conn) {
	p.inUse.Add(-1)

	if c.IsClosed() {
		p.opened.Add(-1)
		return
	}

	select {
	case p.idle <- c:
	default:
		_ = c.Close()
		p.opened.Add(-1)
	}
}

// discard closes c and frees its slot without returning it to the pool,
// used when the caller already knows the connection is unusable.
func (p *pool) discard(c *conn.Conn) {
	p.inUse.Add(-1)
	p.opened.Add(-1)
	_ = c.Close()
}

// counts returns (inUse, idle) for the cap invariant in §8:
// in_use + idle <= max_conns.
func (p *pool) counts() (inUse, idle int) {
	return int(p.inUse.Load()), len(p.idle)
}

// drain closes every idle connection, used when a Node is pruned or the
// Cluster is shut down (§4.7 Shutdown: "drains all pools").
func (p *pool) drain() {
	for {
		select {
		case c := <-p.idle:
			_ = c.Close()
			p.opened.Add(-1)
		default:
			return
		}
	}
}
