// Package conn implements the Connection component (C2): one TCP stream to
// one node, with proto-header framing, an authentication handshake, and an
// idle deadline. Grounded on the teacher's nodeclient/grpc/client.go for
// the onClose-hooks / atomic-closed-flag lifecycle pattern, adapted from a
// grpc.ClientConn wrapper to a raw net.Conn wrapper since the wire
// protocol here is the proprietary binary framing from §4.2/§6, not grpc.
package conn

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/aerospike/aerospike-client-go-teachable/errs"
)

type state uint32

const (
	stateOpen state = iota
	stateBroken
)

// Conn is a bidirectional byte stream to one Aerospike node plus an idle
// deadline (§4.2).
type Conn struct {
	netConn net.Conn
	node    string

	state atomic.Uint32

	idleDeadline time.Time

	sessionToken  []byte
	sessionExpiry time.Time
}

// Dial opens a new TCP connection to addr. The caller is responsible for
// running the authentication handshake (Authenticate) if credentials are
// configured.
func Dial(ctx context.Context, node, addr string) (*Conn, error) {
	d := net.Dialer{}

	netConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errs.Wrap(errs.KindConnection, err, "dial "+addr).WithNode(node)
	}

	c := &Conn{netConn: netConn, node: node}
	c.touch()

	return c, nil
}

func (c *Conn) Node() string {
	return c.node
}

// IsClosed reports whether the connection has transitioned to the Broken
// terminal state and must not be reused (§4.2).
func (c *Conn) IsClosed() bool {
	return state(c.state.Load()) == stateBroken
}

func (c *Conn) markBroken() {
	c.state.Store(uint32(stateBroken))
}

// Close releases the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.markBroken()
	return c.netConn.Close()
}

// touch refreshes the idle deadline bookkeeping after a successful use.
func (c *Conn) touch() {
	c.idleDeadline = time.Now()
}

// IdleFor reports how long the connection has sat unused in a pool.
func (c *Conn) IdleFor() time.Duration {
	return time.Since(c.idleDeadline)
}

// SetSocketDeadline bounds the next read/write pair to d from now. A zero
// d disables the per-attempt I/O deadline (§4.5, §8 boundary behavior).
func (c *Conn) SetSocketDeadline(d time.Duration) error {
	if d <= 0 {
		return c.netConn.SetDeadline(time.Time{})
	}

	return c.netConn.SetDeadline(time.Now().Add(d))
}

// WriteMessage frames and writes payload as a single AerospikeMessage or
// Info message. On any I/O error the connection transitions to Broken
// (§4.2).
func (c *Conn) WriteMessage(msgType byte, payload []byte) error {
	if err := writeFrame(c.netConn, msgType, payload); err != nil {
		c.markBroken()

		if e, ok := err.(*errs.Error); ok {
			return e.WithNode(c.node)
		}

		return err
	}

	c.touch()

	return nil
}

// ReadMessage blocks until a full framed message arrives. Partial reads
// are either completed or the connection fails (§4.2).
func (c *Conn) ReadMessage() (msgType byte, payload []byte, err error) {
	msgType, payload, rerr := readFrame(c.netConn)
	if rerr != nil {
		c.markBroken()

		if e, ok := rerr.(*errs.Error); ok {
			return 0, nil, e.WithNode(c.node)
		}

		return 0, nil, rerr
	}

	c.touch()

	return msgType, payload, nil
}

// SessionToken returns the cached auth session token and its expiry, if a
// login handshake has completed on this connection (or been copied from
// the owning Node's cache).
func (c *Conn) SessionToken() ([]byte, time.Time) {
	return c.sessionToken, c.sessionExpiry
}

// SetSessionToken installs a token obtained either from this connection's
// own login or copied from the Node cache to avoid re-authenticating every
// new connection (§4.2).
func (c *Conn) SetSessionToken(token []byte, expiry time.Time) {
	c.sessionToken = token
	c.sessionExpiry = expiry
}
