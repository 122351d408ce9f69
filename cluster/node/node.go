// Package node implements the Node component (C3): the per-server handle
// that owns a bounded connection pool, exposes Info queries, and tracks
// consecutive-failure health for replica selection. Grounded on the
// teacher's cluster/registry.go ConnRegistry, generalized from "exactly one
// connection per cluster member, deduplicated against concurrent dialers"
// to "a capped pool of connections per member".
package node

import (
	"context"
	"sync"
	"time"

	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/set"
)

// Config bounds a Node's connection pool and idle handling (§4.2/§4.3).
type Config struct {
	MaxConnsPerNode int
	IdleTimeout     time.Duration
	SocketTimeout   time.Duration
	Credentials     *conn.Credentials
}

// Node is the client-side handle for one Aerospike server instance: its
// address, its server-assigned name, the partition/peers generations last
// observed by the tend loop, and a pool of live connections.
type Node struct {
	name string
	addr string

	cfg Config

	pool   *pool
	health health

	mu            sync.RWMutex
	partitionGen  string
	peersGen      string
	features      set.Set[string]
	sessionToken  []byte
	sessionExpiry time.Time

	// cachedReplicasMaster/cachedReplicasProle hold the last "replicas-master"/
	// "replicas-prole" Info replies this Node returned, so the tend loop can
	// skip re-fetching them on a cycle where PartitionGeneration hasn't
	// changed and still have something to fold into the partition tables.
	cachedReplicasMaster string
	cachedReplicasProle  string
}

// New constructs a Node bound to addr. The server-assigned name is filled
// in by the first successful "node" Info query (normally performed by the
// Cluster during seed discovery before the Node is registered).
func New(name, addr string, cfg Config) *Node {
	if cfg.MaxConnsPerNode <= 0 {
		cfg.MaxConnsPerNode = 8
	}

	return &Node{
		name:     name,
		addr:     addr,
		cfg:      cfg,
		pool:     newPool(cfg.MaxConnsPerNode),
		features: set.New[string](),
	}
}

func (n *Node) Name() string { return n.name }
func (n *Node) Addr() string { return n.addr }

// Inactive reports whether this node has exceeded the consecutive-failure
// threshold and should be excluded from replica selection (§4.4).
func (n *Node) Inactive() bool {
	return n.health.inactive()
}

// MarkUnreachable records a failure against this node without going
// through a command attempt, for liveness signals that arrive out of
// band -- e.g. a gossip-substrate suspect/leave notification reaching the
// node faster than the next tend cycle's own Info probe would.
func (n *Node) MarkUnreachable() {
	n.health.recordFailure()
}

// HasFeature reports whether the last "features" Info query advertised
// name.
func (n *Node) HasFeature(name string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.features.Has(name)
}

// PartitionGeneration returns the partition-map generation last observed
// for this node, used by the tend loop to skip redundant partition-map
// refreshes (§4.4).
func (n *Node) PartitionGeneration() string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.partitionGen
}

// PeersGeneration returns the peers-list generation last observed for this
// node.
func (n *Node) PeersGeneration() string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.peersGen
}

// CachedReplicas returns the "replicas-master"/"replicas-prole" Info replies
// cached from the last call to SetCachedReplicas, used by the tend loop to
// rebuild a namespace's replica view on a cycle where PartitionGeneration
// is unchanged and the Info query itself can be skipped (§4.4 step 2).
func (n *Node) CachedReplicas() (master, prole string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.cachedReplicasMaster, n.cachedReplicasProle
}

// SetCachedReplicas records the latest "replicas-master"/"replicas-prole"
// Info replies for CachedReplicas to later return.
func (n *Node) SetCachedReplicas(master, prole string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.cachedReplicasMaster = master
	n.cachedReplicasProle = prole
}

// dial opens and, if credentials are configured, authenticates a new
// connection to this node, reusing a cached session token when still
// valid so repeat logins are avoided (§4.2).
func (n *Node) dial(ctx context.Context) (*conn.Conn, error) {
	c, err := conn.Dial(ctx, n.name, n.addr)
	if err != nil {
		n.health.recordFailure()
		return nil, err
	}

	n.mu.RLock()
	token, expiry := n.sessionToken, n.sessionExpiry
	n.mu.RUnlock()

	if n.cfg.Credentials == nil {
		return c, nil
	}

	if len(token) > 0 && time.Now().Before(expiry) {
		c.SetSessionToken(token, expiry)
		return c, nil
	}

	if err := c.Authenticate(n.cfg.Credentials); err != nil {
		_ = c.Close()
		return nil, err
	}

	tok, exp := c.SessionToken()

	n.mu.Lock()
	n.sessionToken, n.sessionExpiry = tok, exp
	n.mu.Unlock()

	return c, nil
}

func (n *Node) idleExceeded(c *conn.Conn) bool {
	if n.cfg.IdleTimeout <= 0 {
		return false
	}

	return c.IdleFor() > n.cfg.IdleTimeout
}

// Acquire returns a connection ready for use, failing fast with
// ErrPoolExhausted rather than blocking when the node is already at its
// connection cap (§4.3, §5: "never queue callers behind a pool limit").
func (n *Node) Acquire(ctx context.Context) (*conn.Conn, error) {
	c, err := n.pool.acquire(ctx, n.idleExceeded, n.dial)
	if err != nil {
		return nil, err
	}

	if n.cfg.SocketTimeout > 0 {
		if err := c.SetSocketDeadline(n.cfg.SocketTimeout); err != nil {
			n.pool.discard(c)
			return nil, err
		}
	}

	return c, nil
}

// Release returns c to the idle pool, or discards it and records a
// failure if used is false (the caller observed an I/O error).
func (n *Node) Release(c *conn.Conn, used bool) {
	if !used || c.IsClosed() {
		n.pool.discard(c)
		n.health.recordFailure()

		return
	}

	n.health.recordSuccess()
	n.pool.release(c)
}

// PoolCounts exposes the in-use/idle split for diagnostics and the §8
// invariant check (in_use + idle <= max_conns).
func (n *Node) PoolCounts() (inUse, idle int) {
	return n.pool.counts()
}

// Refresh runs the Info queries the tend loop needs on a single borrowed
// connection and updates the Node's cached generations and feature set
// (§4.4).
func (n *Node) Refresh(ctx context.Context) error {
	c, err := n.Acquire(ctx)
	if err != nil {
		return err
	}

	info, err := RequestInfo(ctx, c, InfoNode, InfoPartitionGen, InfoPeersGeneration, InfoFeatures)

	n.Release(c, err == nil)

	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if name, ok := info[InfoNode]; ok && name != "" {
		n.name = name
	}

	n.partitionGen = info[InfoPartitionGen]
	n.peersGen = info[InfoPeersGeneration]

	n.features = set.FromSlice(parseServicesList(info[InfoFeatures]))

	return nil
}

// Peers resolves this node's current "services" Info list into a set of
// peer addresses for seed discovery (§4.4).
func (n *Node) Peers(ctx context.Context) ([]string, error) {
	c, err := n.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	info, err := RequestInfo(ctx, c, InfoServices)

	n.Release(c, err == nil)

	if err != nil {
		return nil, err
	}

	return parseServicesList(info[InfoServices]), nil
}

// Close drains the idle pool, releasing every connection currently not in
// use (§4.7 Shutdown). In-flight Acquired connections are closed by their
// owning caller when released.
func (n *Node) Close() error {
	n.pool.drain()
	return nil
}

// ClusterName issues a dedicated Info query, used once during seed
// discovery to validate a seed actually belongs to the configured cluster
// (§4.4, "cluster-name mismatch" guard).
func (n *Node) ClusterName(ctx context.Context) (string, error) {
	c, err := n.Acquire(ctx)
	if err != nil {
		return "", err
	}

	info, err := RequestInfo(ctx, c, InfoClusterName)

	n.Release(c, err == nil)

	if err != nil {
		return "", err
	}

	name, ok := info[InfoClusterName]
	if !ok {
		return "", errs.New(errs.KindProtocol, "cluster-name missing from info response").WithNode(n.name)
	}

	return name, nil
}
