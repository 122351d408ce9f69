// Package cluster implements the Cluster component (C4): the live set of
// Nodes keyed by server-assigned name, the per-namespace partition tables,
// and the tend loop that keeps both current. Grounded on the teacher's
// membership.Cluster (the server-name-keyed member set under a RWMutex,
// refreshed by a periodic loop) and cluster/registry.go's ConnRegistry
// garbage-collection pattern, generalized from gossip-driven membership
// to Info-poll-driven membership.
package cluster

import (
	"context"
	"sort"
	"sync"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/memberlist"

	"github.com/aerospike/aerospike-client-go-teachable/cluster/node"
	"github.com/aerospike/aerospike-client-go-teachable/cluster/partition"
	"github.com/aerospike/aerospike-client-go-teachable/internal/logutil"
)

// nodeRegistry is the live, server-name-keyed member set: a thin typed
// wrapper around sync.Map so callers never cast to/from interface{}.
// Grounded on the teacher's membership.Cluster member map.
type nodeRegistry struct {
	m sync.Map
}

func (r *nodeRegistry) Load(name string) (*node.Node, bool) {
	v, ok := r.m.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*node.Node), true
}

func (r *nodeRegistry) Store(name string, n *node.Node) {
	r.m.Store(name, n)
}

func (r *nodeRegistry) LoadOrStore(name string, n *node.Node) (*node.Node, bool) {
	v, loaded := r.m.LoadOrStore(name, n)
	return v.(*node.Node), loaded
}

func (r *nodeRegistry) LoadAndDelete(name string) (*node.Node, bool) {
	v, loaded := r.m.LoadAndDelete(name)
	if !loaded {
		return nil, false
	}
	return v.(*node.Node), true
}

func (r *nodeRegistry) Range(f func(name string, n *node.Node) bool) {
	r.m.Range(func(k, v interface{}) bool {
		return f(k.(string), v.(*node.Node))
	})
}

// Config bounds the cluster's membership discovery and health bookkeeping
// (§4.4).
type Config struct {
	ClusterName  string
	TendInterval time.Duration
	NodeConfig   node.Config
	Logger       kitlog.Logger

	// GossipBindAddr, when set, starts a memberlist substrate bound to
	// this address and feeds its leave notifications into node
	// health (§4.4). Leave empty to rely solely on Info-poll-driven
	// liveness.
	GossipBindAddr string
}

// Cluster owns the current node set and per-namespace partition tables,
// refreshed by a background tend loop (§4.4).
type Cluster struct {
	cfg    Config
	logger kitlog.Logger

	nodes nodeRegistry

	partMu     sync.RWMutex
	partitions map[string]*partition.Table

	gossip *memberlist.Memberlist

	loadMu      sync.Mutex
	loadBuckets [loadBucketCount]int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// loadBucketCount is the number of client-side load-metric buckets
// partition.LoadBucket hashes into; purely a reporting granularity knob.
const loadBucketCount = 64

// New creates a Cluster with no nodes yet; call Connect to run seed
// discovery and start the tend loop.
func New(cfg Config) *Cluster {
	if cfg.TendInterval <= 0 {
		cfg.TendInterval = time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logutil.Nop()
	}

	return &Cluster{
		cfg:        cfg,
		logger:     logger,
		partitions: make(map[string]*partition.Table),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Connect resolves seedHosts into Nodes, runs an initial tend cycle so the
// partition map is populated before the first command is attempted, and
// starts the background tend loop (§4.4).
func (c *Cluster) Connect(ctx context.Context, seedHosts []string) error {
	if err := c.discoverSeeds(ctx, seedHosts); err != nil {
		return err
	}

	if err := c.tendOnce(ctx); err != nil {
		return err
	}

	gossip, err := c.startGossip(seedHosts)
	if err != nil {
		level.Warn(c.logger).Log("msg", "gossip substrate unavailable, falling back to Info-poll liveness only", "err", err)
	} else {
		c.gossip = gossip
	}

	go c.tendLoop()

	return nil
}

// Close stops the tend loop and drains every node's connection pool
// (§4.7 Shutdown).
func (c *Cluster) Close() error {
	close(c.stopCh)
	<-c.doneCh

	if c.gossip != nil {
		_ = c.gossip.Leave(time.Second)
		_ = c.gossip.Shutdown()
	}

	c.nodes.Range(func(_ string, n *node.Node) bool {
		_ = n.Close()
		return true
	})

	return nil
}

// Nodes returns a snapshot of the currently known node names, sorted for
// deterministic reporting (diagnostics output, test assertions).
func (c *Cluster) Nodes() []string {
	var names []string

	c.nodes.Range(func(name string, _ *node.Node) bool {
		names = append(names, name)
		return true
	})

	sort.Strings(names)

	return names
}

// Node looks up a Node by its server-assigned name.
func (c *Cluster) Node(name string) (*node.Node, bool) {
	return c.nodes.Load(name)
}

// MasterNodes returns the deduplicated set of node names holding the
// master replica for at least one partition in namespace, sorted for
// deterministic fan-out. Scan/Query target this set rather than every
// known node (Cluster.Nodes) so that a prole replica never streams the
// same partition's records a second time (§4.6).
func (c *Cluster) MasterNodes(namespace string) []string {
	table := c.partitionTable(namespace)

	seen := make(map[string]struct{})

	for i := 0; i < partition.Count; i++ {
		if m, ok := table.Get(i).Master(); ok {
			seen[m] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// addNode registers n under its current name, closing any previous node
// that shared the name (a node that rejoined with a stale pool).
func (c *Cluster) addNode(n *node.Node) {
	if old, loaded := c.nodes.LoadOrStore(n.Name(), n); loaded && old != n {
		_ = old.Close()
		c.nodes.Store(n.Name(), n)
	}
}

// removeStaleNodes drops nodes absent from the latest live set AND whose
// consecutive-failure count has crossed node.Node.Inactive's threshold,
// draining their pools first. A node missing from live after a single
// failed refresh stays registered until it is actually Inactive -- a
// one-off Info-poll hiccup must not evict a node the same tend cycle it
// happens (§4.4 step 4: "removed only after failure-threshold consecutive
// tends"). Grounded on ConnRegistry.CollectGarbage's "close connections
// for members no longer in the cluster" sweep.
func (c *Cluster) removeStaleNodes(live map[string]struct{}) {
	var stale []string

	c.nodes.Range(func(name string, n *node.Node) bool {
		if _, ok := live[name]; !ok && n.Inactive() {
			stale = append(stale, name)
		}

		return true
	})

	for _, name := range stale {
		if n, ok := c.nodes.LoadAndDelete(name); ok {
			_ = n.Close()
			level.Debug(c.logger).Log("msg", "pruned stale node", "node", name)
		}
	}
}

// partitionTable returns (creating if necessary) the partition table for
// namespace.
func (c *Cluster) partitionTable(namespace string) *partition.Table {
	c.partMu.RLock()
	t, ok := c.partitions[namespace]
	c.partMu.RUnlock()

	if ok {
		return t
	}

	c.partMu.Lock()
	defer c.partMu.Unlock()

	if t, ok := c.partitions[namespace]; ok {
		return t
	}

	t = partition.NewTable(namespace)
	c.partitions[namespace] = t

	return t
}

// Replicas returns the current replica list for partitionID in namespace,
// used by the command engine's node-selection step (§4.5).
func (c *Cluster) Replicas(namespace string, partitionID int) partition.Replicas {
	return c.partitionTable(namespace).Get(partitionID)
}

// IsInactive reports whether the named node has been marked unhealthy, for
// use as the isInactive predicate passed to partition.Select (§4.4/§4.5).
func (c *Cluster) IsInactive(name string) bool {
	n, ok := c.Node(name)
	if !ok {
		return true
	}

	return n.Inactive()
}

// recordLoad bumps the client-side load-metric bucket a (node, partition)
// pair hashes into, for LoadMetrics to report.
func (c *Cluster) recordLoad(nodeName string, partitionID int) {
	b := partition.LoadBucket(nodeName, partitionID, loadBucketCount)

	c.loadMu.Lock()
	c.loadBuckets[b]++
	c.loadMu.Unlock()
}

// LoadMetrics returns a snapshot of per-bucket replica-assignment counts,
// a coarse client-side view of how evenly partition ownership is spread
// across the cluster. Not used for routing -- routing stays digest-driven.
func (c *Cluster) LoadMetrics() []int64 {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	out := make([]int64, loadBucketCount)
	copy(out, c.loadBuckets[:])

	return out
}
