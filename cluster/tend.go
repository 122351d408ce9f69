package cluster

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/go-kit/log/level"

	"github.com/aerospike/aerospike-client-go-teachable/cluster/node"
	"github.com/aerospike/aerospike-client-go-teachable/cluster/partition"
)

// tendLoop runs tendOnce on cfg.TendInterval until Close is called.
// Grounded on the teacher's membership refresh ticker in cmd/server/main.go
// (a time.Ticker-driven background goroutine started from Connect and
// stopped from Close).
func (c *Cluster) tendLoop() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.cfg.TendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TendInterval)

			if err := c.tendOnce(ctx); err != nil {
				level.Warn(c.logger).Log("msg", "tend cycle failed", "err", err)
			}

			cancel()
		}
	}
}

// tendOnce refreshes every known node's generations and partition
// ownership, discovers any newly advertised peers, and prunes nodes whose
// refresh failed this cycle and that have crossed the failure threshold
// (see removeStaleNodes, §4.4).
func (c *Cluster) tendOnce(ctx context.Context) error {
	var nodes []*node.Node

	c.nodes.Range(func(_ string, n *node.Node) bool {
		nodes = append(nodes, n)
		return true
	})

	live := make(map[string]struct{}, len(nodes))
	builder := newReplicaBuilder()

	for _, n := range nodes {
		prevPartitionGen := n.PartitionGeneration()
		prevPeersGen := n.PeersGeneration()

		if err := n.Refresh(ctx); err != nil {
			level.Debug(c.logger).Log("msg", "node refresh failed", "node", n.Name(), "err", err)
			continue
		}

		live[n.Name()] = struct{}{}

		samePartitionGen := prevPartitionGen != "" && prevPartitionGen == n.PartitionGeneration()

		if err := c.refreshPartitions(ctx, n, builder, samePartitionGen); err != nil {
			level.Debug(c.logger).Log("msg", "partition refresh failed", "node", n.Name(), "err", err)
		}

		if prevPeersGen != "" && prevPeersGen == n.PeersGeneration() {
			continue
		}

		peers, err := n.Peers(ctx)
		if err != nil {
			continue
		}

		for _, addr := range peers {
			if _, known := c.findByAddr(addr); !known {
				newNode := node.New(addr, addr, c.cfg.NodeConfig)
				if err := newNode.Refresh(ctx); err == nil {
					c.addNode(newNode)
					live[newNode.Name()] = struct{}{}
				}
			}
		}
	}

	if len(live) > 0 {
		c.removeStaleNodes(live)
	}

	c.swapPartitionTables(builder)

	return nil
}

func (c *Cluster) findByAddr(addr string) (*node.Node, bool) {
	var found *node.Node

	c.nodes.Range(func(_ string, n *node.Node) bool {
		if n.Addr() == addr {
			found = n
			return false
		}

		return true
	})

	return found, found != nil
}

// refreshPartitions folds n's replicas-master/replicas-prole ownership
// bitmaps into builder, the in-progress view of this tend cycle's replica
// assignment. When samePartitionGen is true -- n's PartitionGeneration is
// unchanged since the start of this tend cycle -- the Info query is skipped
// and n's cached replies from the last actual fetch are reused instead,
// per §4.4 step 2: "If a Node's partition-generation differs from cached,
// fetch...". The query still runs when nothing has been cached yet (seed
// discovery records a node's generation without fetching its replicas).
// swapPartitionTables still does a full per-namespace rebuild
// every cycle, so every live node must contribute a report each cycle even
// when its own bitmap didn't need re-fetching. Grounded on the bitmap
// decode following the server's "namespace:base64(bitmap)[;...]" Info reply
// shape (§4.4, §6).
func (c *Cluster) refreshPartitions(ctx context.Context, n *node.Node, builder *replicaBuilder, samePartitionGen bool) error {
	var master, prole string

	if samePartitionGen {
		master, prole = n.CachedReplicas()
	}

	if !samePartitionGen || (master == "" && prole == "") {
		conn, err := n.Acquire(ctx)
		if err != nil {
			return err
		}

		info, err := node.RequestInfo(ctx, conn, "replicas-master", "replicas-prole")

		n.Release(conn, err == nil)

		if err != nil {
			return err
		}

		master, prole = info["replicas-master"], info["replicas-prole"]
		n.SetCachedReplicas(master, prole)
	}

	c.applyBitmaps(builder, n.Name(), master, true)
	c.applyBitmaps(builder, n.Name(), prole, false)

	return nil
}

// applyBitmaps decodes a "ns1:b64;ns2:b64" reply and, for every set bit,
// records nodeName as that partition's master or a prole in builder.
func (c *Cluster) applyBitmaps(builder *replicaBuilder, nodeName, reply string, isMaster bool) {
	if reply == "" {
		return
	}

	for _, entry := range strings.Split(reply, ";") {
		ns, b64, found := strings.Cut(entry, ":")
		if !found || ns == "" {
			continue
		}

		bitmap, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			continue
		}

		for pid := 0; pid < partition.Count; pid++ {
			byteIdx := pid / 8
			if byteIdx >= len(bitmap) {
				break
			}

			if bitmap[byteIdx]&(1<<(uint(pid)%8)) == 0 {
				continue
			}

			c.recordLoad(nodeName, pid)

			if isMaster {
				builder.addMaster(ns, pid, nodeName)
			} else {
				builder.addProle(ns, pid, nodeName)
			}
		}
	}
}

// swapPartitionTables atomically replaces every namespace's replica array
// seen this tend cycle with builder's freshly computed view, so a node
// whose bitmap bit cleared since the last refresh is dropped rather than
// lingering in the table (§4.4 step 2: "atomically swap the namespace's
// replica array").
func (c *Cluster) swapPartitionTables(builder *replicaBuilder) {
	for _, ns := range builder.namespaces() {
		table := c.partitionTable(ns)

		for pid := 0; pid < partition.Count; pid++ {
			table.Set(pid, builder.replicas(ns, pid))
		}
	}
}

// replicaBuilder accumulates one tend cycle's master/prole reports across
// every live node before they are swapped into the partition tables in
// one pass, rather than mutating each table additively node by node.
type replicaBuilder struct {
	master map[string]map[int]string
	proles map[string]map[int][]string
}

func newReplicaBuilder() *replicaBuilder {
	return &replicaBuilder{
		master: make(map[string]map[int]string),
		proles: make(map[string]map[int][]string),
	}
}

func (b *replicaBuilder) addMaster(ns string, pid int, nodeName string) {
	m, ok := b.master[ns]
	if !ok {
		m = make(map[int]string)
		b.master[ns] = m
	}

	m[pid] = nodeName
}

func (b *replicaBuilder) addProle(ns string, pid int, nodeName string) {
	p, ok := b.proles[ns]
	if !ok {
		p = make(map[int][]string)
		b.proles[ns] = p
	}

	for _, n := range p[pid] {
		if n == nodeName {
			return
		}
	}

	p[pid] = append(p[pid], nodeName)
}

// namespaces returns every namespace with at least one reported partition
// this cycle, so only namespaces actually refreshed get swapped.
func (b *replicaBuilder) namespaces() []string {
	seen := make(map[string]struct{})

	for ns := range b.master {
		seen[ns] = struct{}{}
	}

	for ns := range b.proles {
		seen[ns] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}

	return out
}

// replicas builds partitionID's replica list for ns, master first (if
// any), followed by its deduplicated proles.
func (b *replicaBuilder) replicas(ns string, partitionID int) partition.Replicas {
	var out partition.Replicas

	if m, ok := b.master[ns][partitionID]; ok {
		out = append(out, m)
	}

	for _, n := range b.proles[ns][partitionID] {
		if len(out) > 0 && out[0] == n {
			continue
		}

		out = append(out, n)
	}

	return out
}
