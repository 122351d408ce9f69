// Package aerospike is the synchronous client facade (C7): it owns a
// cluster.Cluster and exposes the CRUD/batch/scan/query operations from
// package ops as plain methods, adapting the cluster to the NodeLocator/
// Locator interfaces those packages expect. Grounded on the teacher's
// cmd/kivi-server/main.go construct-then-serve shape, collapsed here into
// a single constructor since this package has no server loop of its own.
package aerospike

import (
	"context"
	"os"
	"sync"

	kitlog "github.com/go-kit/log"

	"github.com/aerospike/aerospike-client-go-teachable/cluster"
	"github.com/aerospike/aerospike-client-go-teachable/cluster/partition"
	"github.com/aerospike/aerospike-client-go-teachable/command"
	"github.com/aerospike/aerospike-client-go-teachable/config"
	"github.com/aerospike/aerospike-client-go-teachable/ops"
	"github.com/aerospike/aerospike-client-go-teachable/types"
)

// Client is the top-level handle applications hold: one Cluster, plus a
// per-namespace Sequence cursor shared across ReplicaPolicy Sequence
// reads so consecutive calls actually round-robin instead of each
// starting over at replica 0.
type Client struct {
	cluster *cluster.Cluster
	cursors namespaceCursors
}

// NewClient resolves seedHosts, runs the initial tend cycle, and starts
// the background tend loop, returning once the client has a usable
// partition map (§4.4 Connect).
func NewClient(ctx context.Context, policy config.ClientPolicy, seedHosts ...string) (*Client, error) {
	if len(seedHosts) == 0 {
		seedHosts = policy.SeedHosts
	}

	var logger kitlog.Logger = kitlog.NewNopLogger()
	if policy.Verbose {
		logger = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	}

	c := cluster.New(policy.ClusterConfig(logger))

	if err := c.Connect(ctx, seedHosts); err != nil {
		return nil, err
	}

	return &Client{cluster: c, cursors: newNamespaceCursors()}, nil
}

// Close stops the tend loop and drains every node's connection pool.
func (cl *Client) Close() error {
	return cl.cluster.Close()
}

// namespaceCursors hands out one partition.SequenceCursor per namespace,
// created lazily and shared across every ReplicaPolicy Sequence call so
// repeated reads actually round-robin instead of each call starting over.
type namespaceCursors struct {
	mu      *sync.Mutex
	cursors map[string]*partition.SequenceCursor
}

func newNamespaceCursors() namespaceCursors {
	return namespaceCursors{mu: &sync.Mutex{}, cursors: make(map[string]*partition.SequenceCursor)}
}

func (nc namespaceCursors) get(namespace string) *partition.SequenceCursor {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	c, ok := nc.cursors[namespace]
	if !ok {
		c = partition.NewSequenceCursor()
		nc.cursors[namespace] = c
	}

	return c
}

// locatorAdapter presents *cluster.Cluster as ops.ClusterLocator /
// ops.ScanNodes, resolving a partition to a target node name via
// partition.Select and a node name to its pool via cluster.Cluster.Node.
type locatorAdapter struct {
	cluster *cluster.Cluster
	cursors namespaceCursors
}

func (a locatorAdapter) TargetNode(namespace string, partitionID int, isWrite bool, policy partition.ReplicaPolicy) (string, error) {
	replicas := a.cluster.Replicas(namespace, partitionID)

	return partition.Select(replicas, policy, isWrite, a.cursors.get(namespace), a.cluster.IsInactive)
}

func (a locatorAdapter) Node(name string) (command.NodePool, bool) {
	n, ok := a.cluster.Node(name)
	if !ok {
		return nil, false
	}

	return n, true
}

func (a locatorAdapter) MasterNodes(namespace string) []string {
	return a.cluster.MasterNodes(namespace)
}

func (cl *Client) locator() locatorAdapter {
	return locatorAdapter{cluster: cl.cluster, cursors: cl.cursors}
}

// Get reads Selector's bins of key (§4.6).
func (cl *Client) Get(ctx context.Context, key *types.Key, selector types.BinSelector, policy command.Policy) (*types.Record, error) {
	get := ops.NewGet(cl.locator(), key, selector, partition.ReplicaPolicy(policy.ReplicaPolicy))

	if err := command.Execute(ctx, cl.locator(), get, policy); err != nil {
		return nil, err
	}

	return get.Record(), nil
}

// Put writes bins to key, creating it if absent (§4.6).
func (cl *Client) Put(ctx context.Context, key *types.Key, bins []types.Bin, expiration types.Expiration, policy command.Policy) error {
	put := ops.NewPut(cl.locator(), key, bins, expiration, policy)

	return command.Execute(ctx, cl.locator(), put, policy)
}

// Delete removes key, reporting whether it existed (§4.6).
func (cl *Client) Delete(ctx context.Context, key *types.Key, durableDelete bool, policy command.Policy) (bool, error) {
	del := ops.NewDelete(cl.locator(), key, durableDelete)

	if err := command.Execute(ctx, cl.locator(), del, policy); err != nil {
		return false, err
	}

	return del.Existed(), nil
}

// Exists reports whether key is present without fetching its bins (§4.6).
func (cl *Client) Exists(ctx context.Context, key *types.Key, policy command.Policy) (bool, error) {
	exists := ops.NewExists(cl.locator(), key, partition.ReplicaPolicy(policy.ReplicaPolicy))

	if err := command.Execute(ctx, cl.locator(), exists, policy); err != nil {
		return false, err
	}

	return exists.Found(), nil
}

// Touch resets key's expiration without altering its bins (§4.6).
func (cl *Client) Touch(ctx context.Context, key *types.Key, expiration types.Expiration, policy command.Policy) error {
	touch := ops.NewTouch(cl.locator(), key, expiration, policy)

	return command.Execute(ctx, cl.locator(), touch, policy)
}

// Operate runs a mixed list of read/write steps against key atomically,
// returning the bins produced by its read steps (§4.6).
func (cl *Client) Operate(ctx context.Context, key *types.Key, steps []ops.OperateStep, expiration types.Expiration, policy command.Policy) ([]types.Bin, error) {
	op := ops.NewOperate(cl.locator(), key, steps, expiration, policy)

	if err := command.Execute(ctx, cl.locator(), op, policy); err != nil {
		return nil, err
	}

	return op.Results(), nil
}

// ExecuteUDF invokes a registered user-defined function against key,
// returning its SUCCESS value (supplemented feature).
func (cl *Client) ExecuteUDF(ctx context.Context, key *types.Key, pkg, fn string, args []types.Value, policy command.Policy) (types.Value, error) {
	udf := ops.NewExecuteUDF(cl.locator(), key, pkg, fn, args)

	if err := command.Execute(ctx, cl.locator(), udf, policy); err != nil {
		return nil, err
	}

	return udf.Result(), nil
}

// BatchGet reads selector's bins for every key concurrently (§4.6).
func (cl *Client) BatchGet(ctx context.Context, keys []*types.Key, selector types.BinSelector, policy command.BatchPolicy) []ops.BatchResult {
	return ops.BatchGet(ctx, cl.locator(), keys, selector, policy)
}

// Scan streams every record of namespace/set from every master node (§4.6).
func (cl *Client) Scan(ctx context.Context, namespace, set string, policy command.ScanPolicy, fn ops.RecordCallback) error {
	return ops.Scan(ctx, cl.locator(), namespace, set, policy, fn)
}

// Query streams records matching filter from namespace/set (§4.6).
func (cl *Client) Query(ctx context.Context, namespace, set string, filter ops.IndexFilter, policy command.QueryPolicy, fn ops.RecordCallback) error {
	return ops.Query(ctx, cl.locator(), namespace, set, filter, policy, fn)
}

// LoadMetrics exposes the cluster's client-side partition-load buckets,
// a diagnostic aid for the probe CLI.
func (cl *Client) LoadMetrics() []int64 {
	return cl.cluster.LoadMetrics()
}
