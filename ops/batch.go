package ops

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/cluster/partition"
	"github.com/aerospike/aerospike-client-go-teachable/command"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/buffer"
	"github.com/aerospike/aerospike-client-go-teachable/types"
)

// BatchResult pairs a key with its outcome, preserving the caller's key
// order even though keys are fanned out across nodes concurrently (§4.6
// batch operations).
type BatchResult struct {
	Record *types.Record
	Err    error
}

// ClusterLocator is the combined capability every fan-out operation in this
// package needs: resolve a partition to a target node name (Locator) and
// resolve that node name to a connection pool (command.NodeLocator). The
// client façade implements both over its Cluster.
type ClusterLocator interface {
	Locator
	command.NodeLocator
}

// batchGroupKey identifies one batch-direct request. A request's
// namespace/set fields apply to every digest it carries, so keys are
// grouped by (node, namespace, set), not just by node (§4.6 "groups keys
// by responsible node, issues one batch direct request per node carrying
// the digest array").
type batchGroupKey struct {
	node      string
	namespace string
	set       string
}

type batchEntry struct {
	index  int
	digest types.Digest
}

// BatchGet reads selector's bins for every key, grouping keys by
// responsible node/namespace/set and issuing one batch-direct request per
// group concurrently, bounded by policy.ConcurrentNodes. Results are
// written back at their original index, preserving the caller's input
// order regardless of fan-out order (§8 scenario 5).
func BatchGet(ctx context.Context, locator ClusterLocator, keys []*types.Key, selector types.BinSelector, policy command.BatchPolicy) []BatchResult {
	results := make([]BatchResult, len(keys))

	groups := make(map[batchGroupKey][]batchEntry)

	var order []batchGroupKey

	for i, key := range keys {
		digest, err := key.Digest()
		if err != nil {
			results[i] = BatchResult{Err: err}
			continue
		}

		node, err := locator.TargetNode(key.Namespace, digest.PartitionID(), false, partition.ReplicaPolicy(policy.ReplicaPolicy))
		if err != nil {
			results[i] = BatchResult{Err: err}
			continue
		}

		gk := batchGroupKey{node: node, namespace: key.Namespace, set: key.Set}

		if _, ok := groups[gk]; !ok {
			order = append(order, gk)
		}

		groups[gk] = append(groups[gk], batchEntry{index: i, digest: digest})
	}

	concurrency := policy.ConcurrentNodes
	if concurrency <= 0 {
		concurrency = len(order)
	}

	if concurrency == 0 {
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, gk := range order {
		gk, entries := gk, groups[gk]

		g.Go(func() error {
			err := batchDirect(gctx, locator, gk, entries, keys, selector, results)
			if err != nil && !policy.AllowPartialResults {
				return err
			}

			return nil
		})
	}

	_ = g.Wait()

	return results
}

// batchDirect runs one (node, namespace, set) group's batch-direct round
// trip: a single request carries every entry's digest in one
// batch-digest-array field, and the node replies with one per-key
// response message per entry, in request order.
func batchDirect(ctx context.Context, locator ClusterLocator, gk batchGroupKey, entries []batchEntry, keys []*types.Key, selector types.BinSelector, results []BatchResult) error {
	pool, ok := locator.Node(gk.node)
	if !ok {
		return fillErr(results, entries, errs.ErrNoAvailableNode)
	}

	c, err := pool.Acquire(ctx)
	if err != nil {
		return fillErr(results, entries, err)
	}

	if err := writeBatchDirectRequest(c, gk.namespace, gk.set, selector, entries); err != nil {
		pool.Release(c, false)
		return fillErr(results, entries, err)
	}

	for pos, e := range entries {
		record, resultCode, _, err := readBatchRecord(c, buffer.BePermissive)
		if err != nil {
			pool.Release(c, false)
			return fillErr(results, entries[pos:], err)
		}

		switch resultCode {
		case errs.ResultOK:
			record.Key = keys[e.index]
			results[e.index] = BatchResult{Record: record}
		case errs.ResultKeyNotFound:
			results[e.index] = BatchResult{Record: nil}
		default:
			results[e.index] = BatchResult{Err: errs.NewServerError(resultCode, gk.node)}
		}
	}

	pool.Release(c, true)

	return nil
}

func fillErr(results []BatchResult, entries []batchEntry, err error) error {
	for _, e := range entries {
		results[e.index] = BatchResult{Err: err}
	}

	return err
}

// writeBatchDirectRequest writes one namespace field, an optional set
// field, and a batch-digest-array field packing every entry's 20-byte
// digest, followed by the shared read-op list every digest in the group
// is answered against (§4.6 batch read request layout).
func writeBatchDirectRequest(c *conn.Conn, namespace, set string, selector types.BinSelector, entries []batchEntry) error {
	fields := buffer.NewArena(128)

	n := 1
	writeField(fields, fieldNamespace, []byte(namespace))

	if set != "" {
		n++
		writeField(fields, fieldSetName, []byte(set))
	}

	digestArray := buffer.NewArena(2 + len(entries)*20)
	digestArray.WriteUint16(uint16(len(entries)))

	for _, e := range entries {
		digestArray.WriteBytes(e.digest[:])
	}

	n++
	writeField(fields, fieldBatchDigestArray, digestArray.Bytes())

	info1 := info1Read | info1BatchRead
	nOps := 0

	switch {
	case selector.All:
		info1 |= info1GetAll
	case selector.None:
		// no ops, metadata only
	default:
		nOps = len(selector.Names)
	}

	header := buffer.NewArena(msgHeaderSize)
	writeHeader(header, requestHeader{
		Info1:   info1,
		NFields: uint16(n),
		NOps:    uint16(nOps),
	})

	full := buffer.NewArena(header.Len() + fields.Len())
	full.WriteBytes(header.Bytes())
	full.WriteBytes(fields.Bytes())

	for _, name := range selector.Names {
		writeReadOp(full, name)
	}

	if err := c.WriteMessage(conn.MsgTypeRequest, full.Bytes()); err != nil {
		return errs.Wrap(errs.KindConnection, err, "write batch request")
	}

	return nil
}
