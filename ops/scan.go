package ops

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/command"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/buffer"
	"github.com/aerospike/aerospike-client-go-teachable/types"
)

// ScanNodes is everything Scan needs: name the master nodes to visit for a
// namespace, and resolve each to a connection pool (§4.6). Targeting only
// master nodes, not every known node, keeps a configured prole replica
// from streaming the same partition's records a second time.
type ScanNodes interface {
	MasterNodes(namespace string) []string
	command.NodeLocator
}

// RecordCallback is invoked once per record streamed back from a scan or
// query; returning false stops that node's stream early (§4.6).
type RecordCallback func(node string, rec *types.Record) bool

// Scan streams every record of namespace/set from every master node
// (nodes.MasterNodes) concurrently, bounded by policy.ConcurrentNodes (0
// means unbounded). Grounded on discoverSeeds' errgroup fan-out in package
// cluster, generalized here from "discover peers breadth-first" to "visit
// every master node exactly once".
func Scan(ctx context.Context, nodes ScanNodes, namespace, set string, policy command.ScanPolicy, fn RecordCallback) error {
	names := nodes.MasterNodes(namespace)

	concurrency := policy.ConcurrentNodes
	if concurrency <= 0 {
		concurrency = len(names)
	}

	if concurrency == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, name := range names {
		name := name

		g.Go(func() error {
			pool, ok := nodes.Node(name)
			if !ok {
				return nil
			}

			return scanNode(gctx, pool, namespace, set, name, fn)
		})
	}

	return g.Wait()
}

// maxClusterKeyRestarts bounds how many times scanNode will restart a
// node's stream from scratch after a ClusterKeyMismatch before giving up
// (§6, SUPPLEMENTED FEATURES "Cluster-key mismatch detection"). The wire
// format carries no digest cursor to resume from, so a restart re-scans
// the node's partitions from the beginning rather than seeking.
const maxClusterKeyRestarts = 3

func scanNode(ctx context.Context, pool command.NodePool, namespace, set, nodeName string, fn RecordCallback) error {
	for attempt := 0; ; attempt++ {
		err := scanNodeOnce(ctx, pool, namespace, set, nodeName, fn)
		if err == nil {
			return nil
		}

		if !errs.IsClusterKeyMismatch(err) || attempt >= maxClusterKeyRestarts {
			return err
		}
	}
}

// scanNodeOnce runs one attempt of a node's scan stream start-to-finish,
// returning a ClusterKeyMismatch error unresolved so scanNode can decide
// whether to restart it.
func scanNodeOnce(ctx context.Context, pool command.NodePool, namespace, set, nodeName string, fn RecordCallback) error {
	c, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}

	if err := writeScanRequest(c, namespace, set); err != nil {
		pool.Release(c, false)
		return err
	}

	for {
		record, done, err := readStreamRecord(c, buffer.BePermissive)
		if err != nil {
			pool.Release(c, errs.IsClusterKeyMismatch(err))
			return err
		}

		if done {
			pool.Release(c, true)
			return nil
		}

		if !fn(nodeName, record) {
			pool.Release(c, true)
			return nil
		}
	}
}

func writeScanRequest(c *conn.Conn, namespace, set string) error {
	fields := buffer.NewArena(64)

	n := 1
	writeField(fields, fieldNamespace, []byte(namespace))

	if set != "" {
		n++
		writeField(fields, fieldSetName, []byte(set))
	}

	header := buffer.NewArena(msgHeaderSize)
	writeHeader(header, requestHeader{
		Info1:   info1Read | info1GetAll,
		NFields: uint16(n),
	})

	full := buffer.NewArena(header.Len() + fields.Len())
	full.WriteBytes(header.Bytes())
	full.WriteBytes(fields.Bytes())

	if err := c.WriteMessage(conn.MsgTypeRequest, full.Bytes()); err != nil {
		return errs.Wrap(errs.KindConnection, err, "write scan request")
	}

	return nil
}
