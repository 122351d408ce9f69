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

// IndexFilter narrows a Query to records whose bin matches an equality or
// range predicate on a secondary index (§4.6 query).
type IndexFilter struct {
	BinName string
	Begin   types.Value
	End     types.Value // equal to Begin for an equality filter
}

// fieldIndexFilter tags the packed filter field appended to a query
// request, alongside the namespace/set fields already used by Scan.
const fieldIndexFilter byte = 10

// Query streams records matching filter from namespace/set across every
// master node concurrently, the same fan-out shape as Scan with one extra wire
// field carrying the packed index predicate (§4.6).
func Query(ctx context.Context, nodes ScanNodes, namespace, set string, filter IndexFilter, policy command.QueryPolicy, fn RecordCallback) error {
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

			return queryNode(gctx, pool, namespace, set, filter, name, fn)
		})
	}

	return g.Wait()
}

func queryNode(ctx context.Context, pool command.NodePool, namespace, set string, filter IndexFilter, nodeName string, fn RecordCallback) error {
	for attempt := 0; ; attempt++ {
		err := queryNodeOnce(ctx, pool, namespace, set, filter, nodeName, fn)
		if err == nil {
			return nil
		}

		if !errs.IsClusterKeyMismatch(err) || attempt >= maxClusterKeyRestarts {
			return err
		}
	}
}

// queryNodeOnce runs one attempt of a node's query stream start-to-finish,
// mirroring scanNodeOnce so a ClusterKeyMismatch mid-stream (§6) can be
// restarted by Query the same way Scan restarts it.
func queryNodeOnce(ctx context.Context, pool command.NodePool, namespace, set string, filter IndexFilter, nodeName string, fn RecordCallback) error {
	c, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}

	if err := writeQueryRequest(c, namespace, set, filter); err != nil {
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

func writeQueryRequest(c *conn.Conn, namespace, set string, filter IndexFilter) error {
	fields := buffer.NewArena(128)

	n := 1
	writeField(fields, fieldNamespace, []byte(namespace))

	if set != "" {
		n++
		writeField(fields, fieldSetName, []byte(set))
	}

	filterArena := buffer.NewArena(64)
	filterArena.WriteByte(byte(len(filter.BinName)))
	filterArena.WriteBytes([]byte(filter.BinName))

	if err := buffer.EncodeValue(filterArena, filter.Begin); err != nil {
		return err
	}

	if err := buffer.EncodeValue(filterArena, filter.End); err != nil {
		return err
	}

	n++
	writeField(fields, fieldIndexFilter, filterArena.Bytes())

	header := buffer.NewArena(msgHeaderSize)
	writeHeader(header, requestHeader{
		Info1:   info1Read,
		NFields: uint16(n),
	})

	full := buffer.NewArena(header.Len() + fields.Len())
	full.WriteBytes(header.Bytes())
	full.WriteBytes(fields.Bytes())

	if err := c.WriteMessage(conn.MsgTypeRequest, full.Bytes()); err != nil {
		return errs.Wrap(errs.KindConnection, err, "write query request")
	}

	return nil
}
