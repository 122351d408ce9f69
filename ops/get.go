package ops

import (
	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/cluster/partition"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/buffer"
	"github.com/aerospike/aerospike-client-go-teachable/types"
)

// Locator resolves a key to a target node name, implemented by the client
// façade over the Cluster's partition tables (§4.4/§4.5).
type Locator interface {
	TargetNode(namespace string, partitionID int, isWrite bool, policy partition.ReplicaPolicy) (string, error)
}

// Get reads some or all bins of a record (§4.6). It implements
// command.Command so it can be driven by command.Execute's retry loop.
type Get struct {
	Key      *types.Key
	Selector types.BinSelector
	Policy   partition.ReplicaPolicy

	locator Locator
	record  *types.Record
}

func NewGet(locator Locator, key *types.Key, selector types.BinSelector, policy partition.ReplicaPolicy) *Get {
	return &Get{Key: key, Selector: selector, Policy: policy, locator: locator}
}

func (g *Get) TargetNode() (string, error) {
	digest, err := g.Key.Digest()
	if err != nil {
		return "", err
	}

	return g.locator.TargetNode(g.Key.Namespace, digest.PartitionID(), false, g.Policy)
}

func (g *Get) WriteRequest(c *conn.Conn) error {
	a := buffer.NewArena(256)

	nFields, err := writeKeyFields(a, g.Key, false)
	if err != nil {
		return err
	}

	info1 := info1Read
	nOps := 0

	switch {
	case g.Selector.All:
		info1 |= info1GetAll
	case g.Selector.None:
		// no ops, metadata only
	default:
		nOps = len(g.Selector.Names)
	}

	header := buffer.NewArena(msgHeaderSize)
	writeHeader(header, requestHeader{
		Info1:   info1,
		NFields: uint16(nFields),
		NOps:    uint16(nOps),
	})

	full := buffer.NewArena(header.Len() + a.Len())
	full.WriteBytes(header.Bytes())
	full.WriteBytes(a.Bytes())

	for _, name := range g.Selector.Names {
		writeReadOp(full, name)
	}

	return c.WriteMessage(conn.MsgTypeRequest, full.Bytes())
}

func (g *Get) ParseResponse(c *conn.Conn) error {
	msgType, payload, err := c.ReadMessage()
	if err != nil {
		return err
	}

	if msgType != conn.MsgTypeRequest {
		return errs.New(errs.KindProtocol, "unexpected message type for get response")
	}

	record, err := parseRecord(g.Key, payload, buffer.Strict)
	if err != nil {
		return err
	}

	g.record = record

	return nil
}

func (g *Get) IsRetryable(err error) bool {
	if errs.IsKind(err, errs.KindServer) {
		serverErr, ok := err.(*errs.Error)
		return ok && errs.Retryable(serverErr.Code)
	}

	return errs.IsKind(err, errs.KindConnection) || errs.IsKind(err, errs.KindNoAvailableNode)
}

// Idempotent reports true: a read has no side effect to double-apply.
func (g *Get) Idempotent() bool {
	return true
}

// Record returns the decoded record after a successful Execute.
func (g *Get) Record() *types.Record {
	return g.record
}
