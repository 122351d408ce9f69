package ops

import (
	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/cluster/partition"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/buffer"
	"github.com/aerospike/aerospike-client-go-teachable/types"
)

// Exists checks whether a record is present without transferring bin data
// (§4.6).
type Exists struct {
	Key    *types.Key
	Policy partition.ReplicaPolicy

	locator Locator
	found   bool
}

func NewExists(locator Locator, key *types.Key, policy partition.ReplicaPolicy) *Exists {
	return &Exists{Key: key, Policy: policy, locator: locator}
}

func (e *Exists) TargetNode() (string, error) {
	digest, err := e.Key.Digest()
	if err != nil {
		return "", err
	}

	return e.locator.TargetNode(e.Key.Namespace, digest.PartitionID(), false, e.Policy)
}

func (e *Exists) WriteRequest(c *conn.Conn) error {
	fields := buffer.NewArena(128)

	nFields, err := writeKeyFields(fields, e.Key, false)
	if err != nil {
		return err
	}

	header := buffer.NewArena(msgHeaderSize)
	writeHeader(header, requestHeader{
		Info1:   info1Read | info1NoData,
		NFields: uint16(nFields),
	})

	full := buffer.NewArena(header.Len() + fields.Len())
	full.WriteBytes(header.Bytes())
	full.WriteBytes(fields.Bytes())

	return c.WriteMessage(conn.MsgTypeRequest, full.Bytes())
}

func (e *Exists) ParseResponse(c *conn.Conn) error {
	_, payload, err := c.ReadMessage()
	if err != nil {
		return err
	}

	h, _, err := readHeader(payload)
	if err != nil {
		return err
	}

	switch int(h.ResultCode) {
	case errs.ResultOK:
		e.found = true
		return nil
	case errs.ResultKeyNotFound:
		e.found = false
		return nil
	default:
		return errs.NewServerError(int(h.ResultCode), "")
	}
}

func (e *Exists) IsRetryable(err error) bool {
	if errs.IsKind(err, errs.KindServer) {
		serverErr, ok := err.(*errs.Error)
		return ok && errs.Retryable(serverErr.Code)
	}

	return errs.IsKind(err, errs.KindConnection) || errs.IsKind(err, errs.KindNoAvailableNode)
}

// Idempotent reports true: a read has no side effect to double-apply.
func (e *Exists) Idempotent() bool {
	return true
}

func (e *Exists) Found() bool {
	return e.found
}
