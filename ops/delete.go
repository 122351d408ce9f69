package ops

import (
	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/buffer"
	"github.com/aerospike/aerospike-client-go-teachable/types"
)

// Delete removes a record (§4.6). DurableDelete controls whether the
// delete is recorded as a tombstone for XDR/eventual-consistency purposes
// rather than simply vanishing.
type Delete struct {
	Key            *types.Key
	DurableDelete  bool

	locator Locator

	existed bool
}

func NewDelete(locator Locator, key *types.Key, durableDelete bool) *Delete {
	return &Delete{Key: key, DurableDelete: durableDelete, locator: locator}
}

func (d *Delete) TargetNode() (string, error) {
	digest, err := d.Key.Digest()
	if err != nil {
		return "", err
	}

	return d.locator.TargetNode(d.Key.Namespace, digest.PartitionID(), true, 0)
}

func (d *Delete) WriteRequest(c *conn.Conn) error {
	fields := buffer.NewArena(128)

	nFields, err := writeKeyFields(fields, d.Key, false)
	if err != nil {
		return err
	}

	info2 := info2Write | info2Delete
	if d.DurableDelete {
		info2 |= info2DurableDelete
	}

	header := buffer.NewArena(msgHeaderSize)
	writeHeader(header, requestHeader{
		Info2:   info2,
		NFields: uint16(nFields),
	})

	full := buffer.NewArena(header.Len() + fields.Len())
	full.WriteBytes(header.Bytes())
	full.WriteBytes(fields.Bytes())

	return c.WriteMessage(conn.MsgTypeRequest, full.Bytes())
}

func (d *Delete) ParseResponse(c *conn.Conn) error {
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
		d.existed = true
		return nil
	case errs.ResultKeyNotFound:
		d.existed = false
		return nil
	default:
		return errs.NewServerError(int(h.ResultCode), "")
	}
}

func (d *Delete) IsRetryable(err error) bool {
	if errs.IsKind(err, errs.KindServer) {
		serverErr, ok := err.(*errs.Error)
		return ok && errs.Retryable(serverErr.Code)
	}

	return errs.IsKind(err, errs.KindConnection) || errs.IsKind(err, errs.KindNoAvailableNode)
}

// Idempotent reports true: deleting an already-deleted key just reports
// ResultKeyNotFound, the same terminal state a single delete reaches.
func (d *Delete) Idempotent() bool {
	return true
}

// Existed reports whether the record was present before this delete.
func (d *Delete) Existed() bool {
	return d.existed
}
