package ops

import (
	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/command"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/buffer"
	"github.com/aerospike/aerospike-client-go-teachable/types"
)

// Touch resets a record's TTL without transferring any bin data (§4.6).
type Touch struct {
	Key        *types.Key
	Expiration types.Expiration
	Policy     command.Policy

	locator Locator
}

func NewTouch(locator Locator, key *types.Key, expiration types.Expiration, policy command.Policy) *Touch {
	return &Touch{Key: key, Expiration: expiration, Policy: policy, locator: locator}
}

func (t *Touch) TargetNode() (string, error) {
	digest, err := t.Key.Digest()
	if err != nil {
		return "", err
	}

	return t.locator.TargetNode(t.Key.Namespace, digest.PartitionID(), true, 0)
}

func (t *Touch) WriteRequest(c *conn.Conn) error {
	fields := buffer.NewArena(128)

	nFields, err := writeKeyFields(fields, t.Key, false)
	if err != nil {
		return err
	}

	ops := buffer.NewArena(16)
	sizeSlot := ops.Reserve(4)
	start := ops.Offset()
	ops.WriteByte(OpTouch)
	ops.WriteByte(byte(types.ParticleNil))
	ops.WriteByte(0)
	ops.WriteByte(0)
	ops.BackpatchUint32(sizeSlot, uint32(ops.LenSince(start)))

	info2 := info2Write
	info3 := byte(0)
	generation := uint32(0)
	writeGenerationBits(&info2, &info3, &generation, t.Policy)

	header := buffer.NewArena(msgHeaderSize)
	writeHeader(header, requestHeader{
		Info2:      info2,
		Info3:      info3,
		Generation: generation,
		Expiration: int32(t.Expiration),
		NFields:    uint16(nFields),
		NOps:       1,
	})

	full := buffer.NewArena(header.Len() + fields.Len() + ops.Len())
	full.WriteBytes(header.Bytes())
	full.WriteBytes(fields.Bytes())
	full.WriteBytes(ops.Bytes())

	return c.WriteMessage(conn.MsgTypeRequest, full.Bytes())
}

func (t *Touch) ParseResponse(c *conn.Conn) error {
	_, payload, err := c.ReadMessage()
	if err != nil {
		return err
	}

	h, _, err := readHeader(payload)
	if err != nil {
		return err
	}

	if h.ResultCode != byte(errs.ResultOK) {
		return errs.NewServerError(int(h.ResultCode), "")
	}

	return nil
}

func (t *Touch) IsRetryable(err error) bool {
	if errs.IsKind(err, errs.KindServer) {
		serverErr, ok := err.(*errs.Error)
		return ok && errs.Retryable(serverErr.Code)
	}

	if errs.IsKind(err, errs.KindConnection) {
		return !errs.WasSent(err) || t.Idempotent()
	}

	return errs.IsKind(err, errs.KindNoAvailableNode)
}

// Idempotent reports true: resetting a record's expiration to the same
// value twice leaves it in the same state as doing so once.
func (t *Touch) Idempotent() bool {
	return true
}
