package ops

import (
	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/command"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/buffer"
	"github.com/aerospike/aerospike-client-go-teachable/types"
)

// Put writes one or more bins to a record, creating it if absent (§4.6).
type Put struct {
	Key        *types.Key
	Bins       []types.Bin
	Expiration types.Expiration
	Policy     command.Policy

	locator Locator
}

func NewPut(locator Locator, key *types.Key, bins []types.Bin, expiration types.Expiration, policy command.Policy) *Put {
	return &Put{Key: key, Bins: bins, Expiration: expiration, Policy: policy, locator: locator}
}

// writes always target the partition's master replica, so TargetNode
// ignores any ReplicaPolicy (§4.5 "writes are never load-balanced").
func (p *Put) TargetNode() (string, error) {
	digest, err := p.Key.Digest()
	if err != nil {
		return "", err
	}

	return p.locator.TargetNode(p.Key.Namespace, digest.PartitionID(), true, 0)
}

func (p *Put) WriteRequest(c *conn.Conn) error {
	fields := buffer.NewArena(256)

	nFields, err := writeKeyFields(fields, p.Key, p.Policy.SendKey)
	if err != nil {
		return err
	}

	ops := buffer.NewArena(256)

	for _, bin := range p.Bins {
		if err := types.ValidateBinName(bin.Name); err != nil {
			return err
		}

		if err := writeBinOp(ops, OpWrite, bin); err != nil {
			return err
		}
	}

	info2 := info2Write
	info3 := byte(0)
	generation := uint32(0)
	writeGenerationBits(&info2, &info3, &generation, p.Policy)

	header := buffer.NewArena(msgHeaderSize)
	writeHeader(header, requestHeader{
		Info2:      info2,
		Info3:      info3,
		Generation: generation,
		Expiration: int32(p.Expiration),
		NFields:    uint16(nFields),
		NOps:       uint16(len(p.Bins)),
	})

	full := buffer.NewArena(header.Len() + fields.Len() + ops.Len())
	full.WriteBytes(header.Bytes())
	full.WriteBytes(fields.Bytes())
	full.WriteBytes(ops.Bytes())

	return c.WriteMessage(conn.MsgTypeRequest, full.Bytes())
}

func (p *Put) ParseResponse(c *conn.Conn) error {
	msgType, payload, err := c.ReadMessage()
	if err != nil {
		return err
	}

	if msgType != conn.MsgTypeRequest {
		return errs.New(errs.KindProtocol, "unexpected message type for put response")
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

func (p *Put) IsRetryable(err error) bool {
	if errs.IsKind(err, errs.KindServer) {
		serverErr, ok := err.(*errs.Error)
		return ok && errs.Retryable(serverErr.Code)
	}

	if errs.IsKind(err, errs.KindConnection) {
		return !errs.WasSent(err) || p.Idempotent()
	}

	return errs.IsKind(err, errs.KindNoAvailableNode)
}

// Idempotent reports true: Put overwrites the given bins with fixed
// values, so re-applying it after a lost response leaves the record in
// the same state as applying it once.
func (p *Put) Idempotent() bool {
	return true
}
