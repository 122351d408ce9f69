package ops

import (
	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/command"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/buffer"
	"github.com/aerospike/aerospike-client-go-teachable/types"
)

// OperateStep is one entry in an Operate call's op list (§4.6 operate:
// read/write/add/append/prepend in a single round trip).
type OperateStep struct {
	Type byte // OpRead, OpWrite, OpAdd, OpAppend, OpPrepend
	Bin  types.Bin
}

// Operate executes a mixed list of read/write steps against one record
// atomically (§4.6).
type Operate struct {
	Key        *types.Key
	Steps      []OperateStep
	Expiration types.Expiration
	Policy     command.Policy

	locator Locator
	results []types.Bin
}

func NewOperate(locator Locator, key *types.Key, steps []OperateStep, expiration types.Expiration, policy command.Policy) *Operate {
	return &Operate{Key: key, Steps: steps, Expiration: expiration, Policy: policy, locator: locator}
}

// isWrite reports whether any step mutates the record; a mixed
// read+write Operate is targeted as a write (§4.5: any write pins to
// master).
func (o *Operate) isWrite() bool {
	for _, s := range o.Steps {
		if s.Type != OpRead {
			return true
		}
	}

	return false
}

// hasCumulativeStep reports whether any step accumulates onto the
// record's existing value (add/append/prepend) rather than replacing it
// outright. Re-applying such a step after a lost response double-applies
// it, so it is never safe to retry blindly (§4.5/§7).
func (o *Operate) hasCumulativeStep() bool {
	for _, s := range o.Steps {
		switch s.Type {
		case OpAdd, OpAppend, OpPrepend:
			return true
		}
	}

	return false
}

func (o *Operate) TargetNode() (string, error) {
	digest, err := o.Key.Digest()
	if err != nil {
		return "", err
	}

	return o.locator.TargetNode(o.Key.Namespace, digest.PartitionID(), o.isWrite(), 0)
}

func (o *Operate) WriteRequest(c *conn.Conn) error {
	fields := buffer.NewArena(128)

	nFields, err := writeKeyFields(fields, o.Key, o.Policy.SendKey)
	if err != nil {
		return err
	}

	ops := buffer.NewArena(256)

	for _, step := range o.Steps {
		if step.Type == OpRead {
			writeReadOp(ops, step.Bin.Name)
			continue
		}

		if err := types.ValidateBinName(step.Bin.Name); err != nil {
			return err
		}

		if err := writeBinOp(ops, step.Type, step.Bin); err != nil {
			return err
		}
	}

	info2 := byte(0)
	info3 := byte(0)
	generation := uint32(0)

	if o.isWrite() {
		info2 = info2Write
		writeGenerationBits(&info2, &info3, &generation, o.Policy)
	}

	header := buffer.NewArena(msgHeaderSize)
	writeHeader(header, requestHeader{
		Info1:      info1Read,
		Info2:      info2,
		Info3:      info3,
		Generation: generation,
		Expiration: int32(o.Expiration),
		NFields:    uint16(nFields),
		NOps:       uint16(len(o.Steps)),
	})

	full := buffer.NewArena(header.Len() + fields.Len() + ops.Len())
	full.WriteBytes(header.Bytes())
	full.WriteBytes(fields.Bytes())
	full.WriteBytes(ops.Bytes())

	return c.WriteMessage(conn.MsgTypeRequest, full.Bytes())
}

func (o *Operate) ParseResponse(c *conn.Conn) error {
	_, payload, err := c.ReadMessage()
	if err != nil {
		return err
	}

	record, err := parseRecord(o.Key, payload, buffer.Strict)
	if err != nil {
		return err
	}

	o.results = record.Bins

	return nil
}

func (o *Operate) IsRetryable(err error) bool {
	if errs.IsKind(err, errs.KindServer) {
		serverErr, ok := err.(*errs.Error)
		return ok && errs.Retryable(serverErr.Code)
	}

	if errs.IsKind(err, errs.KindConnection) {
		return !errs.WasSent(err) || o.Idempotent()
	}

	return errs.IsKind(err, errs.KindNoAvailableNode)
}

// Idempotent reports false when any step accumulates onto the record's
// existing value (OpAdd/OpAppend/OpPrepend), unless the caller opted into
// a generation check: a generation-guarded retry that lands on an
// already-applied write fails cleanly with a generation error instead of
// double-applying (§4.5/§7).
func (o *Operate) Idempotent() bool {
	if !o.hasCumulativeStep() {
		return true
	}

	return o.Policy.GenerationPolicy != command.GenerationPolicyNone
}

// Results returns the bins produced by the read/increment steps, in
// server response order.
func (o *Operate) Results() []types.Bin {
	return o.results
}
