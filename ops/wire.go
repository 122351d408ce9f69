// Package ops implements the CRUD/batch/scan/query operations (C6). Each
// file implements command.Command for one operation; this file holds the
// single-record AerospikeMessage encoding they share: a fixed header,
// length-prefixed fields (namespace/set/digest/user-key), and
// length-prefixed bin operations. Grounded on internal/binario's
// fixed-width-field writer idiom and internal/buffer's reserve/back-patch
// Arena, generalized from the teacher's LSM record format to the
// AerospikeMessage shape from §4.2/§6.
package ops

import (
	"encoding/binary"

	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/command"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/buffer"
	"github.com/aerospike/aerospike-client-go-teachable/types"
)

const msgHeaderSize = 22

// info1 flags (request, first info byte).
const (
	info1Read      byte = 1 << 0
	info1GetAll    byte = 1 << 1
	info1ShortQuery byte = 1 << 2
	info1BatchRead byte = 1 << 3
	info1NoData    byte = 1 << 4
)

// info2 flags (request, second info byte).
const (
	info2Write          byte = 1 << 0
	info2Delete         byte = 1 << 1
	info2Generation     byte = 1 << 2
	info2GenerationGT   byte = 1 << 3
	info2DurableDelete  byte = 1 << 4
)

// info3 flags (request/response, third info byte).
const (
	info3Last           byte = 1 << 0
	info3UpdateOnly     byte = 1 << 1
	info3CreateOnly     byte = 1 << 2
	info3CommitMasterOnly byte = 1 << 4
)

// Field types tagging the length-prefixed fields that follow the header
// (§4.2, §6).
const (
	fieldNamespace        byte = 0
	fieldSetName          byte = 1
	fieldDigest           byte = 2
	fieldUserKey          byte = 3
	fieldBatchDigestArray byte = 4
)

// Op types tagging each bin operation (§4.6 operate).
const (
	OpRead       byte = 1
	OpWrite      byte = 2
	OpAdd        byte = 3
	OpAppend     byte = 4
	OpPrepend    byte = 5
	OpTouch      byte = 6
	OpDelete     byte = 7
)

// requestHeader mirrors the fixed 22-byte AerospikeMessage header.
type requestHeader struct {
	Info1       byte
	Info2       byte
	Info3       byte
	ResultCode  byte
	Generation  uint32
	Expiration  int32
	Timeout     uint32
	NFields     uint16
	NOps        uint16
}

func writeHeader(a *buffer.Arena, h requestHeader) {
	a.WriteByte(msgHeaderSize)
	a.WriteByte(h.Info1)
	a.WriteByte(h.Info2)
	a.WriteByte(h.Info3)
	a.WriteByte(0) // unused
	a.WriteByte(h.ResultCode)
	a.WriteUint32(h.Generation)
	a.WriteUint32(uint32(h.Expiration))
	a.WriteUint32(h.Timeout)
	a.WriteUint16(h.NFields)
	a.WriteUint16(h.NOps)
}

func readHeader(b []byte) (requestHeader, int, error) {
	if len(b) < msgHeaderSize {
		return requestHeader{}, 0, errs.New(errs.KindProtocol, "short message header")
	}

	headerSize := int(b[0])
	if headerSize < msgHeaderSize {
		return requestHeader{}, 0, errs.New(errs.KindProtocol, "invalid message header size")
	}

	h := requestHeader{
		Info1:      b[1],
		Info2:      b[2],
		Info3:      b[3],
		ResultCode: b[5],
		Generation: binary.BigEndian.Uint32(b[6:10]),
		Expiration: int32(binary.BigEndian.Uint32(b[10:14])),
		Timeout:    binary.BigEndian.Uint32(b[14:18]),
		NFields:    binary.BigEndian.Uint16(b[18:20]),
		NOps:       binary.BigEndian.Uint16(b[20:22]),
	}

	return h, headerSize, nil
}

// writeField appends a [4-byte size][1-byte type][data] field, size
// covering the type byte and data but not the size field itself.
func writeField(a *buffer.Arena, typ byte, data []byte) {
	a.WriteUint32(uint32(len(data) + 1))
	a.WriteByte(typ)
	a.WriteBytes(data)
}

func readField(b []byte) (typ byte, data []byte, consumed int, err error) {
	if len(b) < 5 {
		return 0, nil, 0, errs.New(errs.KindProtocol, "truncated field header")
	}

	size := binary.BigEndian.Uint32(b[0:4])
	if size < 1 || len(b) < int(4+size) {
		return 0, nil, 0, errs.New(errs.KindProtocol, "truncated field data")
	}

	typ = b[4]
	data = b[5 : 4+size]

	return typ, data, int(4 + size), nil
}

// writeKeyFields appends the namespace/set/digest fields (and the
// user-key field when sendKey is set) for key, returning the number of
// fields written.
func writeKeyFields(a *buffer.Arena, key *types.Key, sendKey bool) (int, error) {
	writeField(a, fieldNamespace, []byte(key.Namespace))
	writeField(a, fieldSetName, []byte(key.Set))

	digest, err := key.Digest()
	if err != nil {
		return 0, err
	}

	writeField(a, fieldDigest, digest[:])

	n := 3

	if sendKey && key.UserKey != nil {
		ka := buffer.NewArena(32)
		if err := buffer.EncodeValue(ka, key.UserKey); err != nil {
			return 0, err
		}

		writeField(a, fieldUserKey, ka.Bytes())
		n++
	}

	return n, nil
}

// writeGenerationBits folds a write policy's generation check and commit
// level into info2/info3 flags and the header's generation field (§4.6,
// §8 scenario 3).
func writeGenerationBits(info2, info3 *byte, generation *uint32, policy command.Policy) {
	switch policy.GenerationPolicy {
	case command.GenerationPolicyExpectGenEqual:
		*info2 |= info2Generation
		*generation = policy.Generation
	case command.GenerationPolicyExpectGenGT:
		*info2 |= info2GenerationGT
		*generation = policy.Generation
	}

	if policy.CommitLevel == command.CommitMaster {
		*info3 |= info3CommitMasterOnly
	}
}

// writeBinOp appends one [size][op_type][particle_type][version][name_len]
// [name][payload] operation.
func writeBinOp(a *buffer.Arena, opType byte, bin types.Bin) error {
	sizeSlot := a.Reserve(4)
	start := a.Offset()

	a.WriteByte(opType)
	a.WriteByte(byte(bin.Value.ParticleType()))
	a.WriteByte(0) // version, unused
	a.WriteByte(byte(len(bin.Name)))
	a.WriteBytes([]byte(bin.Name))

	if err := buffer.WritePayload(a, bin.Value); err != nil {
		return err
	}

	a.BackpatchUint32(sizeSlot, uint32(a.LenSince(start)))

	return nil
}

// writeReadOp appends a bare op requesting bin by name with no value
// payload (a read request carries no particle).
func writeReadOp(a *buffer.Arena, name string) {
	sizeSlot := a.Reserve(4)
	start := a.Offset()

	a.WriteByte(OpRead)
	a.WriteByte(byte(types.ParticleNil))
	a.WriteByte(0)
	a.WriteByte(byte(len(name)))
	a.WriteBytes([]byte(name))

	a.BackpatchUint32(sizeSlot, uint32(a.LenSince(start)))
}

// readBinOp decodes one operation from the response stream, returning its
// op type, the bin it carries, and the number of bytes consumed.
func readBinOp(b []byte, permissive buffer.Permissive) (opType byte, bin types.Bin, consumed int, err error) {
	if len(b) < 4 {
		return 0, types.Bin{}, 0, errs.New(errs.KindProtocol, "truncated op header")
	}

	size := binary.BigEndian.Uint32(b[0:4])
	if len(b) < int(4+size) {
		return 0, types.Bin{}, 0, errs.New(errs.KindProtocol, "truncated op body")
	}

	body := b[4 : 4+size]
	if len(body) < 4 {
		return 0, types.Bin{}, 0, errs.New(errs.KindProtocol, "truncated op fields")
	}

	opType = body[0]
	particleType := types.ParticleType(body[1])
	nameLen := int(body[3])

	if len(body) < 4+nameLen {
		return 0, types.Bin{}, 0, errs.New(errs.KindProtocol, "truncated op name")
	}

	name := string(body[4 : 4+nameLen])
	payload := body[4+nameLen:]

	val, err := buffer.ReadPayload(particleType, payload, permissive)
	if err != nil {
		return 0, types.Bin{}, 0, err
	}

	return opType, types.Bin{Name: name, Value: val}, int(4 + size), nil
}

// readStreamRecord reads one record out of a multi-record response stream
// (scan/query, §4.6), returning done=true once the server's terminating
// empty message (info3Last set, no fields or ops) has been consumed.
func readStreamRecord(c *conn.Conn, permissive buffer.Permissive) (record *types.Record, done bool, err error) {
	msgType, payload, err := c.ReadMessage()
	if err != nil {
		return nil, false, err
	}

	if msgType != conn.MsgTypeRequest {
		return nil, false, errs.New(errs.KindProtocol, "unexpected message type in record stream")
	}

	h, headerSize, err := readHeader(payload)
	if err != nil {
		return nil, false, err
	}

	if h.Info3&info3Last != 0 && h.NFields == 0 && h.NOps == 0 {
		return nil, true, nil
	}

	if h.ResultCode != byte(errs.ResultOK) {
		return nil, false, errs.NewServerError(int(h.ResultCode), "")
	}

	cursor := headerSize

	key := &types.Key{Namespace: ""}

	for i := 0; i < int(h.NFields); i++ {
		typ, data, n, ferr := readField(payload[cursor:])
		if ferr != nil {
			return nil, false, ferr
		}

		switch typ {
		case fieldNamespace:
			key.Namespace = string(data)
		case fieldSetName:
			key.Set = string(data)
		}

		cursor += n
	}

	bins := make([]types.Bin, 0, h.NOps)

	for i := 0; i < int(h.NOps); i++ {
		_, bin, n, berr := readBinOp(payload[cursor:], permissive)
		if berr != nil {
			return nil, false, berr
		}

		bins = append(bins, bin)
		cursor += n
	}

	return &types.Record{
		Key:        key,
		Generation: h.Generation,
		Expiration: types.Expiration(h.Expiration),
		Bins:       bins,
	}, false, nil
}

// readBatchRecord reads one entry out of a batch-direct response stream.
// Unlike readStreamRecord, a non-OK per-key result code (typically
// ResultKeyNotFound) is reported via resultCode rather than aborting the
// whole stream -- a batch read tolerates individual missing keys and
// reports them inline (§4.6 batch read, §8 scenario 5: "absent keys
// represented as not found entries inline").
func readBatchRecord(c *conn.Conn, permissive buffer.Permissive) (record *types.Record, resultCode int, done bool, err error) {
	msgType, payload, err := c.ReadMessage()
	if err != nil {
		return nil, 0, false, err
	}

	if msgType != conn.MsgTypeRequest {
		return nil, 0, false, errs.New(errs.KindProtocol, "unexpected message type in batch stream")
	}

	h, headerSize, err := readHeader(payload)
	if err != nil {
		return nil, 0, false, err
	}

	if h.Info3&info3Last != 0 && h.NFields == 0 && h.NOps == 0 {
		return nil, 0, true, nil
	}

	cursor := headerSize

	key := &types.Key{}

	for i := 0; i < int(h.NFields); i++ {
		typ, data, n, ferr := readField(payload[cursor:])
		if ferr != nil {
			return nil, 0, false, ferr
		}

		switch typ {
		case fieldNamespace:
			key.Namespace = string(data)
		case fieldSetName:
			key.Set = string(data)
		}

		cursor += n
	}

	if h.ResultCode != byte(errs.ResultOK) {
		return &types.Record{Key: key}, int(h.ResultCode), false, nil
	}

	bins := make([]types.Bin, 0, h.NOps)

	for i := 0; i < int(h.NOps); i++ {
		_, bin, n, berr := readBinOp(payload[cursor:], permissive)
		if berr != nil {
			return nil, 0, false, berr
		}

		bins = append(bins, bin)
		cursor += n
	}

	return &types.Record{
		Key:        key,
		Generation: h.Generation,
		Expiration: types.Expiration(h.Expiration),
		Bins:       bins,
	}, int(h.ResultCode), false, nil
}

// parseRecord decodes the header, key-identity fields (skipped, already
// known by the caller), and bin operations of a single-record response
// payload into a types.Record.
func parseRecord(key *types.Key, payload []byte, permissive buffer.Permissive) (*types.Record, error) {
	h, headerSize, err := readHeader(payload)
	if err != nil {
		return nil, err
	}

	if h.ResultCode != byte(errs.ResultOK) {
		return nil, errs.NewServerError(int(h.ResultCode), "")
	}

	cursor := headerSize

	for i := 0; i < int(h.NFields); i++ {
		_, _, n, err := readField(payload[cursor:])
		if err != nil {
			return nil, err
		}

		cursor += n
	}

	bins := make([]types.Bin, 0, h.NOps)

	for i := 0; i < int(h.NOps); i++ {
		_, bin, n, err := readBinOp(payload[cursor:], permissive)
		if err != nil {
			return nil, err
		}

		bins = append(bins, bin)
		cursor += n
	}

	return &types.Record{
		Key:        key,
		Generation: h.Generation,
		Expiration: types.Expiration(h.Expiration),
		Bins:       bins,
	}, nil
}
