package ops

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/cluster/partition"
	"github.com/aerospike/aerospike-client-go-teachable/command"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/buffer"
	"github.com/aerospike/aerospike-client-go-teachable/types"
)

// fakeRecordServer is a minimal single-node Aerospike server stand-in: it
// understands writeKeyFields/writeBinOp's wire shape well enough to store
// and serve back bins, exercising the real encode/decode path end to end.
type fakeRecordServer struct {
	mu      sync.Mutex
	records map[string]*types.Record
}

func startFakeRecordServer(t *testing.T) string {
	t.Helper()

	srv := &fakeRecordServer{records: make(map[string]*types.Record)}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}

			go srv.serve(c)
		}
	}()

	return ln.Addr().String()
}

func (s *fakeRecordServer) serve(c net.Conn) {
	defer c.Close()

	for {
		_, payload, err := readRawFrame(c)
		if err != nil {
			return
		}

		for _, resp := range s.handle(payload) {
			if err := writeRawFrame(c, 3, resp); err != nil {
				return
			}
		}
	}
}

// handle dispatches one request frame and returns every response frame
// it produces -- exactly one for ordinary single-record commands, or one
// per requested digest for a batch-direct request (§4.6 batch read).
func (s *fakeRecordServer) handle(payload []byte) [][]byte {
	h, headerSize, err := readHeader(payload)
	if err != nil {
		return [][]byte{encodeResultHeader(byte(errs.ResultParameterError), 0)}
	}

	cursor := headerSize

	var (
		digestKey    string
		namespace    string
		setName      string
		batchDigests []string
	)

	for i := 0; i < int(h.NFields); i++ {
		typ, data, n, err := readField(payload[cursor:])
		if err != nil {
			return [][]byte{encodeResultHeader(byte(errs.ResultParameterError), 0)}
		}

		switch typ {
		case fieldDigest:
			digestKey = hex.EncodeToString(data)
		case fieldNamespace:
			namespace = string(data)
		case fieldSetName:
			setName = string(data)
		case fieldBatchDigestArray:
			if len(data) >= 2 {
				count := int(binary.BigEndian.Uint16(data[0:2]))
				for j := 0; j < count; j++ {
					start := 2 + j*20
					if start+20 > len(data) {
						break
					}

					batchDigests = append(batchDigests, hex.EncodeToString(data[start:start+20]))
				}
			}
		}

		cursor += n
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case h.Info1&info1BatchRead != 0:
		frames := make([][]byte, 0, len(batchDigests))

		for _, key := range batchDigests {
			rec, ok := s.records[key]
			if !ok {
				frames = append(frames, encodeBatchEntryResponse(byte(errs.ResultKeyNotFound), namespace, setName, nil))
				continue
			}

			frames = append(frames, encodeBatchEntryResponse(byte(errs.ResultOK), namespace, setName, rec.Bins))
		}

		return frames

	case h.Info2&info2Delete != 0:
		if _, ok := s.records[digestKey]; !ok {
			return [][]byte{encodeResultHeader(byte(errs.ResultKeyNotFound), 0)}
		}

		delete(s.records, digestKey)

		return [][]byte{encodeResultHeader(byte(errs.ResultOK), 0)}

	case h.Info2&info2Write != 0:
		rec, ok := s.records[digestKey]
		if !ok {
			rec = &types.Record{Bins: nil}
		}

		if h.Info2&(info2Generation|info2GenerationGT) != 0 {
			mismatch := h.Info2&info2Generation != 0 && h.Generation != rec.Generation
			notGreater := h.Info2&info2GenerationGT != 0 && h.Generation <= rec.Generation

			if mismatch || notGreater {
				return [][]byte{encodeResultHeader(byte(errs.ResultGenerationError), rec.Generation)}
			}
		}

		gen := rec.Generation + 1
		bins := append([]types.Bin(nil), rec.Bins...)
		readBack := make([]types.Bin, 0, h.NOps)

		for i := 0; i < int(h.NOps); i++ {
			opType, bin, n, err := readBinOp(payload[cursor:], buffer.BePermissive)
			if err != nil {
				return [][]byte{encodeResultHeader(byte(errs.ResultParameterError), 0)}
			}

			cursor += n

			if opType == OpRead {
				if v, ok := lookupBin(bins, bin.Name); ok {
					readBack = append(readBack, types.Bin{Name: bin.Name, Value: v})
				}

				continue
			}

			bins = upsertBin(bins, bin)
		}

		s.records[digestKey] = &types.Record{Generation: gen, Expiration: types.Expiration(h.Expiration), Bins: bins}

		if len(readBack) > 0 {
			return [][]byte{encodeRecordResponse(&types.Record{Generation: gen, Expiration: types.Expiration(h.Expiration), Bins: readBack})}
		}

		return [][]byte{encodeResultHeader(byte(errs.ResultOK), gen)}

	case h.Info1&(info1Read|info1NoData) != 0:
		rec, ok := s.records[digestKey]
		if !ok {
			return [][]byte{encodeResultHeader(byte(errs.ResultKeyNotFound), 0)}
		}

		if h.Info1&info1NoData != 0 {
			return [][]byte{encodeResultHeader(byte(errs.ResultOK), rec.Generation)}
		}

		return [][]byte{encodeRecordResponse(rec)}

	default:
		return [][]byte{encodeResultHeader(byte(errs.ResultParameterError), 0)}
	}
}

func lookupBin(bins []types.Bin, name string) (types.Value, bool) {
	for _, b := range bins {
		if b.Name == name {
			return b.Value, true
		}
	}

	return nil, false
}

func upsertBin(bins []types.Bin, bin types.Bin) []types.Bin {
	for i, b := range bins {
		if b.Name == bin.Name {
			bins[i] = bin
			return bins
		}
	}

	return append(bins, bin)
}

func encodeResultHeader(code byte, generation uint32) []byte {
	a := buffer.NewArena(msgHeaderSize)
	writeHeader(a, requestHeader{ResultCode: code, Generation: generation})

	return a.Bytes()
}

func encodeRecordResponse(rec *types.Record) []byte {
	header := buffer.NewArena(msgHeaderSize)
	writeHeader(header, requestHeader{
		ResultCode: byte(errs.ResultOK),
		Generation: rec.Generation,
		Expiration: int32(rec.Expiration),
		NOps:       uint16(len(rec.Bins)),
	})

	ops := buffer.NewArena(256)

	for _, bin := range rec.Bins {
		_ = writeBinOp(ops, OpRead, bin)
	}

	full := buffer.NewArena(header.Len() + ops.Len())
	full.WriteBytes(header.Bytes())
	full.WriteBytes(ops.Bytes())

	return full.Bytes()
}

// encodeBatchEntryResponse builds one per-key response message of a
// batch-direct reply stream, carrying namespace/set fields and the
// record's bins (or none, for a not-found entry reported via code).
func encodeBatchEntryResponse(code byte, namespace, set string, bins []types.Bin) []byte {
	fields := buffer.NewArena(64)

	n := 0
	if namespace != "" {
		n++
		writeField(fields, fieldNamespace, []byte(namespace))
	}

	if set != "" {
		n++
		writeField(fields, fieldSetName, []byte(set))
	}

	ops := buffer.NewArena(256)
	for _, bin := range bins {
		_ = writeBinOp(ops, OpRead, bin)
	}

	header := buffer.NewArena(msgHeaderSize)
	writeHeader(header, requestHeader{
		ResultCode: code,
		NFields:    uint16(n),
		NOps:       uint16(len(bins)),
	})

	full := buffer.NewArena(header.Len() + fields.Len() + ops.Len())
	full.WriteBytes(header.Bytes())
	full.WriteBytes(fields.Bytes())
	full.WriteBytes(ops.Bytes())

	return full.Bytes()
}

// readRawFrame/writeRawFrame mirror cluster/conn's private framing for the
// server side of the wire; duplicated here the same way the node and
// cluster packages' tests do, since the framing helpers are intentionally
// unexported.
func readRawFrame(c net.Conn) (byte, []byte, error) {
	var header [8]byte
	if _, err := readFullOps(c, header[:]); err != nil {
		return 0, nil, err
	}

	msgType := header[1]
	size := uint64(header[2])<<40 | uint64(header[3])<<32 | uint64(header[4])<<24 |
		uint64(header[5])<<16 | uint64(header[6])<<8 | uint64(header[7])

	payload := make([]byte, size)
	if _, err := readFullOps(c, payload); err != nil {
		return 0, nil, err
	}

	return msgType, payload, nil
}

func writeRawFrame(c net.Conn, msgType byte, payload []byte) error {
	var header [8]byte
	header[0] = 2
	header[1] = msgType

	size := uint64(len(payload))
	header[2] = byte(size >> 40)
	header[3] = byte(size >> 32)
	header[4] = byte(size >> 24)
	header[5] = byte(size >> 16)
	header[6] = byte(size >> 8)
	header[7] = byte(size)

	if _, err := c.Write(header[:]); err != nil {
		return err
	}

	_, err := c.Write(payload)

	return err
}

func readFullOps(c net.Conn, buf []byte) (int, error) {
	total := 0

	for total < len(buf) {
		n, err := c.Read(buf[total:])
		if err != nil {
			return total, err
		}

		total += n
	}

	return total, nil
}

type testPool struct {
	addr string
}

func (p testPool) Acquire(ctx context.Context) (*conn.Conn, error) {
	return conn.Dial(ctx, "n1", p.addr)
}

func (p testPool) Release(c *conn.Conn, used bool) {
	_ = c.Close()
}

type testLocator struct {
	addr string
}

func (l testLocator) TargetNode(namespace string, partitionID int, isWrite bool, policy partition.ReplicaPolicy) (string, error) {
	return "n1", nil
}

func (l testLocator) Node(name string) (command.NodePool, bool) {
	return testPool{addr: l.addr}, true
}

func TestOps_PutThenGet(t *testing.T) {
	addr := startFakeRecordServer(t)
	locator := testLocator{addr: addr}

	key, err := types.NewKey("test", "demo", types.StringValue("k1"))
	require.NoError(t, err)

	put := NewPut(locator, key, []types.Bin{{Name: "x", Value: types.IntValue(42)}}, types.Never, command.DefaultPolicy())
	require.NoError(t, command.Execute(context.Background(), locator, put, command.DefaultPolicy()))

	get := NewGet(locator, key, types.SelectAllBins(), 0)
	require.NoError(t, command.Execute(context.Background(), locator, get, command.DefaultPolicy()))

	rec := get.Record()
	require.NotNil(t, rec)

	v, ok := rec.Bin("x")
	require.True(t, ok)
	assert.Equal(t, types.IntValue(42), v)
}

func TestOps_GetMissingKey(t *testing.T) {
	addr := startFakeRecordServer(t)
	locator := testLocator{addr: addr}

	key, err := types.NewKey("test", "demo", types.StringValue("missing"))
	require.NoError(t, err)

	get := NewGet(locator, key, types.SelectAllBins(), 0)

	err = command.Execute(context.Background(), locator, get, command.DefaultPolicy())
	assert.True(t, errs.IsKind(err, errs.KindServer))
}

func TestOps_PutThenDeleteThenExists(t *testing.T) {
	addr := startFakeRecordServer(t)
	locator := testLocator{addr: addr}

	key, err := types.NewKey("test", "demo", types.IntValue(7))
	require.NoError(t, err)

	put := NewPut(locator, key, []types.Bin{{Name: "a", Value: types.StringValue("v")}}, types.Never, command.DefaultPolicy())
	require.NoError(t, command.Execute(context.Background(), locator, put, command.DefaultPolicy()))

	exists := NewExists(locator, key, partition.Master)
	require.NoError(t, command.Execute(context.Background(), locator, exists, command.DefaultPolicy()))
	assert.True(t, exists.Found())

	del := NewDelete(locator, key, false)
	require.NoError(t, command.Execute(context.Background(), locator, del, command.DefaultPolicy()))
	assert.True(t, del.Existed())

	exists2 := NewExists(locator, key, partition.Master)
	require.NoError(t, command.Execute(context.Background(), locator, exists2, command.DefaultPolicy()))
	assert.False(t, exists2.Found())
}

func TestOps_Operate_MixedReadWrite(t *testing.T) {
	addr := startFakeRecordServer(t)
	locator := testLocator{addr: addr}

	key, err := types.NewKey("test", "demo", types.StringValue("op1"))
	require.NoError(t, err)

	put := NewPut(locator, key, []types.Bin{{Name: "count", Value: types.IntValue(1)}}, types.Never, command.DefaultPolicy())
	require.NoError(t, command.Execute(context.Background(), locator, put, command.DefaultPolicy()))

	op := NewOperate(locator, key, []OperateStep{
		{Type: OpWrite, Bin: types.Bin{Name: "count", Value: types.IntValue(2)}},
		{Type: OpRead, Bin: types.Bin{Name: "count"}},
	}, types.DontUpdate, command.DefaultPolicy())

	require.NoError(t, command.Execute(context.Background(), locator, op, command.DefaultPolicy()))

	results := op.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "count", results[0].Name)
	assert.Equal(t, types.IntValue(2), results[0].Value)
}

func TestOps_Put_GenerationGuardFailsOnMismatch(t *testing.T) {
	addr := startFakeRecordServer(t)
	locator := testLocator{addr: addr}

	key, err := types.NewKey("test", "demo", types.StringValue("gen1"))
	require.NoError(t, err)

	put := NewPut(locator, key, []types.Bin{{Name: "v", Value: types.IntValue(1)}}, types.Never, command.DefaultPolicy())
	require.NoError(t, command.Execute(context.Background(), locator, put, command.DefaultPolicy()))

	guarded := command.DefaultPolicy()
	guarded.GenerationPolicy = command.GenerationPolicyExpectGenEqual
	guarded.Generation = 999

	bad := NewPut(locator, key, []types.Bin{{Name: "v", Value: types.IntValue(2)}}, types.Never, guarded)

	err = command.Execute(context.Background(), locator, bad, guarded)
	require.Error(t, err)

	serverErr, ok := err.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, errs.ResultGenerationError, serverErr.Code)
}

func TestOps_Operate_NonIdempotentStepNotRetriedAfterSend(t *testing.T) {
	key, err := types.NewKey("test", "demo", types.StringValue("op-add"))
	require.NoError(t, err)

	op := NewOperate(testLocator{addr: "unused"}, key, []OperateStep{
		{Type: OpAdd, Bin: types.Bin{Name: "count", Value: types.IntValue(1)}},
	}, types.DontUpdate, command.DefaultPolicy())

	assert.False(t, op.Idempotent())

	lost := errs.MarkSent(errs.New(errs.KindConnection, "response lost"))
	assert.False(t, op.IsRetryable(lost))

	notSent := errs.New(errs.KindConnection, "dial failed")
	assert.True(t, op.IsRetryable(notSent))

	guarded := command.DefaultPolicy()
	guarded.GenerationPolicy = command.GenerationPolicyExpectGenGT

	guardedOp := NewOperate(testLocator{addr: "unused"}, key, []OperateStep{
		{Type: OpAdd, Bin: types.Bin{Name: "count", Value: types.IntValue(1)}},
	}, types.DontUpdate, guarded)

	assert.True(t, guardedOp.IsRetryable(lost))
}

func TestOps_BatchGet_PreservesOrderAndReportsMissingInline(t *testing.T) {
	addr := startFakeRecordServer(t)
	locator := testLocator{addr: addr}

	keyA, err := types.NewKey("test", "demo", types.StringValue("batch-a"))
	require.NoError(t, err)
	keyB, err := types.NewKey("test", "demo", types.StringValue("batch-b"))
	require.NoError(t, err)
	keyMissing, err := types.NewKey("test", "demo", types.StringValue("batch-missing"))
	require.NoError(t, err)

	putA := NewPut(locator, keyA, []types.Bin{{Name: "v", Value: types.IntValue(1)}}, types.Never, command.DefaultPolicy())
	require.NoError(t, command.Execute(context.Background(), locator, putA, command.DefaultPolicy()))

	putB := NewPut(locator, keyB, []types.Bin{{Name: "v", Value: types.IntValue(2)}}, types.Never, command.DefaultPolicy())
	require.NoError(t, command.Execute(context.Background(), locator, putB, command.DefaultPolicy()))

	results := BatchGet(context.Background(), locator, []*types.Key{keyA, keyB, keyMissing}, types.SelectAllBins(), command.DefaultBatchPolicy())
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	require.NotNil(t, results[0].Record)
	v, ok := results[0].Record.Bin("v")
	require.True(t, ok)
	assert.Equal(t, types.IntValue(1), v)

	require.NoError(t, results[1].Err)
	require.NotNil(t, results[1].Record)
	v, ok = results[1].Record.Bin("v")
	require.True(t, ok)
	assert.Equal(t, types.IntValue(2), v)

	require.NoError(t, results[2].Err)
	assert.Nil(t, results[2].Record)
}
