package ops

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/buffer"
	"github.com/aerospike/aerospike-client-go-teachable/types"
)

// clusterKeyMismatchServer answers the first mismatchFor connections to any
// node's stream with ResultClusterKeyMismatch, then serves an immediate
// terminating frame -- enough to exercise scanNode/queryNode's
// restart-on-mismatch path (§6, SUPPLEMENTED FEATURES "Cluster-key mismatch
// detection").
type clusterKeyMismatchServer struct {
	mismatchFor int

	mu    sync.Mutex
	conns int
}

func startClusterKeyMismatchServer(t *testing.T, mismatchFor int) (string, *clusterKeyMismatchServer) {
	t.Helper()

	srv := &clusterKeyMismatchServer{mismatchFor: mismatchFor}

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

	return ln.Addr().String(), srv
}

func (s *clusterKeyMismatchServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conns
}

func (s *clusterKeyMismatchServer) serve(c net.Conn) {
	defer c.Close()

	s.mu.Lock()
	s.conns++
	attempt := s.conns
	s.mu.Unlock()

	if _, _, err := readRawFrame(c); err != nil {
		return
	}

	if attempt <= s.mismatchFor {
		_ = writeRawFrame(c, 3, encodeResultHeader(byte(errs.ResultClusterKeyMismatch), 0))
		return
	}

	_ = writeRawFrame(c, 3, doneFrame())
}

// doneFrame builds the terminating empty-stream frame readStreamRecord
// expects (info3Last set, no fields, no ops).
func doneFrame() []byte {
	a := buffer.NewArena(msgHeaderSize)
	writeHeader(a, requestHeader{Info3: info3Last})

	return a.Bytes()
}

type fakePool struct {
	addr string
}

func (p fakePool) Acquire(ctx context.Context) (*conn.Conn, error) {
	return conn.Dial(ctx, "n1", p.addr)
}

func (p fakePool) Release(c *conn.Conn, used bool) {
	_ = c.Close()
}

func TestScanNode_RestartsOnceOnClusterKeyMismatch(t *testing.T) {
	addr, srv := startClusterKeyMismatchServer(t, 1)
	pool := fakePool{addr: addr}

	var records int
	err := scanNode(context.Background(), pool, "test", "", "n1", func(_ string, _ *types.Record) bool {
		records++
		return true
	})

	require.NoError(t, err)
	assert.Equal(t, 0, records)
	assert.Equal(t, 2, srv.connCount())
}

func TestQueryNode_RestartsOnceOnClusterKeyMismatch(t *testing.T) {
	addr, srv := startClusterKeyMismatchServer(t, 1)
	pool := fakePool{addr: addr}

	filter := IndexFilter{BinName: "bin", Begin: types.NilValue{}, End: types.NilValue{}}

	err := queryNode(context.Background(), pool, "test", "", filter, "n1", func(_ string, _ *types.Record) bool {
		return true
	})

	require.NoError(t, err)
	assert.Equal(t, 2, srv.connCount())
}

func TestScanNode_GivesUpAfterMaxClusterKeyRestarts(t *testing.T) {
	addr, srv := startClusterKeyMismatchServer(t, maxClusterKeyRestarts+1)
	pool := fakePool{addr: addr}

	err := scanNode(context.Background(), pool, "test", "", "n1", func(_ string, _ *types.Record) bool {
		return true
	})

	require.Error(t, err)
	assert.True(t, errs.IsClusterKeyMismatch(err))
	assert.Equal(t, maxClusterKeyRestarts+1, srv.connCount())
}
