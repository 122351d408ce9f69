package cluster

import (
	"context"
	"encoding/base64"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerospike/aerospike-client-go-teachable/cluster/node"
)

// fakeNode starts a TCP listener answering canned Info responses keyed by
// the first requested line, enough to drive Cluster.Connect/tendOnce
// without a real server.
func fakeNode(t *testing.T, responses map[string]string) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}

			go serveFakeNode(c, responses)
		}
	}()

	return ln.Addr().String()
}

func serveFakeNode(c net.Conn, responses map[string]string) {
	defer c.Close()

	for {
		_, payload, err := readInfoFrame(c)
		if err != nil {
			return
		}

		names := splitLines(string(payload))

		var body string

		for _, name := range names {
			if v, ok := responses[name]; ok {
				body += name + "\t" + v + "\n"
			}
		}

		if err := writeInfoFrame(c, 1, []byte(body)); err != nil {
			return
		}
	}
}

func splitLines(s string) []string {
	var out []string

	start := 0

	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}

			start = i + 1
		}
	}

	if start < len(s) {
		out = append(out, s[start:])
	}

	return out
}

func readInfoFrame(c net.Conn) (byte, []byte, error) {
	var header [8]byte
	if _, err := readFullTest(c, header[:]); err != nil {
		return 0, nil, err
	}

	msgType := header[1]
	size := uint64(header[2])<<40 | uint64(header[3])<<32 | uint64(header[4])<<24 |
		uint64(header[5])<<16 | uint64(header[6])<<8 | uint64(header[7])

	payload := make([]byte, size)
	if _, err := readFullTest(c, payload); err != nil {
		return 0, nil, err
	}

	return msgType, payload, nil
}

func writeInfoFrame(c net.Conn, msgType byte, payload []byte) error {
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

func readFullTest(c net.Conn, buf []byte) (int, error) {
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

func TestCluster_ConnectDiscoversSeedAndPartitions(t *testing.T) {
	bitmap := make([]byte, 512)
	bitmap[0] = 0x01 // partition 0 is owned by this node

	addr := fakeNode(t, map[string]string{
		"cluster-name":          "test-cluster",
		"node":                  "BB9A1",
		"partition-generation":  "1",
		"peers-generation":      "1",
		"features":              "batch-index",
		"services":              "",
		"replicas-master":       "test:" + base64.StdEncoding.EncodeToString(bitmap),
		"replicas-prole":        "",
	})

	c := New(Config{ClusterName: "test-cluster", TendInterval: time.Hour, NodeConfig: node.Config{MaxConnsPerNode: 2}})

	require.NoError(t, c.Connect(context.Background(), []string{addr}))
	defer c.Close()

	assert.Len(t, c.Nodes(), 1)

	replicas := c.Replicas("test", 0)
	require.Len(t, replicas, 1)
	assert.Equal(t, "BB9A1", replicas[0])

	assert.Empty(t, c.Replicas("test", 1))
}

func TestCluster_ConnectFailsWithUnreachableSeed(t *testing.T) {
	c := New(Config{TendInterval: time.Hour})

	err := c.Connect(context.Background(), []string{"127.0.0.1:1"})
	assert.Error(t, err)
}

func TestCluster_IsInactiveForUnknownNode(t *testing.T) {
	c := New(Config{TendInterval: time.Hour})
	assert.True(t, c.IsInactive("nonexistent"))
}
