package node

import (
	"context"
	"strings"

	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
)

// Info query names used by the tend loop and by callers probing node
// identity (§4.3). Names are newline-joined in a single Info request and
// the server replies with the same key set.
const (
	InfoNode              = "node"
	InfoPartitionGen      = "partition-generation"
	InfoClusterName       = "cluster-name"
	InfoFeatures          = "features"
	InfoPeersGeneration   = "peers-generation"
	InfoServices          = "services"
)

// RequestInfo issues an Info request for the given names over c and parses
// the tab/newline-delimited "name\tvalue" response body into a map (§4.3,
// §6 Info message framing). Unknown or absent names are simply missing
// from the returned map rather than an error, matching the server's own
// tolerant behavior for unrecognized commands.
func RequestInfo(ctx context.Context, c *conn.Conn, names ...string) (map[string]string, error) {
	if err := c.SetSocketDeadline(0); err != nil {
		return nil, err
	}

	req := strings.Join(names, "\n")
	if len(names) > 0 {
		req += "\n"
	}

	if err := c.WriteMessage(conn.MsgTypeInfo, []byte(req)); err != nil {
		return nil, err
	}

	msgType, payload, err := c.ReadMessage()
	if err != nil {
		return nil, err
	}

	if msgType != conn.MsgTypeInfo {
		return nil, errs.New(errs.KindProtocol, "unexpected message type for info response").WithNode(c.Node())
	}

	return parseInfo(payload), nil
}

// parseInfo splits an Info response body into its name/value pairs. Each
// line is "name\tvalue"; a line with no tab maps to an empty value.
func parseInfo(payload []byte) map[string]string {
	out := make(map[string]string)

	for _, line := range strings.Split(string(payload), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		name, value, found := strings.Cut(line, "\t")
		if !found {
			out[name] = ""
			continue
		}

		out[name] = value
	}

	return out
}

// parseServicesList splits the semicolon-separated list returned by the
// "services" Info command (§4.4 seed discovery), dropping empty entries.
// Refresh also uses it for the "features" capability list.
func parseServicesList(value string) []string {
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ";")

	addrs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			addrs = append(addrs, p)
		}
	}

	return addrs
}
