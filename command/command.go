package command

import (
	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
)

// Command is implemented by every operation in package ops. WriteRequest
// encodes the request onto the wire; ParseResponse decodes the server's
// reply; TargetNode names the node a single attempt should be sent to
// (re-evaluated on every retry, since the partition map may have changed);
// IsRetryable classifies an attempt's error as worth a retry (§4.5, §7).
// Idempotent reports whether re-applying the command has the same effect
// as applying it once, which IsRetryable implementations consult before
// retrying a request that may already have reached the server.
type Command interface {
	WriteRequest(c *conn.Conn) error
	ParseResponse(c *conn.Conn) error
	TargetNode() (string, error)
	IsRetryable(err error) bool
	Idempotent() bool
}
