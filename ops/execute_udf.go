package ops

import (
	"github.com/aerospike/aerospike-client-go-teachable/cluster/conn"
	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/buffer"
	"github.com/aerospike/aerospike-client-go-teachable/types"
)

// Field types carrying a UDF invocation, appended after the usual key
// fields (supplemented feature, not present in the base CRUD set but
// present in the original Rust client's command/udf.rs).
const (
	fieldUDFPackage  byte = 6
	fieldUDFFunction byte = 7
	fieldUDFArgs     byte = 8
)

const info3CallUDF byte = 1 << 3

// ExecuteUDF invokes a registered Lua-style user-defined function against
// one record server-side, passing Args as a packed list (§4 supplemented
// features: UDF execute).
type ExecuteUDF struct {
	Key      *types.Key
	Package  string
	Function string
	Args     []types.Value

	locator Locator
	result  types.Value
}

func NewExecuteUDF(locator Locator, key *types.Key, pkg, fn string, args []types.Value) *ExecuteUDF {
	return &ExecuteUDF{Key: key, Package: pkg, Function: fn, Args: args, locator: locator}
}

func (u *ExecuteUDF) TargetNode() (string, error) {
	digest, err := u.Key.Digest()
	if err != nil {
		return "", err
	}

	return u.locator.TargetNode(u.Key.Namespace, digest.PartitionID(), true, 0)
}

func (u *ExecuteUDF) WriteRequest(c *conn.Conn) error {
	fields := buffer.NewArena(256)

	nFields, err := writeKeyFields(fields, u.Key, false)
	if err != nil {
		return err
	}

	writeField(fields, fieldUDFPackage, []byte(u.Package))
	writeField(fields, fieldUDFFunction, []byte(u.Function))
	nFields += 2

	argsArena := buffer.NewArena(64)
	if err := buffer.EncodeValue(argsArena, types.ListValue(u.Args)); err != nil {
		return err
	}

	writeField(fields, fieldUDFArgs, argsArena.Bytes())
	nFields++

	header := buffer.NewArena(msgHeaderSize)
	writeHeader(header, requestHeader{
		Info3:   info3CallUDF,
		NFields: uint16(nFields),
	})

	full := buffer.NewArena(header.Len() + fields.Len())
	full.WriteBytes(header.Bytes())
	full.WriteBytes(fields.Bytes())

	return c.WriteMessage(conn.MsgTypeRequest, full.Bytes())
}

func (u *ExecuteUDF) ParseResponse(c *conn.Conn) error {
	_, payload, err := c.ReadMessage()
	if err != nil {
		return err
	}

	record, err := parseRecord(u.Key, payload, buffer.BePermissive)
	if err != nil {
		return err
	}

	if v, ok := record.Bin("SUCCESS"); ok {
		u.result = v
		return nil
	}

	if v, ok := record.Bin("FAILURE"); ok {
		return errs.New(errs.KindServer, "udf failure: "+v.String())
	}

	return nil
}

func (u *ExecuteUDF) IsRetryable(err error) bool {
	if errs.IsKind(err, errs.KindConnection) {
		return !errs.WasSent(err)
	}

	return errs.IsKind(err, errs.KindNoAvailableNode)
}

// Idempotent reports false: a UDF's side effects are opaque to the
// client, so a lost response is never safe to retry blindly (§4.5/§7).
func (u *ExecuteUDF) Idempotent() bool {
	return false
}

// Result returns the UDF's return value after a successful Execute.
func (u *ExecuteUDF) Result() types.Value {
	return u.result
}
