// Package errs defines the client's error taxonomy (§7). It is kept
// dependency-free so every other package — from the wire codec up to the
// client façade — can return these errors without import cycles.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way the command engine needs to decide
// retry vs. surface (§7).
type Kind int

const (
	KindConnection Kind = iota + 1
	KindTimeout
	KindNoAvailableNode
	KindServer
	KindProtocol
	KindPolicy
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindNoAvailableNode:
		return "no_available_node"
	case KindServer:
		return "server"
	case KindProtocol:
		return "protocol"
	case KindPolicy:
		return "policy"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Error is a structured error carrying a Kind, the originating node identity
// (when applicable), and an underlying cause. Modeled after the teacher's
// small wrapped-error style rather than a flat string-keyed error.
type Error struct {
	Kind    Kind
	Node    string // empty when the error is not attributable to one node
	Code    int    // server result code, meaningful only when Kind == KindServer
	Message string
	// Sent marks an error (of any Kind) that occurred after the request
	// was fully written, i.e. the server may have received and applied
	// it before the response was lost. A command engine retrying such an
	// error risks double-applying a non-idempotent write (§4.5/§7).
	Sent  bool
	cause error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.Node != "" {
		if e.cause != nil {
			return fmt.Sprintf("%s (node=%s): %s: %v", e.Kind, e.Node, e.Message, e.cause)
		}

		return fmt.Sprintf("%s (node=%s): %s", e.Kind, e.Node, e.Message)
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithNode returns a copy of e attributed to the given node name.
func (e *Error) WithNode(node string) *Error {
	cp := *e
	cp.Node = node

	return &cp
}

// Is supports errors.Is(err, ErrKeyNotFound) style checks against sentinels
// defined below by comparing the Kind and Code.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Kind == other.Kind && (other.Code == 0 || e.Code == other.Code)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}

	return false
}

// IsClusterKeyMismatch reports whether err is a KindServer error carrying
// ResultClusterKeyMismatch, the code a scan/query node returns mid-stream
// when the cluster's partition map changed out from under it (§6).
func IsClusterKeyMismatch(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindServer && e.Code == ResultClusterKeyMismatch
	}

	return false
}

// MarkSent returns a copy of err with Sent set, recording that the
// request was fully written to the wire before this failure occurred.
// Non-*Error values pass through unchanged.
func MarkSent(err error) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}

	cp := *e
	cp.Sent = true

	return &cp
}

// WasSent reports whether err is an *Error marked by MarkSent, i.e. one
// whose request may already have reached the server, as opposed to one
// that failed before leaving the client (dial/acquire/write failure). It
// does not check the Kind; callers that care test the Kind separately.
func WasSent(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Sent
	}

	return false
}

// Sentinels for common policy-misuse cases (§7 Policy kind).
var (
	ErrPolicy         = New(KindPolicy, "invalid policy or argument")
	ErrBinNameTooLong = New(KindPolicy, "bin name exceeds 15 bytes")
	ErrEmptyBinName   = New(KindPolicy, "bin name is empty")
	ErrNilValue       = New(KindPolicy, "nil value not allowed here")
)

// ErrNoAvailableNode is returned when the partition map has no usable
// replica for a partition (§4.4 Partition lookup failure mode).
var ErrNoAvailableNode = New(KindNoAvailableNode, "no available node for partition")

// Server result codes (§6), a representative subset of the full taxonomy.
const (
	ResultOK                 = 0
	ResultKeyNotFound        = 2
	ResultGenerationError    = 3
	ResultParameterError     = 4
	ResultKeyExistsError     = 5
	ResultKeyMismatch        = 6
	ResultClusterKeyMismatch = 7
	ResultServerBusy         = 9
	ResultDeviceOverload     = 18
	ResultBatchDisabled      = 151
	ResultUdfBadResponse     = 100
)

// NewServerError builds a *Error for a non-zero wire result code.
func NewServerError(code int, node string) *Error {
	return &Error{Kind: KindServer, Code: code, Node: node, Message: serverMessage(code)}
}

func serverMessage(code int) string {
	switch code {
	case ResultKeyNotFound:
		return "key not found"
	case ResultGenerationError:
		return "generation mismatch"
	case ResultParameterError:
		return "parameter error"
	case ResultKeyExistsError:
		return "key already exists"
	case ResultKeyMismatch:
		return "key mismatch"
	case ResultClusterKeyMismatch:
		return "cluster key mismatch"
	case ResultServerBusy:
		return "server busy"
	case ResultDeviceOverload:
		return "device overload"
	case ResultBatchDisabled:
		return "batch disabled"
	case ResultUdfBadResponse:
		return "udf bad response"
	default:
		return fmt.Sprintf("server error %d", code)
	}
}

// Retryable reports whether a server error code is safe to retry per §7:
// most are terminal, a handful (busy/overload) are retryable.
func Retryable(code int) bool {
	switch code {
	case ResultServerBusy, ResultDeviceOverload:
		return true
	default:
		return false
	}
}
