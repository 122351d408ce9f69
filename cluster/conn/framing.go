package conn

import (
	"encoding/binary"
	"io"

	"github.com/aerospike/aerospike-client-go-teachable/errs"
)

// Message types carried in the proto header (§6).
const (
	MsgTypeInfo    byte = 1
	MsgTypeRequest byte = 3
)

const (
	protoVersion  byte = 2
	headerSize    int  = 8
	maxPayloadLen      = 1<<48 - 1
)

// encodeHeader writes the 8-byte proto header {version:1, type:1, size:6}
// (size is the 48-bit big-endian payload length) into buf, which must be
// at least headerSize bytes. Grounded on internal/protoio's
// header-then-payload framing idiom, generalized from a 12-byte LSM
// segment header to the spec's 8-byte wire header.
func encodeHeader(buf []byte, msgType byte, payloadLen int) error {
	if payloadLen < 0 || payloadLen > maxPayloadLen {
		return errs.New(errs.KindProtocol, "payload length out of range")
	}

	buf[0] = protoVersion
	buf[1] = msgType

	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], uint64(payloadLen))
	copy(buf[2:8], sizeBuf[2:8])

	return nil
}

func decodeHeader(buf []byte) (msgType byte, payloadLen int, err error) {
	if len(buf) < headerSize {
		return 0, 0, errs.New(errs.KindProtocol, "short header")
	}

	version := buf[0]
	if version != protoVersion {
		return 0, 0, errs.New(errs.KindProtocol, "unexpected proto version")
	}

	msgType = buf[1]

	var sizeBuf [8]byte
	copy(sizeBuf[2:8], buf[2:8])
	payloadLen = int(binary.BigEndian.Uint64(sizeBuf[:]))

	return msgType, payloadLen, nil
}

// writeFrame writes the header followed by payload as a single logical
// message; writes are atomic at message granularity (§4.2).
func writeFrame(w io.Writer, msgType byte, payload []byte) error {
	var header [headerSize]byte
	if err := encodeHeader(header[:], msgType, len(payload)); err != nil {
		return err
	}

	full := append(header[:], payload...)

	if _, err := w.Write(full); err != nil {
		return errs.Wrap(errs.KindConnection, err, "write frame")
	}

	return nil
}

// readFrame blocks until a full message (header + declared payload) has
// arrived; a short read is treated as a broken connection (§4.2).
func readFrame(r io.Reader) (msgType byte, payload []byte, err error) {
	var header [headerSize]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, errs.Wrap(errs.KindConnection, err, "read frame header")
	}

	msgType, payloadLen, err := decodeHeader(header[:])
	if err != nil {
		return 0, nil, err
	}

	payload = make([]byte, payloadLen)

	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, errs.Wrap(errs.KindConnection, err, "read frame payload")
	}

	return msgType, payload, nil
}
