package conn

import (
	"time"

	"github.com/aerospike/aerospike-client-go-teachable/errs"
)

// Credentials configures the login handshake (§4.2). A nil Credentials
// means the cluster runs without authentication.
type Credentials struct {
	Username string
	Password string
}

// loginField tags mirror the single-record request field TLVs (§4.6);
// authentication reuses the same field-TLV shape with its own field IDs.
const (
	fieldUser  byte = 0
	fieldCreds byte = 3
)

// Authenticate performs the login exchange yielding a session token and
// expiration (§4.2). Subsequent connections to the same node reuse the
// token via SetSessionToken rather than re-authenticating.
func (c *Conn) Authenticate(creds *Credentials) error {
	if creds == nil {
		return nil
	}

	req := encodeLoginRequest(creds)

	if err := c.WriteMessage(MsgTypeRequest, req); err != nil {
		return err
	}

	_, payload, err := c.ReadMessage()
	if err != nil {
		return err
	}

	token, ttl, err := decodeLoginResponse(payload)
	if err != nil {
		return errs.Wrap(errs.KindAuth, err, "login rejected").WithNode(c.node)
	}

	c.SetSessionToken(token, time.Now().Add(ttl))

	return nil
}

func encodeLoginRequest(creds *Credentials) []byte {
	buf := make([]byte, 0, len(creds.Username)+len(creds.Password)+8)
	buf = append(buf, fieldUser, byte(len(creds.Username)))
	buf = append(buf, []byte(creds.Username)...)
	buf = append(buf, fieldCreds, byte(len(creds.Password)))
	buf = append(buf, []byte(creds.Password)...)

	return buf
}

// decodeLoginResponse parses the {result_code, token_len, token, ttl_secs}
// shape returned by a successful login. A non-zero result code surfaces as
// an Auth error.
func decodeLoginResponse(payload []byte) (token []byte, ttl time.Duration, err error) {
	if len(payload) < 6 {
		return nil, 0, errs.New(errs.KindProtocol, "short login response")
	}

	resultCode := payload[0]
	if resultCode != 0 {
		return nil, 0, errs.NewServerError(int(resultCode), "")
	}

	tokenLen := int(payload[1])
	if len(payload) < 2+tokenLen+4 {
		return nil, 0, errs.New(errs.KindProtocol, "truncated login response")
	}

	token = append([]byte(nil), payload[2:2+tokenLen]...)

	ttlSecs := uint32(payload[2+tokenLen])<<24 | uint32(payload[3+tokenLen])<<16 |
		uint32(payload[4+tokenLen])<<8 | uint32(payload[5+tokenLen])

	return token, time.Duration(ttlSecs) * time.Second, nil
}
