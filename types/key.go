package types

import (
	"encoding/binary"
	"fmt"

	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/internal/ripemd160"
)

// Digest is the 20-byte wire identity of a record: RIPEMD-160 over
// set || value_type_byte || user_key_bytes (§3).
type Digest [ripemd160.Size]byte

func (d Digest) String() string {
	return fmt.Sprintf("%x", d[:])
}

// PartitionID returns which of the 4096 partitions this digest belongs to.
// The low 12 bits of the digest's first 4 bytes, read little-endian, select
// the partition (§8 invariant, §4.4 Partition lookup).
func (d Digest) PartitionID() int {
	v := binary.LittleEndian.Uint32(d[0:4])
	return int(v & 0x0FFF)
}

// Key is the triple (namespace, set, user_key) that addresses one record.
type Key struct {
	Namespace string
	Set       string
	UserKey   Value
	digest    Digest
	hasDigest bool
}

// NewKey builds a Key and eagerly computes its digest. This is the explicit
// constructor user code is expected to call; no ergonomic macro layer is
// provided (DESIGN NOTES §9, "Generic bin naming conveniences").
func NewKey(namespace, set string, userKey Value) (*Key, error) {
	digest, err := computeDigest(set, userKey)
	if err != nil {
		return nil, err
	}

	return &Key{
		Namespace: namespace,
		Set:       set,
		UserKey:   userKey,
		digest:    digest,
		hasDigest: true,
	}, nil
}

// Digest returns the wire digest of the key, computing it lazily if the Key
// was constructed directly (e.g. from wire-decoded fields) rather than via
// NewKey.
func (k *Key) Digest() (Digest, error) {
	if k.hasDigest {
		return k.digest, nil
	}

	d, err := computeDigest(k.Set, k.UserKey)
	if err != nil {
		return Digest{}, err
	}

	k.digest = d
	k.hasDigest = true

	return d, nil
}

// Equal reports whether two keys are wire-equivalent: same namespace and
// same digest (§3 invariants).
func (k *Key) Equal(other *Key) bool {
	if other == nil || k.Namespace != other.Namespace {
		return false
	}

	d1, err1 := k.Digest()
	d2, err2 := other.Digest()

	return err1 == nil && err2 == nil && d1 == d2
}

func computeDigest(set string, userKey Value) (Digest, error) {
	keyBytes, typ, err := keyDigestBytes(userKey)
	if err != nil {
		return Digest{}, err
	}

	typeByte := []byte{byte(typ)}

	return Digest(ripemd160.Sum([]byte(set), typeByte, keyBytes)), nil
}

// keyDigestBytes returns the canonical byte representation of a user key
// value for digest computation. Only the variants the server accepts as key
// values are supported; everything else is a Policy error.
func keyDigestBytes(v Value) ([]byte, ParticleType, error) {
	switch val := v.(type) {
	case IntValue:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(val))
		return buf, ParticleInt, nil
	case UintValue:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(val))
		return buf, ParticleInt, nil
	case StringValue:
		return []byte(val), ParticleString, nil
	case BlobValue:
		return val, ParticleBlob, nil
	default:
		return nil, 0, fmt.Errorf("%w: key value of type %T is not a valid key type", errs.ErrPolicy, v)
	}
}
