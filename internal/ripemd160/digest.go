// Package ripemd160 computes the 20-byte digests used as record identities
// on the wire. RIPEMD-160 is not part of Go's standard crypto package, so
// this wraps the golang.org/x/crypto implementation (already a transitive
// dependency of the teacher's stack) behind a minimal Sum function.
package ripemd160

import "golang.org/x/crypto/ripemd160" //nolint:staticcheck

const Size = ripemd160.Size

// Sum returns the RIPEMD-160 digest of the concatenation of data.
func Sum(data ...[]byte) [Size]byte {
	h := ripemd160.New()

	for _, d := range data {
		_, _ = h.Write(d)
	}

	var out [Size]byte
	h.Sum(out[:0])

	return out
}
