package types

import "strconv"

// Expiration wraps the raw server TTL encoding from §3 so callers do not
// need to remember the -1/-2/0 sentinel values. Supplemented from the
// original Rust client's expiration.rs, which the base spec only describes
// in prose.
type Expiration int32

const (
	// Never means the record does not expire.
	Never Expiration = 0

	// NamespaceDefault applies the namespace's configured default TTL.
	NamespaceDefault Expiration = -1

	// DontUpdate leaves the record's current expiration untouched (used with
	// Touch/Operate to change bins without resetting TTL).
	DontUpdate Expiration = -2
)

// Seconds returns an Expiration for an absolute TTL in seconds from now.
func Seconds(n uint32) Expiration {
	return Expiration(n)
}

func (e Expiration) String() string {
	switch e {
	case Never:
		return "never"
	case NamespaceDefault:
		return "namespace-default"
	case DontUpdate:
		return "no-change"
	default:
		return strconv.Itoa(int(e)) + "s"
	}
}
