package types

// Record is (key, generation, expiration, bins) per §3. Generation is a
// server-maintained monotonic counter; Expiration is the raw seconds-to-live
// the server returned (never negative on a read response).
type Record struct {
	Key        *Key
	Generation uint32
	Expiration Expiration
	Bins       []Bin
}

// Bin looks up a bin by name, returning ok=false if the record has none by
// that name (records have no duplicate bin names by invariant, §3).
func (r *Record) Bin(name string) (Value, bool) {
	for _, b := range r.Bins {
		if b.Name == name {
			return b.Value, true
		}
	}

	return nil, false
}

// BinSelector controls which bins a read command returns (§4.6).
type BinSelector struct {
	All   bool
	Names []string // used when All is false and Names is non-empty
	None  bool      // explicit "no bins, just metadata" selection
}

func SelectAllBins() BinSelector {
	return BinSelector{All: true}
}

func SelectNoBins() BinSelector {
	return BinSelector{None: true}
}

func SelectBins(names ...string) BinSelector {
	return BinSelector{Names: names}
}
