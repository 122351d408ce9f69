package types

import (
	"fmt"

	"github.com/aerospike/aerospike-client-go-teachable/errs"
)

// MaxBinNameLen is the server-enforced limit on bin name length (§8 boundary
// behavior: 15 bytes succeeds, 16 fails with Policy).
const MaxBinNameLen = 15

// Bin is a named cell within a record.
type Bin struct {
	Name  string
	Value Value
}

// NewBin is the explicit constructor; no macro-based ergonomic layer is
// provided (DESIGN NOTES §9).
func NewBin(name string, value Value) (Bin, error) {
	if err := ValidateBinName(name); err != nil {
		return Bin{}, err
	}

	return Bin{Name: name, Value: value}, nil
}

// ValidateBinName enforces the boundary behavior from §8: empty names and
// names over MaxBinNameLen bytes are Policy errors.
func ValidateBinName(name string) error {
	if name == "" {
		return errs.ErrEmptyBinName
	}

	if len(name) > MaxBinNameLen {
		return fmt.Errorf("%w: %q is %d bytes", errs.ErrBinNameTooLong, name, len(name))
	}

	return nil
}
