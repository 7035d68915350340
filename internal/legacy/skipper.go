package legacy

import (
	"context"
	"encoding/binary"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

// Existing reports which order numbers are already stored.
type Existing interface {
	Numbers(ctx context.Context, fn func(number int64)) error
	HasNumber(ctx context.Context, number int64) (bool, error)
}

// skipFPR is the false positive rate of the number filter. A positive is
// confirmed against storage, so it only costs a query.
const skipFPR = 0.001

// Skipper detects records that an earlier run already imported. Stored
// numbers are loaded into a bloom filter once; a filter hit is confirmed
// with an exact lookup. Safe for concurrent use after LoadSkipper returns.
type Skipper struct {
	filter   *bloom.BloomFilter
	existing Existing
}

// LoadSkipper reads every stored order number. expected sizes the filter.
func LoadSkipper(ctx context.Context, existing Existing, expected uint) (*Skipper, error) {
	if expected == 0 {
		expected = 1
	}
	s := &Skipper{
		filter:   bloom.NewWithEstimates(expected, skipFPR),
		existing: existing,
	}
	var key [8]byte
	err := existing.Numbers(ctx, func(n int64) {
		binary.BigEndian.PutUint64(key[:], uint64(n))
		s.filter.Add(key[:])
	})
	if err != nil {
		return nil, errors.Wrap(err, "load order numbers")
	}
	return s, nil
}

// Imported reports whether an order with number is already stored.
func (s *Skipper) Imported(ctx context.Context, number int64) (bool, error) {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(number))
	if !s.filter.Test(key[:]) {
		return false, nil
	}
	ok, err := s.existing.HasNumber(ctx, number)
	if err != nil {
		return false, errors.Wrap(err, "check order number")
	}
	return ok, nil
}
