package shortcode

import (
	"context"
	"errors"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	filterCapacity = 1_000_000
	filterFPRate   = 0.001
	// consecutive filter hits after which a candidate goes to reserve anyway.
	maxFilterSkips = 3
)

// ReserveFunc atomically checks that code is unused and commits it. It must
// return ErrTaken when another link already holds the code.
type ReserveFunc func(ctx context.Context, code string) error

// Allocator hands out short codes. Uniqueness is decided by the ReserveFunc;
// the allocator only picks candidates.
type Allocator struct {
	gen Generator

	mu       sync.Mutex
	taken    *bloom.BloomFilter
	capacity uint
	marked   uint
}

// NewAllocator returns an allocator drawing candidates from gen.
func NewAllocator(gen Generator) *Allocator {
	if gen == nil {
		gen = NewRandomGenerator()
	}
	return newAllocator(gen, bloom.NewWithEstimates(filterCapacity, filterFPRate), filterCapacity)
}

func newAllocator(gen Generator, filter *bloom.BloomFilter, capacity uint) *Allocator {
	return &Allocator{gen: gen, taken: filter, capacity: capacity}
}

// Allocate reserves alias when it is non-empty, failing with ErrTaken if it is
// in use. Otherwise it keeps generating candidates until reserve accepts one.
// The loop has no attempt limit; it stops on success, on context
// cancellation, or on a reserve error other than ErrTaken.
//
// Only codes reserve rejected with ErrTaken are remembered, and the filter is
// cleared once it holds capacity entries. A candidate the filter flags is
// skipped at most maxFilterSkips times in a row before reserve is asked anyway.
func (a *Allocator) Allocate(ctx context.Context, alias string, reserve ReserveFunc) (string, error) {
	if alias != "" {
		if err := ValidateAlias(alias); err != nil {
			return "", err
		}
		if err := reserve(ctx, alias); err != nil {
			if errors.Is(err, ErrTaken) {
				a.markTaken(alias)
			}
			return "", err
		}
		return alias, nil
	}

	skips := 0
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		candidate := a.gen.Generate()
		if skips < maxFilterSkips && a.probablyTaken(candidate) {
			skips++
			continue
		}
		skips = 0

		err := reserve(ctx, candidate)
		switch {
		case err == nil:
			return candidate, nil
		case errors.Is(err, ErrTaken):
			a.markTaken(candidate)
		default:
			return "", err
		}
	}
}

func (a *Allocator) probablyTaken(code string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.taken.TestString(code)
}

func (a *Allocator) markTaken(code string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.capacity > 0 && a.marked >= a.capacity {
		a.taken.ClearAll()
		a.marked = 0
	}
	a.taken.AddString(code)
	a.marked++
}
