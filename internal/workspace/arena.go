// Package workspace owns the shared scratch-memory arenas reused across
// computations.
//
// Ownership boundary:
// - monotonic grow-only regions indexed by purpose
// - per-device reservation accounting via the device registry
// - growth alignment helpers
//
// Regions are shared, not owned: at most one logical consumer uses a region
// at a time by caller convention, and contents never survive across uses. The
// arena only guarantees that growth itself is safe under concurrent callers.
package workspace

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/tensorctl/internal/device"
)

var (
	ErrBadRegion = errors.New("workspace: region id out of range")
	ErrLimit     = errors.New("workspace: reservation exceeds configured limit")
	ErrClosed    = errors.New("workspace: arena closed")
)

// Region ids partition the arena by purpose. Convolution passes reuse the
// first three one after another; transfer staging gets its own region.
type ID int

const (
	ConvForward ID = iota
	ConvBackwardData
	ConvBackwardFilter
	Transfer

	Total
)

func (id ID) String() string {
	switch id {
	case ConvForward:
		return "conv_fwd"
	case ConvBackwardData:
		return "conv_bwd_data"
	case ConvBackwardFilter:
		return "conv_bwd_filter"
	case Transfer:
		return "transfer"
	default:
		return fmt.Sprintf("region(%d)", int(id))
	}
}

// Growth is quantized so repeated near-identical requests do not churn.
const growthAlignment = 256

type region struct {
	mu  sync.Mutex
	buf []byte
}

// Arena is a fixed array of grow-only scratch regions bound to one device
// ordinal. A nil registry makes a host arena with plain allocations and no
// reservation accounting.
type Arena struct {
	registry *device.Registry
	ordinal  int
	limit    uint64
	closed   atomic.Bool
	slots    [Total]region
}

func NewArena(registry *device.Registry, ordinal int, limit uint64) *Arena {
	return &Arena{
		registry: registry,
		ordinal:  ordinal,
		limit:    limit,
	}
}

// Reserve grows region id to at least bytes and returns the backing buffer.
// Existing capacity is reused; regions never shrink. Growth on different ids
// proceeds concurrently. A closed arena refuses all reservations with
// ErrClosed; callers racing a teardown re-fetch the replacement arena.
func (a *Arena) Reserve(id ID, bytes uint64) ([]byte, error) {
	if id < 0 || id >= Total {
		return nil, fmt.Errorf("%w: %d", ErrBadRegion, int(id))
	}
	r := &a.slots[id]
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.closed.Load() {
		return nil, ErrClosed
	}
	if uint64(len(r.buf)) >= bytes {
		return r.buf, nil
	}

	grown := AlignUp(bytes, growthAlignment)
	if a.limit > 0 && grown > a.limit {
		return nil, fmt.Errorf("%w: %s wants %d, limit %d", ErrLimit, id, grown, a.limit)
	}

	var buf []byte
	if a.registry != nil {
		fresh, err := a.registry.Alloc(a.ordinal, grown)
		if err != nil {
			return nil, err
		}
		if a.closed.Load() {
			// Close started after the entry check; it has not reached this
			// region yet (it needs the region lock we hold), so return the
			// fresh reservation rather than publish to a dying arena.
			a.registry.Release(a.ordinal, grown)
			return nil, ErrClosed
		}
		a.registry.Release(a.ordinal, uint64(len(r.buf)))
		buf = fresh
	} else {
		buf = make([]byte, grown)
	}
	r.buf = buf
	return r.buf, nil
}

// Size reports the current capacity of region id.
func (a *Arena) Size(id ID) uint64 {
	if id < 0 || id >= Total {
		return 0
	}
	r := &a.slots[id]
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.buf))
}

// TotalBytes reports the summed capacity across regions.
func (a *Arena) TotalBytes() uint64 {
	var sum uint64
	for id := ID(0); id < Total; id++ {
		sum += a.Size(id)
	}
	return sum
}

// Close drops every region and returns reservations to the registry. Further
// reservations fail with ErrClosed.
func (a *Arena) Close() {
	a.closed.Store(true)
	for id := range a.slots {
		r := &a.slots[id]
		r.mu.Lock()
		if a.registry != nil {
			a.registry.Release(a.ordinal, uint64(len(r.buf)))
		}
		r.buf = nil
		r.mu.Unlock()
	}
}

// AlignUp returns the smallest multiple of align that is not less than v.
// align must be a power of two.
func AlignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// AlignDown returns the largest multiple of align that is not greater than v.
// align must be a power of two.
func AlignDown(v, align uint64) uint64 {
	return v &^ (align - 1)
}
