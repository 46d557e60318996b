package syncutil

import "sync/atomic"

// MinUint64 lowers cell to candidate if candidate is smaller than the stored
// value. The stored value never regresses past an applied candidate; the CAS
// loop retries on contention.
func MinUint64(cell *atomic.Uint64, candidate uint64) {
	for {
		cur := cell.Load()
		if candidate >= cur {
			return
		}
		if cell.CompareAndSwap(cur, candidate) {
			return
		}
	}
}

// MaxUint64 raises cell to candidate if candidate is greater than the stored
// value.
func MaxUint64(cell *atomic.Uint64, candidate uint64) {
	for {
		cur := cell.Load()
		if candidate <= cur {
			return
		}
		if cell.CompareAndSwap(cur, candidate) {
			return
		}
	}
}

// MinInt64 lowers cell to candidate if candidate is smaller than the stored
// value.
func MinInt64(cell *atomic.Int64, candidate int64) {
	for {
		cur := cell.Load()
		if candidate >= cur {
			return
		}
		if cell.CompareAndSwap(cur, candidate) {
			return
		}
	}
}

// MaxInt64 raises cell to candidate if candidate is greater than the stored
// value.
func MaxInt64(cell *atomic.Int64, candidate int64) {
	for {
		cur := cell.Load()
		if candidate <= cur {
			return
		}
		if cell.CompareAndSwap(cur, candidate) {
			return
		}
	}
}
