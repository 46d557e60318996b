package syncutil

import "sync"

// Flag is a resettable boolean event. Waiters block until the flag is set or
// the flag is permanently disarmed. Disarm is idempotent and irreversible: it
// unblocks every current and future waiter without ever setting the flag.
type Flag struct {
	mu       sync.Mutex
	cond     *sync.Cond
	set      bool
	disarmed bool
}

func NewFlag(state bool) *Flag {
	f := &Flag{set: state}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *Flag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

func (f *Flag) Set() {
	f.mu.Lock()
	f.set = true
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *Flag) Reset() {
	f.mu.Lock()
	f.set = false
	f.mu.Unlock()
	f.cond.Broadcast()
}

// Disarm permanently stops the flag from blocking. It does not touch the set
// state, so a disarmed-and-never-set flag still reports unfired waits.
func (f *Flag) Disarm() {
	f.mu.Lock()
	f.disarmed = true
	f.mu.Unlock()
	f.cond.Broadcast()
}

// Wait blocks until the flag is set or disarmed. The set state is left intact.
func (f *Flag) Wait() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.set && !f.disarmed {
		f.cond.Wait()
	}
}

// WaitReset blocks until the flag is set or disarmed. When woken by a set
// flag it consumes the state, clearing it back before returning, so each Set
// releases exactly one WaitReset. It reports whether the flag actually fired;
// a false return means the flag was disarmed while still clear.
func (f *Flag) WaitReset() bool {
	f.mu.Lock()
	for !f.set && !f.disarmed {
		f.cond.Wait()
	}
	fired := f.set
	if fired {
		f.set = false
	}
	f.mu.Unlock()
	f.cond.Broadcast()
	return fired
}
