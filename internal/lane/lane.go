// Package lane owns the pooled per-thread-group execution contexts.
//
// Ownership boundary:
// - lane identity and lifetime (created on first touch, closed on
//   reconfigure or teardown, never copied)
// - the (device, group) pool table and its creation protocol
// - deterministic sequence-number assignment for seed derivation
//
// A lane bundles one stream with the math handles bound to it, so work issued
// through the lane executes in program order. A lane returned to a caller is
// used by that group's logical owner only; it is not internally locked.
package lane

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/tensorctl/internal/device"
	"github.com/danmuck/tensorctl/internal/observability"
	"github.com/danmuck/tensorctl/internal/rng"
)

var (
	ErrInvalidGroup   = errors.New("lane: thread group out of range")
	ErrDeviceNotInSet = errors.New("lane: device ordinal not in active set")
)

// Thread groups partition lanes by purpose. Groups below TransferGroup are
// parallel convolution algorithm groups; the reserved highest group carries
// inter-device transfers on a high-priority stream.
const (
	DefaultGroup  = 0
	MaxConvGroups = 2
	TransferGroup = MaxConvGroups
	GroupCount    = TransferGroup + 1
)

// Lane is one pooled execution context. Identity is stable for the life of
// the pool generation that created it: handles capture the owning stream.
type Lane struct {
	ordinal    int
	group      int
	kind       device.Kind
	generation uint64
	seq        uint64

	stream *device.Stream
	blas   *device.BlasHandle
	dnn    *device.DnnHandle
	rand   *rng.RNG
}

func (l *Lane) Ordinal() int             { return l.ordinal }
func (l *Lane) Group() int               { return l.group }
func (l *Lane) Kind() device.Kind        { return l.kind }
func (l *Lane) Generation() uint64       { return l.generation }
func (l *Lane) Seq() uint64              { return l.seq }
func (l *Lane) Stream() *device.Stream   { return l.stream }
func (l *Lane) Blas() *device.BlasHandle { return l.blas }
func (l *Lane) RNG() *rng.RNG            { return l.rand }

// Dnn returns the neural-net handle, nil when the pool was built without one.
func (l *Lane) Dnn() *device.DnnHandle { return l.dnn }

func (l *Lane) close() {
	l.stream.Close()
}

type key struct {
	ordinal int
	group   int
}

type entry struct {
	once sync.Once
	seq  uint64
	lane *Lane
	err  error
}

// Pool lazily creates and caches lanes per (device ordinal, thread group).
// The table mutex is held only for slot reservation and publication; the slow
// stream and handle construction runs outside it, so creating lane A never
// blocks a concurrent first touch of lane B.
type Pool struct {
	registry *device.Registry
	seedFor  func(seq uint64) uint64

	mu         sync.Mutex
	kind       device.Kind
	devices    map[int]bool
	enableDNN  bool
	generation uint64
	nextSeq    uint64
	entries    map[key]*entry
}

// NewPool builds an empty pool over the given backend kind and active device
// set. seedFor maps a lane's sequence number to its generator seed.
func NewPool(registry *device.Registry, kind device.Kind, devices []int, enableDNN bool, seedFor func(uint64) uint64) *Pool {
	p := &Pool{
		registry:  registry,
		seedFor:   seedFor,
		kind:      kind,
		enableDNN: enableDNN,
		devices:   make(map[int]bool),
		entries:   make(map[key]*entry),
	}
	for _, d := range devices {
		p.devices[d] = true
	}
	return p
}

// Lane returns the pooled lane for (ordinal, group), creating it on first
// touch. A group outside [0, GroupCount) or an ordinal outside the active set
// is a configuration error, never retried. A reconfiguration racing the
// creation invalidates the reserved slot; the lookup restarts against the
// current table, so the caller never receives a lane from a superseded
// generation.
func (p *Pool) Lane(ordinal, group int) (*Lane, error) {
	if group < 0 || group >= GroupCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGroup, group)
	}
	k := key{ordinal: ordinal, group: group}

	for {
		p.mu.Lock()
		if !p.devices[ordinal] {
			p.mu.Unlock()
			return nil, fmt.Errorf("%w: %d", ErrDeviceNotInSet, ordinal)
		}
		e, ok := p.entries[k]
		if !ok {
			e = &entry{seq: p.nextSeq}
			p.nextSeq++
			p.entries[k] = e
		}
		kind := p.kind
		generation := p.generation
		enableDNN := p.enableDNN
		p.mu.Unlock()

		e.once.Do(func() {
			e.lane, e.err = p.build(kind, generation, ordinal, group, e.seq, enableDNN)
		})
		if e.err != nil {
			// Drop the failed slot so a later caller may retry after the
			// underlying condition clears.
			p.mu.Lock()
			if p.entries[k] == e {
				delete(p.entries, k)
			}
			p.mu.Unlock()
			return nil, e.err
		}
		if e.lane == nil {
			// The slot was invalidated by a reconfiguration before the
			// build ran (its no-op Do won the once).
			continue
		}

		p.mu.Lock()
		current := p.entries[k] == e
		p.mu.Unlock()
		if !current {
			// Built, but a reconfiguration retired the slot and closed
			// the lane in the meantime.
			continue
		}
		return e.lane, nil
	}
}

func (p *Pool) build(kind device.Kind, generation uint64, ordinal, group int, seq uint64, enableDNN bool) (*Lane, error) {
	if kind == device.Accel && !p.registry.Check(ordinal) {
		return nil, fmt.Errorf("%w: %d", device.ErrBadOrdinal, ordinal)
	}
	stream := device.OpenStream(kind, ordinal, group == TransferGroup)
	l := &Lane{
		ordinal:    ordinal,
		group:      group,
		kind:       kind,
		generation: generation,
		seq:        seq,
		stream:     stream,
		blas:       device.NewBlasHandle(stream),
		rand:       rng.NewOnStream(p.seedFor(seq), stream),
	}
	if enableDNN {
		l.dnn = device.NewDnnHandle(stream)
	}
	observability.RecordLaneCreation(ordinal, group)
	return l, nil
}

// Reconfigure closes every pooled lane and installs a new backend kind and
// device set. Lanes created before the call are invalid afterwards; the next
// request recreates them under the new generation.
func (p *Pool) Reconfigure(kind device.Kind, devices []int) {
	p.mu.Lock()
	stale := p.entries
	p.entries = make(map[key]*entry)
	p.kind = kind
	p.devices = make(map[int]bool)
	for _, d := range devices {
		p.devices[d] = true
	}
	p.generation++
	p.mu.Unlock()

	// Stale lanes close with the backend that created them. The no-op Do
	// waits out any construction still in flight for a reserved slot.
	for _, e := range stale {
		e.once.Do(func() {})
		if e.lane != nil {
			e.lane.close()
		}
	}
}

// SetDevices replaces the active device set without invalidating the whole
// pool. Lanes on ordinals that left the set are closed; the rest survive.
func (p *Pool) SetDevices(devices []int) {
	next := make(map[int]bool)
	for _, d := range devices {
		next[d] = true
	}

	p.mu.Lock()
	p.devices = next
	var dropped []*entry
	for k, e := range p.entries {
		if !next[k.ordinal] {
			dropped = append(dropped, e)
			delete(p.entries, k)
		}
	}
	p.mu.Unlock()

	for _, e := range dropped {
		e.once.Do(func() {})
		if e.lane != nil {
			e.lane.close()
		}
	}
}

// Sequences reports how many lane sequence numbers have been assigned.
func (p *Pool) Sequences() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextSeq
}

// Generation reports how many reconfigurations have occurred.
func (p *Pool) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Len reports the number of pooled lanes, counting slots mid-construction.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Close tears the pool down at process teardown.
func (p *Pool) Close() {
	p.mu.Lock()
	kind := p.kind
	p.mu.Unlock()
	p.Reconfigure(kind, nil)
}
