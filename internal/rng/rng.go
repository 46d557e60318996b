// Package rng hides the host and device random generator backends behind one
// type. Call sites depend only on the seed and generate contract, never on
// backend identity.
package rng

import (
	crand "crypto/rand"
	"encoding/binary"

	"github.com/danmuck/tensorctl/internal/device"
)

// SeedNotSet marks an unfixed root seed; draws then come from system entropy.
const SeedNotSet = ^uint64(0)

// SeedFor derives the seed for a participant from the root seed and its
// sequence number. The derivation is a pure function, so assignments are
// bit-identical across runs whenever sequence numbers are assigned
// deterministically.
func SeedFor(root, seq uint64) uint64 {
	return mix(root + 0x9e3779b97f4a7c15*(seq+1))
}

// SystemSeed draws a non-deterministic seed from the OS entropy source.
func SystemSeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms; an error here means
		// the process environment is unusable.
		panic("rng: system entropy unavailable: " + err.Error())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// mix is the splitmix64 finalizer.
func mix(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

type generator interface {
	next() uint64
	fill(dst []float32) error
	reseed(seed uint64)
}

// RNG generates uniform randomness on either the host or a device stream.
// An RNG has one logical owner at a time; it is not internally locked.
type RNG struct {
	gen generator
}

// New builds a host-backed generator.
func New(seed uint64) *RNG {
	return &RNG{gen: &hostGen{state: seed}}
}

// NewOnStream builds a generator that produces its output through the given
// device stream, ordered with the stream's other work.
func NewOnStream(seed uint64, stream *device.Stream) *RNG {
	return &RNG{gen: &deviceGen{seed: seed, stream: stream}}
}

func (r *RNG) Uint64() uint64 {
	return r.gen.next()
}

// Float32 returns a uniform value in [0, 1).
func (r *RNG) Float32() float32 {
	return float32(r.gen.next()>>40) * (1.0 / (1 << 24))
}

// Fill populates dst with uniform values in [0, 1). Device-backed generators
// perform the generation on their stream; callers observe the data after a
// stream synchronize.
func (r *RNG) Fill(dst []float32) error {
	return r.gen.fill(dst)
}

func (r *RNG) Reseed(seed uint64) {
	r.gen.reseed(seed)
}

// hostGen advances a splitmix64 state inline on the calling thread.
type hostGen struct {
	state uint64
}

func (g *hostGen) next() uint64 {
	g.state++
	return mix(g.state)
}

func (g *hostGen) fill(dst []float32) error {
	for i := range dst {
		dst[i] = float32(g.next()>>40) * (1.0 / (1 << 24))
	}
	return nil
}

func (g *hostGen) reseed(seed uint64) {
	g.state = seed
}

// deviceGen reserves a block counter per request at submission time, so the
// produced sequence depends only on the seed and submission order, never on
// when the stream executes the work.
type deviceGen struct {
	seed   uint64
	block  uint64
	stream *device.Stream
}

func (g *deviceGen) next() uint64 {
	blk := g.block
	g.block++
	var out uint64
	done := make(chan struct{})
	err := g.stream.Submit(func() {
		out = mix(g.seed + 0x9e3779b97f4a7c15*(blk+1))
		close(done)
	})
	if err != nil {
		// A closed stream is a configuration error at the call site; the
		// generator contract has no error path for scalar draws.
		panic("rng: generator stream closed")
	}
	<-done
	return out
}

func (g *deviceGen) fill(dst []float32) error {
	blk := g.block
	g.block++
	return g.stream.Submit(func() {
		state := mix(g.seed + 0x9e3779b97f4a7c15*(blk+1))
		for i := range dst {
			state++
			dst[i] = float32(mix(state)>>40) * (1.0 / (1 << 24))
		}
	})
}

func (g *deviceGen) reseed(seed uint64) {
	g.seed = seed
	g.block = 0
}
