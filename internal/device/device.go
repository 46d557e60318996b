package device

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrBadOrdinal  = errors.New("device: ordinal out of range")
	ErrOutOfMemory = errors.New("device: allocation exceeds device memory")
)

// Kind selects the executing backend for streams and handles.
type Kind int

const (
	Host Kind = iota
	Accel
)

func (k Kind) String() string {
	if k == Accel {
		return "accel"
	}
	return "host"
}

const (
	EnvAccelDevices  = "TENSORCTL_ACCEL_DEVICES"
	EnvAccelMemoryMB = "TENSORCTL_ACCEL_MEMORY_MB"

	defaultDeviceCount    = 1
	defaultCapability     = 75
	defaultMemoryBytes    = 4 << 30
	defaultStreamBacklog  = 64
	priorityStreamBacklog = 256
)

// Info describes one accelerator ordinal.
type Info struct {
	Ordinal     int
	Name        string
	Capability  int
	TotalMemory uint64
}

// Registry enumerates the accelerator ordinals visible to the process and
// tracks per-ordinal memory reservations. All methods are safe for concurrent
// callers.
type Registry struct {
	mu       sync.Mutex
	devices  []Info
	reserved []uint64
}

// NewRegistry builds a registry over an explicit device table.
func NewRegistry(devices []Info) *Registry {
	return &Registry{
		devices:  devices,
		reserved: make([]uint64, len(devices)),
	}
}

// Probe builds the process registry. The simulated topology is sized from the
// environment so tests and deployments can shape it without code changes.
func Probe() *Registry {
	count := defaultDeviceCount
	if raw := strings.TrimSpace(os.Getenv(EnvAccelDevices)); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			count = n
		}
	}
	mem := uint64(defaultMemoryBytes)
	if raw := strings.TrimSpace(os.Getenv(EnvAccelMemoryMB)); raw != "" {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil && n > 0 {
			mem = n << 20
		}
	}

	devices := make([]Info, count)
	for i := range devices {
		devices[i] = Info{
			Ordinal:     i,
			Name:        fmt.Sprintf("simulated accelerator %d", i),
			Capability:  defaultCapability,
			TotalMemory: mem,
		}
	}
	return NewRegistry(devices)
}

// Count reports all physical ordinals regardless of usage.
func (r *Registry) Count() int {
	return len(r.devices)
}

// Check reports whether ordinal names a present device.
func (r *Registry) Check(ordinal int) bool {
	return ordinal >= 0 && ordinal < len(r.devices)
}

// Find returns the first present ordinal at or above start, or -1.
func (r *Registry) Find(start int) int {
	if start < 0 {
		start = 0
	}
	if start < len(r.devices) {
		return start
	}
	return -1
}

func (r *Registry) Device(ordinal int) (Info, error) {
	if !r.Check(ordinal) {
		return Info{}, fmt.Errorf("%w: %d", ErrBadOrdinal, ordinal)
	}
	return r.devices[ordinal], nil
}

func (r *Registry) Capability(ordinal int) (int, error) {
	info, err := r.Device(ordinal)
	if err != nil {
		return 0, err
	}
	return info.Capability, nil
}

// Capabilities returns the per-ordinal compute capability table.
func (r *Registry) Capabilities() []int {
	out := make([]int, len(r.devices))
	for i, d := range r.devices {
		out[i] = d.Capability
	}
	return out
}

// Alloc reserves bytes of device memory on ordinal and returns the backing
// region. Reservations that would exceed the device total fail with
// ErrOutOfMemory and leave accounting untouched.
func (r *Registry) Alloc(ordinal int, bytes uint64) ([]byte, error) {
	if !r.Check(ordinal) {
		return nil, fmt.Errorf("%w: %d", ErrBadOrdinal, ordinal)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	total := r.devices[ordinal].TotalMemory
	if r.reserved[ordinal]+bytes > total {
		return nil, fmt.Errorf("%w: ordinal %d, %d requested, %d available",
			ErrOutOfMemory, ordinal, bytes, total-r.reserved[ordinal])
	}
	r.reserved[ordinal] += bytes
	return make([]byte, bytes), nil
}

// Release returns bytes of reservation on ordinal to the pool.
func (r *Registry) Release(ordinal int, bytes uint64) {
	if !r.Check(ordinal) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if bytes > r.reserved[ordinal] {
		bytes = r.reserved[ordinal]
	}
	r.reserved[ordinal] -= bytes
}

// Available reports unreserved memory on ordinal.
func (r *Registry) Available(ordinal int) (uint64, error) {
	if !r.Check(ordinal) {
		return 0, fmt.Errorf("%w: %d", ErrBadOrdinal, ordinal)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.devices[ordinal].TotalMemory - r.reserved[ordinal], nil
}

// MinAvailable reports the smallest unreserved memory across ordinals.
// An empty set reports zero.
func (r *Registry) MinAvailable(ordinals []int) uint64 {
	var minAvail uint64
	found := false
	for _, ordinal := range ordinals {
		avail, err := r.Available(ordinal)
		if err != nil {
			continue
		}
		if !found || avail < minAvail {
			minAvail = avail
			found = true
		}
	}
	if !found {
		return 0
	}
	return minAvail
}
