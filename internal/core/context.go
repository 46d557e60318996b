package core

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/tensorctl/internal/device"
	"github.com/danmuck/tensorctl/internal/lane"
	"github.com/danmuck/tensorctl/internal/observability"
	"github.com/danmuck/tensorctl/internal/rng"
	"github.com/danmuck/tensorctl/internal/syncutil"
	"github.com/danmuck/tensorctl/internal/workspace"
	"github.com/rs/zerolog/log"
)

var ErrBadMode = errors.New("core: unknown mode")

// Mode selects where computation runs.
type Mode int

const (
	ModeHost Mode = iota
	ModeAccel
)

func (m Mode) String() string {
	if m == ModeAccel {
		return "accelerated"
	}
	return "host"
}

func (m Mode) kind() device.Kind {
	if m == ModeAccel {
		return device.Accel
	}
	return device.Host
}

// ParseMode maps a config string onto a Mode.
func ParseMode(raw string) (Mode, error) {
	switch raw {
	case "", "host", "cpu":
		return ModeHost, nil
	case "accelerated", "accel", "gpu":
		return ModeAccel, nil
	default:
		return ModeHost, fmt.Errorf("%w: %q", ErrBadMode, raw)
	}
}

// The epoch cell starts at the sentinel so the first report always applies.
const epochNotSet = ^uint64(0)

// Options configure a fresh context. Zero values are filled by
// DefaultOptions.
type Options struct {
	Mode           Mode
	RootDevice     int
	Devices        []int
	EnableDNN      bool
	WorkspaceLimit uint64
	RootSeed       uint64
}

func DefaultOptions() Options {
	return Options{
		Mode:      ModeAccel,
		EnableDNN: true,
		RootSeed:  rng.SeedNotSet,
	}
}

// Context coordinates which device work targets, pools execution lanes,
// shares workspace arenas, and derives reproducible seeds. Every method is
// safe under arbitrary concurrent callers.
type Context struct {
	registry *device.Registry
	start    time.Time

	// mu serializes configuration: mode and device-set changes never
	// interleave with lane creation mid-reinitialization.
	mu          sync.Mutex
	mode        Mode
	rootDevice  int
	devices     []int
	solverCount int
	rootSolver  bool
	enableDNN   bool
	wsLimit     uint64
	pool        *lane.Pool
	arenas      map[int]*workspace.Arena

	rootSeed     atomic.Uint64
	seedSeq      atomic.Uint64
	epoch        atomic.Uint64
	restoredIter atomic.Int64
	reinits      atomic.Uint64

	props     Properties
	propsOnce sync.Once
}

var (
	globalOnce sync.Once
	global     *Context
)

// Get returns the process-wide context, probing the device topology on first
// use. Concurrent first calls observe one fully constructed instance.
func Get() *Context {
	globalOnce.Do(func() {
		global = New(device.Probe(), DefaultOptions())
	})
	return global
}

// New builds an independent context over an explicit registry.
func New(registry *device.Registry, opts Options) *Context {
	c := &Context{
		registry:    registry,
		start:       time.Now(),
		mode:        opts.Mode,
		rootDevice:  opts.RootDevice,
		solverCount: 1,
		rootSolver:  true,
		enableDNN:   opts.EnableDNN,
		wsLimit:     opts.WorkspaceLimit,
		arenas:      make(map[int]*workspace.Arena),
	}
	c.rootSeed.Store(opts.RootSeed)
	c.epoch.Store(epochNotSet)
	c.restoredIter.Store(-1)

	devices := opts.Devices
	if len(devices) == 0 {
		devices = []int{c.rootDevice}
	}
	c.devices = devices
	c.pool = lane.NewPool(registry, c.mode.kind(), devices, c.enableDNN, c.seedFor)
	return c
}

// seedFor derives a lane generator seed from its sequence number. With no
// root seed fixed, every lane gets independent system entropy.
func (c *Context) seedFor(seq uint64) uint64 {
	root := c.rootSeed.Load()
	if root == rng.SeedNotSet {
		return rng.SystemSeed()
	}
	return rng.SeedFor(root, seq)
}

func (c *Context) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches between host and accelerated execution. Setting the mode
// already in force is a no-op. An actual flip reinitializes pooled lanes and
// workspaces: resources created under the old mode are closed with the old
// backend and recreated lazily on next access.
func (c *Context) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == m {
		return
	}
	log.Debug().
		Str("old_mode", c.mode.String()).
		Str("new_mode", m.String()).
		Msg("mode change")
	c.mode = m
	c.reinitializeLocked()
}

// reinitializeLocked tears down pooled resources after a mode flip. Callers
// hold mu.
func (c *Context) reinitializeLocked() {
	c.pool.Reconfigure(c.mode.kind(), c.devices)
	for _, a := range c.arenas {
		a.Close()
	}
	c.arenas = make(map[int]*workspace.Arena)
	c.reinits.Add(1)
	observability.RecordReinitialization()
}

// Reinitializations reports how many mode flips have torn down pooled state.
func (c *Context) Reinitializations() uint64 {
	return c.reinits.Load()
}

func (c *Context) RootDevice() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rootDevice
}

// SetRootDevice selects the default target for the main thread. The ordinal
// must name a present device.
func (c *Context) SetRootDevice(ordinal int) error {
	if !c.registry.Check(ordinal) {
		return fmt.Errorf("%w: %d", device.ErrBadOrdinal, ordinal)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rootDevice = ordinal
	return nil
}

// DeviceSet returns a copy of the ordinals in use for parallel work.
func (c *Context) DeviceSet() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.devices))
	copy(out, c.devices)
	return out
}

// SetDeviceSet replaces the active device list. An empty list is normalized
// to the root device, so the set is never empty. Ordinals must name present
// devices.
func (c *Context) SetDeviceSet(devices []int) error {
	for _, d := range devices {
		if !c.registry.Check(d) {
			return fmt.Errorf("%w: %d", device.ErrBadOrdinal, d)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(devices) == 0 {
		devices = []int{c.rootDevice}
	}
	c.devices = make([]int, len(devices))
	copy(c.devices, devices)
	c.pool.SetDevices(c.devices)
	return nil
}

// Lane returns the pooled lane for (root device, group), creating it on
// first touch.
func (c *Context) Lane(group int) (*lane.Lane, error) {
	return c.LaneFor(c.RootDevice(), group)
}

// LaneFor returns the pooled lane for (ordinal, group).
func (c *Context) LaneFor(ordinal, group int) (*lane.Lane, error) {
	c.mu.Lock()
	pool := c.pool
	c.mu.Unlock()
	return pool.Lane(ordinal, group)
}

// RNG returns the generator owned by the default compute lane on the root
// device.
func (c *Context) RNG() (*rng.RNG, error) {
	l, err := c.Lane(lane.DefaultGroup)
	if err != nil {
		return nil, err
	}
	return l.RNG(), nil
}

// Reserve grows workspace region id on the root device to at least bytes.
func (c *Context) Reserve(id workspace.ID, bytes uint64) ([]byte, error) {
	return c.ReserveOn(c.RootDevice(), id, bytes)
}

// ReserveOn grows workspace region id on the given ordinal. A mode flip
// racing the reservation closes the arena mid-flight; the reservation then
// retries against the replacement arena created under the new mode, so the
// caller never keeps scratch memory belonging to a torn-down configuration.
func (c *Context) ReserveOn(ordinal int, id workspace.ID, bytes uint64) ([]byte, error) {
	for {
		arena, err := c.arenaFor(ordinal)
		if err != nil {
			return nil, err
		}
		buf, err := arena.Reserve(id, bytes)
		if errors.Is(err, workspace.ErrClosed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		observability.RecordWorkspaceBytes(ordinal, id.String(), arena.Size(id))
		return buf, nil
	}
}

// WorkspaceSize reports the current capacity of region id on ordinal.
func (c *Context) WorkspaceSize(ordinal int, id workspace.ID) uint64 {
	c.mu.Lock()
	arena := c.arenas[ordinal]
	c.mu.Unlock()
	if arena == nil {
		return 0
	}
	return arena.Size(id)
}

func (c *Context) arenaFor(ordinal int) (*workspace.Arena, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.arenas[ordinal]; ok {
		return a, nil
	}
	var registry *device.Registry
	if c.mode == ModeAccel {
		if !c.registry.Check(ordinal) {
			return nil, fmt.Errorf("%w: %d", device.ErrBadOrdinal, ordinal)
		}
		registry = c.registry
	}
	a := workspace.NewArena(registry, ordinal, c.wsLimit)
	c.arenas[ordinal] = a
	return a, nil
}

// ReportEpoch lowers the shared epoch counter toward e, so the globally
// visible epoch is always the minimum any worker has reported: the slowest
// replica gates global progress.
func (c *Context) ReportEpoch(e uint64) {
	syncutil.MinUint64(&c.epoch, e)
	observability.RecordEpoch(c.CurrentEpoch())
}

// CurrentEpoch reports the minimum reported epoch, or zero when no report
// has ever occurred.
func (c *Context) CurrentEpoch() uint64 {
	e := c.epoch.Load()
	if e == epochNotSet {
		return 0
	}
	return e
}

// SetRootSeed fixes the root seed for reproducible runs and restarts the
// derived-seed sequence. The default compute lane's generator, if already
// created, is reseeded in place.
func (c *Context) SetRootSeed(seed uint64) {
	c.rootSeed.Store(seed)
	c.seedSeq.Store(0)
	if l, err := c.Lane(lane.DefaultGroup); err == nil {
		l.RNG().Reseed(rng.SeedFor(seed, l.Seq()))
	}
}

func (c *Context) RootSeed() uint64 {
	return c.rootSeed.Load()
}

// NextSeed draws the next seed: derived and deterministic once a root seed
// is fixed, system entropy otherwise.
func (c *Context) NextSeed() uint64 {
	root := c.rootSeed.Load()
	if root == rng.SeedNotSet {
		return rng.SystemSeed()
	}
	return rng.SeedFor(root, c.seedSeq.Add(1)-1)
}

func (c *Context) SolverCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.solverCount
}

func (c *Context) SetSolverCount(n int) {
	if n < 1 {
		n = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.solverCount = n
}

func (c *Context) RootSolver() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rootSolver
}

func (c *Context) SetRootSolver(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rootSolver = v
}

// ThreadCount reports how many lane sequence numbers have been assigned over
// the life of the process.
func (c *Context) ThreadCount() int {
	c.mu.Lock()
	pool := c.pool
	c.mu.Unlock()
	return int(pool.Sequences())
}

// RestoredIter reports the checkpoint iteration this run resumed from, or -1.
func (c *Context) RestoredIter() int64 {
	return c.restoredIter.Load()
}

func (c *Context) SetRestoredIter(iter int64) {
	c.restoredIter.Store(iter)
}

// DeviceCount reports all physical ordinals regardless of usage.
func (c *Context) DeviceCount() int { return c.registry.Count() }

// CheckDevice reports whether ordinal names a present device.
func (c *Context) CheckDevice(ordinal int) bool { return c.registry.Check(ordinal) }

// FindDevice returns the first present ordinal at or above start, or -1.
func (c *Context) FindDevice(start int) int { return c.registry.Find(start) }

// DeviceQuery renders a report for ordinal.
func (c *Context) DeviceQuery(ordinal int) (string, error) { return c.registry.Query(ordinal) }

// MinAvailableDeviceMemory reports the smallest unreserved memory across the
// active device set.
func (c *Context) MinAvailableDeviceMemory() uint64 {
	return c.registry.MinAvailable(c.DeviceSet())
}

// TimeFromStart reports how long the context has existed.
func (c *Context) TimeFromStart() time.Duration {
	return time.Since(c.start)
}

// Close releases pooled lanes and arenas at process teardown.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pool.Close()
	for _, a := range c.arenas {
		a.Close()
	}
	c.arenas = make(map[int]*workspace.Arena)
}
