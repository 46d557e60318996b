package workspace

import (
	"errors"
	"sync"
	"testing"

	"github.com/danmuck/tensorctl/internal/device"
	"github.com/danmuck/tensorctl/internal/testutil/testlog"
)

func TestReserveNeverShrinks(t *testing.T) {
	testlog.Start(t)
	a := NewArena(nil, -1, 0)

	buf, err := a.Reserve(ConvForward, 1000)
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if uint64(len(buf)) < 1000 {
		t.Fatalf("buf len=%d want>=1000", len(buf))
	}
	grown := a.Size(ConvForward)

	if _, err := a.Reserve(ConvForward, 100); err != nil {
		t.Fatalf("smaller reserve failed: %v", err)
	}
	if a.Size(ConvForward) != grown {
		t.Fatalf("region shrank: %d -> %d", grown, a.Size(ConvForward))
	}

	if _, err := a.Reserve(ConvForward, grown+1); err != nil {
		t.Fatalf("larger reserve failed: %v", err)
	}
	if a.Size(ConvForward) <= grown {
		t.Fatalf("region did not grow past %d", grown)
	}
}

func TestReserveAlignsGrowth(t *testing.T) {
	testlog.Start(t)
	a := NewArena(nil, -1, 0)

	if _, err := a.Reserve(Transfer, 1); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if got := a.Size(Transfer); got != 256 {
		t.Fatalf("size=%d want=256", got)
	}
}

func TestReserveBadRegionAndLimit(t *testing.T) {
	testlog.Start(t)
	a := NewArena(nil, -1, 4096)

	if _, err := a.Reserve(Total, 10); !errors.Is(err, ErrBadRegion) {
		t.Fatalf("expected ErrBadRegion, got %v", err)
	}
	if _, err := a.Reserve(ID(-1), 10); !errors.Is(err, ErrBadRegion) {
		t.Fatalf("expected ErrBadRegion, got %v", err)
	}
	if _, err := a.Reserve(ConvForward, 8192); !errors.Is(err, ErrLimit) {
		t.Fatalf("expected ErrLimit, got %v", err)
	}
	// A failed reservation leaves the region usable.
	if _, err := a.Reserve(ConvForward, 1024); err != nil {
		t.Fatalf("reserve after limit failure: %v", err)
	}
}

func TestReserveDeviceAccounting(t *testing.T) {
	testlog.Start(t)
	r := device.NewRegistry([]device.Info{
		{Ordinal: 0, Name: "sim0", Capability: 75, TotalMemory: 1 << 20},
	})
	a := NewArena(r, 0, 0)

	if _, err := a.Reserve(ConvForward, 1<<18); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	avail, _ := r.Available(0)
	if avail != 1<<20-1<<18 {
		t.Fatalf("available=%d", avail)
	}

	// Regrowth releases the old reservation.
	if _, err := a.Reserve(ConvForward, 1<<19); err != nil {
		t.Fatalf("regrow failed: %v", err)
	}
	avail, _ = r.Available(0)
	if avail != 1<<20-1<<19 {
		t.Fatalf("available after regrow=%d", avail)
	}

	if _, err := a.Reserve(Transfer, 1<<20); !errors.Is(err, device.ErrOutOfMemory) {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}

	a.Close()
	avail, _ = r.Available(0)
	if avail != 1<<20 {
		t.Fatalf("close did not release: available=%d", avail)
	}
}

func TestReserveConcurrentRegions(t *testing.T) {
	testlog.Start(t)
	a := NewArena(nil, -1, 0)

	var wg sync.WaitGroup
	for id := ID(0); id < Total; id++ {
		for n := 0; n < 50; n++ {
			wg.Add(1)
			go func(id ID, n int) {
				defer wg.Done()
				if _, err := a.Reserve(id, uint64(512+n*64)); err != nil {
					t.Errorf("reserve(%s, %d): %v", id, n, err)
				}
			}(id, n)
		}
	}
	wg.Wait()

	for id := ID(0); id < Total; id++ {
		if a.Size(id) < 512+49*64 {
			t.Fatalf("region %s below max request: %d", id, a.Size(id))
		}
	}
}

func TestAlignHelpers(t *testing.T) {
	testlog.Start(t)
	if got := AlignUp(1, 256); got != 256 {
		t.Fatalf("alignup(1)=%d", got)
	}
	if got := AlignUp(256, 256); got != 256 {
		t.Fatalf("alignup(256)=%d", got)
	}
	if got := AlignUp(257, 256); got != 512 {
		t.Fatalf("alignup(257)=%d", got)
	}
	if got := AlignDown(511, 256); got != 256 {
		t.Fatalf("aligndown(511)=%d", got)
	}
	if got := AlignDown(512, 256); got != 512 {
		t.Fatalf("aligndown(512)=%d", got)
	}
}

func TestReserveAfterCloseFails(t *testing.T) {
	testlog.Start(t)
	r := device.NewRegistry([]device.Info{
		{Ordinal: 0, Name: "sim0", Capability: 75, TotalMemory: 1 << 20},
	})
	a := NewArena(r, 0, 0)

	if _, err := a.Reserve(ConvForward, 4096); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	a.Close()

	if _, err := a.Reserve(ConvForward, 4096); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := a.Reserve(Transfer, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on fresh region, got %v", err)
	}
	avail, _ := r.Available(0)
	if avail != 1<<20 {
		t.Fatalf("closed arena holds reservations: available=%d", avail)
	}
}

func TestReserveRacingCloseLeaksNothing(t *testing.T) {
	testlog.Start(t)
	r := device.NewRegistry([]device.Info{
		{Ordinal: 0, Name: "sim0", Capability: 75, TotalMemory: 1 << 20},
	})

	for i := 0; i < 200; i++ {
		a := NewArena(r, 0, 0)
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := a.Reserve(ConvForward, uint64(256*(n+1)))
				if err != nil && !errors.Is(err, ErrClosed) {
					t.Errorf("reserve: %v", err)
				}
			}(w)
		}
		a.Close()
		wg.Wait()
		a.Close()

		if avail, _ := r.Available(0); avail != 1<<20 {
			t.Fatalf("iteration %d leaked: available=%d", i, avail)
		}
	}
}
