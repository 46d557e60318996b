package syncutil

import (
	"sync"
	"testing"
	"time"

	"github.com/danmuck/tensorctl/internal/testutil/testlog"
)

func TestFlagSetReleasesWait(t *testing.T) {
	testlog.Start(t)
	f := NewFlag(false)

	done := make(chan struct{})
	go func() {
		f.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("wait returned before set")
	case <-time.After(20 * time.Millisecond):
	}

	f.Set()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("wait not released by set")
	}
	if !f.IsSet() {
		t.Fatalf("wait consumed the flag state")
	}
}

func TestFlagWaitResetConsumesOncePerSet(t *testing.T) {
	testlog.Start(t)
	f := NewFlag(false)

	fired := make(chan bool, 1)
	go func() {
		fired <- f.WaitReset()
	}()

	f.Set()
	select {
	case v := <-fired:
		if !v {
			t.Fatalf("expected fired, got disarmed")
		}
	case <-time.After(time.Second):
		t.Fatalf("waitreset not released by set")
	}
	if f.IsSet() {
		t.Fatalf("flag state not cleared after consumption")
	}

	// A second waiter must block again until the next set.
	second := make(chan bool, 1)
	go func() {
		second <- f.WaitReset()
	}()
	select {
	case <-second:
		t.Fatalf("waitreset released without a set")
	case <-time.After(20 * time.Millisecond):
	}
	f.Set()
	select {
	case v := <-second:
		if !v {
			t.Fatalf("expected fired, got disarmed")
		}
	case <-time.After(time.Second):
		t.Fatalf("second waitreset not released")
	}
}

func TestFlagDisarmReleasesAllWaiters(t *testing.T) {
	testlog.Start(t)
	f := NewFlag(false)

	const waiters = 4
	var wg sync.WaitGroup
	results := make(chan bool, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.WaitReset()
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.Wait()
	}()

	time.Sleep(20 * time.Millisecond)
	f.Disarm()
	f.Disarm() // idempotent

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("disarm did not release all waiters")
	}

	close(results)
	for v := range results {
		if v {
			t.Fatalf("disarmed waiter reported fired")
		}
	}
	if f.IsSet() {
		t.Fatalf("disarm must not set the flag")
	}

	// Future waiters never block once disarmed.
	if f.WaitReset() {
		t.Fatalf("post-disarm waitreset reported fired")
	}
	f.Wait()
}

func TestFlagDisarmAfterSetStillFires(t *testing.T) {
	testlog.Start(t)
	f := NewFlag(true)
	f.Disarm()
	if !f.WaitReset() {
		t.Fatalf("pending set state lost on disarm")
	}
	if f.WaitReset() {
		t.Fatalf("second waitreset should observe disarmed, not fired")
	}
}
