package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestEventually(t *testing.T) {
	t.Run("condition met immediately", func(t *testing.T) {
		called := false
		Eventually(t, func() bool {
			called = true
			return true
		}, 100*time.Millisecond, 10*time.Millisecond)

		if !called {
			t.Error("condition function should be called")
		}
	})

	t.Run("condition met after delay", func(t *testing.T) {
		var counter int32
		go func() {
			time.Sleep(50 * time.Millisecond)
			atomic.StoreInt32(&counter, 1)
		}()

		Eventually(t, func() bool {
			return atomic.LoadInt32(&counter) == 1
		}, 200*time.Millisecond, 10*time.Millisecond)
	})
}

func TestAssertEventually(t *testing.T) {
	var flag atomic.Bool

	go func() {
		time.Sleep(30 * time.Millisecond)
		flag.Store(true)
	}()

	AssertEventually(t, flag.Load)
}

func TestManualTicker(t *testing.T) {
	start := time.Date(2024, 12, 9, 0, 0, 0, 0, time.UTC)
	ticker := NewManualTicker(start)

	got := make(chan time.Time, 1)
	go func() {
		got <- <-ticker.C()
	}()

	if !ticker.Tick(time.Second) {
		t.Fatal("tick should be delivered")
	}
	AssertEqual(t, <-got, start.Add(time.Second))

	ticker.Stop()
	ticker.Stop()
	if !ticker.Stopped() {
		t.Error("ticker should report stopped")
	}
	if ticker.Tick(time.Second) {
		t.Error("tick after stop should not be delivered")
	}
}

func TestManualTickerStopReleasesPendingTick(t *testing.T) {
	ticker := NewManualTicker(time.Time{})

	delivered := make(chan bool, 1)
	go func() {
		delivered <- ticker.Tick(time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	ticker.Stop()

	select {
	case ok := <-delivered:
		if ok {
			t.Error("pending tick should not report delivery")
		}
	case <-time.After(TestTimeout):
		t.Fatal("pending tick was not released by Stop")
	}
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(t)
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("context should have a deadline")
	}

	if time.Until(deadline) > TestTimeout {
		t.Errorf("deadline is too far in the future")
	}
}

func TestAssertNoError(t *testing.T) {
	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	AssertError(t, context.Canceled)
}

func TestAssertEqual(t *testing.T) {
	AssertEqual(t, 42, 42)
	AssertEqual(t, "hello", "hello")
	AssertEqual(t, true, true)
}

func TestAssertInDelta(t *testing.T) {
	type liters float64
	AssertInDelta(t, liters(1.0000000001), liters(1), FloatTolerance)
	AssertInDelta(t, 3.785411784/3.785411784, 1.0, FloatTolerance)
}
