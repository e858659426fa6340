package clock_test

import (
	"testing"
	"time"

	"github.com/nxtwrld/medscribe/internal/clock"
)

func TestFake_AdvanceFiresDueTimers(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fc := clock.NewFake(start)

	var fired []string
	fc.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	fc.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	fc.AfterFunc(10*time.Second, func() { fired = append(fired, "c") })

	fc.Advance(5 * time.Second)

	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Fatalf("fired = %v, want [a b]", fired)
	}
	if got := fc.Now(); !got.Equal(start.Add(5 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, start.Add(5*time.Second))
	}

	fc.Advance(5 * time.Second)
	if len(fired) != 3 || fired[2] != "c" {
		t.Errorf("fired = %v, want [a b c]", fired)
	}
}

func TestFake_StopPreventsFiring(t *testing.T) {
	t.Parallel()

	fc := clock.NewFake(time.Unix(0, 0))

	fired := false
	timer := fc.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop() = false, want true for a pending timer")
	}
	fc.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}
}

func TestFake_CallbackMayReschedule(t *testing.T) {
	t.Parallel()

	fc := clock.NewFake(time.Unix(0, 0))

	var ticks int
	var tick func()
	tick = func() {
		ticks++
		if ticks < 3 {
			fc.AfterFunc(time.Second, tick)
		}
	}
	fc.AfterFunc(time.Second, tick)

	// All three rescheduled deadlines fall inside the advanced window.
	fc.Advance(10 * time.Second)
	if ticks != 3 {
		t.Errorf("ticks = %d, want 3", ticks)
	}
}

func TestSystem_NowProgresses(t *testing.T) {
	t.Parallel()

	c := clock.System()
	a := c.Now()
	b := c.Now()
	if b.Before(a) {
		t.Errorf("Now() went backwards: %v then %v", a, b)
	}
}
