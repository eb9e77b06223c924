package statewatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestRegistry_RejectsDuplicateSource(t *testing.T) {
	loop := NewLoop()
	loop.Start(context.Background())
	defer loop.Stop()

	reg := NewRegistry(loop)
	if err := reg.Register("a", NewValue(loop, 1)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register("a", NewValue(loop, 2)); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestRegistry_ReactRequiresRegisteredSources(t *testing.T) {
	loop := NewLoop()
	loop.Start(context.Background())
	defer loop.Stop()

	reg := NewRegistry(loop)
	err := reg.React("combo", []SourceID{"missing"},
		func(_ context.Context, _ Snapshot) error { return nil })
	if err == nil {
		t.Error("expected reaction over unregistered source to fail")
	}
}

func TestRegistry_RejectsDuplicateReaction(t *testing.T) {
	loop := NewLoop()
	loop.Start(context.Background())
	defer loop.Stop()

	reg := NewRegistry(loop)
	_ = reg.Register("a", NewValue(loop, 1))

	noop := func(_ context.Context, _ Snapshot) error { return nil }
	if err := reg.React("combo", []SourceID{"a"}, noop); err != nil {
		t.Fatalf("React failed: %v", err)
	}
	if err := reg.React("combo", []SourceID{"a"}, noop); err == nil {
		t.Error("expected duplicate reaction name to fail")
	}
}

func TestRegistry_WiringBeforeLoopStart(t *testing.T) {
	loop := NewLoop()

	reg := NewRegistry(loop)
	a := NewValue(loop, 1)
	if err := reg.Register("a", a); err != nil {
		t.Fatalf("Register before loop start failed: %v", err)
	}

	var count int
	if err := reg.React("combo", []SourceID{"a"},
		func(_ context.Context, _ Snapshot) error {
			count++
			return nil
		}); err != nil {
		t.Fatalf("React before loop start failed: %v", err)
	}

	loop.Start(context.Background())
	defer loop.Stop()

	reg.Start(context.Background())
	loop.Wait()

	if count != 1 {
		t.Errorf("expected initial snapshot after start, got %d", count)
	}
}

func TestRegistry_StartDeliversInitialSnapshotOnce(t *testing.T) {
	loop := NewLoop()
	loop.Start(context.Background())
	defer loop.Stop()

	reg := NewRegistry(loop)
	a := NewValue(loop, 1)
	b := NewValue(loop, 2)
	_ = reg.Register("a", a)
	_ = reg.Register("b", b)

	var calls []Snapshot
	_ = reg.React("combo", []SourceID{"a", "b"},
		func(_ context.Context, snap Snapshot) error {
			calls = append(calls, snap)
			return nil
		})

	reg.Start(context.Background())
	loop.Wait()

	// Both watchers start within one turn, so their initial events
	// coalesce into a single snapshot.
	if len(calls) != 1 {
		t.Fatalf("expected 1 initial snapshot, got %d", len(calls))
	}
	snap := calls[0]
	if !snap["a"].Initial || !snap["b"].Initial {
		t.Errorf("expected both entries initial, got %v", snap)
	}
	if snap["a"].Current != 1 || snap["b"].Current != 2 {
		t.Errorf("unexpected initial values: %v", snap)
	}
}

func TestRegistry_BurstCoalescesIntoOneReaction(t *testing.T) {
	loop := NewLoop()
	loop.Start(context.Background())
	defer loop.Stop()

	reg := NewRegistry(loop)
	a := NewValue(loop, 0)
	b := NewValue(loop, 0)
	_ = reg.Register("a", a)
	_ = reg.Register("b", b)

	var calls []Snapshot
	_ = reg.React("combo", []SourceID{"a", "b"},
		func(_ context.Context, snap Snapshot) error {
			calls = append(calls, snap)
			return nil
		})

	reg.Start(context.Background())
	loop.Wait()
	calls = nil

	loop.Do(func() {
		a.Set(10)
		b.Set(20)
		a.Set(11)
	})

	if len(calls) != 1 {
		t.Fatalf("expected 1 reaction for the burst, got %d", len(calls))
	}
	snap := calls[0]
	if snap["a"].Current != 11 {
		t.Errorf("expected last write 11, got %v", snap["a"].Current)
	}
	if snap["b"].Current != 20 {
		t.Errorf("expected 20, got %v", snap["b"].Current)
	}
	if !snap["a"].Changed || !snap["b"].Changed {
		t.Errorf("expected both entries real, got %v", snap)
	}
}

func TestRegistry_SilentSourceSynthesized(t *testing.T) {
	loop := NewLoop()
	loop.Start(context.Background())
	defer loop.Stop()

	reg := NewRegistry(loop)
	a := NewValue(loop, 1)
	b := NewValue(loop, 2)
	_ = reg.Register("a", a)
	_ = reg.Register("b", b)

	var calls []Snapshot
	_ = reg.React("combo", []SourceID{"a", "b"},
		func(_ context.Context, snap Snapshot) error {
			calls = append(calls, snap)
			return nil
		})

	reg.Start(context.Background())
	loop.Wait()
	calls = nil

	loop.Do(func() {
		a.Set(5)
	})

	if len(calls) != 1 {
		t.Fatalf("expected 1 reaction, got %d", len(calls))
	}
	filler := calls[0]["b"]
	if filler.Changed {
		t.Error("expected silent source entry to be synthetic")
	}
	if filler.Current != 2 {
		t.Errorf("expected fresh read 2, got %v", filler.Current)
	}
	if !filler.HasPrevious || filler.Previous != 2 {
		t.Errorf("expected previous from initial event, got %v", filler.Previous)
	}
}

func TestRegistry_IndependentReactions(t *testing.T) {
	loop := NewLoop()
	loop.Start(context.Background())
	defer loop.Stop()

	reg := NewRegistry(loop)
	a := NewValue(loop, 0)
	b := NewValue(loop, 0)
	_ = reg.Register("a", a)
	_ = reg.Register("b", b)

	var onlyA, both int
	_ = reg.React("only-a", []SourceID{"a"},
		func(_ context.Context, _ Snapshot) error {
			onlyA++
			return nil
		})
	_ = reg.React("both", []SourceID{"a", "b"},
		func(_ context.Context, _ Snapshot) error {
			both++
			return nil
		})

	reg.Start(context.Background())
	loop.Wait()
	onlyA, both = 0, 0

	loop.Do(func() { b.Set(1) })

	if onlyA != 0 {
		t.Errorf("expected reaction over {a} untouched by b, got %d", onlyA)
	}
	if both != 1 {
		t.Errorf("expected reaction over {a,b} to fire, got %d", both)
	}
}

func TestRegistry_DismissStopsDelivery(t *testing.T) {
	loop := NewLoop()
	loop.Start(context.Background())
	defer loop.Stop()

	reg := NewRegistry(loop)
	a := NewValue(loop, 0)
	_ = reg.Register("a", a)

	var count int
	_ = reg.React("combo", []SourceID{"a"},
		func(_ context.Context, _ Snapshot) error {
			count++
			return nil
		})

	reg.Start(context.Background())
	loop.Wait()

	if !reg.Dismiss("combo") {
		t.Fatal("expected Dismiss to report removal")
	}
	if reg.Dismiss("combo") {
		t.Error("expected second Dismiss to report absence")
	}

	before := count
	loop.Do(func() { a.Set(1) })

	if count != before {
		t.Errorf("expected no delivery after dismiss, got %d extra", count-before)
	}

	// The name is free for redeclaration.
	if err := reg.React("combo", []SourceID{"a"},
		func(_ context.Context, _ Snapshot) error { return nil }); err != nil {
		t.Errorf("expected name reusable after dismiss: %v", err)
	}
}

func TestRegistry_RegisterAfterStartBeginsWatching(t *testing.T) {
	loop := NewLoop()
	loop.Start(context.Background())
	defer loop.Stop()

	reg := NewRegistry(loop)
	reg.Start(context.Background())

	late := NewValue(loop, 9)
	if err := reg.Register("late", late); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if v := reg.CurrentValue("late"); v != 9 {
		t.Errorf("expected 9, got %v", v)
	}

	var count int
	_ = reg.React("combo", []SourceID{"late"},
		func(_ context.Context, _ Snapshot) error {
			count++
			return nil
		})

	loop.Do(func() { late.Set(10) })
	if count != 1 {
		t.Errorf("expected late-registered source to deliver, got %d", count)
	}
}

func TestRegistry_CloseIsIdempotentAndFinal(t *testing.T) {
	loop := NewLoop()
	loop.Start(context.Background())
	defer loop.Stop()

	reg := NewRegistry(loop)
	_ = reg.Register("a", NewValue(loop, 1))
	reg.Start(context.Background())

	reg.Close()
	reg.Close()

	if err := reg.Register("b", NewValue(loop, 2)); err == nil {
		t.Error("expected Register after Close to fail")
	}
	if err := reg.React("combo", []SourceID{"a"},
		func(_ context.Context, _ Snapshot) error { return nil }); err == nil {
		t.Error("expected React after Close to fail")
	}
}

func TestRegistry_CloseStopsWatchers(t *testing.T) {
	loop := NewLoop()
	loop.Start(context.Background())
	defer loop.Stop()

	reg := NewRegistry(loop)
	a := NewValue(loop, 0)
	_ = reg.Register("a", a)

	var count int
	_ = reg.React("combo", []SourceID{"a"},
		func(_ context.Context, _ Snapshot) error {
			count++
			return nil
		})

	reg.Start(context.Background())
	loop.Wait()
	before := count

	reg.Close()
	loop.Do(func() { a.Set(1) })

	if count != before {
		t.Errorf("expected no delivery after close, got %d extra", count-before)
	}
}

func TestRegistry_ReactEveryArmsWhilePredicateHolds(t *testing.T) {
	clock := clockz.NewFakeClock()
	loop := NewLoop().Clock(clock)
	loop.Start(context.Background())
	defer loop.Stop()

	reg := NewRegistry(loop)
	enabled := NewValue(loop, false)
	_ = reg.Register("enabled", enabled)

	var runs atomic.Int32
	err := reg.ReactEvery("report", []SourceID{"enabled"},
		func(_ context.Context, snap Snapshot) (bool, error) {
			on, _ := EventValue[bool](snap["enabled"])
			return on, nil
		},
		func(_ context.Context) error {
			runs.Add(1)
			return nil
		},
		time.Second)
	if err != nil {
		t.Fatalf("ReactEvery failed: %v", err)
	}

	reg.Start(context.Background())
	loop.Wait()

	// Initial snapshot: predicate false, nothing armed.
	if runs.Load() != 0 {
		t.Fatalf("expected no runs while disabled, got %d", runs.Load())
	}

	loop.Do(func() { enabled.Set(true) })

	// Arming runs the action immediately.
	if runs.Load() != 1 {
		t.Fatalf("expected immediate run on arming, got %d", runs.Load())
	}

	clock.Advance(time.Second)
	clock.BlockUntilReady()
	time.Sleep(20 * time.Millisecond)

	if runs.Load() != 2 {
		t.Errorf("expected one tick after one period, got %d runs", runs.Load())
	}

	loop.Do(func() { enabled.Set(false) })
	clock.Advance(5 * time.Second)
	clock.BlockUntilReady()
	time.Sleep(20 * time.Millisecond)

	if runs.Load() != 2 {
		t.Errorf("expected timer cleared once disabled, got %d runs", runs.Load())
	}

	reg.Close()
}
