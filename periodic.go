package statewatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Predicate decides from a snapshot whether a periodic task should be
// armed. An error is logged and leaves the task's state unchanged.
type Predicate func(ctx context.Context, snap Snapshot) (bool, error)

// Action is the repeating work a periodic task performs. Failures are
// logged and do not stop the timer.
type Action func(ctx context.Context) error

// Periodic arms and disarms a repeating action based on the latest
// snapshot. Install Callback as an aggregator's reaction; every delivered
// snapshot is run through the predicate:
//
//   - predicate true: any existing timer is cleared, the action runs once
//     immediately (unless disabled via Immediate(false)), and a fresh timer
//     is armed to repeat the action every period.
//   - predicate false: the timer, if armed, is cleared.
//
// Callback invocations are serialized by an internal lock so two rapid
// snapshots cannot race to arm duplicate timers. Cleanup disarms
// unconditionally and does not take that lock, so it is safe to call while
// a Callback is in flight.
//
// A tick that fires while the previous action invocation is still running
// is skipped rather than overlapped.
type Periodic struct {
	name      string
	predicate Predicate
	action    Action
	period    time.Duration
	immediate bool
	clock     clockz.Clock
	logger    *zap.Logger

	// mu serializes Callback invocations.
	mu sync.Mutex

	// timerMu guards the armed timer state, independent of mu so Cleanup
	// can disarm mid-Callback.
	timerMu sync.Mutex
	stopC   chan struct{}
	timer   clockz.Timer

	state   atomic.Int32
	running atomic.Bool
}

// NewPeriodic creates a Periodic task. The action runs every period while
// the task is armed, and once immediately on arming by default.
func NewPeriodic(name string, predicate Predicate, action Action, period time.Duration) *Periodic {
	p := &Periodic{
		name:      name,
		predicate: predicate,
		action:    action,
		period:    period,
		immediate: true,
		clock:     clockz.RealClock,
		logger:    zap.NewNop(),
	}
	p.state.Store(int32(TaskIdle))
	return p
}

// Immediate controls whether the action runs once at arming time, before
// the first timer tick. Default: true.
func (p *Periodic) Immediate(run bool) *Periodic {
	p.immediate = run
	return p
}

// Clock sets a custom clock for timer operations. Use this with
// clockz.FakeClock for deterministic tick testing.
func (p *Periodic) Clock(clock clockz.Clock) *Periodic {
	p.clock = clock
	return p
}

// Logger sets the logger used for action and predicate failures.
func (p *Periodic) Logger(logger *zap.Logger) *Periodic {
	p.logger = logger
	return p
}

// Name returns the task's name, used in failure logs.
func (p *Periodic) Name() string {
	return p.name
}

// State returns the task's current state.
func (p *Periodic) State() TaskState {
	return TaskState(p.state.Load())
}

// Callback evaluates the predicate against the snapshot and arms or
// disarms the repeating action accordingly. It is meant to be installed as
// an aggregator's reaction. The returned error is always nil; failures
// surface through the logger only.
func (p *Periodic) Callback(ctx context.Context, snap Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var hold bool
	err := guard(func() error {
		var perr error
		hold, perr = p.predicate(ctx, snap)
		return perr
	})
	if err != nil {
		p.logger.Error("periodic predicate failed",
			zap.String("task", p.name),
			zap.Error(err),
		)
		return nil
	}

	if !hold {
		p.disarm(ctx)
		return nil
	}

	// Re-arm from a clean slate rather than leave a stale timer running.
	p.disarm(ctx)
	if p.immediate {
		p.runAction(ctx)
	}
	p.arm(ctx)
	return nil
}

// Cleanup unconditionally disarms the task and transitions it to idle.
// Safe to call at any time, including while a Callback is in flight.
// Idempotent.
func (p *Periodic) Cleanup() {
	p.disarm(context.Background())
}

// arm starts the repeating timer.
func (p *Periodic) arm(ctx context.Context) {
	p.timerMu.Lock()
	defer p.timerMu.Unlock()
	if p.stopC != nil {
		return
	}

	stop := make(chan struct{})
	p.stopC = stop
	p.state.Store(int32(TaskArmed))

	// Created here, not in the tick goroutine, so the timer is registered
	// with the clock before arm returns. Kept next to stopC so disarm can
	// stop it.
	timer := p.clock.NewTimer(p.period)
	p.timer = timer

	capitan.Emit(ctx, TaskArmedSignal,
		KeyTask.Field(p.name),
		KeyPeriod.Field(p.period),
		KeyState.Field(TaskArmed.String()),
	)
	p.logger.Debug("periodic task armed",
		zap.String("task", p.name),
		zap.Duration("period", p.period),
	)

	go p.tick(ctx, stop, timer)
}

// disarm clears the timer if one is armed.
func (p *Periodic) disarm(ctx context.Context) {
	p.timerMu.Lock()
	defer p.timerMu.Unlock()
	if p.stopC == nil {
		return
	}

	close(p.stopC)
	p.stopC = nil
	p.timer.Stop()
	p.timer = nil
	p.state.Store(int32(TaskIdle))

	capitan.Emit(ctx, TaskDisarmedSignal,
		KeyTask.Field(p.name),
		KeyState.Field(TaskIdle.String()),
	)
	p.logger.Debug("periodic task disarmed",
		zap.String("task", p.name),
	)
}

// tick runs the action every period until stop is closed. Cancellation
// only prevents future ticks; an in-flight action is never interrupted.
func (p *Periodic) tick(ctx context.Context, stop <-chan struct{}, timer clockz.Timer) {
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C():
			// A disarm that raced the fire wins.
			select {
			case <-stop:
				return
			default:
			}
			// Re-arm before invoking so the cadence does not stretch by
			// the action's duration.
			timer.Reset(p.period)
			p.runAction(ctx)
		}
	}
}

// runAction invokes the action once, skipping if a previous invocation is
// still running.
func (p *Periodic) runAction(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		p.logger.Debug("periodic tick skipped, action still running",
			zap.String("task", p.name),
		)
		capitan.Emit(ctx, TaskTickSkipped,
			KeyTask.Field(p.name),
		)
		return
	}
	defer p.running.Store(false)

	if err := guard(func() error { return p.action(ctx) }); err != nil {
		p.logger.Error("periodic action failed",
			zap.String("task", p.name),
			zap.Error(err),
		)
		capitan.Emit(ctx, TaskActionFailed,
			KeyTask.Field(p.name),
			KeyError.Field(err.Error()),
		)
	}
}
