package statewatch

import (
	"context"
	"sync"

	"github.com/zoobzio/clockz"
)

// Task is a unit of work executed on a Loop.
type Task func()

// Loop is a single-goroutine cooperative scheduler. All watcher dispatches,
// aggregator ingests, and flushes execute on the loop, one turn at a time.
//
// A turn is one posted task plus all work deferred during it. Deferred work
// runs after the current task returns and before the next posted task is
// picked up, so components can schedule "end of this burst" work with a
// deterministic ordering guarantee.
//
// Post is safe from any goroutine. Defer must only be called from the loop
// goroutine, i.e. from within a running turn.
type Loop struct {
	clock clockz.Clock

	mu      sync.Mutex
	queue   []Task
	started bool

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// deferred is owned exclusively by the run goroutine.
	deferred []Task
}

// NewLoop creates a Loop. Call Start to begin processing turns.
func NewLoop() *Loop {
	return &Loop{
		clock: clockz.RealClock,
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Clock sets a custom clock for time operations. Components constructed
// through a Registry inherit it. Use clockz.NewFakeClock for deterministic
// timer testing. Must be called before Start.
func (l *Loop) Clock(clock clockz.Clock) *Loop {
	l.clock = clock
	return l
}

// Start begins processing turns on a dedicated goroutine. The loop runs
// until Stop is called or the context is canceled. Start is idempotent.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	go l.run(ctx)
}

// Stop halts the loop after the current turn completes and blocks until the
// loop goroutine has exited. Queued tasks that have not started are dropped.
// Stop is idempotent and a no-op on a loop that was never started.
func (l *Loop) Stop() {
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()

	l.stopOnce.Do(func() { close(l.stop) })
	if started {
		<-l.done
	}
}

// Post enqueues a task as its own turn. Safe from any goroutine.
func (l *Loop) Post(task Task) {
	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Defer enqueues turn-end work: it runs after the current task returns and
// before the next posted task. Deferred tasks may defer further work, which
// is drained within the same turn in FIFO order.
//
// Defer must only be called from the loop goroutine.
func (l *Loop) Defer(task Task) {
	l.deferred = append(l.deferred, task)
}

// Do posts fn as a turn and blocks until it has completed, including any
// work it deferred. On a loop that has not started, fn runs inline as its
// own turn; do not call Do concurrently with Start. Calling Do from the
// loop goroutine deadlocks; use it only from outside the loop.
func (l *Loop) Do(fn Task) {
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if !started {
		l.turn(fn)
		return
	}

	fence := make(chan struct{})
	l.Post(func() {
		defer close(fence)
		fn()
	})
	select {
	case <-fence:
	case <-l.done:
	}
}

// Wait blocks until every turn posted before the call has completed.
// Useful in tests to observe a quiescent state.
func (l *Loop) Wait() {
	l.Do(func() {})
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	for {
		task, ok := l.next(ctx)
		if !ok {
			return
		}
		l.turn(task)
	}
}

// next returns the head of the queue, blocking until a task is available
// or the loop is stopped.
func (l *Loop) next(ctx context.Context) (Task, bool) {
	for {
		l.mu.Lock()
		if len(l.queue) > 0 {
			task := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()
			return task, true
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-l.stop:
			return nil, false
		case <-l.wake:
		}
	}
}

// turn runs one task and drains the deferred queue to exhaustion.
func (l *Loop) turn(task Task) {
	task()
	for len(l.deferred) > 0 {
		next := l.deferred[0]
		l.deferred = l.deferred[1:]
		next()
	}
}
