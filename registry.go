package statewatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Registry owns the process-wide wiring: it creates one Watcher per
// registered source, installs aggregators on the watchers covering their
// declared subsets, and tears everything down in an order that flushes
// pending events before watchers stop.
//
// Registry methods are safe from any goroutine; each runs as a turn on the
// loop and returns once the turn (including any flush it triggered) has
// completed. Do not call them from inside a reaction or callback.
type Registry struct {
	loop   *Loop
	logger *zap.Logger
	ctx    context.Context

	watchers  map[SourceID]*Watcher
	order     []SourceID
	reactions map[string]*reactionEntry
	started   bool
	closed    bool
}

// reactionEntry tracks one declared reaction and the wiring that must be
// undone on dismissal.
type reactionEntry struct {
	agg  *Aggregator
	task *Periodic
	ids  []SourceID
}

// NewRegistry creates a Registry driving its components on the given loop.
func NewRegistry(loop *Loop) *Registry {
	return &Registry{
		loop:      loop,
		logger:    zap.NewNop(),
		watchers:  make(map[SourceID]*Watcher),
		reactions: make(map[string]*reactionEntry),
	}
}

// Logger sets the logger handed to every component the registry creates.
// Must be called before Register.
func (r *Registry) Logger(logger *zap.Logger) *Registry {
	r.logger = logger
	return r
}

// Register creates a watcher for the source under id. If the registry has
// already started, watching begins immediately. Registering a duplicate id
// is an error.
func (r *Registry) Register(id SourceID, source Source) error {
	var err error
	r.loop.Do(func() {
		if r.closed {
			err = fmt.Errorf("registry closed")
			return
		}
		if _, exists := r.watchers[id]; exists {
			err = fmt.Errorf("source %q already registered", id)
			return
		}
		w := NewWatcher(id, source).Logger(r.logger)
		r.watchers[id] = w
		r.order = append(r.order, id)
		if r.started {
			w.StartWatching(r.ctx)
		}
	})
	return err
}

// React declares a reaction over a subset of sources. The reaction runs
// once per turn with a complete snapshot whenever any source in the subset
// emits. Names must be unique among live reactions.
func (r *Registry) React(name string, subset []SourceID, reaction Reaction) error {
	var err error
	r.loop.Do(func() {
		err = r.react(name, subset, reaction, nil)
	})
	return err
}

// ReactEvery declares a condition-gated periodic task as a reaction: while
// the predicate holds over the latest snapshot, the action repeats every
// period. See Periodic for arming semantics.
func (r *Registry) ReactEvery(name string, subset []SourceID, predicate Predicate, action Action, period time.Duration) error {
	var err error
	r.loop.Do(func() {
		task := NewPeriodic(name, predicate, action, period).
			Clock(r.loop.clock).
			Logger(r.logger)
		err = r.react(name, subset, task.Callback, task)
	})
	return err
}

// react wires an aggregator into the watchers covering subset.
// Must run on the loop.
func (r *Registry) react(name string, subset []SourceID, reaction Reaction, task *Periodic) error {
	if r.closed {
		return fmt.Errorf("registry closed")
	}
	if _, exists := r.reactions[name]; exists {
		return fmt.Errorf("reaction %q already declared", name)
	}
	for _, id := range subset {
		if _, ok := r.watchers[id]; !ok {
			return fmt.Errorf("reaction %q references unregistered source %q", name, id)
		}
	}

	agg := NewAggregator(name, subset, reaction, r.reader(), r.loop).Logger(r.logger)
	for _, id := range agg.Subset() {
		r.watchers[id].AddCallback(name, agg.Ingest)
	}
	r.reactions[name] = &reactionEntry{agg: agg, task: task, ids: agg.Subset()}

	r.logger.Debug("reaction declared",
		zap.String("reaction", name),
		zap.Int("sources", len(agg.Subset())),
	)
	return nil
}

// Dismiss removes a declared reaction: its callbacks are unregistered, its
// aggregator disposed (flushing anything pending), and its periodic task,
// if any, cleaned up. Reports whether the reaction existed.
func (r *Registry) Dismiss(name string) bool {
	var existed bool
	r.loop.Do(func() {
		entry, ok := r.reactions[name]
		if !ok {
			return
		}
		existed = true
		r.dismiss(name, entry)
	})
	return existed
}

// dismiss tears down one reaction. Must run on the loop.
func (r *Registry) dismiss(name string, entry *reactionEntry) {
	for _, id := range entry.ids {
		if w, ok := r.watchers[id]; ok {
			w.RemoveCallback(name)
		}
	}
	entry.agg.Dispose(r.context())
	if entry.task != nil {
		entry.task.Cleanup()
	}
	delete(r.reactions, name)
}

// Start begins watching every registered source. Each watcher dispatches
// its initial event during this call, so reactions declared beforehand
// receive their first snapshot before Start returns. Idempotent.
func (r *Registry) Start(ctx context.Context) {
	r.loop.Do(func() {
		if r.started || r.closed {
			return
		}
		r.started = true
		r.ctx = ctx
		for _, id := range r.order {
			r.watchers[id].StartWatching(ctx)
		}
	})
}

// Close tears the registry down: every reaction is dismissed (flushing
// pending events first), every watcher stopped. The loop itself is left
// running; stop it separately. Idempotent.
func (r *Registry) Close() {
	r.loop.Do(func() {
		if r.closed {
			return
		}
		r.closed = true
		for name, entry := range r.reactions {
			r.dismiss(name, entry)
		}
		for _, id := range r.order {
			r.watchers[id].StopWatching()
		}
	})
}

// CurrentValue reads the live value of a registered source, or nil when the
// id is unknown. Safe from any goroutine.
func (r *Registry) CurrentValue(id SourceID) any {
	var v any
	r.loop.Do(func() {
		if w, ok := r.watchers[id]; ok {
			v = w.CurrentValue()
		}
	})
	return v
}

// context returns the context watchers were started with.
func (r *Registry) context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// reader returns the ValueReader aggregators use during a flush. It reads
// directly, without posting a turn, because flushes already run on the loop.
func (r *Registry) reader() ValueReader {
	return registryReader{r: r}
}

type registryReader struct {
	r *Registry
}

func (rr registryReader) CurrentValue(id SourceID) any {
	if w, ok := rr.r.watchers[id]; ok {
		return w.CurrentValue()
	}
	return nil
}
