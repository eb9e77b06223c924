package statewatch

import (
	"context"
	"slices"

	"github.com/zoobzio/capitan"
	"go.uber.org/zap"
)

// Watcher observes a single Source and fans each change out to its
// registered callbacks as a uniform Event.
//
// A Watcher subscribes to its source at most once. On the first
// StartWatching it dispatches one synthetic initial event carrying the
// value read at that moment; every subsequent source notification
// re-reads the value and dispatches a change event whose Previous is the
// value captured at the prior dispatch.
//
// Callbacks are invoked sequentially in registration order. A callback
// failure is logged with the callback's id and never reaches the other
// callbacks or the source subscription.
//
// Watcher is loop-affine: all methods must run on the loop goroutine.
type Watcher struct {
	id     SourceID
	source Source
	logger *zap.Logger

	callbacks map[string]Callback
	order     []string

	unsubscribe func()
	ctx         context.Context

	previous    any
	hasPrevious bool
}

// NewWatcher creates a Watcher for the given source.
func NewWatcher(id SourceID, source Source) *Watcher {
	return &Watcher{
		id:        id,
		source:    source,
		logger:    zap.NewNop(),
		callbacks: make(map[string]Callback),
	}
}

// Logger sets the logger used to report callback failures.
// Must be called before StartWatching.
func (w *Watcher) Logger(logger *zap.Logger) *Watcher {
	w.logger = logger
	return w
}

// ID returns the source id this watcher observes.
func (w *Watcher) ID() SourceID {
	return w.id
}

// AddCallback registers fn under id. Registering an id that already exists
// replaces the prior function but keeps its position in dispatch order.
func (w *Watcher) AddCallback(id string, fn Callback) {
	if _, exists := w.callbacks[id]; !exists {
		w.order = append(w.order, id)
	}
	w.callbacks[id] = fn
}

// RemoveCallback removes the registration under id, reporting whether one
// existed.
func (w *Watcher) RemoveCallback(id string) bool {
	if _, exists := w.callbacks[id]; !exists {
		return false
	}
	delete(w.callbacks, id)
	for i, cid := range w.order {
		if cid == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return true
}

// RemoveAllCallbacks clears every registration. The source subscription,
// if any, is unaffected.
func (w *Watcher) RemoveAllCallbacks() {
	w.callbacks = make(map[string]Callback)
	w.order = nil
}

// StartWatching subscribes to the source and dispatches one initial event
// carrying the current value. Calling it while already watching is a no-op.
//
// The context is retained and passed to callbacks on every later dispatch.
func (w *Watcher) StartWatching(ctx context.Context) {
	if w.unsubscribe != nil {
		return
	}

	w.ctx = ctx
	w.unsubscribe = w.source.Subscribe(w.notify)

	capitan.Emit(ctx, WatcherStarted,
		KeySource.Field(string(w.id)),
	)

	current := w.source.Read()
	w.dispatch(ctx, Event{
		ID:          w.id,
		Current:     current,
		Previous:    w.previous,
		HasPrevious: w.hasPrevious,
		Initial:     true,
		Changed:     true,
	})
	w.previous = current
	w.hasPrevious = true
}

// StopWatching unsubscribes from the source. Registered callbacks are kept,
// so a later StartWatching resumes dispatching to them. No-op when not
// watching.
func (w *Watcher) StopWatching() {
	if w.unsubscribe == nil {
		return
	}
	w.unsubscribe()
	w.unsubscribe = nil

	capitan.Emit(w.ctx, WatcherStopped,
		KeySource.Field(string(w.id)),
	)
}

// Watching reports whether the watcher currently holds a source
// subscription.
func (w *Watcher) Watching() bool {
	return w.unsubscribe != nil
}

// CurrentValue proxies a live read of the source, watching or not.
func (w *Watcher) CurrentValue() any {
	return w.source.Read()
}

// notify handles one raw change notification from the source.
func (w *Watcher) notify() {
	current := w.source.Read()
	w.dispatch(w.ctx, Event{
		ID:          w.id,
		Current:     current,
		Previous:    w.previous,
		HasPrevious: w.hasPrevious,
		Initial:     false,
		Changed:     true,
	})
	w.previous = current
	w.hasPrevious = true
}

// dispatch delivers ev to every registered callback in registration order,
// isolating failures. The order is snapshotted so callbacks may add or
// remove registrations mid-dispatch; removed callbacks are skipped.
func (w *Watcher) dispatch(ctx context.Context, ev Event) {
	for _, id := range slices.Clone(w.order) {
		fn, ok := w.callbacks[id]
		if !ok {
			continue
		}
		if err := guard(func() error { return fn(ctx, ev) }); err != nil {
			w.logger.Error("watcher callback failed",
				zap.String("source", string(w.id)),
				zap.String("callback", id),
				zap.Error(err),
			)
			capitan.Emit(ctx, WatcherCallbackFailed,
				KeySource.Field(string(w.id)),
				KeyCallback.Field(id),
				KeyError.Field(err.Error()),
			)
		}
	}
}
