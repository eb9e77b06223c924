package statewatch

import "context"

// SourceID identifies a registered source.
type SourceID string

// Event describes one observed change of a source. Watchers produce a real
// event for every change notification plus one initial event when watching
// begins; aggregators synthesize filler events for sources that stayed
// silent during a turn.
type Event struct {
	// ID is the source the event belongs to.
	ID SourceID

	// Current is the source value at dispatch time.
	Current any

	// Previous is the value captured at the prior dispatch. Only valid
	// when HasPrevious is true.
	Previous any

	// HasPrevious is false exactly for the very first event a watcher
	// ever produces for its source.
	HasPrevious bool

	// Initial marks the synthetic event dispatched when watching starts.
	Initial bool

	// Changed is true for every watcher-produced event. It is false only
	// on filler events synthesized by an aggregator for sources that did
	// not emit during the turn.
	Changed bool
}

// Callback receives events dispatched by a Watcher. A non-nil error is
// logged and isolated; it never affects other callbacks or the source
// subscription.
type Callback func(ctx context.Context, ev Event) error

// Snapshot is a complete per-turn view: one Event for every source in an
// aggregator's declared subset, real or synthetic.
type Snapshot map[SourceID]Event

// Reaction consumes the Snapshot delivered by an aggregator flush, exactly
// once per turn. A non-nil error is logged and swallowed.
type Reaction func(ctx context.Context, snap Snapshot) error

// EventValue returns the event's current value as T. The second return is
// false when the value is not a T.
func EventValue[T any](ev Event) (T, bool) {
	v, ok := ev.Current.(T)
	return v, ok
}

// PreviousValue returns the event's previous value as T. The second return
// is false when the event has no previous value or it is not a T.
func PreviousValue[T any](ev Event) (T, bool) {
	if !ev.HasPrevious {
		var zero T
		return zero, false
	}
	v, ok := ev.Previous.(T)
	return v, ok
}
