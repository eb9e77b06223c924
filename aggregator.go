package statewatch

import (
	"context"
	"slices"

	"github.com/zoobzio/capitan"
	"go.uber.org/zap"
)

// ValueReader resolves a live read of a source by id. Aggregators use it to
// seed the current value of synthetic snapshot entries. A Registry is the
// usual implementation.
type ValueReader interface {
	CurrentValue(id SourceID) any
}

// Aggregator coalesces events from a declared subset of sources into one
// complete Snapshot per turn and delivers it to a single reaction.
//
// Events ingested within one loop turn share a flush: the first Ingest of a
// turn defers a flush to the end of that turn, and later ingests for the
// same source overwrite earlier ones (last write wins). The flush builds a
// Snapshot with one entry per declared source — real events from the turn
// buffer, synthetic filler entries for sources that stayed silent — and
// invokes the reaction exactly once.
//
// Aggregator is loop-affine: Ingest, Flush, and Dispose must run on the
// loop goroutine.
type Aggregator struct {
	name     string
	reaction Reaction
	ids      []SourceID
	reader   ValueReader
	loop     *Loop
	logger   *zap.Logger

	buffer    map[SourceID]Event
	lastKnown map[SourceID]known

	flushScheduled bool
	disposed       bool
}

// known is a cache entry for the last value an aggregator has seen for a
// source, real or synthetic.
type known struct {
	value any
	ok    bool
}

// NewAggregator creates an Aggregator reacting to the given subset of
// sources. The subset is fixed for the aggregator's lifetime; duplicates
// are ignored.
func NewAggregator(name string, subset []SourceID, reaction Reaction, reader ValueReader, loop *Loop) *Aggregator {
	ids := make([]SourceID, 0, len(subset))
	for _, id := range subset {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	return &Aggregator{
		name:      name,
		reaction:  reaction,
		ids:       ids,
		reader:    reader,
		loop:      loop,
		logger:    zap.NewNop(),
		buffer:    make(map[SourceID]Event),
		lastKnown: make(map[SourceID]known),
	}
}

// Logger sets the logger used to report reaction failures.
func (a *Aggregator) Logger(logger *zap.Logger) *Aggregator {
	a.logger = logger
	return a
}

// Name returns the aggregator's name, used in failure logs.
func (a *Aggregator) Name() string {
	return a.name
}

// Subset returns the declared source ids.
func (a *Aggregator) Subset() []SourceID {
	return slices.Clone(a.ids)
}

// Ingest records one event into the open turn and schedules a flush at the
// end of the turn if none is scheduled yet. It matches the Callback
// signature so it can be registered directly on a Watcher.
//
// Events for sources outside the declared subset still land in the buffer
// but never reach a snapshot; registries only wire an aggregator to the
// watchers it declared, so this does not occur in practice.
func (a *Aggregator) Ingest(ctx context.Context, ev Event) error {
	if a.disposed {
		return nil
	}

	a.buffer[ev.ID] = ev
	a.lastKnown[ev.ID] = known{value: ev.Current, ok: true}

	if !a.flushScheduled {
		a.flushScheduled = true
		a.loop.Defer(func() {
			a.flush(ctx)
		})
	}
	return nil
}

// flush delivers one complete snapshot for the turn. It is a no-op when no
// flush is scheduled, which is how a flush cancelled by Dispose dissolves.
func (a *Aggregator) flush(ctx context.Context) {
	if !a.flushScheduled {
		return
	}
	a.flushScheduled = false

	snap := make(Snapshot, len(a.ids))
	for _, id := range a.ids {
		if ev, ok := a.buffer[id]; ok {
			snap[id] = ev
			continue
		}

		prev := a.lastKnown[id]
		ev := Event{
			ID:          id,
			Current:     a.reader.CurrentValue(id),
			Previous:    prev.value,
			HasPrevious: prev.ok,
			Initial:     false,
			Changed:     false,
		}
		snap[id] = ev
		a.lastKnown[id] = known{value: ev.Current, ok: true}
	}
	clear(a.buffer)

	capitan.Emit(ctx, AggregatorFlushed,
		KeyReaction.Field(a.name),
		KeyEntries.Field(len(snap)),
	)

	if err := guard(func() error { return a.reaction(ctx, snap) }); err != nil {
		a.logger.Error("aggregator reaction failed",
			zap.String("reaction", a.name),
			zap.Error(err),
		)
		capitan.Emit(ctx, AggregatorReactionFailed,
			KeyReaction.Field(a.name),
			KeyError.Field(err.Error()),
		)
	}
}

// Dispose runs any pending flush inline so buffered events are not lost,
// cancels the scheduled end-of-turn flush, and clears the turn buffer and
// value cache. Later ingests are ignored. Idempotent.
func (a *Aggregator) Dispose(ctx context.Context) {
	if a.disposed {
		return
	}

	if a.flushScheduled {
		a.flush(ctx)
	}
	a.disposed = true
	clear(a.buffer)
	clear(a.lastKnown)

	capitan.Emit(ctx, AggregatorDisposed,
		KeyReaction.Field(a.name),
	)
}
