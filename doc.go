/*
Package statewatch lets observers react to changes across a set of
independently updating single-value sources without re-running on every
micro-update and without reconstructing a consistent joint view by hand.

Three components cooperate:

  - Watcher observes one Source, turning raw change notifications into
    uniform events with before/after values, and fans each event out to
    its registered callbacks with per-callback failure isolation.
  - Aggregator consumes events from a declared subset of sources,
    coalesces everything that arrives within one turn, and delivers one
    complete Snapshot per turn to a reaction, synthesizing filler entries
    for sources that stayed silent.
  - Periodic is a condition-gated repeating action, typically installed
    as an aggregator's reaction: while its predicate holds over the latest
    snapshot it keeps a timer armed, re-arming from a clean slate on every
    snapshot and disarming the moment the predicate stops holding.

# Turns

All dispatching runs on a single-goroutine Loop. A turn is one posted task
plus the work deferred during it; an aggregator's flush is deferred to the
end of the turn that first fed it, which is what coalesces a burst of
related mutations into one reaction call:

	loop := statewatch.NewLoop()
	loop.Start(ctx)
	defer loop.Stop()

	reg := statewatch.NewRegistry(loop).Logger(logger)

	height := statewatch.NewValue(loop, 170)
	weight := statewatch.NewValue(loop, 65)
	reg.Register("height", height)
	reg.Register("weight", weight)

	reg.React("bmi", []statewatch.SourceID{"height", "weight"},
		func(ctx context.Context, snap statewatch.Snapshot) error {
			h, _ := statewatch.EventValue[int](snap["height"])
			w, _ := statewatch.EventValue[int](snap["weight"])
			return recompute(h, w)
		})

	reg.Start(ctx)

	// Both mutations land in one turn, so "bmi" runs exactly once.
	loop.Post(func() {
		height.Set(172)
		weight.Set(66)
	})

# Snapshots

Every reaction call receives one Event per declared source. Entries for
sources that emitted this turn carry Changed=true and real before/after
values; entries synthesized for silent sources carry Changed=false, a
freshly read current value, and the last value this aggregator saw as the
previous value. Reactions never need to defensively re-derive a joint view.

# Periodic tasks

ReactEvery installs a condition-gated repeating action:

	reg.ReactEvery("report", []statewatch.SourceID{"enabled"},
		func(ctx context.Context, snap statewatch.Snapshot) (bool, error) {
			on, _ := statewatch.EventValue[bool](snap["enabled"])
			return on, nil
		},
		sendReport,
		30*time.Second)

# Failure isolation

Errors (and panics) from callbacks, reactions, predicates, and actions are
caught at their boundary, logged with context, and never interrupt sibling
work. A broken Source is not recoverable and its panics propagate.

# Sources

Any single-value container implementing Read plus Subscribe works as a
Source. The package provides Value, an in-memory settable source, and
FileSource, a JSON/YAML file-backed source using fsnotify with validator
tag checking.
*/
package statewatch
