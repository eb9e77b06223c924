package statewatch

import "github.com/zoobzio/capitan"

// Watcher lifecycle signals.
var (
	// WatcherStarted is emitted when a Watcher subscribes to its source.
	WatcherStarted = capitan.NewSignal(
		"statewatch.watcher.started",
		"Watcher subscribed to source",
	)

	// WatcherStopped is emitted when a Watcher unsubscribes from its source.
	WatcherStopped = capitan.NewSignal(
		"statewatch.watcher.stopped",
		"Watcher unsubscribed from source",
	)

	// WatcherCallbackFailed is emitted when a registered callback returns
	// an error or panics.
	WatcherCallbackFailed = capitan.NewSignal(
		"statewatch.watcher.callback.failed",
		"Watcher callback failed",
	)
)

// Aggregator signals.
var (
	// AggregatorFlushed is emitted when an aggregator delivers a snapshot.
	AggregatorFlushed = capitan.NewSignal(
		"statewatch.aggregator.flushed",
		"Aggregator delivered snapshot",
	)

	// AggregatorReactionFailed is emitted when a reaction returns an error
	// or panics.
	AggregatorReactionFailed = capitan.NewSignal(
		"statewatch.aggregator.reaction.failed",
		"Aggregator reaction failed",
	)

	// AggregatorDisposed is emitted when an aggregator is disposed.
	AggregatorDisposed = capitan.NewSignal(
		"statewatch.aggregator.disposed",
		"Aggregator disposed",
	)
)

// Periodic task signals.
var (
	// TaskArmedSignal is emitted when a periodic task arms its timer.
	TaskArmedSignal = capitan.NewSignal(
		"statewatch.task.armed",
		"Periodic task armed",
	)

	// TaskDisarmedSignal is emitted when a periodic task clears its timer.
	TaskDisarmedSignal = capitan.NewSignal(
		"statewatch.task.disarmed",
		"Periodic task disarmed",
	)

	// TaskActionFailed is emitted when a periodic action returns an error
	// or panics.
	TaskActionFailed = capitan.NewSignal(
		"statewatch.task.action.failed",
		"Periodic action failed",
	)

	// TaskTickSkipped is emitted when a timer tick is skipped because the
	// previous action invocation is still running.
	TaskTickSkipped = capitan.NewSignal(
		"statewatch.task.tick.skipped",
		"Periodic tick skipped, action still running",
	)
)
