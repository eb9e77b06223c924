package statewatch

import "github.com/zoobzio/capitan"

// Field keys for statewatch events.
var (
	// KeySource is the source id a watcher observes.
	KeySource = capitan.NewStringKey("source")

	// KeyCallback is the id of a registered watcher callback.
	KeyCallback = capitan.NewStringKey("callback")

	// KeyReaction is the name of an aggregator's reaction.
	KeyReaction = capitan.NewStringKey("reaction")

	// KeyTask is the name of a periodic task.
	KeyTask = capitan.NewStringKey("task")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyEntries is the number of entries in a delivered snapshot.
	KeyEntries = capitan.NewIntKey("entries")

	// KeyPeriod is the configured period of a periodic task.
	KeyPeriod = capitan.NewDurationKey("period")

	// KeyState is the state of a periodic task.
	KeyState = capitan.NewStringKey("state")
)
