package statewatch

// TaskState represents the current state of a Periodic task.
type TaskState int32

const (
	// TaskIdle indicates no timer is armed.
	TaskIdle TaskState = iota

	// TaskArmed indicates a repeating timer is running.
	TaskArmed
)

// String returns the string representation of the state.
func (s TaskState) String() string {
	switch s {
	case TaskIdle:
		return "idle"
	case TaskArmed:
		return "armed"
	default:
		return "unknown"
	}
}
