package statewatch

import "testing"

func TestTaskState_String_Idle(t *testing.T) {
	if s := TaskIdle.String(); s != "idle" {
		t.Errorf("expected 'idle', got %q", s)
	}
}

func TestTaskState_String_Armed(t *testing.T) {
	if s := TaskArmed.String(); s != "armed" {
		t.Errorf("expected 'armed', got %q", s)
	}
}

func TestTaskState_String_Unknown(t *testing.T) {
	unknown := TaskState(999)
	if s := unknown.String(); s != "unknown" {
		t.Errorf("expected 'unknown', got %q", s)
	}
}

func TestTaskState_Values(t *testing.T) {
	// Verify iota ordering
	if TaskIdle != 0 {
		t.Errorf("expected TaskIdle=0, got %d", TaskIdle)
	}
	if TaskArmed != 1 {
		t.Errorf("expected TaskArmed=1, got %d", TaskArmed)
	}
}
