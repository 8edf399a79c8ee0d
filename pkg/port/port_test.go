package port

import "testing"

func TestEventState(t *testing.T) {
	t.Run("rising", func(t *testing.T) {
		e := NewEvent(3, 5, true)
		if e.Type != RisingEdge || !e.State() {
			t.Errorf("got %v want rising edge", e.Type)
		}
	})

	t.Run("falling", func(t *testing.T) {
		e := NewEvent(3, 5, false)
		if e.Type != FallingEdge || e.State() {
			t.Errorf("got %v want falling edge", e.Type)
		}
	})

	t.Run("zero value", func(t *testing.T) {
		if (Event{}).State() {
			t.Error("zero event reports high state")
		}
	})
}

func TestStateOf(t *testing.T) {
	tests := []struct {
		in   int
		want StateType
	}{
		{0, Low},
		{1, High},
		{2, Invalid},
		{-1, Invalid},
	}

	for _, tt := range tests {
		if got := StateOf(tt.in); got != tt.want {
			t.Errorf("StateOf(%d) got %d want %d", tt.in, got, tt.want)
		}
	}
}
