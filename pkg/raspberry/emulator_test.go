package raspberry

import (
	"errors"
	"testing"

	"tadl/pkg/port"
)

func TestEmulatorLoopback(t *testing.T) {
	io, err := Open("emu", Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer io.Close()

	c := make(chan port.Event, 4)
	if err := io.Watch(7, []int{20, 21}, c); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := io.Drive(3, []int{21, 20}); err != nil {
		t.Fatalf("Drive: %v", err)
	}

	if err := io.Emit(port.NewEvent(3, 0, true)); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	select {
	case ev := <-c:
		if ev.Stream != 7 || ev.Line != 1 || !ev.State() {
			t.Errorf("got %v want stream 7 line 1 rising", ev)
		}
	default:
		t.Fatal("no event received")
	}

	// same level again is no edge
	_ = io.Emit(port.NewEvent(3, 0, true))
	if len(c) != 0 {
		t.Errorf("got %d events want 0", len(c))
	}
}

func TestEmulatorEdges(t *testing.T) {
	e := NewEmulator()
	c := make(chan port.Event, 4)
	_ = e.Watch(1, []int{5}, c)

	e.EmuEdge(5, true)
	e.EmuEdge(5, false)
	e.EmuEdge(6, true)

	if len(c) != 2 {
		t.Fatalf("got %d events want 2", len(c))
	}
	if ev := <-c; ev.Type != port.RisingEdge {
		t.Errorf("got %v want rising edge", ev.Type)
	}
	if ev := <-c; ev.Type != port.FallingEdge {
		t.Errorf("got %v want falling edge", ev.Type)
	}
	if !e.Read(6) {
		t.Error("pin 6 should be high")
	}
}

func TestEmulatorErrors(t *testing.T) {
	e := NewEmulator()
	c := make(chan port.Event, 1)

	if err := e.Watch(1, []int{5}, c); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := e.Watch(2, []int{5}, c); err == nil {
		t.Error("double watch should fail")
	}
	if err := e.Emit(port.NewEvent(9, 0, true)); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("got %v want ErrInvalidParam", err)
	}

	if _, err := Open("emu", Options{Terminator: "float"}); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("got %v want ErrInvalidParam", err)
	}
	if _, err := Open("serial", Options{}); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("got %v want ErrInvalidParam", err)
	}
}

func TestQueueFullDrops(t *testing.T) {
	e := NewEmulator()
	c := make(chan port.Event)
	_ = e.Watch(1, []int{5}, c)

	// unbuffered channel without reader must not block
	e.EmuEdge(5, true)
	if !e.Read(5) {
		t.Error("pin 5 should be high")
	}
}
