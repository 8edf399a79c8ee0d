package raspberry

import (
	"sync"

	"tadl/pkg/port"

	"github.com/pkg/errors"
)

type emuInput struct {
	stream port.StreamID
	line   int
	c      chan<- port.Event
}

// Emulator is a software gpio. Output pins that are also watched loop back to
// the watcher, which connects a source panel to a sink panel without hardware.
type Emulator struct {
	mu      sync.Mutex
	levels  map[int]bool
	inputs  map[int]emuInput
	outputs map[port.StreamID][]int
}

// NewEmulator returns an emulator with all pins low.
func NewEmulator() *Emulator {
	return &Emulator{
		levels:  map[int]bool{},
		inputs:  map[int]emuInput{},
		outputs: map[port.StreamID][]int{},
	}
}

// Watch the pins for level changes.
// There can only be one watcher on a pin at a time.
func (e *Emulator) Watch(stream port.StreamID, pins []int, c chan<- port.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range pins {
		if _, ok := e.inputs[p]; ok {
			return errors.Errorf("pin %v already watched", p)
		}
	}
	for i, p := range pins {
		e.inputs[p] = emuInput{stream: stream, line: i, c: c}
	}
	return nil
}

// Drive requests pins as outputs of stream.
func (e *Emulator) Drive(stream port.StreamID, pins []int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.outputs[stream] = append([]int(nil), pins...)
	return nil
}

// Emit sets the output pin of the event's line.
func (e *Emulator) Emit(ev port.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pin, err := outputLine(e.outputs, ev)
	if err != nil {
		return err
	}
	e.edge(pin, ev.State())
	return nil
}

// EmuEdge emulates a level change of pin.
func (e *Emulator) EmuEdge(pin int, level bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.edge(pin, level)
}

// Read returns the level of pin.
func (e *Emulator) Read(pin int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.levels[pin]
}

func (e *Emulator) edge(pin int, level bool) {
	if e.levels[pin] == level {
		return
	}
	e.levels[pin] = level

	in, ok := e.inputs[pin]
	if !ok {
		return
	}
	send(in.c, port.NewEvent(in.stream, in.line, level))
}

// Close releases all pins.
func (e *Emulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.inputs = map[int]emuInput{}
	e.outputs = map[port.StreamID][]int{}
	return nil
}
