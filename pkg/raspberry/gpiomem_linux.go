//go:build linux
// +build linux

package raspberry

import (
	"sync"
	"time"

	"tadl/pkg/port"

	"github.com/pkg/errors"
	"github.com/warthog618/gpio"
	"github.com/womat/debug"
)

// Mem drives the gpio lines through /dev/gpiomem.
type Mem struct {
	options Options

	mu      sync.Mutex
	inputs  []*gpio.Pin
	outputs map[port.StreamID][]*gpio.Pin
}

// OpenMem maps the gpio registers.
func OpenMem(o Options) (*Mem, error) {
	if err := gpio.Open(); err != nil {
		return nil, err
	}
	return &Mem{options: o, outputs: map[port.StreamID][]*gpio.Pin{}}, nil
}

// Watch sets the pins to input mode and reports their level changes.
func (m *Mem) Watch(stream port.StreamID, pins []int, c chan<- port.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, n := range pins {
		pin := gpio.NewPin(n)
		pin.Input()
		switch m.options.Terminator {
		case "pullup":
			pin.PullUp()
		case "pulldown":
			pin.PullDown()
		default:
			pin.PullNone()
		}

		line := i
		last := pin.Read()
		var lastChange time.Time
		err := pin.Watch(gpio.EdgeBoth, func(p *gpio.Pin) {
			now := time.Now()
			if m.options.BounceTime > 0 && now.Sub(lastChange) < m.options.BounceTime {
				debug.TraceLog.Println("bounce signal detected")
				return
			}
			level := p.Read()
			if level == last {
				return
			}
			last, lastChange = level, now
			if !send(c, port.NewEvent(stream, line, bool(level))) {
				debug.ErrorLog.Printf("event queue full, dropped pin %d", n)
			}
		})
		if err != nil {
			return errors.Wrapf(err, "watch pin %d", n)
		}
		m.inputs = append(m.inputs, pin)
	}
	return nil
}

// Drive sets the pins to output mode, all low.
func (m *Mem) Drive(stream port.StreamID, pins []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*gpio.Pin, 0, len(pins))
	for _, n := range pins {
		pin := gpio.NewPin(n)
		pin.Low()
		pin.Output()
		out = append(out, pin)
	}
	m.outputs[stream] = out
	return nil
}

// Emit sets the output pin of the event's line.
func (m *Mem) Emit(ev port.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pins, ok := m.outputs[ev.Stream]
	if !ok || ev.Line < 0 || ev.Line >= len(pins) {
		return errors.Wrapf(ErrInvalidParam, "no output pin for %v", ev)
	}
	if ev.State() {
		pins[ev.Line].High()
	} else {
		pins[ev.Line].Low()
	}
	return nil
}

// Close stops all watchers and unmaps the gpio registers.
func (m *Mem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.inputs {
		p.Unwatch()
	}
	m.inputs = nil
	m.outputs = map[port.StreamID][]*gpio.Pin{}
	return gpio.Close()
}
