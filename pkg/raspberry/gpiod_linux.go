//go:build linux
// +build linux

package raspberry

import (
	"sync"
	"time"

	"tadl/pkg/port"

	"github.com/pkg/errors"
	"github.com/warthog618/gpiod"
	"github.com/womat/debug"
)

// Chip represents a single GPIO chip that controls a set of lines.
type Chip struct {
	gpiodChip *gpiod.Chip
	options   Options

	mu      sync.Mutex
	inputs  []*Line
	outputs map[port.StreamID][]*gpiod.Line
}

// Line represents a single requested input line.
type Line struct {
	gpiodLine *gpiod.Line
	stream    port.StreamID
	line      int

	mu         sync.Mutex
	lastValue  int
	debouncing bool
	// send edge changes to channel
	c chan<- port.Event
}

// OpenChip opens a GPIO character device.
func OpenChip(o Options) (*Chip, error) {
	name := o.Chip
	if name == "" {
		name = "gpiochip0"
	}
	c, err := gpiod.NewChip(name)
	if err != nil {
		return nil, err
	}
	return &Chip{gpiodChip: c, options: o, outputs: map[port.StreamID][]*gpiod.Line{}}, nil
}

// Watch requests the pins as inputs and sends their edge changes after the bounce timeout.
// There can only be one watcher on the pin at a time.
func (c *Chip) Watch(stream port.StreamID, pins []int, ch chan<- port.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, pin := range pins {
		line := &Line{stream: stream, line: i, c: ch}

		handler := line.handler(c.options.BounceTime)

		var err error
		switch c.options.Terminator {
		case "pullup":
			line.gpiodLine, err = c.gpiodChip.RequestLine(pin, gpiod.WithEventHandler(handler),
				gpiod.WithBothEdges, gpiod.AsInput, gpiod.WithPullUp)
		case "pulldown":
			line.gpiodLine, err = c.gpiodChip.RequestLine(pin, gpiod.WithEventHandler(handler),
				gpiod.WithBothEdges, gpiod.AsInput, gpiod.WithPullDown)
		default:
			line.gpiodLine, err = c.gpiodChip.RequestLine(pin, gpiod.WithEventHandler(handler),
				gpiod.WithBothEdges, gpiod.AsInput)
		}
		if err != nil {
			return errors.Wrapf(err, "request input pin %d", pin)
		}
		if v, err := line.gpiodLine.Value(); err == nil {
			line.lastValue = v
		}
		c.inputs = append(c.inputs, line)
	}
	return nil
}

// handler checks the bounce timeout and sends the event to the channel.
func (l *Line) handler(debounce time.Duration) func(gpiod.LineEvent) {
	return func(evt gpiod.LineEvent) {
		if debounce == 0 {
			l.report(evt.Type == gpiod.LineEventRisingEdge, evt.Timestamp)
			return
		}

		l.mu.Lock()
		if l.debouncing {
			l.mu.Unlock()
			debug.TraceLog.Println("bounce signal detected")
			return
		}
		l.debouncing = true
		l.mu.Unlock()

		go func(t time.Duration) {
			defer func() {
				l.mu.Lock()
				l.debouncing = false
				l.mu.Unlock()
			}()

			time.Sleep(debounce)

			v, err := l.gpiodLine.Value()
			if err != nil {
				debug.ErrorLog.Println(err)
				return
			}
			if port.StateOf(v) == port.Invalid {
				debug.ErrorLog.Printf("invalid pin value: %v", v)
				return
			}
			l.report(v == 1, t+debounce)
		}(evt.Timestamp)
	}
}

func (l *Line) report(level bool, t time.Duration) {
	v := 0
	if level {
		v = 1
	}

	l.mu.Lock()
	changed := v != l.lastValue
	l.lastValue = v
	l.mu.Unlock()

	if !changed {
		debug.TraceLog.Println("no changed value after bounce delay")
		return
	}

	ev := port.NewEvent(l.stream, l.line, level)
	ev.Timestamp = t
	if !send(l.c, ev) {
		debug.ErrorLog.Printf("event queue full, dropped %v", ev)
	}
}

// Drive requests the pins as outputs, all low.
func (c *Chip) Drive(stream port.StreamID, pins []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := make([]*gpiod.Line, 0, len(pins))
	for _, pin := range pins {
		l, err := c.gpiodChip.RequestLine(pin, gpiod.AsOutput(0))
		if err != nil {
			return errors.Wrapf(err, "request output pin %d", pin)
		}
		lines = append(lines, l)
	}
	c.outputs[stream] = lines
	return nil
}

// Emit sets the output line of the event.
func (c *Chip) Emit(ev port.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines, ok := c.outputs[ev.Stream]
	if !ok || ev.Line < 0 || ev.Line >= len(lines) {
		return errors.Wrapf(ErrInvalidParam, "no output line for %v", ev)
	}

	v := 0
	if ev.State() {
		v = 1
	}
	return lines[ev.Line].SetValue(v)
}

// Close releases all requested lines and the chip.
//
// Note that this includes waiting for any running event handler to return.
// As a consequence the Close must not be called from the context of the event
// handler - the Close should be called from a different goroutine.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range c.inputs {
		_ = l.gpiodLine.Close()
	}
	for _, lines := range c.outputs {
		for _, l := range lines {
			_ = l.Close()
		}
	}
	c.inputs = nil
	c.outputs = map[port.StreamID][]*gpiod.Line{}
	return c.gpiodChip.Close()
}
