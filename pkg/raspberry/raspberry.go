// Package raspberry connects panel lines to gpio lines
package raspberry

import (
	"strings"
	"time"

	"tadl/pkg/port"

	"github.com/pkg/errors"
)

var (
	ErrInvalidParam = errors.New("invalid parameters")
	ErrUnsupported  = errors.New("gpio driver not supported on this platform")
)

// LineIO maps the lines of a stream onto gpio pins.
type LineIO interface {
	// Watch requests pins as inputs. A level change of pins[i] is sent to c as line i of stream.
	Watch(stream port.StreamID, pins []int, c chan<- port.Event) error
	// Drive requests pins as outputs. Line i of stream drives pins[i].
	Drive(stream port.StreamID, pins []int) error
	// Emit sets the output pin of the event's line.
	Emit(ev port.Event) error
	// Close releases all requested pins.
	Close() error
}

// Options configures a gpio driver.
type Options struct {
	// Chip is the gpio character device, e.g. gpiochip0.
	Chip string
	// BounceTime is the time a level has to be stable before it is reported.
	// The value 0 ignores key bouncing.
	BounceTime time.Duration
	// Terminator is the input bias: none, pullup or pulldown.
	Terminator string
}

// Open returns the gpio driver named driver: emu, gpiod or gpiomem.
func Open(driver string, o Options) (LineIO, error) {
	if o.Terminator == "" {
		o.Terminator = "none"
	}
	switch o.Terminator {
	case "none", "pullup", "pulldown":
	default:
		return nil, errors.Wrapf(ErrInvalidParam, "terminator %q", o.Terminator)
	}

	switch strings.ToLower(driver) {
	case "emu":
		return NewEmulator(), nil
	default:
		return openDriver(strings.ToLower(driver), o)
	}
}

// send delivers ev without blocking the gpio event handler.
func send(c chan<- port.Event, ev port.Event) bool {
	select {
	case c <- ev:
		return true
	default:
		return false
	}
}

// outputLine returns the pin index of ev in a stream's pin list.
func outputLine(outputs map[port.StreamID][]int, ev port.Event) (int, error) {
	pins, ok := outputs[ev.Stream]
	if !ok || ev.Line < 0 || ev.Line >= len(pins) {
		return 0, errors.Wrapf(ErrInvalidParam, "no output pin for %v", ev)
	}
	return pins[ev.Line], nil
}
