// Package processor runs the processing cycle of a panel engine.
//
// The processing cycle is the only goroutine that touches the engine while
// the processor is running. Changes requested from elsewhere are queued with
// Submit and applied at the start of the next cycle; while the processor is
// stopped they are applied at once. The refresh path reads the published
// snapshots through Latest.
package processor

import (
	"context"
	"sync"
	"time"

	"tadl/pkg/port"
	"tadl/pkg/ttl"

	"github.com/pkg/errors"
	"github.com/womat/debug"
)

// ErrQueueFull is returned by Submit if the command queue of a running processor is full.
var ErrQueueFull = errors.New("command queue full")

const (
	defaultInterval  = 10 * time.Millisecond
	defaultQueueSize = 64
	defaultBlockSize = 1024
)

// Command is a change applied to the engine in the parameter-safe window.
type Command func(e *ttl.Engine)

// Options configures a Processor.
type Options struct {
	// Interval is the period of the processing cycle.
	Interval time.Duration
	// QueueSize is the number of commands that can wait for the next cycle.
	QueueSize int
	// BlockSize is the number of samples of one processing block.
	BlockSize int64
	// Feed delivers incoming line events to a sink panel.
	Feed <-chan port.Event
	// Sinks receive the line events emitted by a source panel.
	Sinks []port.Sink
}

// Processor drives the processing cycle of one engine.
type Processor struct {
	engine   *ttl.Engine
	options  Options
	commands chan Command

	// samples is the sample position of the current block.
	samples int64
	started time.Time

	// mu serialises start, stop and direct application of commands.
	mu      sync.Mutex
	running bool
	ctx     context.Context
	quit    chan struct{}
	done    chan struct{}
}

// New returns a stopped processor for e.
func New(e *ttl.Engine, o Options) *Processor {
	if o.Interval <= 0 {
		o.Interval = defaultInterval
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.BlockSize <= 0 {
		o.BlockSize = defaultBlockSize
	}

	return &Processor{
		engine:   e,
		options:  o,
		commands: make(chan Command, o.QueueSize),
	}
}

// Submit applies c to the engine. A running processor queues c for its next cycle.
func (p *Processor) Submit(c Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settle()
	if !p.running {
		c(p.engine)
		p.engine.Publish()
		return nil
	}

	select {
	case p.commands <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// Running reports whether the processing cycle is active.
func (p *Processor) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settle()
	return p.running
}

// Latest returns the most recently published snapshot.
func (p *Processor) Latest() ttl.Snapshot {
	return p.engine.Latest()
}

// IsEventSource reports whether the panel emits events.
func (p *Processor) IsEventSource() bool {
	return p.engine.IsEventSource()
}

// Start starts the processing cycle. It returns at once; the cycle ends with Stop or ctx.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settle()
	if p.running {
		return
	}

	p.running = true
	p.ctx = ctx
	p.started = time.Now()
	p.samples = 0
	p.quit = make(chan struct{})
	p.done = make(chan struct{})

	debug.InfoLog.Printf("start %s panel processing, cycle %v", p.engine.Role(), p.options.Interval)
	go p.run(ctx, p.quit, p.done)
}

// Stop ends the processing cycle, waits for the running cycle and resets the
// emission history of the engine.
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.quit)
	p.stopLocked()
}

// settle finishes the stop of a cycle that ended with its context. p.mu must be held.
func (p *Processor) settle() {
	if p.running && p.ctx.Err() != nil {
		p.stopLocked()
	}
}

// stopLocked waits for the loop and resets the engine. p.mu must be held.
func (p *Processor) stopLocked() {
	<-p.done
	p.running = false

	// commands queued after the last cycle
	p.drainCommands()
	p.engine.Stop()
	p.engine.Publish()
	debug.InfoLog.Printf("stopped %s panel processing", p.engine.Role())
}

func (p *Processor) run(ctx context.Context, quit, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.options.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Cycle()
		}
	}
}

// Cycle runs one processing invocation: apply queued commands, fold incoming
// events, emit the changed lines and publish the snapshot.
func (p *Processor) Cycle() {
	p.drainCommands()
	p.drainFeed()

	for _, d := range p.engine.EmitDeltas() {
		ev := port.NewEvent(d.Stream, d.Bit, d.Value)
		ev.SampleOffset = p.samples
		ev.Timestamp = time.Since(p.started)
		for _, s := range p.options.Sinks {
			if err := s.Emit(ev); err != nil {
				debug.ErrorLog.Printf("emit %v: %v", ev, err)
			}
		}
	}

	p.engine.Publish()
	p.samples += p.options.BlockSize
}

func (p *Processor) drainCommands() {
	for {
		select {
		case c := <-p.commands:
			c(p.engine)
		default:
			return
		}
	}
}

func (p *Processor) drainFeed() {
	if p.options.Feed == nil {
		return
	}
	for {
		select {
		case ev, open := <-p.options.Feed:
			if !open {
				return
			}
			p.engine.FoldIncomingEvent(ev.Stream, ev.Line, ev.State())
		default:
			return
		}
	}
}
