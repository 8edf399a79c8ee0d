package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"tadl/pkg/port"
	"tadl/pkg/ttl"
)

type recordSink struct {
	mu     sync.Mutex
	events []port.Event
}

func (r *recordSink) Emit(ev port.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recordSink) get() []port.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]port.Event(nil), r.events...)
}

func assertBools(t testing.TB, got, want bool) {
	t.Helper()

	if got != want {
		t.Errorf("got %v want %v", got, want)
	}
}

func assertInts(t testing.TB, got, want int) {
	t.Helper()

	if got != want {
		t.Errorf("got: %d, want: %d", got, want)
	}
}

func newSource(sink port.Sink) (*ttl.Engine, *Processor) {
	e := ttl.New(ttl.RoleSource, ttl.VariantBanked, nil)
	e.UpdateTopology(ttl.Topology{{ID: 2}})
	return e, New(e, Options{Interval: time.Millisecond, BlockSize: 100, Sinks: []port.Sink{sink}})
}

func TestSubmitWhileStopped(t *testing.T) {
	sink := &recordSink{}
	_, p := newSource(sink)

	err := p.Submit(func(e *ttl.Engine) { _ = e.SetBankEnabled(0, true) })
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// applied and published without a cycle
	assertBools(t, p.Latest().Banks[0], true)
	assertInts(t, len(sink.get()), 0)
}

func TestCycleEmitsOnce(t *testing.T) {
	sink := &recordSink{}
	_, p := newSource(sink)

	_ = p.Submit(func(e *ttl.Engine) {
		_ = e.SetBankEnabled(0, true)
		for bit := 0; bit < ttl.BankWidth; bit++ {
			_ = e.SetBitValue(bit, bit == 4)
		}
	})

	p.Cycle()
	events := sink.get()
	assertInts(t, len(events), ttl.BankWidth)
	for i, ev := range events {
		assertInts(t, ev.Line, i)
		assertBools(t, ev.State(), i == 4)
		if ev.Stream != 2 {
			t.Errorf("got stream %d want 2", ev.Stream)
		}
	}

	p.Cycle()
	assertInts(t, len(sink.get()), ttl.BankWidth)

	_ = p.Submit(func(e *ttl.Engine) { _ = e.SetBitValue(6, true) })
	p.Cycle()
	events = sink.get()
	assertInts(t, len(events), ttl.BankWidth+1)
	last := events[len(events)-1]
	assertInts(t, last.Line, 6)
	if last.SampleOffset != 200 {
		t.Errorf("got sample offset %d want 200", last.SampleOffset)
	}
}

func TestRunningQueuesCommands(t *testing.T) {
	sink := &recordSink{}
	_, p := newSource(sink)
	_ = p.Submit(func(e *ttl.Engine) { _ = e.SetBankEnabled(1, true) })

	p.Start(context.Background())
	assertBools(t, p.Running(), true)

	applied := make(chan struct{})
	err := p.Submit(func(e *ttl.Engine) {
		_ = e.SetBitValue(9, true)
		close(applied)
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatal("queued command was not applied")
	}

	p.Stop()
	assertBools(t, p.Running(), false)

	found := false
	for _, ev := range sink.get() {
		if ev.Line == 9 && ev.State() {
			found = true
		}
	}
	assertBools(t, found, true)
	assertBools(t, p.Latest().Bits[9], true)
}

func TestStopReannounces(t *testing.T) {
	sink := &recordSink{}
	_, p := newSource(sink)
	_ = p.Submit(func(e *ttl.Engine) { _ = e.SetBankEnabled(0, true) })
	p.Cycle()
	n := len(sink.get())

	p.Start(context.Background())
	p.Stop()

	p.Cycle()
	assertInts(t, len(sink.get()), n+ttl.BankWidth)
}

func TestContextEndStopsProcessing(t *testing.T) {
	sink := &recordSink{}
	_, p := newSource(sink)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	assertBools(t, p.Running(), false)

	// applied at once instead of waiting in the queue of an ended loop
	applied := false
	if err := p.Submit(func(e *ttl.Engine) {
		applied = true
		_ = e.SetBitValue(2, true)
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	assertBools(t, applied, true)
	assertBools(t, p.Latest().Bits[2], true)

	// a new context starts again
	p.Start(context.Background())
	assertBools(t, p.Running(), true)
	p.Stop()
}

func TestQueueFull(t *testing.T) {
	e := ttl.New(ttl.RoleSource, ttl.VariantBanked, nil)
	p := New(e, Options{Interval: time.Hour, QueueSize: 1})
	p.Start(context.Background())
	defer p.Stop()

	if err := p.Submit(func(*ttl.Engine) {}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if err := p.Submit(func(*ttl.Engine) {}); err != ErrQueueFull {
		t.Errorf("got %v want ErrQueueFull", err)
	}
}

func TestSinkFeed(t *testing.T) {
	e := ttl.New(ttl.RoleSink, ttl.VariantBanked, nil)
	e.UpdateTopology(ttl.Topology{{ID: 5, Groups: []ttl.LineGroup{{Lines: 8}}}})

	feed := make(chan port.Event, 8)
	sink := &recordSink{}
	p := New(e, Options{Feed: feed, Sinks: []port.Sink{sink}})

	feed <- port.NewEvent(5, 3, true)
	feed <- port.NewEvent(5, 9, true)
	feed <- port.NewEvent(6, 0, true)
	p.Cycle()

	s := p.Latest()
	assertBools(t, s.Line(3), true)
	w, _ := s.Word(5)
	if w != 1<<3 {
		t.Errorf("got word %08x want %08x", w, 1<<3)
	}
	assertInts(t, len(sink.get()), 0)
	assertBools(t, p.IsEventSource(), false)
}

func TestParameterSet(t *testing.T) {
	ps := NewParameterSet(1, 2)

	w, ok := ps.Word(1)
	if !ok || w != 0 {
		t.Errorf("got %d %v want 0 true", w, ok)
	}

	e := ttl.New(ttl.RoleSource, ttl.VariantWord, ps)
	e.UpdateTopology(ttl.Topology{{ID: 1}, {ID: 2}})
	_ = e.SetBitValue(4, true)

	w, _ = ps.Word(1)
	if w != 1<<4 {
		t.Errorf("got word %08x want %08x", w, 1<<4)
	}

	if _, ok = ps.Parameter(3); ok {
		t.Error("got parameter for unknown stream")
	}
}
