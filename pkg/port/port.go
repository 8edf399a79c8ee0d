// Package port holds the definition of a digital line event
package port

import (
	"fmt"
	"time"
)

// StreamID is the opaque identifier of a data stream reported by the host.
type StreamID uint16

// EventType indicates the type of change to the line active state.
//
// Note that for active low lines a low line level results in a high active
// state.
type EventType int

const (
	_ EventType = iota
	// RisingEdge indicates an inactive to active event (low to high).
	RisingEdge
	// FallingEdge indicates an active to inactive event (high to low).
	FallingEdge
)

// Event is a single line level change of one stream.
type Event struct {
	// Stream is the stream (channel handle) the line belongs to.
	Stream StreamID `json:"stream"`
	// Line is the line number within the stream.
	Line int `json:"line"`
	// The type of state change event this structure represents.
	Type EventType `json:"type"`
	// SampleOffset is the sample position of the event within the processing block.
	SampleOffset int64 `json:"sampleoffset"`
	// Timestamp indicates the time the event was detected.
	Timestamp time.Duration `json:"timestamp"`
}

// NewEvent returns the event for line of stream changing to state.
func NewEvent(stream StreamID, line int, state bool) Event {
	return Event{Stream: stream, Line: line, Type: EdgeOf(state)}
}

// EdgeOf returns the edge that leads to state.
func EdgeOf(state bool) EventType {
	if state {
		return RisingEdge
	}
	return FallingEdge
}

// State returns the line level after the event.
func (e Event) State() bool {
	return e.Type == RisingEdge
}

func (e Event) String() string {
	return fmt.Sprintf("stream %d line %d %v", e.Stream, e.Line, e.State())
}

type StateType int

const (
	// High indicates a logical 1.
	High StateType = 1
	// Low indicates a logical 0.
	Low StateType = 0
	// Invalid indicates an unknown or invalid state.
	Invalid StateType = -1
)

// StateOf converts a raw line value to a StateType.
func StateOf(v int) StateType {
	switch v {
	case 0:
		return Low
	case 1:
		return High
	default:
		return Invalid
	}
}

// Sink accepts line events to emit.
type Sink interface {
	Emit(Event) error
}
