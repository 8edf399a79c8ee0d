package processor

import (
	"sync"

	"tadl/pkg/port"
	"tadl/pkg/ttl"
)

// Parameter is an integer value managed by the host for one stream.
type Parameter struct {
	mu    sync.Mutex
	value int32
}

// Value returns the stored value.
func (p *Parameter) Value() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// SetValue stores v.
func (p *Parameter) SetValue(v int32) {
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
}

// ParameterSet holds the stream parameters of a source panel.
type ParameterSet struct {
	mu     sync.RWMutex
	params map[port.StreamID]*Parameter
}

// NewParameterSet returns a set with one parameter per stream, each holding word 0.
func NewParameterSet(streams ...port.StreamID) *ParameterSet {
	ps := &ParameterSet{params: map[port.StreamID]*Parameter{}}
	for _, s := range streams {
		ps.params[s] = &Parameter{value: ttl.WordToParameter(0)}
	}
	return ps
}

// Parameter returns the parameter of stream.
func (ps *ParameterSet) Parameter(stream port.StreamID) (ttl.Parameter, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	p, ok := ps.params[stream]
	if !ok {
		return nil, false
	}
	return p, true
}

// Word returns the line word held by the parameter of stream.
func (ps *ParameterSet) Word(stream port.StreamID) (uint32, bool) {
	p, ok := ps.Parameter(stream)
	if !ok {
		return 0, false
	}
	return ttl.ParameterToWord(p.Value()), true
}
