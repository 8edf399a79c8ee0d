// Package ttl is the state engine of a digital line panel.
//
// A panel is either an event source (toggle panel), where the operator sets
// lines and the engine emits the changes once per processing cycle, or an
// event sink (front panel), where incoming line events are folded into the
// displayed state. The lines are organised in MaxBanks banks of BankWidth
// lines each; a bank has to be enabled to take part in emission.
//
// An Engine is owned by the processing cycle and is not safe for concurrent
// use. The refresh path reads the state through the Display returned by
// Engine.Handoff, which only ever hands out copies.
package ttl

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/womat/debug"
)

// Role is the fixed role of a panel.
type Role int

const (
	// RoleSource emits line events (toggle panel).
	RoleSource Role = iota
	// RoleSink displays incoming line events (front panel).
	RoleSink
)

func (r Role) String() string {
	if r == RoleSink {
		return "sink"
	}
	return "source"
}

// PanelName returns the type name stored with the persisted state.
func (r Role) PanelName() string {
	if r == RoleSink {
		return "TTLFrontPanel"
	}
	return "TTLTogglePanel"
}

// ParseRole parses "source" or "sink".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "source", "toggle":
		return RoleSource, nil
	case "sink", "front":
		return RoleSink, nil
	default:
		return RoleSource, errors.Errorf("unknown panel role %q", s)
	}
}

// Variant selects how a source detects changed lines.
type Variant int

const (
	// VariantBanked tracks a dirty flag per bit.
	VariantBanked Variant = iota
	// VariantWord compares the current word of each stream with the last emitted word.
	VariantWord
)

func (v Variant) String() string {
	if v == VariantWord {
		return "word"
	}
	return "banked"
}

// ParseVariant parses "banked" or "word".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "banked", "bank":
		return VariantBanked, nil
	case "word":
		return VariantWord, nil
	default:
		return VariantBanked, errors.Errorf("unknown engine variant %q", s)
	}
}

// Delta is one changed line to emit.
type Delta struct {
	Stream StreamID
	Bit    int
	Value  bool
}

type bitState struct {
	value bool
	dirty bool
}

type streamWord struct {
	current uint32
	// last is the word most recently emitted or acknowledged.
	last uint32
}

// Engine holds the line state of one panel.
type Engine struct {
	role    Role
	variant Variant
	params  Parameters

	banks [MaxBanks]bool
	bits  [TotalBits]bitState

	topology Topology
	lines    map[StreamID]streamLines
	groups   []GroupOffset
	words    map[StreamID]*streamWord
	// output is the stream receiving the deltas of the banked variant.
	output StreamID

	sequence uint64
	handoff  Handoff
}

// New returns an engine for role. params may be nil if the host has no per stream parameters.
func New(role Role, variant Variant, params Parameters) *Engine {
	e := &Engine{
		role:    role,
		variant: variant,
		params:  params,
		lines:   map[StreamID]streamLines{},
		words:   map[StreamID]*streamWord{},
	}
	e.reset()
	return e
}

func (e *Engine) reset() {
	for i := range e.banks {
		e.banks[i] = false
	}
	for i := range e.bits {
		e.bits[i] = bitState{value: false, dirty: true}
	}
}

// Role returns the role of the panel.
func (e *Engine) Role() Role { return e.role }

// Variant returns the change detection variant.
func (e *Engine) Variant() Variant { return e.variant }

// IsEventSource reports whether the panel emits events.
func (e *Engine) IsEventSource() bool { return e.role == RoleSource }

// UpdateTopology rebuilds the stream layout. Reporting the same topology again is a no-op.
//
// A sink is reset and gets one enabled bank per BankWidth reported lines. A
// source keeps its banks and bits, which are persisted, and marks every bit
// dirty so the new layout receives the full state.
func (e *Engine) UpdateTopology(t Topology) {
	if e.topology != nil && e.topology.Equal(t) {
		return
	}

	e.topology = make(Topology, len(t))
	for i, s := range t {
		e.topology[i] = Stream{ID: s.ID, Groups: append([]LineGroup(nil), s.Groups...)}
	}

	e.lines, e.groups = e.topology.layout()
	for id := range e.words {
		if _, ok := e.lines[id]; !ok {
			delete(e.words, id)
		}
	}

	e.output = 0
	if len(e.topology) > 0 {
		e.output = e.topology[0].ID
	}

	switch e.role {
	case RoleSink:
		e.reset()
		n := (e.topology.Lines() + BankWidth - 1) / BankWidth
		if n > MaxBanks {
			n = MaxBanks
		}
		for i := 0; i < n; i++ {
			e.banks[i] = true
		}
		e.relayoutWords()
	default:
		for i := range e.bits {
			e.bits[i].dirty = true
		}
		if e.variant == VariantWord {
			if w, ok := e.word(e.output); ok {
				w.current = e.bitsWord()
				_ = e.writeParameter(e.output, w.current)
			}
		}
	}

	debug.DebugLog.Printf("%s panel topology: %d streams, %d lines", e.role, len(e.topology), e.topology.Lines())
}

// relayoutWords trims the kept words of a sink to their provisioned lines and
// places their lines at the new bit offsets, so words and bits agree.
func (e *Engine) relayoutWords() {
	for id, w := range e.words {
		sl := e.lines[id]
		if sl.count < WordWidth {
			w.current &= 1<<uint(sl.count) - 1
		}
		w.last = w.current

		for line := 0; line < sl.count && line < WordWidth; line++ {
			if bit := sl.base + line; bit < TotalBits {
				e.bits[bit].value = w.current&(1<<uint(line)) != 0
			}
		}
	}
}

// bitsWord packs the bit values into a word, bit 0 is the least significant bit.
func (e *Engine) bitsWord() uint32 {
	var w uint32
	for i, b := range e.bits {
		if b.value {
			w |= 1 << uint(i)
		}
	}
	return w
}

// GroupOffsets returns the bit offset assigned to every line group.
func (e *Engine) GroupOffsets() []GroupOffset {
	return append([]GroupOffset(nil), e.groups...)
}

// word returns the word of a provisioned stream, creating it on first use.
func (e *Engine) word(stream StreamID) (*streamWord, bool) {
	if _, ok := e.lines[stream]; !ok {
		return nil, false
	}
	w, ok := e.words[stream]
	if !ok {
		w = &streamWord{}
		e.words[stream] = w
	}
	return w, true
}

// Word returns the current and last emitted word of stream.
func (e *Engine) Word(stream StreamID) (current, last uint32, ok bool) {
	w, ok := e.words[stream]
	if !ok {
		return 0, 0, false
	}
	return w.current, w.last, true
}

// BitValue returns the value of bit, false if out of range.
func (e *Engine) BitValue(bit int) bool {
	if !validBit(bit) {
		return false
	}
	return e.bits[bit].value
}

// BankEnabled reports whether bank is enabled, false if out of range.
func (e *Engine) BankEnabled(bank int) bool {
	if !validBank(bank) {
		return false
	}
	return e.banks[bank]
}

func (e *Engine) requireSource(op string) error {
	if e.role == RoleSource {
		return nil
	}
	err := errors.Wrapf(ErrWrongRole, "%s on %s panel", op, e.role)
	debug.ErrorLog.Print(err)
	return err
}

// SetBitValue sets a line of a source and marks it for emission.
func (e *Engine) SetBitValue(bit int, value bool) error {
	if err := e.requireSource("set bit"); err != nil {
		return err
	}
	if !validBit(bit) {
		err := errors.Wrapf(ErrOutOfRange, "set bit %d", bit)
		debug.ErrorLog.Print(err)
		return err
	}

	e.bits[bit] = bitState{value: value, dirty: true}
	if e.variant == VariantWord {
		return e.setWordBit(e.output, bit, value)
	}
	return nil
}

// setWordBit mirrors a bit into the word of stream and writes the word to the host parameter.
// The word is updated even if the stream has no parameter.
func (e *Engine) setWordBit(stream StreamID, bit int, value bool) error {
	w, ok := e.word(stream)
	if !ok {
		return nil
	}
	if value {
		w.current |= 1 << uint(bit)
	} else {
		w.current &^= 1 << uint(bit)
	}
	return e.writeParameter(stream, w.current)
}

func (e *Engine) writeParameter(stream StreamID, word uint32) error {
	var p Parameter
	ok := false
	if e.params != nil {
		p, ok = e.params.Parameter(stream)
	}
	if !ok {
		err := errors.Wrapf(ErrMissingParameter, "stream %d", stream)
		debug.ErrorLog.Print(err)
		return err
	}
	p.SetValue(WordToParameter(word))
	return nil
}

// SetBankEnabled enables or disables a bank of a source. The values and
// pending changes of the bank's bits are kept.
func (e *Engine) SetBankEnabled(bank int, enabled bool) error {
	if err := e.requireSource("set bank"); err != nil {
		return err
	}
	if !validBank(bank) {
		err := errors.Wrapf(ErrOutOfRange, "set bank %d", bank)
		debug.ErrorLog.Print(err)
		return err
	}

	e.banks[bank] = enabled
	return nil
}

// SetBankWord sets the bits of bank from value, bit 0 of the bank is the least
// significant bit. Only changed bits are marked for emission.
func (e *Engine) SetBankWord(bank int, value uint8) error {
	if err := e.requireSource("set bank word"); err != nil {
		return err
	}
	if !validBank(bank) {
		err := errors.Wrapf(ErrOutOfRange, "set bank word %d", bank)
		debug.ErrorLog.Print(err)
		return err
	}

	var result error
	for i := 0; i < BankWidth; i++ {
		bit := bank*BankWidth + i
		want := value&(1<<uint(i)) != 0
		if e.bits[bit].value == want {
			continue
		}
		if err := e.SetBitValue(bit, want); err != nil {
			result = err
		}
	}
	return result
}

// SetAll sets every bit of the enabled banks to value.
func (e *Engine) SetAll(value bool) error {
	if err := e.requireSource("set all"); err != nil {
		return err
	}

	var word uint8
	if value {
		word = 1<<BankWidth - 1
	}

	var result error
	for bank := 0; bank < MaxBanks; bank++ {
		if !e.banks[bank] {
			continue
		}
		if err := e.SetBankWord(bank, word); err != nil {
			result = err
		}
	}
	return result
}

// SetParameter dispatches a host parameter change. A value above zero means true.
func (e *Engine) SetParameter(index int, value float64) error {
	kind, local := FromParameterIndex(index)
	switch kind {
	case KindBankEnable:
		return e.SetBankEnabled(local, value > 0)
	case KindBitValue:
		return e.SetBitValue(local, value > 0)
	default:
		err := errors.Wrapf(ErrUnknownParameterKind, "parameter %d", index)
		debug.ErrorLog.Print(err)
		return err
	}
}

// ParameterChanged applies the host parameter value of stream to a source.
// For the output stream the bits follow the word.
func (e *Engine) ParameterChanged(stream StreamID, stored int32) error {
	if err := e.requireSource("parameter changed"); err != nil {
		return err
	}
	w, ok := e.word(stream)
	if !ok {
		err := errors.Wrapf(ErrStaleTopology, "parameter of stream %d", stream)
		debug.TraceLog.Print(err)
		return err
	}

	w.current = ParameterToWord(stored)
	if stream != e.output {
		return nil
	}
	for bit := 0; bit < TotalBits; bit++ {
		v := w.current&(1<<uint(bit)) != 0
		if e.bits[bit].value != v {
			e.bits[bit] = bitState{value: v, dirty: true}
		}
	}
	return nil
}

// EmitDeltas returns the changed lines of the enabled banks in ascending bit
// order and marks them as emitted. Lines of disabled banks stay pending. A
// sink never emits.
func (e *Engine) EmitDeltas() []Delta {
	if e.role != RoleSource {
		return nil
	}

	var deltas []Delta
	switch e.variant {
	case VariantWord:
		mask := e.enabledMask()
		for _, s := range e.topology {
			w, ok := e.words[s.ID]
			if !ok {
				continue
			}
			diff := (w.current ^ w.last) & mask
			for bit := 0; bit < WordWidth && diff != 0; bit++ {
				m := uint32(1) << uint(bit)
				if diff&m == 0 {
					continue
				}
				deltas = append(deltas, Delta{Stream: s.ID, Bit: bit, Value: w.current&m != 0})
				diff &^= m
			}
			w.last = (w.last &^ mask) | (w.current & mask)
		}
	default:
		for bit := range e.bits {
			if !e.banks[bit/BankWidth] || !e.bits[bit].dirty {
				continue
			}
			deltas = append(deltas, Delta{Stream: e.output, Bit: bit, Value: e.bits[bit].value})
			e.bits[bit].dirty = false
		}
	}
	return deltas
}

func (e *Engine) enabledMask() uint32 {
	var mask uint32
	for bank, enabled := range e.banks {
		if enabled {
			mask |= bankMask(bank)
		}
	}
	return mask
}

// FoldIncomingEvent applies a line event to a sink. Events for streams or lines
// that are not provisioned are dropped; the topology may lag the events while
// the host reconfigures. It reports whether the event was applied.
func (e *Engine) FoldIncomingEvent(stream StreamID, line int, value bool) bool {
	if e.role != RoleSink {
		debug.ErrorLog.Print(errors.Wrapf(ErrWrongRole, "fold event on %s panel", e.role))
		return false
	}

	sl, ok := e.lines[stream]
	if !ok || line < 0 || line >= sl.count {
		debug.TraceLog.Print(errors.Wrapf(ErrStaleTopology, "stream %d line %d", stream, line))
		return false
	}

	if line < WordWidth {
		w, _ := e.word(stream)
		if value {
			w.current |= 1 << uint(line)
		} else {
			w.current &^= 1 << uint(line)
		}
		w.last = w.current
	}

	if bit := sl.base + line; bit < TotalBits {
		e.bits[bit].value = value
	}
	return true
}

// Stop resets the emission history when acquisition stops, so the next start
// announces the full state. A sink clears its words and bits.
func (e *Engine) Stop() {
	for _, w := range e.words {
		w.last = 0
		if e.role == RoleSink {
			w.current = 0
		}
	}

	for i := range e.bits {
		if e.role == RoleSink {
			e.bits[i].value = false
			continue
		}
		e.bits[i].dirty = true
	}
}

// LoadPersisted restores the banks and bits of a source. Records out of range
// are skipped and returned, the remaining records are still applied. A sink
// ignores the call.
func (e *Engine) LoadPersisted(p Persisted) []error {
	if e.role != RoleSource {
		return nil
	}
	if p.Type != "" && p.Type != e.role.PanelName() {
		err := errors.Wrapf(ErrWrongRole, "persisted state of %s", p.Type)
		debug.ErrorLog.Print(err)
		return []error{err}
	}

	var skipped []error
	for _, b := range p.Banks {
		if !validBank(b.Number) {
			err := errors.Wrapf(ErrOutOfRange, "persisted bank %d", b.Number)
			debug.ErrorLog.Print(err)
			skipped = append(skipped, err)
			continue
		}
		e.banks[b.Number] = b.Enabled
	}

	for _, b := range p.Bits {
		if !validBit(b.Number) {
			err := errors.Wrapf(ErrOutOfRange, "persisted bit %d", b.Number)
			debug.ErrorLog.Print(err)
			skipped = append(skipped, err)
			continue
		}
		e.bits[b.Number] = bitState{value: b.State, dirty: true}
		if e.variant == VariantWord {
			_ = e.setWordBit(e.output, b.Number, b.State)
		}
	}
	return skipped
}

// SavePersisted returns the banks and bits of a source. A sink only reports its type.
func (e *Engine) SavePersisted() Persisted {
	p := Persisted{Type: e.role.PanelName()}
	if e.role != RoleSource {
		return p
	}

	p.Banks = make([]BankRecord, MaxBanks)
	for i, enabled := range e.banks {
		p.Banks[i] = BankRecord{Number: i, Enabled: enabled}
	}
	p.Bits = make([]BitRecord, TotalBits)
	for i, b := range e.bits {
		p.Bits[i] = BitRecord{Number: i, State: b.value}
	}
	return p
}

// Publish copies the state into the hand-off slot. It is called once per
// processing cycle after the cycle's changes are applied.
func (e *Engine) Publish() Snapshot {
	e.sequence++

	s := Snapshot{
		Sequence: e.sequence,
		Source:   e.role == RoleSource,
		Banks:    e.banks,
	}
	for i, b := range e.bits {
		s.Bits[i] = b.value
	}
	for _, st := range e.topology {
		if w, ok := e.words[st.ID]; ok {
			s.Words = append(s.Words, WordSnapshot{Stream: st.ID, Word: w.current})
		}
	}

	e.handoff.Store(s)
	return s
}

// Latest returns the most recently published snapshot. It may be called from any goroutine.
func (e *Engine) Latest() Snapshot {
	return e.handoff.Latest()
}

// Handoff returns the read side of the snapshot hand-off.
func (e *Engine) Handoff() Display {
	return &e.handoff
}
