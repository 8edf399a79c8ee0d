package ttl

import (
	"fmt"
	"sync/atomic"
)

// WordSnapshot is the published word of one stream.
type WordSnapshot struct {
	Stream StreamID `json:"stream"`
	Word   uint32   `json:"word"`
}

// Snapshot is an immutable copy of the panel state for the display.
type Snapshot struct {
	// Sequence counts the publishes of the engine, 0 means nothing was published yet.
	Sequence uint64          `json:"sequence"`
	Source   bool            `json:"source"`
	Banks    [MaxBanks]bool  `json:"banks"`
	Bits     [TotalBits]bool `json:"bits"`
	Words    []WordSnapshot  `json:"words"`
}

// Line returns the value of global bit, false if bit is out of range or its bank is disabled.
func (s Snapshot) Line(bit int) bool {
	a, err := Split(bit)
	if err != nil || !s.Banks[a.Bank] {
		return false
	}
	return s.Bits[bit]
}

// BankValue returns the bits of bank as a number, bit 0 of the bank is the least significant bit.
func (s Snapshot) BankValue(bank int) uint8 {
	if !validBank(bank) {
		return 0
	}
	var v uint8
	for i := 0; i < BankWidth; i++ {
		if s.Bits[bank*BankWidth+i] {
			v |= 1 << uint(i)
		}
	}
	return v
}

// BankLabels returns the hex and decimal display labels of bank; both are empty for a disabled bank.
func (s Snapshot) BankLabels(bank int) (hex, dec string) {
	if !validBank(bank) || !s.Banks[bank] {
		return "", ""
	}
	v := s.BankValue(bank)
	return fmt.Sprintf("0x%02X", v), fmt.Sprintf("%d", v)
}

// Word returns the published word of stream.
func (s Snapshot) Word(stream StreamID) (uint32, bool) {
	for _, w := range s.Words {
		if w.Stream == stream {
			return w.Word, true
		}
	}
	return 0, false
}

func cloneWords(w []WordSnapshot) []WordSnapshot {
	if w == nil {
		return nil
	}
	return append([]WordSnapshot(nil), w...)
}

// Handoff is a single slot holding the most recently published snapshot.
// Store is called by the processing cycle, Latest by the refresh path. Both
// sides only ever see their own copy of the snapshot.
type Handoff struct {
	slot atomic.Value
}

// Store replaces the published snapshot.
func (h *Handoff) Store(s Snapshot) {
	s.Words = cloneWords(s.Words)
	h.slot.Store(s)
}

// Latest returns a copy of the most recently stored snapshot, or the zero snapshot.
func (h *Handoff) Latest() Snapshot {
	s, ok := h.slot.Load().(Snapshot)
	if !ok {
		return Snapshot{}
	}
	s.Words = cloneWords(s.Words)
	return s
}

// Display is the read side of the hand-off.
type Display interface {
	Latest() Snapshot
}
