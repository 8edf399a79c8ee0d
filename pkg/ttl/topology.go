package ttl

import "tadl/pkg/port"

// StreamID identifies a data stream.
type StreamID = port.StreamID

// WordWidth is the number of lines of one stream word.
const WordWidth = 32

// LineGroup is an inbound group of lines of a stream.
type LineGroup struct {
	Name  string `yaml:"name" json:"name"`
	Lines int    `yaml:"lines" json:"lines"`
}

// Stream is one stream of the topology.
type Stream struct {
	ID     StreamID    `yaml:"id" json:"id"`
	Groups []LineGroup `yaml:"groups" json:"groups"`
}

// Lines returns the number of lines declared by the groups of s.
func (s Stream) Lines() int {
	n := 0
	for _, g := range s.Groups {
		if g.Lines > 0 {
			n += g.Lines
		}
	}
	return n
}

// Topology is the ordered set of streams reported by the host.
type Topology []Stream

// Lines returns the number of lines of all streams.
func (t Topology) Lines() int {
	n := 0
	for _, s := range t {
		n += s.Lines()
	}
	return n
}

// Equal reports whether t and o describe the same streams and groups.
func (t Topology) Equal(o Topology) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if t[i].ID != o[i].ID || len(t[i].Groups) != len(o[i].Groups) {
			return false
		}
		for j := range t[i].Groups {
			if t[i].Groups[j] != o[i].Groups[j] {
				return false
			}
		}
	}
	return true
}

// GroupOffset is the bit offset assigned to a line group.
type GroupOffset struct {
	Stream StreamID `json:"stream"`
	Group  string   `json:"group"`
	Offset int      `json:"offset"`
	Lines  int      `json:"lines"`
}

// streamLines is the provisioned line range of a stream.
type streamLines struct {
	base  int
	count int
}

// layout assigns consecutive global bit offsets to the line groups of t.
func (t Topology) layout() (map[StreamID]streamLines, []GroupOffset) {
	lines := make(map[StreamID]streamLines, len(t))
	var groups []GroupOffset

	offset := 0
	for _, s := range t {
		sl := streamLines{base: offset}
		for _, g := range s.Groups {
			if g.Lines <= 0 {
				continue
			}
			groups = append(groups, GroupOffset{Stream: s.ID, Group: g.Name, Offset: offset, Lines: g.Lines})
			offset += g.Lines
			sl.count += g.Lines
		}
		lines[s.ID] = sl
	}
	return lines, groups
}
