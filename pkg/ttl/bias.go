package ttl

import "math"

// parameterBias shifts the unsigned word range onto the signed host parameter range.
// The host parameter cannot hold the full uint32 range, so word 0 is stored as
// math.MinInt32 and word math.MaxUint32 as math.MaxInt32. The offset is
// MaxInt32+1, not MaxInt32, so the mapping is a bijection over all words.
const parameterBias = int64(math.MaxInt32) + 1

// WordToParameter converts a line word to the value stored in a host parameter.
func WordToParameter(word uint32) int32 {
	return int32(int64(word) - parameterBias)
}

// ParameterToWord converts a host parameter value back to a line word.
func ParameterToWord(stored int32) uint32 {
	return uint32(int64(stored) + parameterBias)
}

// Parameter is a host managed integer value of one stream.
type Parameter interface {
	Value() int32
	SetValue(int32)
}

// Parameters looks up the host parameter of a stream.
type Parameters interface {
	Parameter(stream StreamID) (Parameter, bool)
}
