// Package h264 has helpers for inspecting H.264 NAL unit headers.
// See ITU-T H.264 section 7.3.1.
package h264

// NAL unit types. See ITU-T H.264 Table 7-1.
const (
	TypeSlice       = 1
	TypeSlicePartA  = 2
	TypeSlicePartB  = 3
	TypeSlicePartC  = 4
	TypeIDR         = 5
	TypeSEI         = 6
	TypeSPS         = 7
	TypePPS         = 8
	TypeAUD         = 9
	TypeEndOfSeq    = 10
	TypeEndOfStream = 11
	TypeFillerData  = 12
)

type NALU []byte

func (nalu NALU) ForbiddenBit() byte {
	return nalu[0] & 0x80 >> 7
}

func (nalu NALU) NRI() byte {
	return nalu[0] & 0x60 >> 5
}

func (nalu NALU) Type() byte {
	return nalu[0] & 0x1f
}

// IsVCL reports whether the unit carries coded slice data.
func (nalu NALU) IsVCL() bool {
	t := nalu.Type()
	return t >= TypeSlice && t <= TypeIDR
}

// IsParameterSet reports whether the unit is a SPS or PPS.
func (nalu NALU) IsParameterSet() bool {
	t := nalu.Type()
	return t == TypeSPS || t == TypePPS
}

// IsKeyFrame reports whether the unit is an IDR slice.
func (nalu NALU) IsKeyFrame() bool {
	return nalu.Type() == TypeIDR
}

// Valid reports whether the unit has a header and a clear forbidden bit.
func (nalu NALU) Valid() bool {
	return len(nalu) > 0 && nalu.ForbiddenBit() == 0
}
