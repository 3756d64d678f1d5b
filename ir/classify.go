package ir

// Header timings in microseconds.
const (
	necHeaderMark      = 9000
	necHeaderSpace     = 4500
	samsungHeaderMark  = 4500
	samsungHeaderSpace = 4500
	sonyHeaderMark     = 2400
	sonyHeaderSpace    = 600
	bitMark            = 560
	zeroSpace          = 560
	oneSpace           = 1690

	// tolerance is the accepted relative deviation of a measured duration.
	tolerance = 0.25
	// pulseDistanceMinMark is the shortest header mark accepted for a
	// generic pulse distance frame (most AC remotes).
	pulseDistanceMinMark = 2000
	// minSamples rejects noise and NEC repeat codes.
	minSamples = 16

	// header + 32 bits + stop mark
	necSamples = 2 + 2*32 + 1
)

func matches(measured uint16, want int) bool {
	m := float64(measured)
	return m >= float64(want)*(1-tolerance) && m <= float64(want)*(1+tolerance)
}

// Classify recognises the protocol family of a raw sequence by its
// header and length. Anything that does not look like a complete remote
// control frame is Unknown.
func Classify(samples []uint16) Protocol {
	if len(samples) < minSamples {
		return Unknown
	}
	mark, space := samples[0], samples[1]
	switch {
	case len(samples) == necSamples && matches(mark, necHeaderMark) && matches(space, necHeaderSpace):
		return NEC
	case len(samples) == necSamples && matches(mark, samsungHeaderMark) && matches(space, samsungHeaderSpace):
		return Samsung
	case isSony(samples):
		return Sony
	case mark >= pulseDistanceMinMark:
		return PulseDistance
	}
	return Unknown
}

func isSony(samples []uint16) bool {
	if !matches(samples[0], sonyHeaderMark) || !matches(samples[1], sonyHeaderSpace) {
		return false
	}
	// 12, 15 or 20 bits; the trailing space merges into the idle gap
	switch len(samples) {
	case 2 + 2*12 - 1, 2 + 2*15 - 1, 2 + 2*20 - 1:
		return true
	}
	return false
}

// EncodeNEC builds the raw sequence of an NEC frame, LSB first, with the
// inverted address and command bytes.
func EncodeNEC(addr, cmd byte) []uint16 {
	out := make([]uint16, 0, necSamples)
	out = append(out, necHeaderMark, necHeaderSpace)

	data := uint32(addr) | uint32(^addr)<<8 | uint32(cmd)<<16 | uint32(^cmd)<<24
	for bit := 0; bit < 32; bit++ {
		out = append(out, bitMark)
		if (data>>bit)&1 == 1 {
			out = append(out, oneSpace)
		} else {
			out = append(out, zeroSpace)
		}
	}
	// stop mark
	return append(out, bitMark)
}

// DecodeNEC extracts address and command from an NEC sequence. It fails
// on a wrong length, a bit space that is neither zero nor one, or a
// broken inversion check.
func DecodeNEC(samples []uint16) (addr, cmd byte, ok bool) {
	if len(samples) != necSamples || !matches(samples[0], necHeaderMark) || !matches(samples[1], necHeaderSpace) {
		return 0, 0, false
	}
	var data uint32
	for bit := 0; bit < 32; bit++ {
		space := samples[3+2*bit]
		switch {
		case matches(space, oneSpace):
			data |= 1 << bit
		case matches(space, zeroSpace):
		default:
			return 0, 0, false
		}
	}
	addr, naddr := byte(data), byte(data>>8)
	cmd, ncmd := byte(data>>16), byte(data>>24)
	if addr != ^naddr || cmd != ^ncmd {
		return 0, 0, false
	}
	return addr, cmd, true
}
