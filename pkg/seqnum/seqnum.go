// Package seqnum implements the 16-bit modular sequence number used
// by reliable streams, ordered per RFC 1982 rather than as a plain
// integer so that wraparound does not break ordering comparisons.
package seqnum

// SeqNum is a 16-bit sequence number compared under RFC 1982 rules.
type SeqNum uint16

// Less reports a < b using RFC 1982 serial-number arithmetic:
// a < b iff (b - a) mod 2^16 is in (0, 2^15).
//
// Behavior is undefined when the distance between a and b is exactly
// 2^15 (the antipodal point); callers must not rely on a particular
// answer in that case.
func Less(a, b SeqNum) bool {
	d := uint16(b - a)
	return d != 0 && d < 0x8000
}

// LessOrEqual reports a <= b.
func LessOrEqual(a, b SeqNum) bool {
	return a == b || Less(a, b)
}

// Add returns a + n, wrapping modulo 2^16.
func Add(a SeqNum, n uint16) SeqNum {
	return a + SeqNum(n)
}

// Diff returns the forward distance from a to b, i.e. the n such that
// Add(a, n) == b, in [0, 2^16).
func Diff(a, b SeqNum) uint16 {
	return uint16(b - a)
}
