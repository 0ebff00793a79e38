package pruner

import "github.com/chewxy/math32"

const signBit = 0x80000000

// EncodeFloat maps a float to an unsigned key that sorts the same way the
// float does. Negative values are complemented so that larger magnitudes sort
// first, positive values get the sign bit set so that they sort after every
// negative value. -0 encodes just below +0.
func EncodeFloat(f float32) uint32 {
	bits := math32.Float32bits(f)
	if bits&signBit != 0 {
		return ^bits
	}
	return bits | signBit
}
