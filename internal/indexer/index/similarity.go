package index

import "math"

// Similarity computes the per-field normalization factor stored in .nrm.
type Similarity interface {
	LengthNorm(field string, numTokens int) float32
	EncodeNorm(f float32) byte
	DecodeNorm(b byte) float32
}

// DefaultSimilarity normalizes by the inverse square root of the field
// length and encodes norms as 8-bit floats with 3 mantissa bits.
type DefaultSimilarity struct{}

// LengthNorm is 1/sqrt(numTokens), and 0 for empty fields.
func (DefaultSimilarity) LengthNorm(_ string, numTokens int) float32 {
	if numTokens <= 0 {
		return 0
	}
	return float32(1 / math.Sqrt(float64(numTokens)))
}

func (DefaultSimilarity) EncodeNorm(f float32) byte { return floatToByte315(f) }

func (DefaultSimilarity) DecodeNorm(b byte) float32 { return byte315ToFloat(b) }

// floatToByte315 packs f into a byte with 3 mantissa bits and a zero
// exponent of 15. Values below the smallest representable positive value
// round up to it, values above the largest clamp, and non-positive values
// encode as 0.
func floatToByte315(f float32) byte {
	if f <= 0 || math.IsNaN(float64(f)) {
		return 0
	}
	bits := math.Float32bits(f)
	small := bits >> (24 - 3)
	if small <= (63-15)<<3 {
		return 1
	}
	if small >= ((63-15)<<3)+0x100 {
		return 0xFF
	}
	return byte(small - (63-15)<<3)
}

func byte315ToFloat(b byte) float32 {
	if b == 0 {
		return 0
	}
	bits := uint32(b) << (24 - 3)
	bits += (63 - 15) << 24
	return math.Float32frombits(bits)
}
