package random

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
)

// Source draws uniform values for game resolution. The production
// implementation reads crypto/rand; tests substitute a scripted source.
type Source interface {
	// Intn returns a uniform int in [0, n).
	Intn(n int) int
	// Float64 returns a uniform float64 in [0, 1).
	Float64() float64
}

type cryptoSource struct{}

// NewSource returns a Source backed by crypto/rand. Draws are independent
// across calls and not derivable from prior outputs.
func NewSource() Source {
	return cryptoSource{}
}

func (cryptoSource) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func (cryptoSource) Float64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	// 53 bits of mantissa, same construction as math/rand.Float64.
	return float64(binary.BigEndian.Uint64(buf[:])>>11) / (1 << 53)
}
