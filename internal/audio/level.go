package audio

import (
	"encoding/binary"
	"math"
	"sync/atomic"
)

// LevelMeter holds the RMS level of the most recent s16le chunk, 0..1.
type LevelMeter struct {
	bits atomic.Uint64
}

func (m *LevelMeter) Observe(chunk []byte) {
	m.Set(RMS(chunk))
}

func (m *LevelMeter) Set(level float64) {
	m.bits.Store(math.Float64bits(clampLevel(level)))
}

func (m *LevelMeter) Level() float64 {
	return math.Float64frombits(m.bits.Load())
}

// RMS computes the normalized root-mean-square of little-endian 16-bit samples.
// A trailing odd byte is ignored.
func RMS(chunk []byte) float64 {
	samples := len(chunk) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(chunk[2*i:]))) / 32768
		sum += v * v
	}
	return clampLevel(math.Sqrt(sum / float64(samples)))
}

func clampLevel(level float64) float64 {
	switch {
	case math.IsNaN(level) || level < 0:
		return 0
	case level > 1:
		return 1
	default:
		return level
	}
}
