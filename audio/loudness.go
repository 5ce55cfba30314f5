package audio

import (
	"encoding/binary"
	"math"
)

// Loudness returns the RMS amplitude of a chunk of S16 samples,
// normalized to [0,1]. An empty chunk is 0.
func Loudness(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		v := float64(s)
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares/float64(len(samples))) / 32768.0
}

// DecodeSamples converts little-endian S16 PCM bytes to samples.
// A trailing odd byte is ignored.
func DecodeSamples(data []byte) []int16 {
	samples := make([]int16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		samples = append(samples, int16(binary.LittleEndian.Uint16(data[i:])))
	}
	return samples
}
