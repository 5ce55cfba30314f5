package audio

import "time"

// Recording is the accumulated result of one capture cycle. Frames are
// append-only while the engine runs and immutable after Stop returns.
type Recording struct {
	SampleRate    uint32
	Channels      uint32
	Frames        []int16
	LoudnessTrace []float64 // one RMS value per processed chunk, chronological
}

func (r *Recording) Duration() time.Duration {
	if r.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(r.Frames)) / float64(r.SampleRate) * float64(time.Second))
}
