// Package silence decides when a recording has gone quiet for long
// enough to end the utterance.
package silence

import "time"

const (
	// DefaultThreshold is the loudness cutoff used until calibration.
	DefaultThreshold = 0.02

	// AdaptiveMultiplier scales the calibrated background noise level
	// into the silence threshold.
	AdaptiveMultiplier = 2.0

	// DefaultDuration is how long loudness must stay below threshold.
	DefaultDuration = 1500 * time.Millisecond

	// minThreshold keeps a near-zero calibration (dead-quiet room, muted
	// input) from producing a threshold nothing can fall below.
	minThreshold = 0.005

	// maxBackground is the loudest level still believable as background
	// noise. A calibration window above it means the user was already
	// speaking; trusting it would set the threshold to a multiple of
	// speech level and count the ongoing speech as silence.
	maxBackground = DefaultThreshold
)

// Detector consumes a stream of (loudness, timestamp) samples and
// reports, once per continuous quiet run, when the run has covered the
// configured duration. Each sample accounts for the audio since the
// previous sample, so the run length includes the chunk that completes
// it.
type Detector struct {
	threshold  float64
	duration   time.Duration
	background float64
	calibrated bool

	prevTS       time.Time
	hasPrev      bool
	silenceSince time.Time
	inRun        bool
	fired        bool
}

func NewDetector(threshold float64, duration time.Duration) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold, duration: duration}
}

// Calibrate sets the background noise estimate from an initial quiet
// period and derives the adaptive threshold from it.
func (d *Detector) Calibrate(samples []float64) {
	if len(samples) == 0 {
		return
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	d.Seed(sum / float64(len(samples)))
}

// Seed applies a previously measured background noise level, carrying
// calibration across recording cycles. Levels above maxBackground are
// discarded and the current threshold kept.
func (d *Detector) Seed(background float64) {
	if background > maxBackground {
		return
	}
	d.background = background
	d.calibrated = true
	d.threshold = background * AdaptiveMultiplier
	if d.threshold < minThreshold {
		d.threshold = minThreshold
	}
}

// Update feeds one sample. It returns true exactly once per continuous
// below-threshold run, on the sample that completes the required
// duration; the caller must Reset before reusing the detector. A
// non-positive duration makes every below-threshold sample trigger
// immediately.
func (d *Detector) Update(loudness float64, ts time.Time) bool {
	var tick time.Duration
	if d.hasPrev {
		tick = ts.Sub(d.prevTS)
		if tick < 0 {
			tick = 0
		}
	}
	d.prevTS = ts
	d.hasPrev = true

	if loudness >= d.threshold {
		d.inRun = false
		d.fired = false
		return false
	}

	if !d.inRun {
		d.inRun = true
		d.silenceSince = ts
	}
	if d.fired {
		return false
	}
	if ts.Sub(d.silenceSince)+tick >= d.duration {
		d.fired = true
		return true
	}
	return false
}

// Reset clears the current run; calibration is kept.
func (d *Detector) Reset() {
	d.inRun = false
	d.fired = false
	d.hasPrev = false
}

func (d *Detector) Threshold() float64 { return d.threshold }

func (d *Detector) Background() float64 { return d.background }

func (d *Detector) Calibrated() bool { return d.calibrated }
