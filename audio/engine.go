package audio

import (
	"fmt"
	"sync"
	"time"

	"murmur/log"
)

// SampleFunc receives one (loudness, timestamp) pair per captured chunk.
// It is invoked on the capture context and must not block; panics are
// logged and swallowed so the capture loop never stalls.
type SampleFunc func(loudness float64, ts time.Time)

// Engine owns the microphone for the lifetime of one recording cycle.
// Start acquires the device and begins emitting samples; Stop waits for
// the capture loop to end, releases the device unconditionally, and
// returns the accumulated Recording.
type Engine struct {
	ctx         Context
	device      *DeviceInfo
	config      CaptureConfig
	minDuration time.Duration
	onSample    SampleFunc

	// OnError, when set before Start, receives asynchronous failures
	// from backends that report them (stream died, device unplugged).
	// Failures reported once the engine stopped are discarded.
	OnError func(error)

	mu      sync.Mutex
	capture CaptureDevice
	rec     *Recording
	running bool
}

// errorReporter is implemented by capture backends that can surface
// failures after Start has returned.
type errorReporter interface {
	SetErrorCallback(func(error))
}

const DefaultMinDuration = 500 * time.Millisecond

func NewEngine(ctx Context, device *DeviceInfo, config CaptureConfig, minDuration time.Duration, onSample SampleFunc) *Engine {
	if minDuration <= 0 {
		minDuration = DefaultMinDuration
	}
	return &Engine{
		ctx:         ctx,
		device:      device,
		config:      config,
		minDuration: minDuration,
		onSample:    onSample,
	}
}

// Start acquires the device and begins capture. The engine is marked
// running before the backend starts so chunks delivered immediately,
// even on the calling goroutine, are recorded rather than dropped; the
// mutex is never held across a backend call.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("%w: capture already in progress", ErrDeviceUnavailable)
	}
	e.rec = &Recording{
		SampleRate: e.config.SampleRate,
		Channels:   e.config.Channels,
	}
	e.running = true
	e.mu.Unlock()

	capture, err := e.ctx.NewCapture(e.device, e.config)
	if err != nil {
		e.reset()
		return fmt.Errorf("%w: %v", ErrDeviceInit, err)
	}
	capture.SetCallback(e.onChunk)
	if r, ok := capture.(errorReporter); ok {
		r.SetErrorCallback(e.onCaptureError)
	}

	e.mu.Lock()
	e.capture = capture
	e.mu.Unlock()

	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		e.reset()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

func (e *Engine) reset() {
	e.mu.Lock()
	e.running = false
	e.capture = nil
	e.rec = nil
	e.mu.Unlock()
}

func (e *Engine) onCaptureError(err error) {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		return
	}
	log.Warnf("capture backend error: %v", err)
	if e.OnError != nil {
		e.OnError(fmt.Errorf("%w: %v", ErrDeviceUnavailable, err))
	}
}

func (e *Engine) onChunk(data []byte, _ uint32) {
	samples := DecodeSamples(data)
	if len(samples) == 0 {
		return
	}
	loudness := Loudness(samples)

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.rec.Frames = append(e.rec.Frames, samples...)
	e.rec.LoudnessTrace = append(e.rec.LoudnessTrace, loudness)
	cb := e.onSample
	e.mu.Unlock()

	if cb != nil {
		emitSample(cb, loudness)
	}
}

func emitSample(cb SampleFunc, loudness float64) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("sample callback panic: %v", r)
		}
	}()
	cb(loudness, time.Now())
}

// Stop ends the capture loop and releases the device. The device is
// closed exactly once whether or not an error is returned; calling Stop
// on an engine that is not running returns ErrNotRecording.
func (e *Engine) Stop() (*Recording, error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil, ErrNotRecording
	}
	e.running = false
	capture := e.capture
	rec := e.rec
	e.capture = nil
	e.rec = nil
	e.mu.Unlock()

	if capture != nil {
		capture.Stop()
		capture.ClearCallback()
		capture.Close()
	}

	if len(rec.Frames) == 0 {
		return nil, ErrEmptyRecording
	}
	if dur := rec.Duration(); dur < e.minDuration {
		return nil, fmt.Errorf("%w: %.2fs < %.2fs", ErrTooShort,
			dur.Seconds(), e.minDuration.Seconds())
	}
	return rec, nil
}

// Recording returns the engine's running state.
func (e *Engine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}
