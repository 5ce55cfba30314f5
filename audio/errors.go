package audio

import "errors"

var (
	// ErrDeviceUnavailable means the microphone is held by another
	// process or could not be started.
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrDeviceInit covers any other device acquisition failure.
	ErrDeviceInit = errors.New("capture device init failed")

	// ErrEmptyRecording is returned by Stop when zero frames were captured.
	ErrEmptyRecording = errors.New("empty recording")

	// ErrTooShort is returned by Stop when the recording is shorter than
	// the configured minimum.
	ErrTooShort = errors.New("recording too short")

	// ErrNotRecording is returned by Stop on an engine that was never
	// started (or was already stopped).
	ErrNotRecording = errors.New("not recording")
)
