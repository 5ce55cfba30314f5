// Package ui defines the display contract between the session loop and
// whatever front end is attached.
package ui

// Sink receives display events from the session loop. Implementations
// must not block; the loop delivers on its own goroutine.
type Sink interface {
	RecordingStart()
	RecordingStop()
	RecordingTick(seconds float64)
	AudioLevel(level float64)
	Processing()
	Transcription(text string, copied bool)
	TranscriptionError(message string)
	Hide()
	ModeLine(text string)
	DeviceLine(text string)
	RateLimit(text string)
}

// NopSink discards everything. Used headless and in tests that do not
// care about display output.
type NopSink struct{}

func (NopSink) RecordingStart()            {}
func (NopSink) RecordingStop()             {}
func (NopSink) RecordingTick(float64)      {}
func (NopSink) AudioLevel(float64)         {}
func (NopSink) Processing()                {}
func (NopSink) Transcription(string, bool) {}
func (NopSink) TranscriptionError(string)  {}
func (NopSink) Hide()                      {}
func (NopSink) ModeLine(string)            {}
func (NopSink) DeviceLine(string)          {}
func (NopSink) RateLimit(string)           {}
