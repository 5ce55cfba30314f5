package transcriber

import (
	"context"
	"sync"
	"time"
)

// FakeTranscriber returns a canned result or error, optionally after a
// delay so tests can exercise timeouts and cancellation.
type FakeTranscriber struct {
	text  string
	err   error
	delay time.Duration
	lang  string

	mu    sync.Mutex
	calls int
}

func NewFake(text string, err error) *FakeTranscriber {
	return &FakeTranscriber{text: text, err: err}
}

func (f *FakeTranscriber) SetDelay(d time.Duration) { f.delay = d }

func (f *FakeTranscriber) Name() string            { return "fake" }
func (f *FakeTranscriber) SetLanguage(lang string) { f.lang = lang }
func (f *FakeTranscriber) GetLanguage() string     { return f.lang }

func (f *FakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeTranscriber) Transcribe(ctx context.Context, _ []byte, _ string) (*Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, classify(ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, classify(err)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Result{
		Text:    f.text,
		Metrics: &NetworkMetrics{TTFB: 10 * time.Millisecond},
	}, nil
}
