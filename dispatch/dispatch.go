// Package dispatch hands a finished recording to the transcription
// service without blocking the caller, and guarantees the temporary
// audio artifact is deleted on every outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"murmur/audio"
	"murmur/encoder"
	"murmur/log"
	"murmur/transcriber"
)

// ErrDispatchPending is returned when a dispatch is started while the
// previous one is still in flight. The state machine never lets this
// happen; the dispatcher enforces it anyway.
var ErrDispatchPending = errors.New("dispatch already in flight")

const DefaultTimeout = 30 * time.Second

// Outcome is delivered to the completion callback, off the caller's
// goroutine.
type Outcome struct {
	Text      string
	RateLimit string
	Err       error // *transcriber.Error when the service failed
}

type Dispatcher struct {
	tr      transcriber.Transcriber
	format  string
	timeout time.Duration

	// TempDir overrides the artifact directory. Set before the first
	// Dispatch; tests point it at a scratch dir.
	TempDir string

	mu       sync.Mutex
	inflight bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(tr transcriber.Transcriber, format string, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		tr:      tr,
		format:  format,
		timeout: timeout,
		TempDir: os.TempDir(),
	}
}

// Dispatch takes ownership of rec, serializes it, and runs the
// transcription call on its own goroutine. done is invoked exactly once
// with the outcome. At most one dispatch may be in flight.
func (d *Dispatcher) Dispatch(rec *audio.Recording, done func(Outcome)) error {
	d.mu.Lock()
	if d.inflight {
		d.mu.Unlock()
		return ErrDispatchPending
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	d.inflight = true
	d.cancel = cancel
	d.wg.Add(1)
	d.mu.Unlock()

	go d.run(ctx, cancel, rec, done)
	return nil
}

func (d *Dispatcher) run(ctx context.Context, cancel context.CancelFunc, rec *audio.Recording, done func(Outcome)) {
	defer d.wg.Done()
	defer cancel()
	defer func() {
		d.mu.Lock()
		d.inflight = false
		d.cancel = nil
		d.mu.Unlock()
	}()

	done(d.transcribe(ctx, rec))
}

func (d *Dispatcher) transcribe(ctx context.Context, rec *audio.Recording) Outcome {
	encodeStart := time.Now()
	data, err := encoder.Encode(d.format, rec.Frames)
	if err != nil {
		return Outcome{Err: &transcriber.Error{
			Kind:   transcriber.MalformedResponse,
			Detail: fmt.Sprintf("encoding recording: %v", err),
			Err:    err,
		}}
	}
	encodeTime := time.Since(encodeStart)

	artifact, err := d.writeArtifact(data)
	if err != nil {
		// Keep going without the on-disk copy; the request carries the
		// bytes either way.
		log.Warnf("artifact write failed: %v", err)
	}
	if artifact != "" {
		defer removeArtifact(artifact)
	}

	result, err := d.tr.Transcribe(ctx, data, d.format)
	if err != nil {
		return Outcome{Err: err}
	}

	metrics := result.Metrics
	if metrics == nil {
		metrics = &transcriber.NetworkMetrics{}
	}
	audioSeconds := rec.Duration().Seconds()
	rawSize := len(rec.Frames) * 2
	log.DispatchMetrics(log.DispatchMetricsData{
		AudioLengthS:     audioSeconds,
		RawSizeKB:        float64(rawSize) / 1024,
		CompressedSizeKB: float64(len(data)) / 1024,
		CompressionPct:   (1.0 - float64(len(data))/float64(rawSize)) * 100,
		EncodeTimeMs:     float64(encodeTime.Milliseconds()),
		DNSTimeMs:        float64(metrics.DNS.Milliseconds()),
		TLSTimeMs:        float64(metrics.TLS.Milliseconds()),
		TTFBMs:           float64(metrics.TTFB.Milliseconds()),
		TotalTimeMs:      float64(metrics.Sum().Milliseconds()),
		ConnReused:       metrics.ConnReused,
		TLSProtocol:      metrics.TLSProtocol,
	}, d.format, d.tr.Name())

	return Outcome{Text: result.Text, RateLimit: result.RateLimit}
}

func (d *Dispatcher) writeArtifact(data []byte) (string, error) {
	f, err := os.CreateTemp(d.TempDir, "murmur-*."+d.format)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func removeArtifact(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warnf("artifact cleanup failed: %v", err)
	}
}

// Pending reports whether a dispatch is in flight.
func (d *Dispatcher) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight
}

// Cancel aborts the in-flight dispatch, if any. The artifact cleanup
// still runs on the dispatch goroutine.
func (d *Dispatcher) Cancel() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Shutdown cancels any in-flight dispatch and waits for its cleanup to
// finish.
func (d *Dispatcher) Shutdown() {
	d.Cancel()
	d.wg.Wait()
}
