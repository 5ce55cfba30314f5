package session

import (
	"sync"
	"testing"
	"time"

	"murmur/audio"
	"murmur/config"
	"murmur/dispatch"
	"murmur/hotkey"
	"murmur/transcriber"
)

type fakeRecorder struct {
	mu         sync.Mutex
	startCalls int
	stopCalls  int
	startErr   error
	stopErr    error
}

func (r *fakeRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startCalls++
	return r.startErr
}

func (r *fakeRecorder) Stop() (*audio.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopCalls++
	if r.stopErr != nil {
		return nil, r.stopErr
	}
	return &audio.Recording{
		SampleRate: 16000,
		Channels:   1,
		Frames:     make([]int16, 16000),
	}, nil
}

func (r *fakeRecorder) stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCalls
}

// fakeDispatcher captures the completion callback so tests decide when
// and how the dispatch resolves.
type fakeDispatcher struct {
	mu        sync.Mutex
	calls     int
	shutdowns int
	done      func(dispatch.Outcome)
}

func (d *fakeDispatcher) Dispatch(_ *audio.Recording, done func(dispatch.Outcome)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.done = done
	return nil
}

func (d *fakeDispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shutdowns++
}

func (d *fakeDispatcher) resolve(o dispatch.Outcome) {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done == nil {
		panic("no dispatch in flight")
	}
	go done(o)
}

type recordSink struct {
	mu          sync.Mutex
	starts      int
	stops       int
	hides       int
	processing  int
	transcripts []string
	copied      []bool
	errMsgs     []string
}

func (s *recordSink) RecordingStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
}

func (s *recordSink) RecordingStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *recordSink) Processing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing++
}

func (s *recordSink) Transcription(text string, copied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts = append(s.transcripts, text)
	s.copied = append(s.copied, copied)
}

func (s *recordSink) TranscriptionError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsgs = append(s.errMsgs, msg)
}

func (s *recordSink) Hide() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hides++
}

func (s *recordSink) RecordingTick(float64) {}
func (s *recordSink) AudioLevel(float64)    {}
func (s *recordSink) ModeLine(string)       {}
func (s *recordSink) DeviceLine(string)     {}
func (s *recordSink) RateLimit(string)      {}

func (s *recordSink) errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errMsgs...)
}

type harness struct {
	m       *Machine
	rec     *fakeRecorder
	disp    *fakeDispatcher
	sink    *recordSink
	runDone chan struct{}

	mu     sync.Mutex
	copies []string
	pastes int
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.AutoHideDelay = 40 * time.Millisecond
	cfg.SilenceDuration = 200 * time.Millisecond
	return cfg
}

func start(t *testing.T, cfg config.Config) *harness {
	t.Helper()
	h := &harness{
		rec:     &fakeRecorder{},
		disp:    &fakeDispatcher{},
		sink:    &recordSink{},
		runDone: make(chan struct{}),
	}
	h.m = New(cfg, h.rec, h.disp, h.sink)
	h.m.Copy = func(text string) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.copies = append(h.copies, text)
		return nil
	}
	h.m.Paste = func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.pastes++
		return nil
	}
	h.m.ReadClip = func() (string, error) { return "", nil }
	go func() {
		h.m.Run()
		close(h.runDone)
	}()
	t.Cleanup(func() {
		h.m.Shutdown()
		select {
		case <-h.runDone:
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after Shutdown")
		}
	})
	return h
}

func (h *harness) copyCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.copies)
}

func waitState(t *testing.T, m *Machine, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", m.State(), want)
}

func TestHotkeyToggleStop(t *testing.T) {
	h := start(t, testConfig())

	h.m.HotkeyPressed()
	waitState(t, h.m, Recording)

	h.m.HotkeyPressed()
	waitState(t, h.m, Processing)
	if n := h.rec.stops(); n != 1 {
		t.Fatalf("stop called %d times, want 1", n)
	}

	h.disp.resolve(dispatch.Outcome{Text: "hello"})
	waitState(t, h.m, Displaying)
	if got := h.copyCount(); got != 1 {
		t.Fatalf("clipboard copies = %d, want 1", got)
	}

	waitState(t, h.m, Idle)
	h.sink.mu.Lock()
	hides := h.sink.hides
	h.sink.mu.Unlock()
	if hides != 1 {
		t.Fatalf("hides = %d, want 1", hides)
	}
}

func TestDispatchTimeoutErrorPath(t *testing.T) {
	h := start(t, testConfig())

	h.m.HotkeyPressed()
	waitState(t, h.m, Recording)
	h.m.HotkeyPressed()
	waitState(t, h.m, Processing)

	h.disp.resolve(dispatch.Outcome{Err: &transcriber.Error{
		Kind:   transcriber.Timeout,
		Detail: "context deadline exceeded",
	}})
	waitState(t, h.m, Error)
	waitState(t, h.m, Idle)

	if got := h.copyCount(); got != 0 {
		t.Fatalf("clipboard written %d times on error path", got)
	}
	if msgs := h.sink.errors(); len(msgs) != 1 {
		t.Fatalf("error messages = %v, want one", msgs)
	}
}

func TestHotkeyListenerDrivesMachine(t *testing.T) {
	h := start(t, testConfig())

	hk := hotkey.NewFake()
	if err := hk.Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(hk.Unregister)
	go func() {
		for range hk.Pressed() {
			h.m.HotkeyPressed()
		}
	}()

	hk.SimPress()
	waitState(t, h.m, Recording)
	hk.SimPress()
	waitState(t, h.m, Processing)
}

func TestSilenceStopsRecording(t *testing.T) {
	h := start(t, testConfig())

	h.m.HotkeyPressed()
	waitState(t, h.m, Recording)

	t0 := time.Now()
	at := func(n int) time.Time { return t0.Add(time.Duration(n) * 50 * time.Millisecond) }

	// Calibration window, then a quiet run long enough to trigger.
	for i := 0; i < calibrationChunks; i++ {
		h.m.OnSample(0.001, at(i))
	}
	for i := calibrationChunks; i < calibrationChunks+4; i++ {
		h.m.OnSample(0.001, at(i))
	}

	waitState(t, h.m, Processing)
	if n := h.rec.stops(); n != 1 {
		t.Fatalf("stop called %d times, want 1", n)
	}
}

func TestLoudRecordingDoesNotAutoStop(t *testing.T) {
	h := start(t, testConfig())

	h.m.HotkeyPressed()
	waitState(t, h.m, Recording)

	t0 := time.Now()
	for i := 0; i < 40; i++ {
		h.m.OnSample(0.3, t0.Add(time.Duration(i)*50*time.Millisecond))
	}
	time.Sleep(50 * time.Millisecond)
	if s := h.m.State(); s != Recording {
		t.Fatalf("state = %s, want recording", s)
	}
}

func TestCaptureStartFailure(t *testing.T) {
	h := start(t, testConfig())
	h.rec.startErr = audio.ErrDeviceUnavailable

	h.m.HotkeyPressed()
	waitState(t, h.m, Error)
	waitState(t, h.m, Idle)
	if msgs := h.sink.errors(); len(msgs) != 1 {
		t.Fatalf("error messages = %v, want one", msgs)
	}
}

func TestCaptureFailureWhileRecording(t *testing.T) {
	h := start(t, testConfig())

	h.m.HotkeyPressed()
	waitState(t, h.m, Recording)

	h.m.CaptureFailed(audio.ErrDeviceUnavailable)
	waitState(t, h.m, Error)
	waitState(t, h.m, Idle)
	if n := h.rec.stops(); n != 1 {
		t.Fatalf("stop called %d times, want 1", n)
	}
}

func TestTooShortRecording(t *testing.T) {
	h := start(t, testConfig())
	h.rec.stopErr = audio.ErrTooShort

	h.m.HotkeyPressed()
	waitState(t, h.m, Recording)
	h.m.HotkeyPressed()
	waitState(t, h.m, Error)
	waitState(t, h.m, Idle)
	if got := h.copyCount(); got != 0 {
		t.Fatal("clipboard written for failed recording")
	}
}

func TestHotkeyDismissesResult(t *testing.T) {
	cfg := testConfig()
	cfg.AutoHideDelay = 10 * time.Second
	h := start(t, cfg)

	h.m.HotkeyPressed()
	waitState(t, h.m, Recording)
	h.m.HotkeyPressed()
	waitState(t, h.m, Processing)
	h.disp.resolve(dispatch.Outcome{Text: "dismiss me"})
	waitState(t, h.m, Displaying)

	h.m.HotkeyPressed()
	waitState(t, h.m, Idle)
}

func TestStaleTimerIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.AutoHideDelay = 60 * time.Millisecond
	h := start(t, cfg)

	h.m.HotkeyPressed()
	waitState(t, h.m, Recording)
	h.m.HotkeyPressed()
	waitState(t, h.m, Processing)
	h.disp.resolve(dispatch.Outcome{Text: "first"})
	waitState(t, h.m, Displaying)

	// Dismiss early and start a new recording before the auto-hide
	// timer from the dismissed cycle fires.
	h.m.HotkeyPressed()
	waitState(t, h.m, Idle)
	h.m.HotkeyPressed()
	waitState(t, h.m, Recording)

	time.Sleep(150 * time.Millisecond)
	if s := h.m.State(); s != Recording {
		t.Fatalf("stale timer changed state to %s", s)
	}
}

func TestEveryErrorPathReachesIdle(t *testing.T) {
	cases := []struct {
		name  string
		drive func(t *testing.T, h *harness)
	}{
		{"start failure", func(t *testing.T, h *harness) {
			h.rec.startErr = audio.ErrDeviceInit
			h.m.HotkeyPressed()
		}},
		{"capture failure", func(t *testing.T, h *harness) {
			h.m.HotkeyPressed()
			waitState(t, h.m, Recording)
			h.m.CaptureFailed(audio.ErrDeviceUnavailable)
		}},
		{"empty recording", func(t *testing.T, h *harness) {
			h.rec.stopErr = audio.ErrEmptyRecording
			h.m.HotkeyPressed()
			waitState(t, h.m, Recording)
			h.m.HotkeyPressed()
		}},
		{"auth failure", func(t *testing.T, h *harness) {
			h.m.HotkeyPressed()
			waitState(t, h.m, Recording)
			h.m.HotkeyPressed()
			waitState(t, h.m, Processing)
			h.disp.resolve(dispatch.Outcome{Err: &transcriber.Error{Kind: transcriber.AuthFailure}})
		}},
		{"network failure", func(t *testing.T, h *harness) {
			h.m.HotkeyPressed()
			waitState(t, h.m, Recording)
			h.m.HotkeyPressed()
			waitState(t, h.m, Processing)
			h.disp.resolve(dispatch.Outcome{Err: &transcriber.Error{Kind: transcriber.NetworkFailure}})
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := start(t, testConfig())
			tc.drive(t, h)
			// Every case routes through Error before auto-hiding; waiting
			// for it keeps the Idle check from passing on the initial state.
			waitState(t, h.m, Error)
			waitState(t, h.m, Idle)

			// The machine must accept a fresh cycle afterwards.
			h.rec.mu.Lock()
			h.rec.startErr = nil
			h.rec.stopErr = nil
			h.rec.mu.Unlock()
			h.m.HotkeyPressed()
			waitState(t, h.m, Recording)
		})
	}
}

func TestShutdownFromEachState(t *testing.T) {
	drive := map[string]func(t *testing.T, h *harness){
		"idle": func(t *testing.T, h *harness) {},
		"recording": func(t *testing.T, h *harness) {
			h.m.HotkeyPressed()
			waitState(t, h.m, Recording)
		},
		"processing": func(t *testing.T, h *harness) {
			h.m.HotkeyPressed()
			waitState(t, h.m, Recording)
			h.m.HotkeyPressed()
			waitState(t, h.m, Processing)
		},
		"displaying": func(t *testing.T, h *harness) {
			h.m.HotkeyPressed()
			waitState(t, h.m, Recording)
			h.m.HotkeyPressed()
			waitState(t, h.m, Processing)
			h.disp.resolve(dispatch.Outcome{Text: "bye"})
			waitState(t, h.m, Displaying)
		},
	}

	for name, fn := range drive {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			cfg.AutoHideDelay = 10 * time.Second
			h := start(t, cfg)
			fn(t, h)

			h.m.Shutdown()
			select {
			case <-h.runDone:
			case <-time.After(2 * time.Second):
				t.Fatal("Run did not return")
			}
			h.disp.mu.Lock()
			shutdowns := h.disp.shutdowns
			h.disp.mu.Unlock()
			if shutdowns == 0 {
				t.Fatal("dispatcher not shut down")
			}
		})
	}
}

func TestAutoPasteOnSuccess(t *testing.T) {
	cfg := testConfig()
	cfg.AutoPaste = true
	h := start(t, cfg)

	h.m.HotkeyPressed()
	waitState(t, h.m, Recording)
	h.m.HotkeyPressed()
	waitState(t, h.m, Processing)
	h.disp.resolve(dispatch.Outcome{Text: "paste me"})
	waitState(t, h.m, Displaying)

	h.mu.Lock()
	pastes := h.pastes
	h.mu.Unlock()
	if pastes != 1 {
		t.Fatalf("pastes = %d, want 1", pastes)
	}
}

func TestAutoPasteRestoresClipboard(t *testing.T) {
	cfg := testConfig()
	cfg.AutoPaste = true
	h := start(t, cfg)
	h.m.ReadClip = func() (string, error) { return "previous contents", nil }

	h.m.HotkeyPressed()
	waitState(t, h.m, Recording)
	h.m.HotkeyPressed()
	waitState(t, h.m, Processing)
	h.disp.resolve(dispatch.Outcome{Text: "new text"})
	waitState(t, h.m, Displaying)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		n := len(h.copies)
		last := ""
		if n > 0 {
			last = h.copies[n-1]
		}
		h.mu.Unlock()
		if n == 2 && last == "previous contents" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("previous clipboard contents never restored")
}
