// Package session owns the canonical application state. All events from
// the hotkey, capture callbacks, and dispatch completions are marshaled
// onto one goroutine; the machine is the sole mutator of session state
// and needs no locking for it.
package session

import (
	"errors"
	"sync/atomic"
	"time"

	"murmur/audio"
	"murmur/clipboard"
	"murmur/config"
	"murmur/dispatch"
	"murmur/log"
	"murmur/silence"
	"murmur/transcriber"
	"murmur/ui"
)

type State int32

const (
	Idle State = iota
	Recording
	Processing
	Displaying
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	case Displaying:
		return "displaying"
	case Error:
		return "error"
	}
	return "unknown"
}

// Recorder is the capture engine as the machine sees it. Stop is called
// exactly once per recording cycle.
type Recorder interface {
	Start() error
	Stop() (*audio.Recording, error)
}

// Dispatcher hands a recording to the transcription service off the
// loop goroutine.
type Dispatcher interface {
	Dispatch(rec *audio.Recording, done func(dispatch.Outcome)) error
	Shutdown()
}

// calibrationChunks is the number of leading loudness samples of each
// recording used to estimate background noise (~0.5s at 64ms chunks).
const calibrationChunks = 8

// clipRestoreDelay gives the focused window time to consume the paste
// before the previous clipboard content is put back.
const clipRestoreDelay = 600 * time.Millisecond

type eventKind int

const (
	evHotkey eventKind = iota
	evCaptureFailed
	evDispatchOK
	evDispatchErr
	evTimer
	evShutdown
)

type event struct {
	kind      eventKind
	err       error
	text      string
	rateLimit string
	gen       uint64
}

type sample struct {
	loudness float64
	ts       time.Time
}

type Machine struct {
	cfg  config.Config
	rec  Recorder
	disp Dispatcher
	sink ui.Sink

	// Copy, Paste, and ReadClip are swapped out in tests.
	Copy     func(string) error
	Paste    func() error
	ReadClip func() (string, error)

	events  chan event
	samples chan sample
	done    chan struct{}

	state         State
	stateMirror   atomic.Int32
	startedAt     time.Time
	pendingResult string
	det           *silence.Detector
	calibration   []float64
	background    float64
	timerGen      uint64
}

func New(cfg config.Config, rec Recorder, disp Dispatcher, sink ui.Sink) *Machine {
	m := &Machine{
		cfg:      cfg,
		rec:      rec,
		disp:     disp,
		sink:     sink,
		Copy:     clipboard.Copy,
		Paste:    clipboard.Paste,
		ReadClip: clipboard.Read,
		events:   make(chan event, 16),
		samples:  make(chan sample, 64),
		done:     make(chan struct{}),
	}
	return m
}

// State reports the current state. Safe from any goroutine.
func (m *Machine) State() State {
	return State(m.stateMirror.Load())
}

// HotkeyPressed toggles: start recording, stop-and-dispatch, or dismiss
// the result window, depending on state.
func (m *Machine) HotkeyPressed() {
	m.send(event{kind: evHotkey})
}

// CaptureFailed reports an asynchronous capture-side failure.
func (m *Machine) CaptureFailed(err error) {
	m.send(event{kind: evCaptureFailed, err: err})
}

// Shutdown stops the loop. Run returns once in-flight work is cancelled
// and cleaned up.
func (m *Machine) Shutdown() {
	m.send(event{kind: evShutdown})
}

// OnSample is the capture callback. Non-blocking: when the loop falls
// behind, the oldest queued sample is dropped. Silence accounting
// tolerates gaps because elapsed time comes from timestamps, not
// sample counts.
func (m *Machine) OnSample(loudness float64, ts time.Time) {
	s := sample{loudness: loudness, ts: ts}
	select {
	case m.samples <- s:
	default:
		select {
		case <-m.samples:
		default:
		}
		select {
		case m.samples <- s:
		default:
		}
	}
}

func (m *Machine) send(ev event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// Run consumes events until Shutdown. The caller's goroutine becomes
// the coordination context.
func (m *Machine) Run() {
	for {
		select {
		case ev := <-m.events:
			if ev.kind == evShutdown {
				m.shutdown()
				return
			}
			m.handle(ev)
		case s := <-m.samples:
			m.handleSample(s)
		}
	}
}

func (m *Machine) setState(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.stateMirror.Store(int32(to))
	log.StateChange(from.String(), to.String())
}

func (m *Machine) handle(ev event) {
	switch ev.kind {
	case evHotkey:
		m.handleHotkey()
	case evCaptureFailed:
		if m.state != Recording {
			log.Warnf("capture failure outside recording (state=%s): %v", m.state, ev.err)
			return
		}
		if _, err := m.rec.Stop(); err != nil && !errors.Is(err, audio.ErrNotRecording) {
			log.Warnf("stop after capture failure: %v", err)
		}
		m.sink.RecordingStop()
		m.enterError(ev.err)
	case evDispatchOK:
		if m.state != Processing {
			log.Warnf("dispatch result in state %s ignored", m.state)
			return
		}
		m.showResult(ev.text, ev.rateLimit)
	case evDispatchErr:
		if m.state != Processing {
			log.Warnf("dispatch error in state %s ignored", m.state)
			return
		}
		m.enterError(ev.err)
	case evTimer:
		if ev.gen != m.timerGen {
			return // stale timer from a dismissed cycle
		}
		switch m.state {
		case Displaying, Error:
			m.pendingResult = ""
			m.sink.Hide()
			m.setState(Idle)
		default:
			log.Warnf("timer elapsed in state %s ignored", m.state)
		}
	}
}

func (m *Machine) handleHotkey() {
	switch m.state {
	case Idle:
		m.startRecording()
	case Recording:
		m.stopAndDispatch()
	case Displaying:
		m.timerGen++
		m.pendingResult = ""
		m.sink.Hide()
		m.setState(Idle)
	default:
		log.Warnf("hotkey in state %s ignored", m.state)
	}
}

func (m *Machine) startRecording() {
	if err := m.rec.Start(); err != nil {
		m.enterError(err)
		return
	}
	m.det = silence.NewDetector(m.cfg.SilenceThreshold, m.cfg.SilenceDuration)
	if m.background > 0 {
		m.det.Seed(m.background)
	}
	m.calibration = m.calibration[:0]
	m.startedAt = time.Now()
	m.setState(Recording)
	m.sink.RecordingStart()
}

func (m *Machine) stopAndDispatch() {
	rec, err := m.rec.Stop()
	m.sink.RecordingStop()
	if err != nil {
		m.enterError(err)
		return
	}
	if err := m.disp.Dispatch(rec, m.dispatchDone); err != nil {
		m.enterError(err)
		return
	}
	m.setState(Processing)
	m.sink.Processing()
}

// dispatchDone runs on the dispatch goroutine; marshal back to the loop.
func (m *Machine) dispatchDone(o dispatch.Outcome) {
	if o.Err != nil {
		m.send(event{kind: evDispatchErr, err: o.Err})
		return
	}
	m.send(event{kind: evDispatchOK, text: o.Text, rateLimit: o.RateLimit})
}

func (m *Machine) handleSample(s sample) {
	if m.state != Recording {
		return
	}
	m.sink.AudioLevel(s.loudness)
	m.sink.RecordingTick(s.ts.Sub(m.startedAt).Seconds())

	if len(m.calibration) < calibrationChunks {
		m.calibration = append(m.calibration, s.loudness)
		if len(m.calibration) == calibrationChunks {
			m.det.Calibrate(m.calibration)
			m.background = m.det.Background()
		}
		return
	}
	if m.det.Update(s.loudness, s.ts) {
		log.Info("silence_detected")
		m.stopAndDispatch()
	}
}

func (m *Machine) showResult(text, rateLimit string) {
	m.pendingResult = text
	copied := false
	var prevClip string
	if m.cfg.AutoPaste {
		prevClip, _ = m.ReadClip()
	}
	if err := m.Copy(text); err != nil {
		log.Warnf("clipboard copy failed: %v", err)
	} else {
		copied = true
		if m.cfg.AutoPaste {
			if err := m.Paste(); err != nil {
				log.Warnf("paste failed: %v", err)
			}
			if prevClip != "" {
				// Put the user's clipboard back once the paste has landed.
				time.AfterFunc(clipRestoreDelay, func() {
					if err := m.Copy(prevClip); err != nil {
						log.Warnf("clipboard restore failed: %v", err)
					}
				})
			}
		}
	}
	log.TranscriptionText(text)
	m.sink.Transcription(text, copied)
	if rateLimit != "" && rateLimit != "?/?" {
		m.sink.RateLimit(rateLimit)
	}
	m.setState(Displaying)
	m.armTimer()
}

func (m *Machine) enterError(err error) {
	log.StateError(m.state.String(), err)
	m.sink.TranscriptionError(userMessage(err))
	m.setState(Error)
	m.armTimer()
}

func (m *Machine) armTimer() {
	m.timerGen++
	gen := m.timerGen
	time.AfterFunc(m.cfg.AutoHideDelay, func() {
		m.send(event{kind: evTimer, gen: gen})
	})
}

func (m *Machine) shutdown() {
	if m.state == Recording {
		if _, err := m.rec.Stop(); err != nil && !errors.Is(err, audio.ErrNotRecording) {
			log.Warnf("stop on shutdown: %v", err)
		}
	}
	m.disp.Shutdown()
	m.setState(Idle)
	close(m.done)
}

func userMessage(err error) string {
	var te *transcriber.Error
	if errors.As(err, &te) {
		return te.UserMessage()
	}
	switch {
	case errors.Is(err, audio.ErrTooShort):
		return "Recording too short"
	case errors.Is(err, audio.ErrEmptyRecording):
		return "No audio captured"
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return "Microphone is in use by another application"
	case errors.Is(err, audio.ErrDeviceInit):
		return "Could not open microphone"
	case errors.Is(err, dispatch.ErrDispatchPending):
		return "Still transcribing the previous recording"
	}
	return "Something went wrong"
}
