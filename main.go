package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"murmur/audio"
	"murmur/clipboard"
	"murmur/config"
	"murmur/dispatch"
	"murmur/encoder"
	"murmur/hotkey"
	"murmur/log"
	"murmur/session"
	"murmur/transcriber"
	"murmur/ui"
)

var version = "dev"

var shutdownOnce sync.Once

// countingSink wraps the display sink to track how many transcriptions
// the session produced.
type countingSink struct {
	ui.Sink
	count atomic.Int64
}

func (s *countingSink) Transcription(text string, copied bool) {
	s.count.Add(1)
	s.Sink.Transcription(text, copied)
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func modeLineText(cfg config.Config, tr transcriber.Transcriber) string {
	providerLabel := tr.Name()
	if lang := tr.GetLanguage(); lang != "" {
		providerLabel += " (" + lang + ")"
	}
	return fmt.Sprintf("[%s | %s]", cfg.Format, providerLabel)
}

func main() {
	configFlag := flag.String("config", "", "Config file path (default: ~/.config/murmur/config.yaml)")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	formatFlag := flag.String("format", "", "Audio format override: flac or wav")
	langFlag := flag.String("lang", "", "Language code override (e.g., en, es, fr)")
	autoPasteFlag := flag.Bool("autopaste", true, "Auto-paste to focused window after transcription")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	transcriptFlag := flag.Bool("transcript", false, "Also log transcribed text (off by default)")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("murmur %s\n", version)
		os.Exit(0)
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	if crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *formatFlag != "" {
		cfg.Format = *formatFlag
	}
	if *langFlag != "" {
		cfg.Language = *langFlag
	}
	if *deviceFlag != "" {
		cfg.Device = *deviceFlag
	}
	if *transcriptFlag {
		cfg.LogTranscript = true
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "autopaste" {
			cfg.AutoPaste = *autoPasteFlag
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	tr, err := transcriber.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Language != "" {
		tr.SetLanguage(cfg.Language)
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	} else {
		log.SessionStart(tr.Name(), cfg.Format)
	}
	if cfg.LogTranscript {
		if err := log.EnableTranscript(); err != nil {
			log.Warnf("transcript log unavailable: %v", err)
		}
	}

	if cfg.AutoPaste {
		if err := clipboard.Init(); err != nil {
			fmt.Printf("Warning: paste init failed: %v\n", err)
			fmt.Println("Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
		}
	}

	audioCtx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Printf("Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	defer audioCtx.Close()

	var selectedDevice *audio.DeviceInfo
	if cfg.Device != "" {
		if devices, err := audioCtx.Devices(); err == nil {
			for i := range devices {
				if devices[i].Name == cfg.Device {
					selectedDevice = &devices[i]
					break
				}
			}
		}
		if selectedDevice == nil {
			log.Warnf("device not found, using default: %s", cfg.Device)
		}
	} else if *setupFlag {
		selectedDevice, err = audio.SelectDevice(audioCtx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			selectedDevice = nil
		}
	}

	captureConfig := audio.CaptureConfig{
		SampleRate:  encoder.SampleRate,
		Channels:    encoder.Channels,
		Gain:        cfg.CaptureGain,
		SourceBoost: cfg.SourceBoost,
	}

	var tuiProgram *tea.Program
	var baseSink ui.Sink = ui.NopSink{}
	if *tuiFlag {
		tuiProgram = newTUIProgram()
		baseSink = &tuiSink{p: tuiProgram}
	}
	sink := &countingSink{Sink: baseSink}

	var m *session.Machine
	engine := audio.NewEngine(audioCtx, selectedDevice, captureConfig, cfg.MinRecordDuration, func(loudness float64, ts time.Time) {
		m.OnSample(loudness, ts)
	})
	engine.OnError = func(err error) {
		m.CaptureFailed(err)
	}
	dispatcher := dispatch.New(tr, cfg.Format, cfg.DispatchTimeout)
	m = session.New(cfg, engine, dispatcher, sink)

	gracefulShutdown := func() {
		shutdownOnce.Do(func() {
			m.Shutdown()
			if n := sink.count.Load(); n > 0 {
				log.SessionEnd(int(n))
			}
			log.Close()
			if tuiProgram != nil {
				tuiProgram.Quit()
			}
		})
	}

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Printf("Error registering hotkey: %v\n", err)
		os.Exit(1)
	}
	defer hk.Unregister()

	go func() {
		for range hk.Pressed() {
			m.HotkeyPressed()
		}
	}()

	// Warm the TLS connection so the first dispatch skips the handshake.
	if w, ok := tr.(interface{ Warm() }); ok {
		go w.Warm()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		gracefulShutdown()
	}()

	if tuiProgram != nil {
		go func() {
			if _, err := tuiProgram.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
			}
			gracefulShutdown()
		}()
	}

	sink.ModeLine(modeLineText(cfg, tr))
	sink.DeviceLine(deviceLineText(selectedDevice))

	m.Run()
}
