// Package config loads the settings file and freezes a validated
// snapshot. Components read the snapshot for the whole process; changes
// on disk take effect on the next run, never mid-recording.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidThreshold = errors.New("invalid silence threshold")
	ErrInvalidDuration  = errors.New("invalid duration")
)

type Config struct {
	SilenceThreshold  float64
	SilenceDuration   time.Duration
	SampleRate        uint32
	Channels          uint32
	AutoHideDelay     time.Duration
	MinRecordDuration time.Duration
	DispatchTimeout   time.Duration
	Format            string // "flac" or "wav"
	Language          string
	Device            string
	CaptureGain       int
	SourceBoost       float64
	AutoPaste         bool
	LogTranscript     bool
}

func Default() Config {
	return Config{
		SilenceThreshold:  0.02,
		SilenceDuration:   1500 * time.Millisecond,
		SampleRate:        16000,
		Channels:          1,
		AutoHideDelay:     2500 * time.Millisecond,
		MinRecordDuration: 500 * time.Millisecond,
		DispatchTimeout:   30 * time.Second,
		Format:            "flac",
		Language:          "en",
		CaptureGain:       8,
		SourceBoost:       3,
		AutoPaste:         true,
	}
}

// fileConfig is the on-disk shape; durations are plain seconds.
type fileConfig struct {
	SilenceThreshold       *float64 `yaml:"silence_threshold"`
	SilenceDurationSeconds *float64 `yaml:"silence_duration_seconds"`
	SampleRate             *uint32  `yaml:"sample_rate"`
	AutoHideDelaySeconds   *float64 `yaml:"auto_hide_delay_seconds"`
	MinRecordSeconds       *float64 `yaml:"min_record_seconds"`
	DispatchTimeoutSeconds *float64 `yaml:"dispatch_timeout_seconds"`
	Format                 *string  `yaml:"format"`
	Language               *string  `yaml:"language"`
	Device                 *string  `yaml:"device"`
	CaptureGain            *int     `yaml:"capture_gain"`
	SourceBoost            *float64 `yaml:"source_boost"`
	AutoPaste              *bool    `yaml:"auto_paste"`
	LogTranscript          *bool    `yaml:"log_transcript"`
}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	return filepath.Join(xdgConfig, "murmur", "config.yaml")
}

// Load reads the settings file over the defaults. A missing file is not
// an error; a malformed or invalid one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}

	seconds := func(s float64) time.Duration {
		return time.Duration(s * float64(time.Second))
	}
	if fc.SilenceThreshold != nil {
		cfg.SilenceThreshold = *fc.SilenceThreshold
	}
	if fc.SilenceDurationSeconds != nil {
		cfg.SilenceDuration = seconds(*fc.SilenceDurationSeconds)
	}
	if fc.SampleRate != nil {
		cfg.SampleRate = *fc.SampleRate
	}
	if fc.AutoHideDelaySeconds != nil {
		cfg.AutoHideDelay = seconds(*fc.AutoHideDelaySeconds)
	}
	if fc.MinRecordSeconds != nil {
		cfg.MinRecordDuration = seconds(*fc.MinRecordSeconds)
	}
	if fc.DispatchTimeoutSeconds != nil {
		cfg.DispatchTimeout = seconds(*fc.DispatchTimeoutSeconds)
	}
	if fc.Format != nil {
		cfg.Format = *fc.Format
	}
	if fc.Language != nil {
		cfg.Language = *fc.Language
	}
	if fc.Device != nil {
		cfg.Device = *fc.Device
	}
	if fc.CaptureGain != nil {
		cfg.CaptureGain = *fc.CaptureGain
	}
	if fc.SourceBoost != nil {
		cfg.SourceBoost = *fc.SourceBoost
	}
	if fc.AutoPaste != nil {
		cfg.AutoPaste = *fc.AutoPaste
	}
	if fc.LogTranscript != nil {
		cfg.LogTranscript = *fc.LogTranscript
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.SilenceThreshold <= 0 || c.SilenceThreshold >= 1 {
		return fmt.Errorf("%w: %v not in (0,1)", ErrInvalidThreshold, c.SilenceThreshold)
	}
	if c.SilenceDuration <= 0 {
		return fmt.Errorf("%w: silence_duration_seconds must be positive", ErrInvalidDuration)
	}
	if c.AutoHideDelay <= 0 {
		return fmt.Errorf("%w: auto_hide_delay_seconds must be positive", ErrInvalidDuration)
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("%w: dispatch_timeout_seconds must be positive", ErrInvalidDuration)
	}
	if c.SampleRate == 0 {
		return fmt.Errorf("%w: sample_rate must be positive", ErrInvalidDuration)
	}
	if c.CaptureGain < 0 {
		return fmt.Errorf("capture_gain must not be negative, got %d", c.CaptureGain)
	}
	if c.SourceBoost < 0 {
		return fmt.Errorf("source_boost must not be negative, got %v", c.SourceBoost)
	}
	switch c.Format {
	case "flac", "wav":
	default:
		return fmt.Errorf("unknown format %q (use flac or wav)", c.Format)
	}
	return nil
}
